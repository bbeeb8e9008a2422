package database

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/xdb/internal/errs"
)

// WireType is the type tag a value is bound with. It decides how the engine
// receives the value (integer vs. quoted text, and so on).
type WireType int

const (
	WireString WireType = iota
	WireInteger
	WireBoolean
	WireNull
)

func (t WireType) String() string {
	switch t {
	case WireInteger:
		return "INTEGER"
	case WireBoolean:
		return "BOOLEAN"
	case WireNull:
		return "NULL"
	default:
		return "STRING"
	}
}

// Coerce converts an already-classified value into the argument handed to
// the client library for wire type t.
//
//	WireInteger -> int64 (numeric text is parsed)
//	WireBoolean -> bool  ("true"/"false" text is parsed)
//	WireNull    -> nil
//	WireString  -> string; []byte and time.Time pass through, floats are formatted
func Coerce(value any, t WireType) (any, error) {
	if v, ok := value.(driver.Valuer); ok {
		inner, err := ValuerValue(v)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "valuer failed", err)
		}
		value = inner
	}
	value = deref(value)
	if conv, ok := Underlying(value); ok {
		value = conv
	}

	switch t {
	case WireNull:
		return nil, nil
	case WireInteger:
		return toInt64(value)
	case WireBoolean:
		return toBool(value)
	default:
		return toText(value), nil
	}
}

var (
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType   = reflect.TypeOf(time.Time{})
)

// ValuerValue calls v.Value. A nil pointer whose element type implements
// driver.Valuer is NULL, as in database/sql.
func ValuerValue(v driver.Valuer) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() && rv.Type().Elem().Implements(valuerType) {
		return nil, nil
	}
	return v.Value()
}

// Underlying converts a value of a named scalar type (type Sym string,
// type ID int64, or a pointer to one) to its basic driver value. ok is
// false for anything else, including structs, maps and slices.
func Underlying(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	rt := reflect.TypeOf(value)
	base := rt
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.PkgPath() == "" || base == timeType {
		return value, false
	}
	conv, err := driver.DefaultParameterConverter.ConvertValue(value)
	if err != nil || (conv != nil && reflect.TypeOf(conv) == rt) {
		return value, false
	}
	return conv, true
}

func deref(value any) any {
	switch v := value.(type) {
	case *int:
		if v != nil {
			return *v
		}
	case *int64:
		if v != nil {
			return *v
		}
	case *string:
		if v != nil {
			return *v
		}
	case *bool:
		if v != nil {
			return *v
		}
	case *float64:
		if v != nil {
			return *v
		}
	case *time.Time:
		if v != nil {
			return *v
		}
	default:
		return value
	}
	return nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintToInt64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("%q is not an integer", v), err)
		}
		return n, nil
	}
	return 0, errs.Newf(errs.ErrKindInvalidInput, "cannot encode %T as INTEGER", value)
}

func uintToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%d overflows INTEGER", v)
	}
	return int64(v), nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, errs.Newf(errs.ErrKindInvalidInput, "cannot encode %v (%T) as BOOLEAN", value, value)
}

func toText(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case []byte:
		return v
	case time.Time:
		return v
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
