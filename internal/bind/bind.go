// Package bind decides which wire type a value is bound with and applies
// a set of values to a prepared statement.
//
// Classification is a total, ordered function over the scalar domain:
//
//	integer -> boolean -> null -> (non-scalar: error) -> string
//
// Text is inspected too, so "42" binds as INTEGER and "true" as BOOLEAN.
// The exact table is pinned in classify_test.go.
package bind

import (
	"database/sql/driver"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// Values maps placeholder keys to the values bound to them.
// Named keys may carry a leading colon; positional keys are "1", "2", …
type Values map[string]any

// Positional builds Values for ? placeholders from an ordered list.
func Positional(vals ...any) Values {
	v := make(Values, len(vals))
	for i, val := range vals {
		v[strconv.Itoa(i+1)] = val
	}
	return v
}

// Keys returns the keys in binding order: positional keys numerically,
// then named keys alphabetically.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := database.IsPositionalKey(keys[i]), database.IsPositionalKey(keys[j])
		switch {
		case pi && pj:
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		case pi != pj:
			return pi
		default:
			return database.NormalizeKey(keys[i]) < database.NormalizeKey(keys[j])
		}
	})
	return keys
}

// UnbindableTypeError reports a value that is not a scalar.
// It is a programmer error and is never retried.
type UnbindableTypeError struct {
	Key  string
	Type string
}

func (e *UnbindableTypeError) Error() string {
	return fmt.Sprintf("cannot bind value of type '%s' to placeholder '%s'", e.Type, e.Key)
}

// Kind places the error in errs.ErrKindInvalidInput.
func (e *UnbindableTypeError) Kind() errs.ErrKind { return errs.ErrKindInvalidInput }

// Classify returns the wire type value is bound with under key.
func Classify(key string, value any) (database.WireType, error) {
	if v, ok := value.(driver.Valuer); ok {
		inner, err := database.ValuerValue(v)
		if err != nil {
			return database.WireString, errs.Wrap(errs.ErrKindInvalidInput,
				fmt.Sprintf("value for placeholder '%s' failed", key), err)
		}
		return Classify(key, inner)
	}

	switch v := value.(type) {
	case nil:
		return database.WireNull, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return database.WireInteger, nil
	case uint:
		return unsigned(uint64(v)), nil
	case uint64:
		return unsigned(v), nil
	case bool:
		return database.WireBoolean, nil
	case string:
		return text(v), nil
	case []byte, time.Time, float32, float64:
		return database.WireString, nil
	case *int:
		return pointee(key, v == nil, v)
	case *int64:
		return pointee(key, v == nil, v)
	case *string:
		return pointee(key, v == nil, v)
	case *bool:
		return pointee(key, v == nil, v)
	case *float64:
		return pointee(key, v == nil, v)
	case *time.Time:
		return pointee(key, v == nil, v)
	}
	if conv, ok := database.Underlying(value); ok {
		return Classify(key, conv)
	}
	return database.WireString, &UnbindableTypeError{Key: key, Type: fmt.Sprintf("%T", value)}
}

func unsigned(v uint64) database.WireType {
	if v > math.MaxInt64 {
		return database.WireString
	}
	return database.WireInteger
}

func pointee(key string, isNil bool, p any) (database.WireType, error) {
	if isNil {
		return database.WireNull, nil
	}
	switch v := p.(type) {
	case *int:
		return Classify(key, *v)
	case *int64:
		return Classify(key, *v)
	case *string:
		return Classify(key, *v)
	case *bool:
		return Classify(key, *v)
	case *float64:
		return Classify(key, *v)
	case *time.Time:
		return Classify(key, *v)
	}
	return database.WireString, &UnbindableTypeError{Key: key, Type: fmt.Sprintf("%T", p)}
}

// text classifies a string: integer literal, then boolean literal, then text.
func text(s string) database.WireType {
	t := strings.TrimSpace(s)
	if isIntegerLiteral(t) {
		return database.WireInteger
	}
	switch strings.ToLower(t) {
	case "true", "false":
		return database.WireBoolean
	}
	return database.WireString
}

// isIntegerLiteral accepts [+-]?(0|[1-9][0-9]*) within int64.
func isIntegerLiteral(s string) bool {
	digits := s
	if len(digits) > 0 && (digits[0] == '+' || digits[0] == '-') {
		digits = digits[1:]
	}
	if digits == "" {
		return false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// Plan is a set of values classified and ready to bind.
type Plan struct {
	keys   []string
	values Values
	types  map[string]database.WireType
}

// NewPlan classifies every value without touching a statement.
// The first failure in Keys order is returned.
func NewPlan(values Values) (*Plan, error) {
	keys := values.Keys()
	types := make(map[string]database.WireType, len(values))
	for _, key := range keys {
		t, err := Classify(key, values[key])
		if err != nil {
			return nil, err
		}
		types[key] = t
	}
	return &Plan{keys: keys, values: values, types: types}, nil
}

// Len returns the number of values in the plan.
func (p *Plan) Len() int { return len(p.keys) }

// Type returns the wire type chosen for key.
func (p *Plan) Type(key string) (database.WireType, bool) {
	t, ok := p.types[key]
	return t, ok
}

// Apply binds every value to stmt in Keys order. An empty plan binds nothing.
func (p *Plan) Apply(stmt database.Stmt) error {
	for _, key := range p.keys {
		if err := stmt.Bind(key, p.values[key], p.types[key]); err != nil {
			return err
		}
	}
	return nil
}

// Bind classifies every value, then binds them to stmt in Keys order.
// An unbindable value aborts before any value reaches stmt.
func Bind(stmt database.Stmt, values Values) error {
	plan, err := NewPlan(values)
	if err != nil {
		return err
	}
	return plan.Apply(stmt)
}
