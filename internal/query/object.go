package query

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// ObjectTag is the struct tag FetchObject matches column names against.
// Untagged fields match their name case-insensitively.
const ObjectTag = "db"

// FetchObject hydrates one T per row. newT builds each instance before the
// row is decoded into it, so constructor state survives; a nil newT starts
// from the zero value. Columns without a matching field are ignored.
//
// T may be a struct, a pointer to a struct, or a map.
func FetchObject[T any](ctx context.Context, e *Executor, statement string, values bind.Values, newT func() T) ([]T, error) {
	out := []T{}
	n := 0
	err := e.drain(ctx, "FetchObject", statement, values, func(row database.Row) (bool, error) {
		n++
		var obj T
		if newT != nil {
			obj = newT()
		}
		if err := hydrate(row, &obj); err != nil {
			return false, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("hydrate row %d into %s", n, reflect.TypeOf(&obj).Elem()), err)
		}
		out = append(out, obj)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func hydrate(row database.Row, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          ObjectTag,
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			bytesToStringHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(row.Map())
}

// bytesToStringHook decodes text columns that arrive as []byte.
func bytesToStringHook(from, to reflect.Type, data any) (any, error) {
	b, ok := data.([]byte)
	if !ok || from.Kind() != reflect.Slice || to.Kind() == reflect.Slice {
		return data, nil
	}
	return string(b), nil
}
