package query

import (
	"context"
	"reflect"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// Every fetch mode executes the statement, drains the cursor (or stops early
// where noted), closes it, and returns fully materialized data.
//
// The *With variants take a transform applied once per unit in result order.
// A nil transform is the identity; it only type-checks when the unit is
// already a T (database.Row or any for row modes, any for scalar modes).

// --- identity variants ---

// FetchAll returns every row in query order.
func (e *Executor) FetchAll(ctx context.Context, statement string, values bind.Values) ([]database.Row, error) {
	return fetchAll[database.Row](ctx, e, "FetchAll", statement, values, nil)
}

// FetchAssoc returns the rows keyed by the value of their first column.
// Repeated keys follow the Executor's DuplicateKeyPolicy.
func (e *Executor) FetchAssoc(ctx context.Context, statement string, values bind.Values) (map[any]database.Row, error) {
	return fetchAssoc[database.Row](ctx, e, "FetchAssoc", statement, values, nil)
}

// FetchOne returns the first row. ok is false when the result is empty.
func (e *Executor) FetchOne(ctx context.Context, statement string, values bind.Values) (database.Row, bool, error) {
	return fetchOne[database.Row](ctx, e, "FetchOne", statement, values, nil)
}

// FetchValue returns the first column of the first row. ok is false when the
// result is empty; a NULL value is (nil, true, nil).
func (e *Executor) FetchValue(ctx context.Context, statement string, values bind.Values) (any, bool, error) {
	return fetchValue[any](ctx, e, "FetchValue", statement, values, nil)
}

// FetchColumn returns the first column of every row in query order.
func (e *Executor) FetchColumn(ctx context.Context, statement string, values bind.Values) ([]any, error) {
	return fetchColumn[any](ctx, e, "FetchColumn", statement, values, nil)
}

// FetchGroup returns the rows grouped by the value of their first column.
// Each group keeps query order.
func (e *Executor) FetchGroup(ctx context.Context, statement string, values bind.Values) (map[any][]database.Row, error) {
	return fetchGroup[database.Row](ctx, e, "FetchGroup", statement, values, nil)
}

// FetchPairs maps the first column of every row to its second column.
// Repeated keys follow the Executor's DuplicateKeyPolicy.
func (e *Executor) FetchPairs(ctx context.Context, statement string, values bind.Values) (map[any]any, error) {
	out := make(map[any]any)
	err := e.drain(ctx, "FetchPairs", statement, values, func(row database.Row) (bool, error) {
		if row.Len() < 2 {
			return false, errs.Newf(errs.ErrKindQueryFailed, "pairs need two columns, result has %d", row.Len())
		}
		key, err := keyFor(e, out, row)
		if err != nil {
			return false, err
		}
		out[key] = row.At(1)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- transforming variants ---

// FetchAllWith is FetchAll with fn applied to each row.
func FetchAllWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(database.Row) (T, error)) ([]T, error) {
	return fetchAll(ctx, e, "FetchAll", statement, values, fn)
}

// FetchAssocWith is FetchAssoc with fn applied to each row. The key is taken
// from the row before fn runs.
func FetchAssocWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(database.Row) (T, error)) (map[any]T, error) {
	return fetchAssoc(ctx, e, "FetchAssoc", statement, values, fn)
}

// FetchOneWith is FetchOne with fn applied to the row.
func FetchOneWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(database.Row) (T, error)) (T, bool, error) {
	return fetchOne(ctx, e, "FetchOne", statement, values, fn)
}

// FetchValueWith is FetchValue with fn applied to the value.
func FetchValueWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(any) (T, error)) (T, bool, error) {
	return fetchValue(ctx, e, "FetchValue", statement, values, fn)
}

// FetchColumnWith is FetchColumn with fn applied to each value.
func FetchColumnWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(any) (T, error)) ([]T, error) {
	return fetchColumn(ctx, e, "FetchColumn", statement, values, fn)
}

// FetchGroupWith is FetchGroup with fn applied to each row.
func FetchGroupWith[T any](ctx context.Context, e *Executor, statement string, values bind.Values, fn func(database.Row) (T, error)) (map[any][]T, error) {
	return fetchGroup(ctx, e, "FetchGroup", statement, values, fn)
}

// --- shapes ---

func fetchAll[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(database.Row) (T, error)) ([]T, error) {
	out := []T{}
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		v, err := apply(fn, row)
		if err != nil {
			return false, err
		}
		out = append(out, v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fetchAssoc[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(database.Row) (T, error)) (map[any]T, error) {
	out := make(map[any]T)
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		key, err := keyFor(e, out, row)
		if err != nil {
			return false, err
		}
		v, err := apply(fn, row)
		if err != nil {
			return false, err
		}
		out[key] = v
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fetchOne[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(database.Row) (T, error)) (T, bool, error) {
	var (
		out   T
		found bool
	)
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		v, err := apply(fn, row)
		if err != nil {
			return false, err
		}
		out, found = v, true
		return false, nil
	})
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

func fetchValue[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(any) (T, error)) (T, bool, error) {
	var (
		out   T
		found bool
	)
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		first, err := firstColumn(row)
		if err != nil {
			return false, err
		}
		v, err := apply(fn, first)
		if err != nil {
			return false, err
		}
		out, found = v, true
		return false, nil
	})
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

func fetchColumn[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(any) (T, error)) ([]T, error) {
	out := []T{}
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		first, err := firstColumn(row)
		if err != nil {
			return false, err
		}
		v, err := apply(fn, first)
		if err != nil {
			return false, err
		}
		out = append(out, v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fetchGroup[T any](ctx context.Context, e *Executor, name, statement string, values bind.Values, fn func(database.Row) (T, error)) (map[any][]T, error) {
	out := make(map[any][]T)
	err := e.drain(ctx, name, statement, values, func(row database.Row) (bool, error) {
		first, err := firstColumn(row)
		if err != nil {
			return false, err
		}
		key, err := mapKey(first)
		if err != nil {
			return false, err
		}
		v, err := apply(fn, row)
		if err != nil {
			return false, err
		}
		out[key] = append(out[key], v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- drain primitive ---

// drain executes statement and hands rows to visit until visit returns false,
// visit fails, or the cursor is exhausted. The result is always closed.
func (e *Executor) drain(ctx context.Context, name, statement string, values bind.Values, visit func(database.Row) (bool, error)) (err error) {
	res, err := e.run(ctx, name, statement, values)
	if err != nil {
		return err
	}
	defer closeResult(res, &err)

	for {
		row, ok, err := res.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		more, err := visit(row)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// keyFor returns the map key for row and applies the duplicate policy
// against m.
func keyFor[T any](e *Executor, m map[any]T, row database.Row) (any, error) {
	first, err := firstColumn(row)
	if err != nil {
		return nil, err
	}
	key, err := mapKey(first)
	if err != nil {
		return nil, err
	}
	if _, dup := m[key]; dup && e.dups == RejectDuplicates {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "duplicate key %v in first column", key)
	}
	return key, nil
}

func firstColumn(row database.Row) (any, error) {
	v, ok := row.First()
	if !ok {
		return nil, errs.New(errs.ErrKindQueryFailed, "result has no columns")
	}
	return v, nil
}

// mapKey turns a column value into a usable map key. Text arriving as bytes
// becomes a string.
func mapKey(v any) (any, error) {
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	if v != nil && !reflect.TypeOf(v).Comparable() {
		return nil, errs.Newf(errs.ErrKindQueryFailed, "value of type %T cannot be used as a key", v)
	}
	return v, nil
}

// apply runs fn, or converts in to Out when fn is nil.
func apply[In, Out any](fn func(In) (Out, error), in In) (Out, error) {
	if fn != nil {
		return fn(in)
	}
	var zero Out
	if p, ok := any(&zero).(*any); ok {
		*p = in
		return zero, nil
	}
	if out, ok := any(in).(Out); ok {
		return out, nil
	}
	return zero, errs.Newf(errs.ErrKindInvalidInput, "no transform given from %T to %s", in, reflect.TypeOf(&zero).Elem())
}
