package query

import (
	"context"
	"fmt"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/errs"
)

// Mode names a fetch mode for callers that pick one at run time, such as
// the CLI and the HTTP API.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeAssoc  Mode = "assoc"
	ModeOne    Mode = "one"
	ModeValue  Mode = "value"
	ModeColumn Mode = "column"
	ModeGroup  Mode = "group"
	ModePairs  Mode = "pairs"
	ModeObject Mode = "object"
)

// Modes lists every fetch mode in documentation order.
var Modes = []Mode{ModeAll, ModeAssoc, ModeOne, ModeValue, ModeColumn, ModeGroup, ModePairs, ModeObject}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Outcome is the JSON-ready result of FetchMode. Found is false only for
// one and value modes on an empty result; Data is then nil.
type Outcome struct {
	Data  any  `json:"data"`
	Found bool `json:"found"`
}

// FetchMode runs statement through the fetch mode m. Keyed modes (assoc,
// group, pairs) come back with their keys rendered by TextKeys.
func (e *Executor) FetchMode(ctx context.Context, m Mode, statement string, values bind.Values) (Outcome, error) {
	switch m {
	case ModeAll:
		rows, err := e.FetchAll(ctx, statement, values)
		return found(rows, err)

	case ModeAssoc:
		rows, err := e.FetchAssoc(ctx, statement, values)
		return found(TextKeys(rows), err)

	case ModeOne:
		row, ok, err := e.FetchOne(ctx, statement, values)
		if err != nil || !ok {
			return Outcome{}, err
		}
		return Outcome{Data: row, Found: true}, nil

	case ModeValue:
		v, ok, err := e.FetchValue(ctx, statement, values)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Data: v, Found: ok}, nil

	case ModeColumn:
		col, err := e.FetchColumn(ctx, statement, values)
		return found(col, err)

	case ModeGroup:
		groups, err := e.FetchGroup(ctx, statement, values)
		return found(TextKeys(groups), err)

	case ModePairs:
		pairs, err := e.FetchPairs(ctx, statement, values)
		return found(TextKeys(pairs), err)

	case ModeObject:
		objs, err := FetchObject[map[string]any](ctx, e, statement, values, nil)
		return found(objs, err)
	}
	return Outcome{}, errs.Newf(errs.ErrKindInvalidInput, "unknown fetch mode %q", string(m))
}

func found(data any, err error) (Outcome, error) {
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: data, Found: true}, nil
}

// TextKeys renders map keys as text so any first-column type survives JSON
// encoding. A NULL key becomes "null".
func TextKeys[T any](m map[any]T) map[string]T {
	out := make(map[string]T, len(m))
	for k, v := range m {
		if k == nil {
			out["null"] = v
			continue
		}
		out[fmt.Sprint(k)] = v
	}
	return out
}
