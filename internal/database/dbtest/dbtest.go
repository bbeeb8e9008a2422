// Package dbtest provides a scripted, in-memory database.Driver for tests.
//
// A Handler receives each executed statement together with its coerced
// arguments and answers with canned rows:
//
//	drv := dbtest.New(func(c dbtest.Call) (*dbtest.Rows, error) {
//	    return dbtest.NewRows("id", "symbol").Add(int64(1), "AAPL"), nil
//	})
package dbtest

import (
	"context"
	"errors"

	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// Bound records one Stmt.Bind call.
type Bound struct {
	Key   string
	Value any
	Wire  database.WireType
}

// Call is one executed statement.
type Call struct {
	Text  string
	Bound []Bound
	Args  map[string]any // normalized key -> coerced value
}

// Arg returns the coerced value bound under key.
func (c Call) Arg(key string) any {
	return c.Args[database.NormalizeKey(key)]
}

// Rows is a canned result.
type Rows struct {
	Columns  []string
	Data     [][]any
	Affected int64
}

// NewRows starts a result with the given columns.
func NewRows(columns ...string) *Rows {
	return &Rows{Columns: columns}
}

// Add appends one record.
func (r *Rows) Add(values ...any) *Rows {
	r.Data = append(r.Data, values)
	return r
}

// Handler answers an executed statement.
type Handler func(c Call) (*Rows, error)

// Driver is a database.Driver whose behaviour is scripted by a Handler.
// It records every prepare, bind, and execute for assertions.
type Driver struct {
	Handler Handler

	// PrepareErr, when set, fails every Prepare.
	PrepareErr error

	// LastID is returned by LastInsertID; Sequences answers named sequences.
	LastID    any
	Sequences map[string]any

	Prepared []string
	Calls    []Call
	Results  []*Result
	Closed   bool

	lastErr error
}

// New returns a Driver answering with h. A nil h answers every statement
// with an empty result.
func New(h Handler) *Driver {
	return &Driver{Handler: h}
}

func (d *Driver) Prepare(_ context.Context, text string) (database.Stmt, error) {
	if d.PrepareErr != nil {
		d.lastErr = d.PrepareErr
		return nil, d.PrepareErr
	}
	d.Prepared = append(d.Prepared, text)
	return &Stmt{drv: d, text: text, args: map[string]any{}}, nil
}

func (d *Driver) Exec(_ context.Context, text string) (int64, error) {
	rows, err := d.run(Call{Text: text, Args: map[string]any{}})
	if err != nil {
		return 0, err
	}
	return rows.Affected, nil
}

func (d *Driver) LastInsertID(_ context.Context, sequence string) (any, error) {
	if id, ok := d.Sequences[sequence]; ok && sequence != "" {
		return id, nil
	}
	if d.LastID == nil {
		return nil, errs.New(errs.ErrKindNotFound, "no insert id recorded")
	}
	return d.LastID, nil
}

func (d *Driver) ErrorCode() string {
	if d.lastErr == nil {
		return ""
	}
	return errs.KindOf(d.lastErr).String()
}

func (d *Driver) ErrorInfo() database.ErrorInfo {
	if d.lastErr == nil {
		return database.ErrorInfo{}
	}
	return database.ErrorInfo{SQLState: d.ErrorCode(), Message: d.lastErr.Error()}
}

func (d *Driver) Ping(context.Context) error { return nil }

func (d *Driver) Close() error {
	d.Closed = true
	return nil
}

// Executed returns the statement texts in execution order.
func (d *Driver) Executed() []string {
	out := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		out[i] = c.Text
	}
	return out
}

func (d *Driver) run(c Call) (*Rows, error) {
	d.Calls = append(d.Calls, c)
	if d.Handler == nil {
		d.lastErr = nil
		return &Rows{}, nil
	}
	rows, err := d.Handler(c)
	d.lastErr = err
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &Rows{}
	}
	return rows, nil
}

// --- statement ---

// Stmt records binds and executes through the owning Driver.
type Stmt struct {
	drv    *Driver
	text   string
	bound  []Bound
	args   map[string]any
	Closed bool
}

func (s *Stmt) Bind(key string, value any, t database.WireType) error {
	coerced, err := database.Coerce(value, t)
	if err != nil {
		return err
	}
	s.bound = append(s.bound, Bound{Key: key, Value: value, Wire: t})
	s.args[database.NormalizeKey(key)] = coerced
	return nil
}

func (s *Stmt) Execute(_ context.Context) (database.Result, error) {
	if s.Closed {
		return nil, errors.New("dbtest: statement closed")
	}
	rows, err := s.drv.run(Call{Text: s.text, Bound: s.bound, Args: s.args})
	if err != nil {
		return nil, err
	}
	res := &Result{rows: rows}
	s.drv.Results = append(s.drv.Results, res)
	return res, nil
}

func (s *Stmt) Close() error {
	s.Closed = true
	return nil
}

// --- result ---

// Result iterates canned rows and counts how many were read.
type Result struct {
	rows   *Rows
	Reads  int
	Closed bool
}

func (r *Result) Columns() []string { return r.rows.Columns }

func (r *Result) Next(ctx context.Context) (database.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return database.Row{}, false, errs.Wrap(errs.ErrKindTimeout, "fetch cancelled", err)
	}
	if r.Closed || r.Reads >= len(r.rows.Data) {
		return database.Row{}, false, nil
	}
	vals := append([]any(nil), r.rows.Data[r.Reads]...)
	r.Reads++
	return database.NewRow(r.rows.Columns, vals), true, nil
}

func (r *Result) RowsAffected() (int64, error) { return r.rows.Affected, nil }

func (r *Result) Close() error {
	r.Closed = true
	return nil
}
