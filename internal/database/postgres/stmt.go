package postgres

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// stmt is a server-prepared statement collecting bound values.
type stmt struct {
	d        *Driver
	name     string
	compiled *database.Compiled
	oids     []uint32
	args     map[string]any
	text     map[string]string
	closed   bool
}

func newStmt(d *Driver, name string, c *database.Compiled, oids []uint32) *stmt {
	return &stmt{
		d:        d,
		name:     name,
		compiled: c,
		oids:     oids,
		args:     make(map[string]any, len(c.Params)),
		text:     make(map[string]string, len(c.Params)),
	}
}

func (s *stmt) Bind(key string, value any, t database.WireType) error {
	if !s.compiled.Has(key) {
		return errs.Newf(errs.ErrKindInvalidInput, "statement has no placeholder %q", key)
	}
	v, err := database.Coerce(value, t)
	if err != nil {
		return err
	}
	key = database.NormalizeKey(key)
	s.args[key] = v
	if txt, err := database.Coerce(value, database.WireString); err == nil {
		if str, ok := txt.(string); ok {
			s.text[key] = str
		}
	}
	return nil
}

func (s *stmt) Execute(ctx context.Context) (database.Result, error) {
	if s.closed {
		return nil, errs.New(errs.ErrKindInvalidInput, "statement is closed")
	}
	args, err := s.arguments()
	if err != nil {
		return nil, s.d.fail(err)
	}
	rows, err := s.d.conn.Query(ctx, s.name, args...)
	if err != nil {
		return nil, s.d.fail(mapError(err, "query failed"))
	}
	s.d.lastErr = nil
	return newResult(s.d, rows), nil
}

// arguments lays out the bound values in $n order. A parameter the server
// typed as text is sent the value's text even when it was bound as INTEGER
// or BOOLEAN, since pgx will not encode int64 or bool into a text column.
func (s *stmt) arguments() ([]any, error) {
	args, err := s.compiled.Args(s.args)
	if err != nil {
		return nil, err
	}
	for i, oid := range s.oids {
		if i >= len(args) || !textOIDs[oid] {
			continue
		}
		switch v := args[i].(type) {
		case int64:
			args[i] = s.textOf(i, strconv.FormatInt(v, 10))
		case bool:
			args[i] = s.textOf(i, strconv.FormatBool(v))
		}
	}
	return args, nil
}

func (s *stmt) textOf(pos int, fallback string) string {
	if txt, ok := s.text[s.compiled.Params[pos]]; ok {
		return txt
	}
	return fallback
}

var textOIDs = map[uint32]bool{
	pgtype.TextOID:    true,
	pgtype.VarcharOID: true,
	pgtype.BPCharOID:  true,
	pgtype.NameOID:    true,
}

// Close deallocates the server-side statement. Closing twice is a no-op.
func (s *stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.d.conn == nil || s.d.conn.IsClosed() {
		return nil
	}
	if err := s.d.conn.Deallocate(context.Background(), s.name); err != nil {
		return s.d.fail(mapError(err, "deallocate failed"))
	}
	return nil
}

// --- result ---

type result struct {
	d       *Driver
	rows    pgx.Rows
	columns []string
	done    bool
}

func newResult(d *Driver, rows pgx.Rows) *result {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return &result{d: d, rows: rows, columns: cols}
}

func (r *result) Columns() []string { return r.columns }

func (r *result) Next(ctx context.Context) (database.Row, bool, error) {
	if r.done {
		return database.Row{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return database.Row{}, false, r.d.fail(mapError(err, "fetch cancelled"))
	}
	if !r.rows.Next() {
		if err := r.finish(); err != nil {
			return database.Row{}, false, err
		}
		return database.Row{}, false, nil
	}
	vals, err := r.rows.Values()
	if err != nil {
		return database.Row{}, false, r.d.fail(mapError(err, "failed to decode row"))
	}
	for i, v := range vals {
		vals[i] = normalize(v)
	}
	return database.NewRow(r.columns, vals), true, nil
}

// RowsAffected is only known once the command completes, so it closes the
// cursor first.
func (r *result) RowsAffected() (int64, error) {
	if err := r.finish(); err != nil {
		return 0, err
	}
	return r.rows.CommandTag().RowsAffected(), nil
}

func (r *result) Close() error {
	r.done = true
	r.rows.Close()
	return nil
}

func (r *result) finish() error {
	r.done = true
	r.rows.Close()
	if err := r.rows.Err(); err != nil {
		return r.d.fail(mapError(err, "query failed"))
	}
	return nil
}

// normalize maps pgx's decoded values onto the types the rest of xdb
// expects: int64 for every integer width, float64, text for numerics and
// uuids.
func normalize(v any) any {
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		text, err := x.Value()
		if err != nil {
			return nil
		}
		return text
	}
	return v
}
