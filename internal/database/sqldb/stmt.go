package sqldb

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// rowKeywords start statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "VALUES": true, "TABLE": true,
	"EXPLAIN": true, "DESCRIBE": true, "DESC": true, "PRAGMA": true,
}

var returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)

// returnsRows decides between QueryContext and ExecContext for text. A
// RETURNING inside a literal or comment does not count.
func returnsRows(text string, style database.Style) bool {
	if rowKeywords[leadingKeyword(text)] {
		return true
	}
	code, err := database.Code(text, style)
	if err != nil {
		return false
	}
	return returningClause.MatchString(code)
}

// leadingKeyword returns the first word of text in upper case, skipping
// whitespace, comments and opening parentheses.
func leadingKeyword(text string) string {
	s := text
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		break
	}
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// stmt wraps a prepared sqlx statement.
type stmt struct {
	d        *Driver
	st       *sqlx.Stmt
	compiled *database.Compiled
	query    bool
	args     map[string]any
}

func (s *stmt) Bind(key string, value any, t database.WireType) error {
	if !s.compiled.Has(key) {
		return errs.Newf(errs.ErrKindInvalidInput, "statement has no placeholder %q", key)
	}
	v, err := database.Coerce(value, t)
	if err != nil {
		return err
	}
	s.args[database.NormalizeKey(key)] = v
	return nil
}

func (s *stmt) Execute(ctx context.Context) (database.Result, error) {
	args, err := s.compiled.Args(s.args)
	if err != nil {
		return nil, s.d.fail(err)
	}

	if !s.query {
		res, err := s.st.ExecContext(ctx, args...)
		if err != nil {
			return nil, s.d.fail(mapError(err, "exec failed"))
		}
		s.d.lastErr = nil
		s.d.lastRes = res
		return &execResult{d: s.d, res: res}, nil
	}

	rows, err := s.st.QueryxContext(ctx, args...)
	if err != nil {
		return nil, s.d.fail(mapError(err, "query failed"))
	}
	r, err := newRowsResult(s.d, rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	s.d.lastErr = nil
	return r, nil
}

func (s *stmt) Close() error {
	if err := s.st.Close(); err != nil {
		return mapError(err, "close statement")
	}
	return nil
}

// --- results ---

// binaryTypes keep their []byte values; every other column arriving as
// bytes is text.
var binaryTypes = map[string]bool{
	"BLOB": true, "TINYBLOB": true, "MEDIUMBLOB": true, "LONGBLOB": true,
	"BINARY": true, "VARBINARY": true, "BIT": true, "GEOMETRY": true,
	"BYTEA": true,
}

type rowsResult struct {
	d       *Driver
	rows    *sqlx.Rows
	columns []string
	binary  []bool
	read    int64
	done    bool
}

func newRowsResult(d *Driver, rows *sqlx.Rows) (*rowsResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, d.fail(mapError(err, "failed to read columns"))
	}
	binary := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			binary[i] = binaryTypes[strings.ToUpper(ct.DatabaseTypeName())]
		}
	}
	return &rowsResult{d: d, rows: rows, columns: cols, binary: binary}, nil
}

func (r *rowsResult) Columns() []string { return r.columns }

func (r *rowsResult) Next(ctx context.Context) (database.Row, bool, error) {
	if r.done {
		return database.Row{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return database.Row{}, false, r.d.fail(mapError(err, "fetch cancelled"))
	}
	if !r.rows.Next() {
		r.done = true
		if err := r.rows.Err(); err != nil {
			return database.Row{}, false, r.d.fail(mapError(err, "fetch failed"))
		}
		return database.Row{}, false, nil
	}
	vals, err := r.rows.SliceScan()
	if err != nil {
		return database.Row{}, false, r.d.fail(mapError(err, "failed to scan row"))
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && !r.binary[i] {
			vals[i] = string(b)
		}
	}
	r.read++
	return database.NewRow(r.columns, vals), true, nil
}

// RowsAffected reports the rows read so far, which equals the rows a
// RETURNING statement touched once drained.
func (r *rowsResult) RowsAffected() (int64, error) { return r.read, nil }

func (r *rowsResult) Close() error {
	r.done = true
	if err := r.rows.Close(); err != nil {
		return mapError(err, "close rows")
	}
	return nil
}

// execResult is the cursor of a statement that returns no rows.
type execResult struct {
	d   *Driver
	res sql.Result
}

func (r *execResult) Columns() []string { return nil }

func (r *execResult) Next(context.Context) (database.Row, bool, error) {
	return database.Row{}, false, nil
}

func (r *execResult) RowsAffected() (int64, error) {
	n, err := r.res.RowsAffected()
	if err != nil {
		return 0, r.d.fail(mapError(err, "rows affected unavailable"))
	}
	return n, nil
}

func (r *execResult) Close() error { return nil }
