// Package sqldb implements database.Driver over database/sql through sqlx.
//
// Two dialects are supported: MySQL (go-sql-driver/mysql, ? placeholders)
// and PostgreSQL through lib/pq ($n placeholders). The pool is capped at one
// connection so session state (LAST_INSERT_ID, lastval) belongs to the
// statements this Driver ran.
//
// Usage:
//
//	cfg := database.DefaultConfig("app:secret@tcp(localhost:3306)/markets?parseTime=true")
//	cfg.Driver = database.DriverMySQL
//	drv, err := sqldb.New(ctx, cfg)
//	if err != nil { ... }
//	defer drv.Close()
package sqldb

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"

	_ "github.com/go-sql-driver/mysql" // register "mysql"
	_ "github.com/lib/pq"              // register "postgres"
)

// dialect pairs a database/sql driver with its placeholder style and the
// statements that read back generated ids.
type dialect struct {
	sqlDriver string
	style     database.Style
	lastID    string
	currval   string
}

var dialects = map[database.DriverName]dialect{
	database.DriverMySQL: {
		sqlDriver: "mysql",
		style:     database.StyleQuestion,
		lastID:    "SELECT LAST_INSERT_ID()",
	},
	database.DriverPQ: {
		sqlDriver: "postgres",
		style:     database.StyleDollar,
		lastID:    "SELECT lastval()",
		currval:   "SELECT currval($1::regclass)",
	},
}

// Driver is a database/sql implementation of database.Driver.
// It holds one connection and is not safe for concurrent use.
type Driver struct {
	db      *sqlx.DB
	dialect dialect
	lastErr error
	lastRes sql.Result
}

// New opens cfg.DSN with the dialect named by cfg.Driver and pings it.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	dia, ok := dialects[cfg.Driver]
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "sqldb does not serve driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(dia.sqlDriver, cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	d := newDriver(db, dia)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Wrap adapts an already opened handle. name selects the dialect.
func Wrap(db *sqlx.DB, name database.DriverName) (*Driver, error) {
	dia, ok := dialects[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "sqldb does not serve driver %q", name)
	}
	return newDriver(db, dia), nil
}

func newDriver(db *sqlx.DB, dia dialect) *Driver {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Driver{db: db, dialect: dia}
}

// --- database.Driver implementation ---

func (d *Driver) Prepare(ctx context.Context, text string) (database.Stmt, error) {
	compiled, err := database.Compile(text, d.dialect.style)
	if err != nil {
		return nil, d.fail(err)
	}
	st, err := d.db.PreparexContext(ctx, compiled.SQL)
	if err != nil {
		return nil, d.fail(mapError(err, "prepare failed"))
	}
	d.lastErr = nil
	return &stmt{d: d, st: st, compiled: compiled, query: returnsRows(compiled.SQL, d.dialect.style), args: map[string]any{}}, nil
}

func (d *Driver) Exec(ctx context.Context, text string) (int64, error) {
	res, err := d.db.ExecContext(ctx, text)
	if err != nil {
		return 0, d.fail(mapError(err, "exec failed"))
	}
	d.lastErr = nil
	d.lastRes = res
	n, err := res.RowsAffected()
	if err != nil {
		return 0, d.fail(mapError(err, "rows affected unavailable"))
	}
	return n, nil
}

// LastInsertID prefers the id reported by the last exec, then asks the
// session. sequence is only used by the postgres dialect.
func (d *Driver) LastInsertID(ctx context.Context, sequence string) (any, error) {
	if sequence == "" && d.lastRes != nil {
		if id, err := d.lastRes.LastInsertId(); err == nil && id != 0 {
			return id, nil
		}
	}

	var (
		id  int64
		err error
	)
	if sequence != "" && d.dialect.currval != "" {
		err = d.db.QueryRowxContext(ctx, d.dialect.currval, sequence).Scan(&id)
	} else {
		err = d.db.QueryRowxContext(ctx, d.dialect.lastID).Scan(&id)
	}
	if err != nil {
		return nil, d.fail(mapError(err, "no insert id available"))
	}
	if id == 0 {
		return nil, errs.New(errs.ErrKindNotFound, "no insert id available")
	}
	return id, nil
}

func (d *Driver) ErrorCode() string { return errorInfo(d.lastErr).SQLState }

func (d *Driver) ErrorInfo() database.ErrorInfo { return errorInfo(d.lastErr) }

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return d.fail(mapError(err, "ping failed"))
	}
	return nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

// DB returns the underlying handle.
func (d *Driver) DB() *sqlx.DB { return d.db }

func (d *Driver) fail(err error) error {
	d.lastErr = err
	return err
}

var _ database.Driver = (*Driver)(nil)
