// Package postgres implements database.Driver on a single pgx connection.
//
// Statements are written with :name or ? placeholders and compiled to $n
// before they reach the server. Every Prepare server-prepares the statement
// under a name unique to the connection, and closing the statement
// deallocates it.
//
// Usage:
//
//	drv, err := postgres.New(ctx, database.DefaultConfig("postgres://localhost:5432/markets"))
//	if err != nil { ... }
//	defer drv.Close()
//
//	exec := query.New(drv)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
)

// generalError is reported by ErrorCode for failures that carry no SQLSTATE.
const generalError = "HY000"

// Driver is a PostgreSQL implementation of database.Driver.
// It holds one connection and is not safe for concurrent use.
type Driver struct {
	conn    *pgx.Conn
	lastErr error
	seq     uint64
}

// New connects to PostgreSQL using cfg and pings the server before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}

	d := &Driver{conn: conn}
	if err := d.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return d, nil
}

// --- database.Driver implementation ---

// Prepare compiles text to $n placeholders and prepares it on the server.
func (d *Driver) Prepare(ctx context.Context, text string) (database.Stmt, error) {
	compiled, err := database.Compile(text, database.StyleDollar)
	if err != nil {
		return nil, d.fail(err)
	}
	d.seq++
	name := fmt.Sprintf("xdb_%d", d.seq)
	sd, err := d.conn.Prepare(ctx, name, compiled.SQL)
	if err != nil {
		return nil, d.fail(mapError(err, "prepare failed"))
	}
	d.lastErr = nil
	return newStmt(d, name, compiled, sd.ParamOIDs), nil
}

// Exec runs text through the simple protocol, so it may hold several
// statements separated by semicolons.
func (d *Driver) Exec(ctx context.Context, text string) (int64, error) {
	tag, err := d.conn.Exec(ctx, text)
	if err != nil {
		return 0, d.fail(mapError(err, "exec failed"))
	}
	d.lastErr = nil
	return tag.RowsAffected(), nil
}

// LastInsertID returns currval(sequence), or lastval() when sequence is empty.
func (d *Driver) LastInsertID(ctx context.Context, sequence string) (any, error) {
	var (
		id  int64
		err error
	)
	if sequence != "" {
		err = d.conn.QueryRow(ctx, "SELECT currval($1::regclass)", sequence).Scan(&id)
	} else {
		err = d.conn.QueryRow(ctx, "SELECT lastval()").Scan(&id)
	}
	if err != nil {
		return nil, d.fail(mapError(err, "no insert id available"))
	}
	return id, nil
}

// ErrorCode returns the SQLSTATE of the most recent failure.
func (d *Driver) ErrorCode() string {
	return errorInfo(d.lastErr).SQLState
}

// ErrorInfo returns the diagnostics of the most recent failure.
func (d *Driver) ErrorInfo() database.ErrorInfo {
	return errorInfo(d.lastErr)
}

// Ping verifies the server is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.conn.Ping(ctx); err != nil {
		return d.fail(mapError(err, "ping failed"))
	}
	return nil
}

// Close terminates the connection.
func (d *Driver) Close() error {
	return d.conn.Close(context.Background())
}

// Conn returns the underlying pgx connection.
func (d *Driver) Conn() *pgx.Conn { return d.conn }

func (d *Driver) fail(err error) error {
	d.lastErr = err
	return err
}

// errorInfo extracts the diagnostic triple from err.
func errorInfo(err error) database.ErrorInfo {
	if err == nil {
		return database.ErrorInfo{}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return database.ErrorInfo{SQLState: pgErr.Code, Message: pgErr.Message}
	}
	return database.ErrorInfo{SQLState: generalError, Message: err.Error()}
}

var _ database.Driver = (*Driver)(nil)
