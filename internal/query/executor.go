// Package query executes statements through a database.Driver and reshapes
// their results.
//
// Every call prepares the statement, binds the values with inferred wire
// types, executes it, and (for the fetch modes) drains the cursor into memory
// before returning. Driver errors are returned exactly as the driver produced
// them.
//
// An Executor is not safe for concurrent use; callers sharing one serialize
// access themselves.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/koustreak/xdb/internal/querylog"
)

// DuplicateKeyPolicy decides what FetchAssoc does when two rows share a key.
type DuplicateKeyPolicy int

const (
	// KeepLast lets a later row overwrite an earlier one under the same key.
	KeepLast DuplicateKeyPolicy = iota

	// RejectDuplicates fails the fetch on the first repeated key.
	RejectDuplicates
)

// Executor runs statements against a single Driver.
type Executor struct {
	drv  database.Driver
	log  querylog.Recorder
	lg   *logger.Logger
	dups DuplicateKeyPolicy
}

// Option configures an Executor.
type Option func(*Executor)

// WithQueryLog records every executed statement in r while r is active.
func WithQueryLog(r querylog.Recorder) Option {
	return func(e *Executor) { e.log = r }
}

// WithLogger emits a debug event per executed statement.
func WithLogger(lg *logger.Logger) Option {
	return func(e *Executor) { e.lg = lg }
}

// WithDuplicateKeys sets the FetchAssoc and FetchPairs duplicate policy.
func WithDuplicateKeys(p DuplicateKeyPolicy) Option {
	return func(e *Executor) { e.dups = p }
}

// New returns an Executor over drv.
func New(drv database.Driver, opts ...Option) *Executor {
	e := &Executor{drv: drv}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Driver returns the underlying driver.
func (e *Executor) Driver() database.Driver { return e.drv }

// QueryLog returns the recorder, or nil when none was configured.
func (e *Executor) QueryLog() querylog.Recorder { return e.log }

// Execute prepares statement, binds values, executes it and returns the live
// result. The caller must Close the result.
//
// Every value is classified before the driver is contacted, so an unbindable
// value never causes a round trip.
func (e *Executor) Execute(ctx context.Context, statement string, values bind.Values) (database.Result, error) {
	return e.run(ctx, "Execute", statement, values)
}

// RowsAffected executes statement and returns the number of rows it changed.
func (e *Executor) RowsAffected(ctx context.Context, statement string, values bind.Values) (n int64, err error) {
	res, err := e.run(ctx, "RowsAffected", statement, values)
	if err != nil {
		return 0, err
	}
	defer closeResult(res, &err)

	for {
		_, ok, err := res.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
	}
	return res.RowsAffected()
}

// LastInsertID returns the identifier generated by the most recent insert.
// sequence is only consulted by engines that track ids per sequence.
func (e *Executor) LastInsertID(ctx context.Context, sequence string) (any, error) {
	return e.drv.LastInsertID(ctx, sequence)
}

// Prepare prepares statement without binding anything.
func (e *Executor) Prepare(ctx context.Context, statement string) (database.Stmt, error) {
	return e.drv.Prepare(ctx, statement)
}

// PrepareWithValues prepares statement and binds values to it.
func (e *Executor) PrepareWithValues(ctx context.Context, statement string, values bind.Values) (database.Stmt, error) {
	plan, err := bind.NewPlan(values)
	if err != nil {
		return nil, err
	}
	stmt, err := e.drv.Prepare(ctx, statement)
	if err != nil {
		return nil, err
	}
	if err := plan.Apply(stmt); err != nil {
		stmt.Close()
		return nil, err
	}
	return stmt, nil
}

// Exec runs statement without binding and returns the affected row count.
func (e *Executor) Exec(ctx context.Context, statement string) (int64, error) {
	start := time.Now()
	n, err := e.drv.Exec(ctx, statement)
	e.record("Exec", statement, nil, time.Since(start), err)
	return n, err
}

// ErrorCode returns the driver's code for the most recent failure.
func (e *Executor) ErrorCode() string { return e.drv.ErrorCode() }

// ErrorInfo returns the driver's diagnostics for the most recent failure.
func (e *Executor) ErrorInfo() database.ErrorInfo { return e.drv.ErrorInfo() }

// --- internals ---

// run executes statement on behalf of the public method fn and records it.
func (e *Executor) run(ctx context.Context, fn, statement string, values bind.Values) (database.Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, statement, values)
	e.record(fn, statement, values, time.Since(start), err)
	return res, err
}

func (e *Executor) execute(ctx context.Context, statement string, values bind.Values) (database.Result, error) {
	plan, err := bind.NewPlan(values)
	if err != nil {
		return nil, err
	}

	stmt, err := e.drv.Prepare(ctx, statement)
	if err != nil {
		return nil, err
	}
	if err := plan.Apply(stmt); err != nil {
		stmt.Close()
		return nil, err
	}

	res, err := stmt.Execute(ctx)
	if err != nil {
		stmt.Close()
		return nil, err
	}
	return &stmtResult{Result: res, stmt: stmt}, nil
}

func (e *Executor) record(fn, statement string, values bind.Values, elapsed time.Duration, err error) {
	if e.log != nil && e.log.Active() {
		e.log.Add(elapsed, fn, statement, values)
	}
	if e.lg != nil {
		e.lg.Query(fn, statement, elapsed, err)
	}
}

// stmtResult closes the statement together with its result.
type stmtResult struct {
	database.Result
	stmt   database.Stmt
	closed bool
}

func (r *stmtResult) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.Result.Close(), r.stmt.Close())
}

// closeResult closes res and reports its error through err unless err is
// already set.
func closeResult(res database.Result, err *error) {
	if cerr := res.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
