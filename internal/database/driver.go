package database

import "context"

// Driver is the contract every database client must satisfy for xdb.
// The query core talks only to this interface; it never imports the
// postgres or sqldb packages directly.
//
// A Driver holds a single connection and is not safe for concurrent use.
// Callers sharing one Driver serialize access themselves.
type Driver interface {
	// Prepare compiles text (with :name or ? placeholders) into a statement.
	Prepare(ctx context.Context, text string) (Stmt, error)

	// Exec runs text without binding and returns the affected row count.
	Exec(ctx context.Context, text string) (int64, error)

	// LastInsertID returns the identifier generated by the most recent insert.
	// sequence is required by engines that track ids per sequence; pass "" otherwise.
	LastInsertID(ctx context.Context, sequence string) (any, error)

	// ErrorCode returns the SQLSTATE (or engine code) of the most recent failure,
	// or "" when the last operation succeeded.
	ErrorCode() string

	// ErrorInfo returns the diagnostics of the most recent failure.
	ErrorInfo() ErrorInfo

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Stmt is a prepared statement awaiting values.
type Stmt interface {
	// Bind attaches value to the placeholder identified by key, encoded as t.
	// Named keys may carry a leading colon; positional keys are 1-based
	// decimal strings.
	Bind(key string, value any, t WireType) error

	// Execute runs the statement with the values bound so far.
	Execute(ctx context.Context) (Result, error)

	// Close releases the statement.
	Close() error
}

// Result is a single-pass cursor over an executed statement.
// It is consumed by exactly one reader and must be closed.
type Result interface {
	// Columns returns the column names of the result set, in order.
	Columns() []string

	// Next returns the next row. ok is false once the cursor is exhausted.
	Next(ctx context.Context) (row Row, ok bool, err error)

	// RowsAffected reports the number of rows changed by the statement.
	RowsAffected() (int64, error)

	// Close releases the cursor. Closing twice is a no-op.
	Close() error
}

// ErrorInfo mirrors the diagnostic triple most clients expose for the
// last failed operation.
type ErrorInfo struct {
	SQLState   string `json:"sqlstate"`
	DriverCode int    `json:"driver_code"`
	Message    string `json:"message"`
}

// Empty reports whether no failure has been recorded.
func (e ErrorInfo) Empty() bool {
	return e.SQLState == "" && e.DriverCode == 0 && e.Message == ""
}
