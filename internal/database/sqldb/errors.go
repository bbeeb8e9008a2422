package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/lib/pq"
)

// generalError is reported by ErrorCode for failures that carry no SQLSTATE.
const generalError = "HY000"

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errBadNull            = 1048
	errUnknownDatabase    = 1049
	errBadFieldError      = 1054
	errDuplicateEntry     = 1062
	errParseError         = 1064
	errTableAccessDenied  = 1142
	errNoSuchTable        = 1146
	errQueryInterrupted   = 1317
	errRowIsReferenced    = 1451
	errNoReferencedRow    = 1452
	errConnRefused        = 2003
	errExecutionTimeout   = 3024
	errCheckConstraint    = 3819
	errTruncatedWrongType = 1366
)

// mapError translates database/sql, MySQL and lib/pq errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(mysqlKind(mysqlErr.Number), fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errs.Wrap(database.KindForSQLState(string(pqErr.Code)), fmt.Sprintf("%s: %s", msg, pqErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func mysqlKind(number uint16) errs.ErrKind {
	switch number {
	case errDuplicateEntry, errNoReferencedRow, errRowIsReferenced, errBadNull, errCheckConstraint:
		return errs.ErrKindConstraint
	case errAccessDenied, errDBAccessDenied, errTableAccessDenied:
		return errs.ErrKindPermissionDenied
	case errConnRefused, errUnknownDatabase:
		return errs.ErrKindConnectionFailed
	case errQueryInterrupted, errExecutionTimeout:
		return errs.ErrKindTimeout
	case errTruncatedWrongType:
		return errs.ErrKindInvalidInput
	case errBadFieldError, errParseError, errNoSuchTable:
		return errs.ErrKindQueryFailed
	}
	return errs.ErrKindQueryFailed
}

// errorInfo extracts the diagnostic triple from err.
func errorInfo(err error) database.ErrorInfo {
	if err == nil {
		return database.ErrorInfo{}
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		state := string(mysqlErr.SQLState[:])
		if mysqlErr.SQLState == [5]byte{} {
			state = generalError
		}
		return database.ErrorInfo{SQLState: state, DriverCode: int(mysqlErr.Number), Message: mysqlErr.Message}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return database.ErrorInfo{SQLState: string(pqErr.Code), Message: pqErr.Message}
	}

	return database.ErrorInfo{SQLState: generalError, Message: err.Error()}
}
