package database

import "github.com/koustreak/xdb/internal/errs"

// SQLSTATE codes and classes with a dedicated kind.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlStateClassConnection     = "08"
	sqlStateClassDataException  = "22"
	sqlStateClassIntegrity      = "23"
	sqlStateClassAuthorization  = "28"
	sqlStateClassSyntaxOrAccess = "42"

	sqlStateInsufficientPrivilege = "42501"
	sqlStateQueryCanceled         = "57014"
	sqlStateNotInPrerequisite     = "55000" // currval/lastval before any insert
)

// KindForSQLState classifies a five-character SQLSTATE.
func KindForSQLState(code string) errs.ErrKind {
	switch code {
	case sqlStateInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case sqlStateQueryCanceled:
		return errs.ErrKindTimeout
	case sqlStateNotInPrerequisite:
		return errs.ErrKindNotFound
	}
	if len(code) < 2 {
		return errs.ErrKindQueryFailed
	}
	switch code[:2] {
	case sqlStateClassConnection:
		return errs.ErrKindConnectionFailed
	case sqlStateClassIntegrity:
		return errs.ErrKindConstraint
	case sqlStateClassAuthorization:
		return errs.ErrKindPermissionDenied
	case sqlStateClassDataException:
		return errs.ErrKindInvalidInput
	case sqlStateClassSyntaxOrAccess:
		return errs.ErrKindQueryFailed
	}
	return errs.ErrKindQueryFailed
}
