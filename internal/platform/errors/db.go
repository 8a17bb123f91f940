package errors

// Database-specific helpers for mapping driver errors to project ErrorCode
// and for retry semantics. Postgres gets structured SQLSTATE handling via
// pgconn; MySQL and SQLite fall through to text matching

import (
	"context"
	stderrs "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes we care about
const (
	pgErrUniqueViolation           = "23505"
	pgErrNotNullViolation          = "23502"
	pgErrCheckViolation            = "23514"
	pgErrInvalidTextRepresentation = "22P02"

	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrLockNotAvailable     = "55P03"
	pgErrCannotConnectNow     = "57P03" // i.e. startup in progress
)

// ExtractPgError returns (*pgconn.PgError, true) if the root cause is a PgError
func ExtractPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if stderrs.As(Root(err), &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsSQLState reports whether the error is a Postgres error with the given SQLSTATE code
func IsSQLState(err error, code string) bool {
	pgErr, ok := ExtractPgError(err)
	return ok && pgErr.Code == code
}

// IsDuplicateKey reports whether the error is a unique constraint violation
// on any backend (SQLSTATE 23505, MySQL 1062, SQLite "UNIQUE constraint failed")
func IsDuplicateKey(err error) bool {
	if IsSQLState(err, pgErrUniqueViolation) {
		return true
	}
	if err == nil {
		return false
	}
	s := strings.ToLower(Root(err).Error())
	return strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "duplicate entry")
}

// FromDB wraps a driver error with ErrorCodeDB and message; nil passes through
func FromDB(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := ExtractPgError(err); ok {
		switch pgErr.Code {
		case pgErrNotNullViolation, pgErrCheckViolation, pgErrInvalidTextRepresentation:
			return Wrap(err, ErrorCodeData, msg)
		}
	}
	return Wrap(err, ErrorCodeDB, msg)
}

// FromDBf is the formatted variant of FromDB
func FromDBf(err error, format string, a ...any) error {
	return FromDB(err, fmt.Sprintf(format, a...))
}

// IsRetryableDB reports whether a database error represents a transient
// condition worth retrying. It handles structured *pgconn.PgError codes and
// the generic driver text seen on commit or lock contention
func IsRetryableDB(err error) bool {
	if err == nil {
		return false
	}

	// Do not retry local cancellations/timeouts; let the caller decide higher-level retries
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	root := Root(err)

	var pgErr *pgconn.PgError
	if stderrs.As(root, &pgErr) {
		switch pgErr.Code {
		case pgErrSerializationFailure, pgErrDeadlockDetected, pgErrLockNotAvailable, pgErrCannotConnectNow:
			return true
		default:
			return false
		}
	}

	// Text patterns from pgx on commit/abort plus the mysql and sqlite drivers
	s := strings.ToLower(root.Error())
	switch {
	case strings.Contains(s, "commit unexpectedly resulted in rollback"),
		strings.Contains(s, "deadlock detected"),
		strings.Contains(s, "deadlock found"),
		strings.Contains(s, "could not serialize access"),
		strings.Contains(s, "serialization failure"),
		strings.Contains(s, "lock wait timeout exceeded"),
		strings.Contains(s, "database is locked"),
		strings.Contains(s, "database table is locked"):
		return true
	default:
		return false
	}
}
