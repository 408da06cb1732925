package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConflictError reports a uniqueness-constraint violation. It is recoverable:
// the row now exists, so callers should re-resolve (re-fetch, then decide
// create vs. update) instead of failing.
type ConflictError struct {
	Entity string // "book", "series", "publisher_keyword"
	Key    string // human-readable conflicting key
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a point read of an id that does not exist. Unlike a
// find-by-key miss (which returns nil, nil), a missing id indicates a caller
// or data bug.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// ValidationError reports a record missing a field the schema mandates.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isUniqueViolation detects a uniqueness-constraint failure from either
// backend: SQLSTATE 23505 from Postgres, or the UNIQUE/PRIMARY KEY constraint
// message from modernc.org/sqlite (which does not expose typed errors).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// conflictOr wraps err as a ConflictError when it is a uniqueness violation,
// otherwise returns err unchanged for the caller to wrap.
func conflictOr(err error, entity, key string) error {
	if isUniqueViolation(err) {
		return &ConflictError{Entity: entity, Key: key, Err: err}
	}
	return err
}
