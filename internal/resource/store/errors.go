// Package store persists schemas, resources, their field values and costs in
// PostgreSQL, and executes compiled queries. Every operation is account-scoped;
// the store refuses to operate without a tenant.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a resource or schema does not exist where
	// its existence is required. Lookups where absence is normal return nil
	// instead.
	ErrNotFound = errors.New("record not found")

	// ErrMissingAccount is returned when a store call lacks an account scope.
	ErrMissingAccount = errors.New("store call requires an account scope")

	// ErrUniqueViolation is returned when a unique constraint is violated,
	// e.g. two concurrent creates racing for the same key.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a referenced row is missing.
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
)

// PostgreSQL error codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// convertDBError translates driver-level errors into the store's sentinels so
// callers can test with errors.Is instead of matching SQLSTATEs.
func convertDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.ConstraintName)
		}
	}
	return err
}
