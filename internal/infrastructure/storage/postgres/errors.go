package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"docseq/internal/core/apperror"
)

// PostgreSQL error codes the repositories translate.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeExclusionViolation  = "23P01"
	CodeLockNotAvailable    = "55P03"
	CodeDeadlockDetected    = "40P01"
	CodeUndefinedTable      = "42P01"
)

// PgErrorCode returns the SQLSTATE of err, or "" when err is not a server error.
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// MapError translates well-known server errors into application errors.
// Unknown errors are returned unchanged.
func MapError(err error, entity string, entityID any) error {
	if err == nil {
		return nil
	}
	switch PgErrorCode(err) {
	case CodeLockNotAvailable, CodeDeadlockDetected:
		return apperror.NewLockConflict(entity, entityID).WithCause(err)
	case CodeExclusionViolation:
		return apperror.NewConflict("date range overlaps an existing range").
			WithDetail("entity", entity).
			WithCause(err)
	case CodeUniqueViolation:
		return apperror.NewConflict("record already exists").
			WithDetail("entity", entity).
			WithDetail("id", entityID).
			WithCause(err)
	case CodeForeignKeyViolation:
		return apperror.NewConflict("referenced record does not exist or is still in use").
			WithDetail("entity", entity).
			WithDetail("id", entityID).
			WithCause(err)
	case CodeUndefinedTable:
		return apperror.NewNotFound(entity, entityID).WithCause(err)
	}
	return err
}
