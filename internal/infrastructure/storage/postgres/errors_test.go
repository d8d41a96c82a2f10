package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"docseq/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		sqlState string
		wantCode string
	}{
		{CodeLockNotAvailable, apperror.CodeLockConflict},
		{CodeDeadlockDetected, apperror.CodeLockConflict},
		{CodeExclusionViolation, apperror.CodeConflict},
		{CodeUniqueViolation, apperror.CodeConflict},
		{CodeForeignKeyViolation, apperror.CodeConflict},
		{CodeUndefinedTable, apperror.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.sqlState, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.sqlState}
			err := MapError(fmt.Errorf("query: %w", pgErr), "sequence", "42")

			assert.True(t, apperror.HasCode(err, tt.wantCode))
			assert.ErrorIs(t, err, pgErr)
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, MapError(nil, "sequence", nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, MapError(plain, "sequence", nil))

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), MapError(other, "sequence", nil))
}
