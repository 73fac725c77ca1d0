package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constantProduct/internal/storage"
)

func TestRetryableErrorsBecomeConflicts(t *testing.T) {
	for _, code := range []string{pgErrDeadlockDetected, pgErrSerializationFailure} {
		t.Run(code, func(t *testing.T) {
			u := &unitOfWork{}
			pgErr := &pgconn.PgError{Code: code}

			err := u.fail(fmt.Errorf("debit: %w", pgErr))
			require.ErrorIs(t, err, storage.ErrConflict)
			assert.True(t, errors.As(err, &pgErr), "driver error stays reachable")

			// The unit is poisoned with the conflict, so a later call retries too.
			require.ErrorIs(t, u.usable(), storage.ErrConflict)
		})
	}
}

func TestOtherErrorsAreNotConflicts(t *testing.T) {
	u := &unitOfWork{}
	err := u.fail(&pgconn.PgError{Code: pgErrCheckViolation})
	assert.False(t, errors.Is(err, storage.ErrConflict))

	already := fmt.Errorf("update pool: %w", storage.ErrConflict)
	assert.Equal(t, already, asConflict(already))
}
