package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_source_links"})
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "uq_source_links"))
	require.False(t, IsUniqueViolation(err, "uq_accounts_company_code"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestRetryRepeatsSerializationFailures(t *testing.T) {
	conflict := &pgconn.PgError{Code: "40001"}
	calls := 0
	err := Retry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("apply balance: %w", conflict)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 2, func() error {
		calls++
		return conflict
	})
	require.True(t, IsSerializationFailure(err))
	require.Equal(t, 2, calls)

	calls = 0
	boom := errors.New("boom")
	err = Retry(context.Background(), 5, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = Retry(ctx, 5, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
