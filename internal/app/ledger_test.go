package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting/shared"
)

func TestLedgerRegistryOpensConfiguredCompaniesOnly(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		LedgerStore:     StoreMemory,
		LedgerCompanyID: "acme",
		LedgerCompanies: []string{"beta"},
		LedgerFeedSize:  5,
	}
	registry, err := NewLedgerRegistry(ctx, LedgerDeps{Config: cfg, Logger: NewLogger(nil)})
	require.NoError(t, err)
	t.Cleanup(registry.CloseAll)

	for i := 0; i < 50; i++ {
		_, err := registry.Open(ctx, fmt.Sprintf("tenant-%d", i))
		require.ErrorIs(t, err, shared.ErrUnknownCompany)
	}
	require.Empty(t, registry.Companies())

	acme, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	_, err = acme.Setup(ctx)
	require.NoError(t, err)
	_, err = registry.Open(ctx, "beta")
	require.NoError(t, err)
	require.Equal(t, []string{"acme", "beta"}, registry.Companies())

	registry.Close("acme")
	reopened, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	list, err := reopened.Accounts(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, list)
}

func TestLedgerRegistryRequiresPoolForPostgres(t *testing.T) {
	_, err := NewLedgerRegistry(context.Background(), LedgerDeps{Config: &Config{LedgerStore: StorePostgres}})
	require.Error(t, err)
}
