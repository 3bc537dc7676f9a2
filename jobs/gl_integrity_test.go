package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/memstore"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	jobmetrics "github.com/textile-erp/ledger/internal/jobs"
	"github.com/textile-erp/ledger/internal/shared"
	_ "github.com/textile-erp/ledger/testing"
)

func seededLedgers(t *testing.T) (*accounting.Registry, *memstore.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	registry := accounting.NewRegistry(func(ctx context.Context, company string) (*accounting.Service, error) {
		return accounting.NewService(accounting.Deps{Company: company, Accounts: store, Store: store})
	})
	t.Cleanup(registry.CloseAll)
	svc, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	_, err = svc.Setup(ctx)
	require.NoError(t, err)
	result := svc.RecordSale(ctx, journals.Sale{
		Meta:      journals.Meta{Date: time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), ReferenceNo: "INV-1"},
		SaleTerms: journals.SaleTerms{Customer: journals.EntityRef{ID: "c-1"}, Total: decimal.NewFromInt(500), Paid: decimal.NewFromInt(500)},
	})
	require.True(t, result.Success, result.Message)
	cash, err := svc.Chart().ResolveSystem(ctx, accounts.KindCash)
	require.NoError(t, err)
	return registry, store, cash.ID
}

func corrupt(t *testing.T, store *memstore.Store, accountID int64) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		return tx.ApplyBalance(ctx, posting.Balance{AccountID: accountID, Debit: decimal.NewFromInt(5), Balance: decimal.NewFromInt(5)})
	})
	require.NoError(t, err)
}

func TestIntegrityJobReportsAndRepairsDrift(t *testing.T) {
	ctx := context.Background()
	registry, store, cashID := seededLedgers(t)
	promRegistry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(promRegistry)
	job := NewIntegrityJob(registry, []string{"acme"}, nil, nil, metrics)

	reports, err := job.Run(ctx, IntegrityPayload{})
	require.NoError(t, err)
	require.Equal(t, []IntegrityReport{{Company: "acme"}}, reports)

	corrupt(t, store, cashID)
	reports, err = job.Run(ctx, IntegrityPayload{})
	require.NoError(t, err)
	require.Equal(t, 1, reports[0].Drifts)
	require.False(t, reports[0].Repaired)

	count, err := testutil.GatherAndCount(promRegistry, "ledger_balance_drifts_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	reports, err = job.Run(ctx, IntegrityPayload{Repair: true})
	require.NoError(t, err)
	require.True(t, reports[0].Repaired)

	svc, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	drifts, err := svc.Verify(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestIntegrityJobSkipsLockedCompany(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	registry, _, _ := seededLedgers(t)
	job := NewIntegrityJob(registry, []string{"acme"}, client, nil, nil)

	require.NoError(t, mr.Set(shared.IntegrityLockKey("acme"), "other-worker"))
	reports, err := job.Run(ctx, IntegrityPayload{})
	require.NoError(t, err)
	require.True(t, reports[0].Skipped)

	mr.Del(shared.IntegrityLockKey("acme"))
	reports, err = job.Run(ctx, IntegrityPayload{})
	require.NoError(t, err)
	require.False(t, reports[0].Skipped)
	require.False(t, mr.Exists(shared.IntegrityLockKey("acme")))
}

func TestIntegrityJobHandleRejectsBadPayload(t *testing.T) {
	registry, _, _ := seededLedgers(t)
	job := NewIntegrityJob(registry, nil, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	task, err := NewIntegrityTask(IntegrityPayload{Companies: []string{"acme"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestIntegrityJobContinuesAfterFailure(t *testing.T) {
	registry, _, _ := seededLedgers(t)
	job := NewIntegrityJob(registry, nil, nil, nil, nil)
	reports, err := job.Run(context.Background(), IntegrityPayload{Companies: []string{" ", "acme"}})
	require.Error(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "acme", reports[0].Company)
}
