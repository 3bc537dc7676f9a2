package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/memstore"
	"github.com/textile-erp/ledger/internal/accounting/posting"
)

func newLedgerCLI(t *testing.T) (*LedgerCLI, *accounting.Registry, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	registry := accounting.NewRegistry(func(ctx context.Context, company string) (*accounting.Service, error) {
		return accounting.NewService(accounting.Deps{Company: company, Accounts: store, Store: store})
	})
	t.Cleanup(registry.CloseAll)
	cli, err := NewLedgerCLI(registry)
	require.NoError(t, err)
	return cli, registry, store
}

func buffers() (*bytes.Buffer, *bytes.Buffer, Output) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	return stdout, stderr, Output{Stdout: stdout, Stderr: stderr}
}

func TestSetupAndBalanceCommands(t *testing.T) {
	ctx := context.Background()
	cli, registry, _ := newLedgerCLI(t)

	stdout, stderr, out := buffers()
	require.Equal(t, ExitOK, cli.SetupCommand(ctx, "acme", out))
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "Cash")

	svc, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	result := svc.RecordSale(ctx, journals.Sale{
		Meta:      journals.Meta{Date: time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), ReferenceNo: "INV-1"},
		SaleTerms: journals.SaleTerms{Customer: journals.EntityRef{ID: "c-1", Name: "Ayesha"}, Total: decimal.NewFromInt(900), Paid: decimal.NewFromInt(400)},
	})
	require.True(t, result.Success, result.Message)

	stdout, _, out = buffers()
	out.JSON = true
	require.Equal(t, ExitOK, cli.BalanceCommand(ctx, "acme", "1100", out))
	var balance map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &balance))
	require.Equal(t, "Accounts Receivable", balance["account"])
	require.Equal(t, "500.00", balance["balance"])

	_, stderr, out = buffers()
	require.Equal(t, ExitError, cli.BalanceCommand(ctx, "acme", "Nope", out))
	require.Contains(t, stderr.String(), "balance:")
}

func TestVerifyCommandReportsAndRepairsDrift(t *testing.T) {
	ctx := context.Background()
	cli, registry, store := newLedgerCLI(t)
	_, _, out := buffers()
	require.Equal(t, ExitOK, cli.SetupCommand(ctx, "acme", out))

	stdout, _, out := buffers()
	require.Equal(t, ExitOK, cli.VerifyCommand(ctx, "acme", false, out))
	require.Contains(t, stdout.String(), "all balances match")

	svc, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	cash, err := svc.Chart().ResolveSystem(ctx, accounts.KindCash)
	require.NoError(t, err)
	err = store.WithTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		return tx.ApplyBalance(ctx, posting.Balance{AccountID: cash.ID, Debit: decimal.NewFromInt(7), Balance: decimal.NewFromInt(7)})
	})
	require.NoError(t, err)

	stdout, _, out = buffers()
	out.JSON = true
	require.Equal(t, ExitDrift, cli.VerifyCommand(ctx, "acme", false, out))
	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.Consistent)
	require.Len(t, summary.Drifts, 1)
	require.Equal(t, cash.ID, summary.Drifts[0].AccountID)
	require.Equal(t, "7.00", summary.Drifts[0].Cached)
	require.Equal(t, "0.00", summary.Drifts[0].Replayed)

	_, _, out = buffers()
	require.Equal(t, ExitOK, cli.VerifyCommand(ctx, "acme", true, out))
	stdout, _, out = buffers()
	require.Equal(t, ExitOK, cli.VerifyCommand(ctx, "acme", false, out))
	require.Contains(t, stdout.String(), "all balances match")
}

func TestLedgerCommand(t *testing.T) {
	ctx := context.Background()
	cli, registry, _ := newLedgerCLI(t)
	_, _, out := buffers()
	require.Equal(t, ExitOK, cli.SetupCommand(ctx, "acme", out))
	svc, err := registry.Open(ctx, "acme")
	require.NoError(t, err)
	result := svc.RecordPurchase(ctx, journals.Purchase{
		Meta:     journals.Meta{Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ReferenceNo: "PO-3"},
		Supplier: journals.EntityRef{ID: "s-1", Name: "Loom House"},
		Total:    decimal.NewFromInt(300),
	})
	require.True(t, result.Success, result.Message)

	stdout, stderr, out := buffers()
	require.Equal(t, ExitOK, cli.LedgerCommand(ctx, LedgerOptions{Company: "acme", EntityType: "supplier", EntityID: "s-1", AsOf: "2025-06-30"}, out))
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "PO-3")
	require.Contains(t, stdout.String(), "outstanding 300.00")

	stdout, _, out = buffers()
	out.JSON = true
	require.Equal(t, ExitOK, cli.LedgerCommand(ctx, LedgerOptions{Company: "acme", EntityType: "Supplier", AsOf: "2025-06-30"}, out))
	var summaries []struct {
		Entity journals.EntityRef `json:"entity"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, "s-1", summaries[0].Entity.ID)

	_, stderr, out = buffers()
	require.Equal(t, ExitError, cli.LedgerCommand(ctx, LedgerOptions{Company: "acme", EntityType: "vendor"}, out))
	require.Contains(t, stderr.String(), "unknown entity type")
	_, stderr, out = buffers()
	require.Equal(t, ExitError, cli.LedgerCommand(ctx, LedgerOptions{Company: "acme", EntityType: "supplier", AsOf: "06/30"}, out))
	require.Contains(t, stderr.String(), "as-of")
}

func TestBuildTask(t *testing.T) {
	task, err := buildTask("integrity", TriggerOptions{Companies: []string{"acme"}, Repair: true})
	require.NoError(t, err)
	require.Equal(t, "ledger:integrity", task.Type())
	require.JSONEq(t, `{"companies":["acme"],"repair":true}`, string(task.Payload()))

	task, err = buildTask("ledger:idempotency-cleanup", TriggerOptions{})
	require.NoError(t, err)
	require.Equal(t, "ledger:idempotency-cleanup", task.Type())

	_, err = buildTask("anomaly-scan", TriggerOptions{})
	require.Error(t, err)
}
