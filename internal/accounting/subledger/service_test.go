package subledger_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/memstore"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/subledger"
)

type countingSource struct {
	subledger.Source
	calls atomic.Int32
}

func (c *countingSource) SubLedger(ctx context.Context, filter posting.SubLedgerFilter) ([]posting.SubLedgerEntry, error) {
	c.calls.Add(1)
	return c.Source.SubLedger(ctx, filter)
}

type ledgerFixture struct {
	engine *posting.Engine
	book   *accounts.Book
}

func newLedger(t *testing.T) ledgerFixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	chart := accounts.NewChart(store)
	_, err := chart.EnsureDefaults(ctx)
	require.NoError(t, err)
	book, err := chart.Book(ctx)
	require.NoError(t, err)
	return ledgerFixture{engine: posting.NewEngine(store, nil), book: book}
}

func (f ledgerFixture) post(t *testing.T, evt journals.Event) {
	t.Helper()
	entry, err := journals.Build(evt, f.book)
	require.NoError(t, err)
	_, err = f.engine.Post(context.Background(), entry)
	require.NoError(t, err)
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var ayesha = journals.EntityRef{ID: "c-1", Name: "Ayesha"}

func seedCustomer(t *testing.T, f ledgerFixture) {
	f.post(t, journals.Sale{Meta: journals.Meta{Date: date(2025, 1, 1), ReferenceNo: "INV-1"}, SaleTerms: journals.SaleTerms{Customer: ayesha, Total: dec("1000")}})
	f.post(t, journals.Sale{Meta: journals.Meta{Date: date(2025, 3, 1), ReferenceNo: "INV-2"}, SaleTerms: journals.SaleTerms{Customer: ayesha, Total: dec("500")}})
	f.post(t, journals.SalePayment{Meta: journals.Meta{Date: date(2025, 3, 5), ReferenceNo: "RCPT-1"}, Customer: ayesha, Amount: dec("300"), InvoiceRef: "INV-2"})
	f.post(t, journals.SalePayment{Meta: journals.Meta{Date: date(2025, 3, 10), ReferenceNo: "RCPT-2"}, Customer: ayesha, Amount: dec("900")})
}

func TestEntityLedgerAllocatesAppliesToThenFIFO(t *testing.T) {
	f := newLedger(t)
	seedCustomer(t, f)
	svc := subledger.NewService(f.engine, nil, nil)

	ledger, err := svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: journals.EntityCustomer, ID: "c-1"}, date(2025, 4, 15))
	require.NoError(t, err)
	require.Equal(t, "Ayesha", ledger.Entity.Name)
	require.Len(t, ledger.Rows, 4)
	require.True(t, ledger.Balance.Equal(dec("300")))
	require.True(t, ledger.Outstanding.Equal(dec("300")))

	inv1, inv2 := ledger.Rows[0], ledger.Rows[1]
	require.Equal(t, "INV-1", inv1.ReferenceNo)
	require.True(t, inv1.Charge)
	require.True(t, inv1.Outstanding.Equal(dec("100")))
	require.Equal(t, subledger.StatusPending, inv1.Status)
	require.True(t, inv2.Outstanding.Equal(dec("200")))

	running := []string{"1000", "1500", "1200", "300"}
	for i, row := range ledger.Rows {
		require.True(t, row.Balance.Equal(dec(running[i])), "row %d balance %s", i, row.Balance)
	}
	require.Equal(t, subledger.StatusPaid, ledger.Rows[2].Status)

	require.True(t, ledger.Aging.Over90.Equal(dec("100")))
	require.True(t, ledger.Aging.Days60.Equal(dec("200")))
	require.True(t, ledger.Aging.Total().Equal(ledger.Outstanding))
}

func TestEntityLedgerIgnoresLinesAfterAsOf(t *testing.T) {
	f := newLedger(t)
	seedCustomer(t, f)
	svc := subledger.NewService(f.engine, nil, nil)

	ledger, err := svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: journals.EntityCustomer, Name: "C-1"}, date(2025, 3, 6))
	require.NoError(t, err)
	require.Len(t, ledger.Rows, 3)
	require.True(t, ledger.Balance.Equal(dec("1200")))
	require.True(t, ledger.Rows[0].Outstanding.Equal(dec("1000")))
	require.True(t, ledger.Rows[1].Outstanding.Equal(dec("200")))
	require.True(t, ledger.Aging.Days90.Equal(dec("1000")))
	require.True(t, ledger.Aging.Days30.Equal(dec("200")))
}

func TestPayableSettlementBeforeChargeIsAllocated(t *testing.T) {
	f := newLedger(t)
	supplier := journals.EntityRef{ID: "s-1", Name: "Loom House"}
	f.post(t, journals.SupplierPayment{Meta: journals.Meta{Date: date(2025, 2, 1), ReferenceNo: "PAY-1"}, Supplier: supplier, Amount: dec("100")})
	f.post(t, journals.Purchase{Meta: journals.Meta{Date: date(2025, 2, 3), ReferenceNo: "PO-1"}, Supplier: supplier, Total: dec("300")})
	svc := subledger.NewService(f.engine, nil, nil)

	ledger, err := svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: journals.EntitySupplier, ID: "s-1"}, date(2025, 2, 3))
	require.NoError(t, err)
	require.Len(t, ledger.Rows, 2)
	require.False(t, ledger.Rows[0].Charge)
	require.True(t, ledger.Rows[0].Balance.Equal(dec("-100")))
	require.True(t, ledger.Rows[1].Outstanding.Equal(dec("200")))
	require.True(t, ledger.Balance.Equal(dec("200")))
	require.True(t, ledger.Aging.Current.Equal(dec("200")))
}

func TestWorkerLedgerPaidInFull(t *testing.T) {
	f := newLedger(t)
	worker := journals.EntityRef{ID: "w-7", Name: "Rafiq"}
	f.post(t, journals.WorkerJobCompletion{Meta: journals.Meta{Date: date(2025, 5, 1), ReferenceNo: "JOB-1"}, Worker: worker, Stage: "Dyeing", Cost: dec("8000")})
	f.post(t, journals.WorkerPayment{Meta: journals.Meta{Date: date(2025, 5, 2), ReferenceNo: "WP-1"}, Worker: worker, Amount: dec("8000"), AppliesTo: "JOB-1"})
	svc := subledger.NewService(f.engine, nil, nil)

	ledger, err := svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: journals.EntityWorker, ID: "w-7"}, date(2025, 5, 31))
	require.NoError(t, err)
	require.True(t, ledger.Balance.IsZero())
	require.True(t, ledger.Outstanding.IsZero())
	require.Equal(t, subledger.StatusPaid, ledger.Rows[0].Status)
}

func TestSummariesListEveryEntityOfType(t *testing.T) {
	f := newLedger(t)
	seedCustomer(t, f)
	f.post(t, journals.Sale{Meta: journals.Meta{Date: date(2025, 4, 1), ReferenceNo: "INV-3"}, SaleTerms: journals.SaleTerms{Customer: journals.EntityRef{ID: "c-2"}, Total: dec("80"), Paid: dec("30")}})
	svc := subledger.NewService(f.engine, nil, nil)

	list, err := svc.Summaries(context.Background(), journals.EntityCustomer, date(2025, 4, 15))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "c-1", list[0].Entity.ID)
	require.True(t, list[0].Balance.Equal(dec("300")))
	require.Equal(t, "c-2", list[1].Entity.ID)
	require.True(t, list[1].Outstanding.Equal(dec("50")))
	require.Equal(t, date(2025, 4, 1), list[1].LastActivity)

	_, err = svc.Summaries(context.Background(), "vendor", time.Time{})
	require.Error(t, err)
}

func TestGetEntityLedgerRejectsUnknownType(t *testing.T) {
	svc := subledger.NewService(newLedger(t).engine, nil, nil)
	_, err := svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: "vendor", ID: "x"}, time.Time{})
	require.Error(t, err)
	_, err = svc.GetEntityLedger(context.Background(), journals.EntityRef{Type: journals.EntityWorker}, time.Time{})
	require.Error(t, err)
}

func TestCachedLedgerReloadsAfterBump(t *testing.T) {
	ctx := context.Background()
	f := newLedger(t)
	seedCustomer(t, f)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	source := &countingSource{Source: f.engine}
	svc := subledger.NewService(source, subledger.NewCache(client, time.Minute, "acme"), nil)
	ref := journals.EntityRef{Type: journals.EntityCustomer, ID: "c-1"}
	asOf := date(2025, 4, 15)

	first, err := svc.GetEntityLedger(ctx, ref, asOf)
	require.NoError(t, err)
	second, err := svc.GetEntityLedger(ctx, ref, asOf)
	require.NoError(t, err)
	require.Equal(t, int32(1), source.calls.Load())
	require.True(t, first.Balance.Equal(second.Balance))
	require.Len(t, second.Rows, 4)
	require.True(t, mr.Exists("ledger:subledger:acme:entity:customer:c-1:2025-04-15:1"))

	f.post(t, journals.SalePayment{Meta: journals.Meta{Date: date(2025, 4, 2), ReferenceNo: "RCPT-3"}, Customer: ayesha, Amount: dec("300")})
	svc.Invalidate(ctx)

	third, err := svc.GetEntityLedger(ctx, ref, asOf)
	require.NoError(t, err)
	require.Equal(t, int32(2), source.calls.Load())
	require.True(t, third.Balance.IsZero())
}

func TestListenForInvalidationFollowsOwnCompany(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := subledger.NewCache(client, time.Minute, "acme")

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.NoError(t, cache.ListenForInvalidation(ctx))

	require.NoError(t, client.Publish(ctx, "ledger.bump", "other:9").Err())
	require.NoError(t, client.Publish(ctx, "ledger.bump", "acme:7").Err())
	require.Eventually(t, func() bool {
		v, err := cache.Version(ctx)
		return err == nil && v == 7
	}, time.Second, 10*time.Millisecond)
}
