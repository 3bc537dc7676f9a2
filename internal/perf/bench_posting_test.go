package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/memstore"
)

func newLedger(tb testing.TB) *accounting.Service {
	tb.Helper()
	store := memstore.New()
	svc, err := accounting.NewService(accounting.Deps{Company: "perf", Accounts: store, Store: store})
	if err != nil {
		tb.Fatalf("new service: %v", err)
	}
	if _, err := svc.Setup(context.Background()); err != nil {
		tb.Fatalf("setup: %v", err)
	}
	tb.Cleanup(svc.Close)
	return svc
}

func sale(i int) journals.Sale {
	return journals.Sale{
		Meta: journals.Meta{
			Date:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%28),
			ReferenceNo: fmt.Sprintf("INV-%05d", i),
		},
		SaleTerms: journals.SaleTerms{
			Customer: journals.EntityRef{ID: fmt.Sprintf("c-%d", i%20)},
			Total:    decimal.NewFromInt(int64(1000 + i)),
			Paid:     decimal.NewFromInt(int64(i % 500)),
		},
	}
}

func BenchmarkRecordSale(b *testing.B) {
	svc := newLedger(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if result := svc.RecordSale(ctx, sale(i)); !result.Success {
			b.Fatalf("record sale: %s", result.Message)
		}
	}
}

func BenchmarkEntityLedger(b *testing.B) {
	svc := newLedger(b)
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		if result := svc.RecordSale(ctx, sale(i)); !result.Success {
			b.Fatalf("record sale: %s", result.Message)
		}
	}
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.EntityLedger(ctx, journals.EntityRef{Type: journals.EntityCustomer, ID: "c-7"}, asOf); err != nil {
			b.Fatalf("entity ledger: %v", err)
		}
	}
}

func TestPostingLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency check skipped in short mode")
	}
	svc := newLedger(t)
	ctx := context.Background()
	samples := make([]time.Duration, 0, 300)
	for i := 0; i < 300; i++ {
		start := time.Now()
		if result := svc.RecordSale(ctx, sale(i)); !result.Success {
			t.Fatalf("record sale %d: %s", i, result.Message)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 250*time.Millisecond {
		t.Fatalf("posting latency regression: p95=%s threshold=%s", p95, 250*time.Millisecond)
	}

	start := time.Now()
	if _, err := svc.Verify(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("replay of %d entries took %s", len(samples), elapsed)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
