package posting_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/platform/db"
)

// TestPostgresSerialisesConcurrentPosts needs a database; point
// LEDGER_TEST_PG_DSN at a disposable one to run it.
func TestPostgresSerialisesConcurrentPosts(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, posting.Migrate(ctx, pool))

	company := "pg-" + uuid.NewString()[:8]
	chart := accounts.NewChart(accounts.NewRepository(pool, company))
	_, err = chart.EnsureDefaults(ctx)
	require.NoError(t, err)
	book, err := chart.Book(ctx)
	require.NoError(t, err)
	engine := posting.NewEngine(posting.NewRepository(pool, company), nil)

	const posts = 12
	var wg sync.WaitGroup
	errs := make(chan error, posts)
	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := journals.Build(journals.Sale{
				Meta: journals.Meta{Date: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), ReferenceNo: fmt.Sprintf("PG-%02d", i)},
				SaleTerms: journals.SaleTerms{
					Customer: journals.EntityRef{ID: "c-1"},
					Total:    dec("100"),
					Paid:     dec("40"),
				},
			}, book)
			if err != nil {
				errs <- err
				return
			}
			_, err = engine.Post(ctx, entry)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := engine.Entries(ctx, posting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, posts)
	seen := make(map[int64]bool, posts)
	for _, e := range entries {
		require.False(t, seen[e.Sequence], "sequence %d reused", e.Sequence)
		seen[e.Sequence] = true
	}
	drifts, err := engine.Verify(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}
