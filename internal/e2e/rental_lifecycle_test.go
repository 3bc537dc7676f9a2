package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/app"
	"github.com/textile-erp/ledger/internal/observability"
	"github.com/textile-erp/ledger/jobs"
	_ "github.com/textile-erp/ledger/testing"
)

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2}, nil
}

type stack struct {
	handler  http.Handler
	registry *accounting.Registry
	redis    *redis.Client
	metrics  *observability.Metrics
}

func newStack(t *testing.T) stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &app.Config{
		AppEnv:             "test",
		LedgerStore:        app.StoreMemory,
		LedgerCompanyID:    "atelier",
		LedgerFeedSize:     50,
		RateLimitPerMinute: 1000,
	}
	logger := app.NewLogger(&app.Config{LogFormat: "json", LogLevel: "error"})
	metrics := observability.NewMetrics()
	registry, err := app.NewLedgerRegistry(ctx, app.LedgerDeps{Config: cfg, Logger: logger, Redis: client, Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(registry.CloseAll)

	handler := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, registry, nil, cfg.LedgerCompanyID),
		JobHandler:        jobs.NewHandler(stubInspector{}, logger),
		Metrics:           metrics,
	})
	return stack{handler: handler, registry: registry, redis: client, metrics: metrics}
}

func (s stack) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s stack) get(t *testing.T, path string, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestRentalAndWorkshopLifecycle(t *testing.T) {
	s := newStack(t)
	rec := s.post(t, "/api/accounting/accounts/setup", "")
	require.Equal(t, http.StatusOK, rec.Code)

	events := []struct {
		kind string
		body string
	}{
		{"rental-booking", `{"date":"2025-03-01","reference_no":"RB-1","customer":{"id":"c-9","name":"Nadia"},"advance":"2000","deposit":"1000","payment":{"method":"cash"}}`},
		{"rental-delivery", `{"date":"2025-03-05","reference_no":"RD-1","customer":{"id":"c-9"},"amount":"4000","payment":{"method":"cash"}}`},
		{"rental-return", `{"date":"2025-03-12","reference_no":"RR-1","customer":{"id":"c-9"},"deposit":"1000","damage":"300","payment":{"method":"cash"}}`},
		{"worker-job", `{"date":"2025-03-06","reference_no":"WJ-1","worker":{"id":"w-2","name":"Karim"},"stage":"Embroidery","cost":"1500"}`},
		{"worker-payment", `{"date":"2025-03-20","reference_no":"WP-1","worker":{"id":"w-2"},"amount":"1000","applies_to":"WJ-1","payment":{"method":"cash"}}`},
	}
	for _, evt := range events {
		rec := s.post(t, "/api/accounting/events/"+evt.kind, evt.body)
		require.Equal(t, http.StatusCreated, rec.Code, "%s: %s", evt.kind, rec.Body.String())
	}

	var cash accounting.BalanceView
	s.get(t, "/api/accounting/balances/Cash", &cash)
	require.Equal(t, "5300.00", cash.Balance)

	var deposit accounting.BalanceView
	s.get(t, "/api/accounting/balances/2300", &deposit)
	require.Equal(t, "0.00", deposit.Balance)

	var worker struct {
		Outstanding decimal.Decimal `json:"outstanding"`
		Rows        []any           `json:"rows"`
	}
	s.get(t, "/api/accounting/ledgers/worker/w-2?as_of=2025-03-31", &worker)
	require.True(t, worker.Outstanding.Equal(decimal.NewFromInt(500)), worker.Outstanding.String())
	require.Len(t, worker.Rows, 2)

	var pack struct {
		TrialBalance struct {
			TotalDebit  decimal.Decimal `json:"total_debit"`
			TotalCredit decimal.Decimal `json:"total_credit"`
		} `json:"trial_balance"`
		ProfitAndLoss struct {
			NetIncome decimal.Decimal `json:"net_income"`
		} `json:"profit_and_loss"`
	}
	s.get(t, "/api/accounting/reports/pack", &pack)
	require.True(t, pack.TrialBalance.TotalDebit.Equal(pack.TrialBalance.TotalCredit))
	require.True(t, pack.ProfitAndLoss.NetIncome.Equal(decimal.NewFromInt(2800)), pack.ProfitAndLoss.NetIncome.String())

	// The nightly job sees the same ledger and finds it consistent.
	job := jobs.NewIntegrityJob(s.registry, []string{"atelier"}, s.redis, nil, s.metrics.Jobs())
	reports, err := job.Run(context.Background(), jobs.IntegrityPayload{})
	require.NoError(t, err)
	require.Equal(t, []jobs.IntegrityReport{{Company: "atelier"}}, reports)

	var queue struct {
		Queue   string `json:"queue"`
		Pending int    `json:"pending"`
	}
	s.get(t, "/jobs/health", &queue)
	require.Equal(t, jobs.QueueDefault, queue.Queue)
	require.Equal(t, 2, queue.Pending)
}
