package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/memstore"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	ledgerShared "github.com/textile-erp/ledger/internal/accounting/shared"
	"github.com/textile-erp/ledger/internal/accounting/subledger"
	"github.com/textile-erp/ledger/internal/observability"
	"github.com/textile-erp/ledger/internal/shared"
)

// LedgerDeps collects what the per-company ledger factory needs. Pool is
// required for the postgres store; Redis and Metrics are optional.
type LedgerDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// NewLedgerRegistry returns a registry that opens one accounting service per
// configured company on the configured store. ctx bounds the cache
// invalidation listeners started for each company. Other company scopes are
// refused, so in-memory stores and listeners stay bounded by the config.
func NewLedgerRegistry(ctx context.Context, deps LedgerDeps) (*accounting.Registry, error) {
	if deps.Config == nil {
		return nil, errors.New("app: ledger config required")
	}
	if deps.Config.LedgerStore == StorePostgres && deps.Pool == nil {
		return nil, errors.New("app: postgres ledger store requires a database pool")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool)
	for _, company := range deps.Config.Companies() {
		allowed[company] = true
	}
	f := &ledgerFactory{
		ctx:       ctx,
		deps:      deps,
		logger:    logger,
		allowed:   allowed,
		memory:    make(map[string]*memstore.Store),
		listening: make(map[string]bool),
	}
	return accounting.NewRegistry(f.open), nil
}

type ledgerFactory struct {
	ctx     context.Context
	deps    LedgerDeps
	logger  *slog.Logger
	allowed map[string]bool

	mu        sync.Mutex
	memory    map[string]*memstore.Store
	listening map[string]bool
}

func (f *ledgerFactory) open(ctx context.Context, company string) (*accounting.Service, error) {
	if !f.allowed[company] {
		return nil, fmt.Errorf("%w: %s", ledgerShared.ErrUnknownCompany, company)
	}
	var (
		repo  accounts.Repository
		store posting.Store
		audit posting.AuditPort
	)
	switch f.deps.Config.LedgerStore {
	case StorePostgres:
		repo = accounts.NewRepository(f.deps.Pool, company)
		store = posting.NewRepository(f.deps.Pool, company)
		audit = shared.NewAuditLogger(f.deps.Pool, company)
	default:
		mem := f.memoryStore(company)
		repo, store = mem, mem
		audit = shared.NewLogAuditor(f.logger, company)
	}

	var cache *subledger.Cache
	if f.deps.Redis != nil {
		cache = subledger.NewCache(f.deps.Redis, f.deps.Config.LedgerCacheTTL, company)
		f.listen(cache, company)
	}

	var metrics accounting.MetricsPort
	if ledger := f.deps.Metrics.Ledger(); ledger != nil {
		metrics = ledger
	}
	return accounting.NewService(accounting.Deps{
		Company:  company,
		Accounts: repo,
		Store:    store,
		Audit:    audit,
		Cache:    cache,
		Metrics:  metrics,
		Logger:   f.logger,
		FeedSize: f.deps.Config.LedgerFeedSize,
	})
}

// memoryStore keeps a company's in-memory ledger across sessions.
func (f *ledgerFactory) memoryStore(company string) *memstore.Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.memory[company]; ok {
		return s
	}
	s := memstore.New()
	f.memory[company] = s
	return s
}

func (f *ledgerFactory) listen(cache *subledger.Cache, company string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening[company] {
		return
	}
	if err := cache.ListenForInvalidation(f.ctx); err != nil {
		f.logger.Warn("subledger invalidation listener", slog.String("company", company), slog.Any("error", err))
		return
	}
	f.listening[company] = true
}
