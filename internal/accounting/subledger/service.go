package subledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Source lists recorded sub-ledger lines. posting.Engine satisfies it.
type Source interface {
	SubLedger(ctx context.Context, filter posting.SubLedgerFilter) ([]posting.SubLedgerEntry, error)
}

// Service answers statement queries for one company.
type Service struct {
	source Source
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the service. cache may be nil.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger, now: time.Now}
}

// GetEntityLedger returns the statement of ref as of asOf. A zero asOf means today.
func (s *Service) GetEntityLedger(ctx context.Context, ref journals.EntityRef, asOf time.Time) (EntityLedger, error) {
	ref, err := normaliseRef(ref)
	if err != nil {
		return EntityLedger{}, err
	}
	asOf = s.asOf(asOf)
	loader := func(ctx context.Context) (interface{}, error) {
		lines, err := s.source.SubLedger(ctx, posting.SubLedgerFilter{Entity: &ref})
		if err != nil {
			return nil, fmt.Errorf("load sub-ledger: %w", err)
		}
		return Compute(ref, lines, asOf), nil
	}
	var out EntityLedger
	if err := s.cached(ctx, &out, loader, "entity", string(ref.Type), ref.ID, asOf.Format("2006-01-02")); err != nil {
		return EntityLedger{}, err
	}
	return out, nil
}

// Summaries lists every entity of a type with its balance and aging.
func (s *Service) Summaries(ctx context.Context, entityType journals.EntityType, asOf time.Time) ([]Summary, error) {
	if !entityType.Valid() {
		return nil, shared.Invalid("entity_type", fmt.Sprintf("unknown entity type %q", entityType))
	}
	asOf = s.asOf(asOf)
	loader := func(ctx context.Context) (interface{}, error) {
		lines, err := s.source.SubLedger(ctx, posting.SubLedgerFilter{Type: entityType})
		if err != nil {
			return nil, fmt.Errorf("load sub-ledger: %w", err)
		}
		return Summarise(lines, asOf), nil
	}
	var out []Summary
	if err := s.cached(ctx, &out, loader, "summary", string(entityType), asOf.Format("2006-01-02")); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops every cached statement. Called after each post.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("sub-ledger cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) cached(ctx context.Context, dest interface{}, loader func(context.Context) (interface{}, error), parts ...string) error {
	cache := s.cache
	key, err := cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("sub-ledger cache unavailable", slog.Any("error", err))
		cache = nil
		key = strings.Join(parts, ":")
	}
	result := s.group.DoChan(key, func() (interface{}, error) {
		var raw json.RawMessage
		if err := cache.FetchJSON(ctx, key, &raw, loader); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

func (s *Service) asOf(asOf time.Time) time.Time {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return truncateDay(asOf)
}

func normaliseRef(ref journals.EntityRef) (journals.EntityRef, error) {
	if !ref.Type.Valid() {
		return ref, shared.Invalid("entity_type", fmt.Sprintf("unknown entity type %q", ref.Type))
	}
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.ID == "" {
		ref.ID = strings.ToLower(ref.Name)
	}
	if ref.ID == "" {
		return ref, shared.Invalid("entity_id", "id or name required")
	}
	return ref, nil
}
