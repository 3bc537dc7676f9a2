package accounting

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Factory builds the Service of one company.
type Factory func(ctx context.Context, company string) (*Service, error)

// Registry hands out one Service per company and closes them on logout.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	services map[string]*Service
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, services: make(map[string]*Service)}
}

// Open returns the company's Service, creating and warming it on first use.
func (r *Registry) Open(ctx context.Context, company string) (*Service, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, shared.Invalid("company", "required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[company]; ok {
		return svc, nil
	}
	svc, err := r.factory(ctx, company)
	if err != nil {
		return nil, err
	}
	if err := svc.Warm(ctx); err != nil {
		return nil, err
	}
	r.services[company] = svc
	return svc, nil
}

// Close ends the company's session. Unknown companies are ignored.
func (r *Registry) Close(company string) {
	r.mu.Lock()
	svc, ok := r.services[company]
	delete(r.services, company)
	r.mu.Unlock()
	if ok {
		svc.Close()
	}
}

// CloseAll ends every open session.
func (r *Registry) CloseAll() {
	for _, company := range r.Companies() {
		r.Close(company)
	}
}

// Companies lists the companies with an open session.
func (r *Registry) Companies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.services))
	for company := range r.services {
		out = append(out, company)
	}
	sort.Strings(out)
	return out
}
