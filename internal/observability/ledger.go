package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/textile-erp/ledger/internal/accounting/journals"
)

// LedgerMetrics counts recorded business events by outcome.
type LedgerMetrics struct {
	posts *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	posts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_total",
		Help: "Business events submitted to the ledger by company, event kind and outcome.",
	}, []string{"company", "event", "outcome"})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(posts)
	return &LedgerMetrics{posts: posts}
}

// ObservePost increments the event counter.
func (m *LedgerMetrics) ObservePost(company string, kind journals.EventKind, outcome string) {
	if m == nil {
		return
	}
	m.posts.WithLabelValues(company, string(kind), outcome).Inc()
}
