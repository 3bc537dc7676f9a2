// Package accounting is the entry point business modules use to record
// events into a company's ledger and to read it back.
package accounting

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Result reports the outcome of recording one business event. A failed
// Result never leaves a trace in the ledger.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Entry   *journals.JournalEntry `json:"entry,omitempty"`
}

// MetricsPort receives one observation per recorded event.
type MetricsPort interface {
	ObservePost(company string, kind journals.EventKind, outcome string)
}

// Outcomes reported to MetricsPort.
const (
	OutcomePosted    = "posted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// ErrServiceClosed is returned once a company session has been closed.
var ErrServiceClosed = errors.New("accounting: service closed")

// Feed keeps the most recent posted entries, newest first.
type Feed struct {
	mu      sync.RWMutex
	limit   int
	entries []journals.JournalEntry
}

// NewFeed returns a feed holding at most limit entries.
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 100
	}
	return &Feed{limit: limit}
}

// Push records entry at the head of the feed.
func (f *Feed) Push(entry journals.JournalEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]journals.JournalEntry{entry}, f.entries...)
	if len(f.entries) > f.limit {
		f.entries = f.entries[:f.limit]
	}
}

// Seed replaces the feed with entries given oldest first.
func (f *Feed) Seed(entries []journals.JournalEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = f.entries[:0]
	for i := len(entries) - 1; i >= 0 && len(f.entries) < f.limit; i-- {
		f.entries = append(f.entries, entries[i])
	}
}

// List returns a copy of the feed.
func (f *Feed) List() []journals.JournalEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]journals.JournalEntry(nil), f.entries...)
}

// Reset drops every entry.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}

// outcome classifies a posting error for metrics and logging.
func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomePosted
	case errors.Is(err, shared.ErrSourceAlreadyLinked):
		return OutcomeDuplicate
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrConfiguration),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrJournalNotFound),
		errors.Is(err, shared.ErrAlreadyReversed),
		errors.Is(err, shared.ErrSourceMismatch):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// label renders an event kind for people, e.g. "sale payment".
func label(kind journals.EventKind) string {
	return strings.ToLower(strings.ReplaceAll(string(kind), "_", " "))
}

// describe turns an error into the sentence shown to the operator.
func describe(kind journals.EventKind, err error) string {
	what := label(kind)
	var vErr *shared.ValidationError
	var bErr *shared.BalanceError
	var cErr *shared.ConfigurationError
	switch {
	case errors.As(err, &vErr):
		return fmt.Sprintf("Cannot record %s: %s %s", what, vErr.Field, vErr.Reason)
	case errors.As(err, &bErr):
		return fmt.Sprintf("Cannot record %s: debits %s do not equal credits %s", what, bErr.Debit.StringFixed(2), bErr.Credit.StringFixed(2))
	case errors.As(err, &cErr):
		return fmt.Sprintf("Cannot record %s: %s (%s)", what, cErr.Reason, cErr.Kind)
	case errors.Is(err, shared.ErrAlreadyReversed):
		return "Entry has already been reversed"
	case errors.Is(err, shared.ErrSourceMismatch):
		return fmt.Sprintf("Cannot record %s: %v", what, strings.TrimPrefix(err.Error(), "accounting: "))
	case errors.Is(err, shared.ErrJournalNotFound):
		return "Journal entry not found"
	case errors.Is(err, ErrServiceClosed):
		return "Accounting session is closed"
	default:
		return fmt.Sprintf("Cannot record %s: %v", what, err)
	}
}
