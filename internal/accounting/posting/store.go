package posting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
)

// Balance is the cached running balance of one account. Balance is signed by
// the account's normal side; Debit and Credit are lifetime turnover.
type Balance struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Balance   decimal.Decimal
}

// SubLedgerEntry is one line attributed to a customer, supplier or worker.
type SubLedgerEntry struct {
	ID          int64
	Entity      journals.EntityRef
	Date        time.Time
	Sequence    int64
	JournalID   int64
	AccountID   int64
	ReferenceNo string
	Description string
	Module      journals.Module
	Direction   accounts.Side
	Amount      decimal.Decimal
	AppliesTo   string
}

// EntryFilter narrows entry listings. Zero values match everything.
type EntryFilter struct {
	ReferenceNo string
	Module      journals.Module
	Event       journals.EventKind
	SourceID    uuid.UUID
	Entity      *journals.EntityRef
	From        time.Time
	To          time.Time
}

// Match reports whether e passes the filter.
func (f EntryFilter) Match(e journals.JournalEntry) bool {
	if f.ReferenceNo != "" && e.ReferenceNo != f.ReferenceNo {
		return false
	}
	if f.Module != "" && e.Module != f.Module {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.SourceID != uuid.Nil && e.SourceID != f.SourceID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.Entity != nil {
		for _, line := range e.Lines {
			if line.Entity != nil && line.Entity.Key() == f.Entity.Key() {
				return true
			}
		}
		return false
	}
	return true
}

// SubLedgerFilter selects one entity or every entity of a type.
type SubLedgerFilter struct {
	Entity *journals.EntityRef
	Type   journals.EntityType
}

// Match reports whether e passes the filter.
func (f SubLedgerFilter) Match(e SubLedgerEntry) bool {
	if f.Entity != nil && e.Entity.Key() != f.Entity.Key() {
		return false
	}
	if f.Type != "" && e.Entity.Type != f.Type {
		return false
	}
	return true
}

// Store persists one company's ledger. Reads only observe committed posts.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	ListAccounts(ctx context.Context) ([]accounts.Account, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]journals.JournalEntry, error)
	GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error)
	ListBalances(ctx context.Context) ([]Balance, error)
	ListSubLedger(ctx context.Context, filter SubLedgerFilter) ([]SubLedgerEntry, error)
}

// Tx exposes the writes of a single post.
type Tx interface {
	// LockScope serialises posts for the company until the transaction ends.
	LockScope(ctx context.Context) error
	AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	SourceLinked(ctx context.Context, source uuid.UUID) (int64, bool, error)
	NextSequence(ctx context.Context) (int64, error)
	InsertEntry(ctx context.Context, entry journals.JournalEntry) (int64, error)
	LinkSource(ctx context.Context, event journals.EventKind, source uuid.UUID, entryID int64) error
	GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error)
	FindReversal(ctx context.Context, id int64) (int64, bool, error)
	ApplyBalance(ctx context.Context, delta Balance) error
	AppendSubLedger(ctx context.Context, entry SubLedgerEntry) error
	ListEntries(ctx context.Context) ([]journals.JournalEntry, error)
	ReplaceBalances(ctx context.Context, balances []Balance) error
}
