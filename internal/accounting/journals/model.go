package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Module tags the business area an entry came from.
type Module string

const (
	ModuleSales    Module = "Sales"
	ModuleRental   Module = "Rental"
	ModuleStudio   Module = "Studio"
	ModuleExpense  Module = "Expense"
	ModulePurchase Module = "Purchase"
	ModulePayment  Module = "Payment"
	ModuleGeneral  Module = "General"
)

// EntityType enumerates sub-ledger owners.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntitySupplier EntityType = "supplier"
	EntityWorker   EntityType = "worker"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCustomer, EntitySupplier, EntityWorker:
		return true
	}
	return false
}

// EntityRef points a line at a customer, supplier or worker.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
}

// Key identifies the entity regardless of display name.
func (r EntityRef) Key() string {
	return string(r.Type) + ":" + r.ID
}

// JournalEntry is a candidate before posting and immutable after.
type JournalEntry struct {
	ID          int64
	Sequence    int64
	Number      string
	Date        time.Time
	ReferenceNo string
	Description string
	Module      Module
	Event       EventKind
	SourceID    uuid.UUID
	Lines       []JournalLine
	Attachments []string
	PostedAt    time.Time
	ReversalOf  *int64
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Entity    *EntityRef
	AppliesTo string
	Memo      string
}

// Amount returns whichever side is populated.
func (l JournalLine) Amount() decimal.Decimal {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// Totals sums both sides.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Amount is the entry's debit total.
func (e JournalEntry) Amount() decimal.Decimal {
	debit, _ := e.Totals()
	return debit
}

// Posted reports whether the engine has stamped the entry.
func (e JournalEntry) Posted() bool {
	return e.Sequence > 0
}

// FormatNumber renders a sequence as a journal number.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("JE-%06d", seq)
}

// SourceKey derives the idempotency key for one business event from its kind
// and the parts that tell it apart from other events of that kind.
func SourceKey(kind EventKind, parts ...string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(string(kind)+":"+strings.Join(parts, "|")))
}

// SameLines reports whether two entries post the same amounts to the same
// accounts and entities, in any order.
func SameLines(a, b []JournalLine) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, la := range a {
		found := false
		for j, lb := range b {
			if !used[j] && la.sameAs(lb) {
				used[j], found = true, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (l JournalLine) sameAs(o JournalLine) bool {
	if l.AccountID != o.AccountID || !l.Debit.Equal(o.Debit) || !l.Credit.Equal(o.Credit) || l.AppliesTo != o.AppliesTo {
		return false
	}
	if (l.Entity == nil) != (o.Entity == nil) {
		return false
	}
	return l.Entity == nil || l.Entity.Key() == o.Entity.Key()
}
