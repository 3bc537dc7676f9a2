// Package subledger derives customer, supplier and worker statements from the
// sub-ledger lines recorded at posting time.
package subledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
)

// Status of a sub-ledger row as of the statement date.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Row is one statement line. Outstanding is only meaningful for charges.
type Row struct {
	Date        time.Time       `json:"date"`
	Sequence    int64           `json:"sequence"`
	JournalID   int64           `json:"journal_id"`
	AccountID   int64           `json:"account_id"`
	ReferenceNo string          `json:"reference_no"`
	Description string          `json:"description"`
	Module      journals.Module `json:"module"`
	Direction   accounts.Side   `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	AppliesTo   string          `json:"applies_to,omitempty"`
	Charge      bool            `json:"charge"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      Status          `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
}

// Aging splits unpaid charges by days past their date.
type Aging struct {
	Current decimal.Decimal `json:"current"`
	Days30  decimal.Decimal `json:"days_1_30"`
	Days60  decimal.Decimal `json:"days_31_60"`
	Days90  decimal.Decimal `json:"days_61_90"`
	Over90  decimal.Decimal `json:"days_90_plus"`
}

// Total sums every bucket.
func (a Aging) Total() decimal.Decimal {
	return a.Current.Add(a.Days30).Add(a.Days60).Add(a.Days90).Add(a.Over90)
}

// EntityLedger is the statement of one entity as of a date.
type EntityLedger struct {
	Entity      journals.EntityRef `json:"entity"`
	AsOf        time.Time          `json:"as_of"`
	Rows        []Row              `json:"rows"`
	Balance     decimal.Decimal    `json:"balance"`
	Outstanding decimal.Decimal    `json:"outstanding"`
	Aging       Aging              `json:"aging"`
}

// Summary is the one-line view of an entity used by statement lists.
type Summary struct {
	Entity       journals.EntityRef `json:"entity"`
	Balance      decimal.Decimal    `json:"balance"`
	Outstanding  decimal.Decimal    `json:"outstanding"`
	Aging        Aging              `json:"aging"`
	LastActivity time.Time          `json:"last_activity"`
}

// ChargeSide is the side a charge is posted on for the entity type. Customers
// owe us, so their charges are debits; suppliers and workers are owed by us.
func ChargeSide(t journals.EntityType) accounts.Side {
	if t == journals.EntityCustomer {
		return accounts.SideDebit
	}
	return accounts.SideCredit
}
