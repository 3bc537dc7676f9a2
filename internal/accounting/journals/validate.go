package journals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Epsilon is the largest debit/credit difference still considered balanced.
var Epsilon = decimal.RequireFromString("0.005")

// MaxScale is the number of decimal places an amount may carry. Ledger
// columns are NUMERIC(18,4).
const MaxScale int32 = 4

// Exact reports whether v fits in MaxScale decimal places.
func Exact(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(MaxScale))
}

// CheckLines enforces line sidedness and the minimum line count.
func CheckLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	for i, line := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.AccountID <= 0 {
			return shared.Invalid(field, "account required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.Invalid(field, "amounts must not be negative")
		}
		if !Exact(line.Debit) || !Exact(line.Credit) {
			return shared.Invalid(field, fmt.Sprintf("amounts carry at most %d decimal places", MaxScale))
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return shared.Invalid(field, "exactly one of debit or credit must be set")
		}
		if line.Entity != nil && (!line.Entity.Type.Valid() || line.Entity.ID == "") {
			return shared.Invalid(field, "entity reference incomplete")
		}
	}
	return nil
}

// CheckBalance recomputes both totals and rejects a difference above Epsilon.
func CheckBalance(lines []JournalLine) error {
	var debit, credit decimal.Decimal
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit.Sub(credit).Abs().GreaterThan(Epsilon) {
		return &shared.BalanceError{Debit: debit, Credit: credit}
	}
	return nil
}

// Validate runs every structural check on a candidate entry.
func (e JournalEntry) Validate() error {
	if e.Date.IsZero() {
		return shared.Invalid("date", "required")
	}
	if e.ReferenceNo == "" {
		return shared.Invalid("reference_no", "required")
	}
	if err := CheckLines(e.Lines); err != nil {
		return err
	}
	return CheckBalance(e.Lines)
}
