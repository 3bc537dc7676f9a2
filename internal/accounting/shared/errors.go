package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrUnbalanced matches every BalanceError.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrConfiguration matches every ConfigurationError.
	ErrConfiguration = errors.New("accounting: chart of accounts misconfigured")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountInUse indicates an account that cannot be deactivated.
	ErrAccountInUse = errors.New("accounting: account in use")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrSourceConflict is returned by stores when the source link exists.
	ErrSourceConflict = errors.New("accounting: source conflict")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrSourceMismatch indicates an event was already recorded with other figures.
	ErrSourceMismatch = errors.New("accounting: event already recorded with different amounts")
	// ErrUnknownCompany indicates a company scope outside the configured set.
	ErrUnknownCompany = errors.New("accounting: unknown company")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
)

// ValidationError reports malformed event parameters for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "accounting: invalid input: " + e.Reason
	}
	return fmt.Sprintf("accounting: invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BalanceError reports an entry whose debits and credits differ.
type BalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s)", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is lets errors.Is(err, ErrUnbalanced) succeed.
func (e *BalanceError) Is(target error) bool { return target == ErrUnbalanced }

// ConfigurationError reports a missing or ambiguous system account.
type ConfigurationError struct {
	Kind   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("accounting: account %q misconfigured: %s", e.Kind, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Misconfigured builds a ConfigurationError.
func Misconfigured(kind, reason string) error {
	return &ConfigurationError{Kind: kind, Reason: reason}
}
