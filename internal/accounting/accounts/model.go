package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// Side is the debit or credit side of a ledger line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalSide returns the side on which an account of type t increases.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	// Label is the category a generated sub-account was opened for. It
	// survives renames of the account and of its parent.
	Label     string
	Type      AccountType
	Kind      SystemKind
	System    bool
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalSide is fixed by the account type.
func (a Account) NormalSide() Side {
	return a.Type.NormalSide()
}

// NewAccountInput describes a user-defined account.
type NewAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}
