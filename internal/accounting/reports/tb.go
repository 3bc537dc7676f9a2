package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/posting"
)

// AccountBalance models a chart account with its lifetime turnover.
type AccountBalance struct {
	ID     int64
	Code   string
	Name   string
	Type   accounts.AccountType
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Closing is the balance signed by the account's normal side.
func (a AccountBalance) Closing() decimal.Decimal {
	if a.Type.NormalSide() == accounts.SideDebit {
		return a.Debit.Sub(a.Credit)
	}
	return a.Credit.Sub(a.Debit)
}

// GroupKey returns the parent code for sub-accounts and the code otherwise.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "-"); idx > 0 {
		return a.Code[:idx]
	}
	return a.Code
}

// FromLedger joins the chart with cached balances. Accounts without activity
// are reported with zero turnover.
func FromLedger(chart []accounts.Account, balances []posting.Balance) []AccountBalance {
	byID := make(map[int64]posting.Balance, len(balances))
	for _, b := range balances {
		byID[b.AccountID] = b
	}
	out := make([]AccountBalance, 0, len(chart))
	for _, acc := range chart {
		b := byID[acc.ID]
		out = append(out, AccountBalance{
			ID:     acc.ID,
			Code:   acc.Code,
			Name:   acc.Name,
			Type:   acc.Type,
			Debit:  b.Debit,
			Credit: b.Credit,
		})
	}
	return out
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Closing decimal.Decimal `json:"closing"`
}

// TrialBalanceGroup aggregates a parent account with its sub-accounts.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance lists every account with turnover. The debit and credit
// columns hold each closing balance on its natural side.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Balanced reports whether both columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range balances {
		if acc.Debit.IsZero() && acc.Credit.IsZero() {
			continue
		}
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Type:    string(acc.Type),
			Closing: acc.Closing(),
		}
		net := acc.Debit.Sub(acc.Credit)
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{Groups: []TrialBalanceGroup{}}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}
