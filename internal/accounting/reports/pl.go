package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
)

// ProfitAndLossAccount represents an income or expense account summary.
type ProfitAndLossAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Income    ProfitAndLossSection `json:"income"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetIncome decimal.Decimal      `json:"net_income"`
}

// BuildProfitAndLoss aggregates accounts into income and expense sections.
func BuildProfitAndLoss(balances []AccountBalance) ProfitAndLoss {
	income := ProfitAndLossSection{Label: "Income", Accounts: []ProfitAndLossAccount{}}
	expense := ProfitAndLossSection{Label: "Expense", Accounts: []ProfitAndLossAccount{}}

	for _, acc := range balances {
		row := ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: acc.Closing()}
		if row.Amount.IsZero() {
			continue
		}
		switch acc.Type {
		case accounts.AccountTypeIncome:
			income.Accounts = append(income.Accounts, row)
			income.Total = income.Total.Add(row.Amount)
		case accounts.AccountTypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	sort.Slice(income.Accounts, func(i, j int) bool { return income.Accounts[i].Code < income.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		Income:    income,
		Expense:   expense,
		NetIncome: income.Total.Sub(expense.Total),
	}
}
