package reports

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	_ "github.com/textile-erp/ledger/testing"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sample() []AccountBalance {
	return []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: d(1500), Credit: d(400)},
		{Code: "1100", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset, Debit: d(500)},
		{Code: "2000", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Debit: d(100), Credit: d(400)},
		{Code: "3000", Name: "Owner Equity", Type: accounts.AccountTypeEquity, Credit: d(600)},
		{Code: "4000", Name: "Sales Income", Type: accounts.AccountTypeIncome, Credit: d(1000)},
		{Code: "5200", Name: "General Expense", Type: accounts.AccountTypeExpense, Debit: d(200)},
		{Code: "5200-01", Name: "General Expense: Electricity", Type: accounts.AccountTypeExpense, Debit: d(100)},
		{Code: "9000", Name: "Idle", Type: accounts.AccountTypeAsset},
	}
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance(sample())
	if len(tb.Groups) != 6 {
		t.Fatalf("expected 6 groups, got %d", len(tb.Groups))
	}
	if !tb.TotalDebit.Equal(d(1900)) {
		t.Fatalf("unexpected total debit: %v", tb.TotalDebit)
	}
	if !tb.Balanced() {
		t.Fatalf("expected balanced trial balance, credit %v", tb.TotalCredit)
	}
	expense := tb.Groups[5]
	if expense.Key != "5200" || len(expense.Accounts) != 2 {
		t.Fatalf("expected sub-account grouped under 5200, got %+v", expense)
	}
}

func TestBuildProfitAndLoss(t *testing.T) {
	pl := BuildProfitAndLoss(sample())
	if !pl.Income.Total.Equal(d(1000)) {
		t.Fatalf("expected income total 1000 got %v", pl.Income.Total)
	}
	if !pl.Expense.Total.Equal(d(300)) {
		t.Fatalf("expected expense total 300 got %v", pl.Expense.Total)
	}
	if !pl.NetIncome.Equal(d(700)) {
		t.Fatalf("expected net income 700 got %v", pl.NetIncome)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	bs := BuildBalanceSheet(sample())
	if !bs.Assets.Total.Equal(d(1600)) {
		t.Fatalf("expected assets 1600 got %v", bs.Assets.Total)
	}
	if !bs.Liabilities.Total.Equal(d(300)) {
		t.Fatalf("expected liabilities 300 got %v", bs.Liabilities.Total)
	}
	if !bs.CurrentEarnings.Equal(d(700)) {
		t.Fatalf("expected earnings 700 got %v", bs.CurrentEarnings)
	}
	if !bs.Balanced() {
		t.Fatalf("expected assets to equal L+E, got %v", bs.TotalLiabilitiesAndEquity)
	}
}

func TestFromLedgerKeepsIdleAccounts(t *testing.T) {
	chart := []accounts.Account{
		{ID: 1, Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset},
		{ID: 2, Code: "4000", Name: "Sales Income", Type: accounts.AccountTypeIncome},
	}
	rows := FromLedger(chart, []posting.Balance{{AccountID: 1, Debit: d(50), Balance: d(50)}})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	if !rows[0].Closing().Equal(d(50)) || !rows[1].Closing().IsZero() {
		t.Fatalf("unexpected closings %v %v", rows[0].Closing(), rows[1].Closing())
	}
}
