package reports

import "time"

// Pack bundles the three statements of a company at one point in time.
type Pack struct {
	CompanyID     string        `json:"company_id"`
	GeneratedAt   time.Time     `json:"generated_at"`
	TrialBalance  TrialBalance  `json:"trial_balance"`
	ProfitAndLoss ProfitAndLoss `json:"profit_and_loss"`
	BalanceSheet  BalanceSheet  `json:"balance_sheet"`
}

// BuildPack renders every statement from the same balances.
func BuildPack(company string, at time.Time, balances []AccountBalance) Pack {
	return Pack{
		CompanyID:     company,
		GeneratedAt:   at,
		TrialBalance:  BuildTrialBalance(balances),
		ProfitAndLoss: BuildProfitAndLoss(balances),
		BalanceSheet:  BuildBalanceSheet(balances),
	}
}
