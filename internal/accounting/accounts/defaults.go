package accounts

import "strings"

// SystemKind identifies a well-known account the ledger relies on.
type SystemKind string

const (
	KindCash               SystemKind = "CASH"
	KindBank               SystemKind = "BANK"
	KindMobileWallet       SystemKind = "MOBILE_WALLET"
	KindReceivable         SystemKind = "ACCOUNTS_RECEIVABLE"
	KindInventory          SystemKind = "INVENTORY"
	KindPayable            SystemKind = "ACCOUNTS_PAYABLE"
	KindWorkerPayable      SystemKind = "WORKER_PAYABLE"
	KindCustomerAdvance    SystemKind = "CUSTOMER_ADVANCE"
	KindSecurityDeposit    SystemKind = "SECURITY_DEPOSIT"
	KindSuspense           SystemKind = "SUSPENSE"
	KindOwnerEquity        SystemKind = "OWNER_EQUITY"
	KindSalesIncome        SystemKind = "SALES_INCOME"
	KindStudioSalesIncome  SystemKind = "STUDIO_SALES_INCOME"
	KindRentalIncome       SystemKind = "RENTAL_INCOME"
	KindRentalDamageIncome SystemKind = "RENTAL_DAMAGE_INCOME"
	KindCostOfProduction   SystemKind = "COST_OF_PRODUCTION"
	KindPurchaseExpense    SystemKind = "PURCHASE_EXPENSE"
	KindGeneralExpense     SystemKind = "GENERAL_EXPENSE"
)

// SystemAccount is a catalogue row for a well-known account.
type SystemAccount struct {
	Kind SystemKind
	Code string
	Name string
	Type AccountType
}

var catalogue = []SystemAccount{
	{KindCash, "1000", "Cash", AccountTypeAsset},
	{KindBank, "1010", "Bank", AccountTypeAsset},
	{KindMobileWallet, "1020", "Mobile Wallet", AccountTypeAsset},
	{KindReceivable, "1100", "Accounts Receivable", AccountTypeAsset},
	{KindInventory, "1200", "Inventory", AccountTypeAsset},
	{KindPayable, "2000", "Accounts Payable", AccountTypeLiability},
	{KindWorkerPayable, "2100", "Worker Payable", AccountTypeLiability},
	{KindCustomerAdvance, "2200", "Customer Advance", AccountTypeLiability},
	{KindSecurityDeposit, "2300", "Security Deposit", AccountTypeLiability},
	{KindSuspense, "2900", "Suspense Account", AccountTypeLiability},
	{KindOwnerEquity, "3000", "Owner Equity", AccountTypeEquity},
	{KindSalesIncome, "4000", "Sales Income", AccountTypeIncome},
	{KindStudioSalesIncome, "4010", "Studio Sales Income", AccountTypeIncome},
	{KindRentalIncome, "4100", "Rental Income", AccountTypeIncome},
	{KindRentalDamageIncome, "4110", "Rental Damage Income", AccountTypeIncome},
	{KindCostOfProduction, "5000", "Cost of Production", AccountTypeExpense},
	{KindPurchaseExpense, "5100", "Purchase Expense", AccountTypeExpense},
	{KindGeneralExpense, "5200", "General Expense", AccountTypeExpense},
}

// Catalogue returns the default system accounts in code order.
func Catalogue() []SystemAccount {
	return append([]SystemAccount(nil), catalogue...)
}

// LookupKind returns the catalogue row for kind.
func LookupKind(kind SystemKind) (SystemAccount, bool) {
	for _, sa := range catalogue {
		if sa.Kind == kind {
			return sa, true
		}
	}
	return SystemAccount{}, false
}

// PaymentMethod is the caller-facing payment tag.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBank         PaymentMethod = "bank"
	PaymentCard         PaymentMethod = "card"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentMobileWallet PaymentMethod = "mobile_wallet"
)

// PaymentKind maps a payment method to the account kind that receives or
// pays the money. Unknown methods return false.
func PaymentKind(method PaymentMethod) (SystemKind, bool) {
	m := strings.ToLower(strings.TrimSpace(string(method)))
	m = strings.ReplaceAll(m, " ", "_")
	switch {
	case m == "" || m == string(PaymentCash):
		return KindCash, true
	case m == string(PaymentBank) || m == string(PaymentCard) || m == string(PaymentCheque):
		return KindBank, true
	case strings.Contains(m, "wallet"):
		return KindMobileWallet, true
	}
	return "", false
}
