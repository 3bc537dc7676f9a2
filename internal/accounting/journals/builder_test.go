package journals

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

func testBook(t *testing.T, extra ...accounts.Account) (*accounts.Book, map[accounts.SystemKind]accounts.Account) {
	t.Helper()
	byKind := make(map[accounts.SystemKind]accounts.Account)
	var list []accounts.Account
	for i, def := range accounts.Catalogue() {
		acc := accounts.Account{
			ID:       int64(i + 1),
			Code:     def.Code,
			Name:     def.Name,
			Type:     def.Type,
			Kind:     def.Kind,
			System:   true,
			IsActive: true,
		}
		byKind[def.Kind] = acc
		list = append(list, acc)
	}
	list = append(list, extra...)
	return accounts.NewBook(list), byKind
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func meta(ref string) Meta {
	return Meta{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), ReferenceNo: ref}
}

func lineFor(t *testing.T, entry JournalEntry, accountID int64) JournalLine {
	t.Helper()
	for _, line := range entry.Lines {
		if line.AccountID == accountID {
			return line
		}
	}
	t.Fatalf("no line for account %d", accountID)
	return JournalLine{}
}

func requireBalanced(t *testing.T, entry JournalEntry) {
	t.Helper()
	debit, credit := entry.Totals()
	require.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
	for _, line := range entry.Lines {
		require.NotEqual(t, line.Debit.IsPositive(), line.Credit.IsPositive())
	}
}

func TestBuildFullyPaidSale(t *testing.T) {
	book, kinds := testBook(t)
	entry, err := Build(Sale{Meta: meta("INV-1"), SaleTerms: SaleTerms{
		Customer: EntityRef{ID: "c-1", Name: "Ayesha"},
		Total:    dec("50000"),
		Paid:     dec("50000"),
	}}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.Len(t, entry.Lines, 2)
	require.True(t, lineFor(t, entry, kinds[accounts.KindCash].ID).Debit.Equal(dec("50000")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindSalesIncome].ID).Credit.Equal(dec("50000")))
	require.Equal(t, ModuleSales, entry.Module)
	require.Equal(t, SourceKey(KindSale, "INV-1", "c-1"), entry.SourceID)
}

func TestBuildPartialSaleSplitsCashAndReceivable(t *testing.T) {
	book, kinds := testBook(t)
	entry, err := Build(Sale{Meta: meta("INV-2"), SaleTerms: SaleTerms{
		Customer: EntityRef{ID: "c-1"},
		Total:    dec("75000"),
		Paid:     dec("25000"),
	}}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.Len(t, entry.Lines, 3)
	require.True(t, lineFor(t, entry, kinds[accounts.KindCash].ID).Debit.Equal(dec("25000")))
	ar := lineFor(t, entry, kinds[accounts.KindReceivable].ID)
	require.True(t, ar.Debit.Equal(dec("50000")))
	require.NotNil(t, ar.Entity)
	require.Equal(t, EntityCustomer, ar.Entity.Type)
	require.True(t, lineFor(t, entry, kinds[accounts.KindSalesIncome].ID).Credit.Equal(dec("75000")))
}

func TestBuildSaleSplitProperty(t *testing.T) {
	book, kinds := testBook(t)
	total := dec("1000")
	for _, paid := range []string{"0", "0.01", "250", "999.99", "1000"} {
		p := dec(paid)
		entry, err := Build(StudioSale{Meta: meta("ST-" + paid), SaleTerms: SaleTerms{
			Customer: EntityRef{Name: "Walk-in"},
			Total:    total,
			Paid:     p,
			Payment:  Payment{Method: accounts.PaymentBank},
		}}, book)
		require.NoError(t, err, paid)
		requireBalanced(t, entry)
		var bank, ar, income decimal.Decimal
		var incomeLines int
		for _, line := range entry.Lines {
			switch line.AccountID {
			case kinds[accounts.KindBank].ID:
				bank = bank.Add(line.Debit)
			case kinds[accounts.KindReceivable].ID:
				ar = ar.Add(line.Debit)
			case kinds[accounts.KindStudioSalesIncome].ID:
				income = income.Add(line.Credit)
				incomeLines++
			}
		}
		require.True(t, bank.Equal(p), paid)
		require.True(t, ar.Equal(total.Sub(p)), paid)
		require.True(t, income.Equal(total), paid)
		require.Equal(t, 1, incomeLines)
	}
}

func TestBuildRejectsOverpaidSale(t *testing.T) {
	book, _ := testBook(t)
	_, err := Build(Sale{Meta: meta("INV-3"), SaleTerms: SaleTerms{
		Customer: EntityRef{ID: "c-1"},
		Total:    dec("100"),
		Paid:     dec("150"),
	}}, book)
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "paid", vErr.Field)
}

func TestBuildRentalBookingKeepsDepositOutOfIncome(t *testing.T) {
	book, kinds := testBook(t)
	entry, err := Build(RentalBooking{
		Meta:     meta("BK-1"),
		Customer: EntityRef{ID: "c-9", Name: "Sana"},
		Advance:  dec("5000"),
		Deposit:  dec("10000"),
	}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.True(t, lineFor(t, entry, kinds[accounts.KindCash].ID).Debit.Equal(dec("15000")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindCustomerAdvance].ID).Credit.Equal(dec("5000")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindSecurityDeposit].ID).Credit.Equal(dec("10000")))
	income := map[int64]bool{}
	for _, acc := range kinds {
		if acc.Type == accounts.AccountTypeIncome {
			income[acc.ID] = true
		}
	}
	for _, line := range entry.Lines {
		require.False(t, income[line.AccountID], "booking touched income account %d", line.AccountID)
	}
}

func TestBuildRentalReturnWithholdsDamage(t *testing.T) {
	book, kinds := testBook(t)
	entry, err := Build(RentalReturn{
		Meta:     meta("BK-1"),
		Customer: EntityRef{ID: "c-9"},
		Deposit:  dec("10000"),
		Damage:   dec("1500"),
	}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.True(t, lineFor(t, entry, kinds[accounts.KindSecurityDeposit].ID).Debit.Equal(dec("10000")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindCash].ID).Credit.Equal(dec("8500")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindRentalDamageIncome].ID).Credit.Equal(dec("1500")))

	entry, err = Build(RentalReturn{
		Meta:     meta("BK-2"),
		Customer: EntityRef{ID: "c-9"},
		Deposit:  dec("1000"),
		Damage:   dec("1500"),
	}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.True(t, lineFor(t, entry, kinds[accounts.KindCash].ID).Debit.Equal(dec("500")))
}

func TestBuildWorkerFlowNeverTouchesIncome(t *testing.T) {
	book, kinds := testBook(t)
	job, err := Build(WorkerJobCompletion{Meta: meta("JOB-1"), Worker: EntityRef{ID: "w-1"}, Stage: "Dyeing", Cost: dec("8000")}, book)
	require.NoError(t, err)
	requireBalanced(t, job)
	require.True(t, lineFor(t, job, kinds[accounts.KindCostOfProduction].ID).Debit.Equal(dec("8000")))
	require.True(t, lineFor(t, job, kinds[accounts.KindWorkerPayable].ID).Credit.Equal(dec("8000")))
	require.Equal(t, "Dyeing job completed - w-1", job.Description)

	pay, err := Build(WorkerPayment{Meta: meta("WP-1"), Worker: EntityRef{ID: "w-1"}, Amount: dec("8000")}, book)
	require.NoError(t, err)
	require.True(t, lineFor(t, pay, kinds[accounts.KindWorkerPayable].ID).Debit.Equal(dec("8000")))
	require.True(t, lineFor(t, pay, kinds[accounts.KindCash].ID).Credit.Equal(dec("8000")))
	for _, line := range append(job.Lines, pay.Lines...) {
		require.NotEqual(t, kinds[accounts.KindSalesIncome].ID, line.AccountID)
	}
}

func TestBuildPurchaseOnCredit(t *testing.T) {
	book, kinds := testBook(t)
	entry, err := Build(Purchase{
		Meta:     meta("PO-1"),
		Supplier: EntityRef{ID: "s-1"},
		Type:     PurchaseExpense,
		Total:    dec("1200"),
		Paid:     dec("200"),
		Payment:  Payment{Method: accounts.PaymentMobileWallet},
	}, book)
	require.NoError(t, err)
	requireBalanced(t, entry)
	require.True(t, lineFor(t, entry, kinds[accounts.KindPurchaseExpense].ID).Debit.Equal(dec("1200")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindMobileWallet].ID).Credit.Equal(dec("200")))
	ap := lineFor(t, entry, kinds[accounts.KindPayable].ID)
	require.True(t, ap.Credit.Equal(dec("1000")))
	require.Equal(t, EntitySupplier, ap.Entity.Type)
}

func TestBuildExpenseUsesCategorySubAccount(t *testing.T) {
	parent := int64(18)
	utilities := accounts.Account{ID: 100, Code: "5200-01", Name: "General Expense: Utilities", Type: accounts.AccountTypeExpense, ParentID: &parent, IsActive: true}
	book, kinds := testBook(t, utilities)
	require.Equal(t, parent, kinds[accounts.KindGeneralExpense].ID)

	entry, err := Build(Expense{Meta: meta("EXP-1"), Category: "utilities", Amount: dec("300")}, book)
	require.NoError(t, err)
	require.True(t, lineFor(t, entry, utilities.ID).Debit.Equal(dec("300")))

	_, err = Build(Expense{Meta: meta("EXP-2"), Category: "Travel", Amount: dec("300")}, book)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestBuildTransferRejectsSameAccount(t *testing.T) {
	book, kinds := testBook(t)
	cash := kinds[accounts.KindCash].ID
	_, err := Build(Transfer{Meta: meta("TR-1"), FromAccountID: cash, ToAccountID: cash, Amount: dec("10")}, book)
	require.ErrorIs(t, err, shared.ErrValidation)

	entry, err := Build(Transfer{Meta: meta("TR-2"), FromAccountID: cash, ToAccountID: kinds[accounts.KindBank].ID, Amount: dec("10")}, book)
	require.NoError(t, err)
	require.True(t, lineFor(t, entry, kinds[accounts.KindBank].ID).Debit.Equal(dec("10")))
	require.True(t, lineFor(t, entry, cash).Credit.Equal(dec("10")))
}

func TestBuildSingleEntryBalancesAgainstSuspense(t *testing.T) {
	book, kinds := testBook(t)
	equity := kinds[accounts.KindOwnerEquity].ID
	entry, err := Build(SingleEntry{Meta: meta("SE-1"), AccountID: equity, Side: accounts.SideDebit, Amount: dec("3000")}, book)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	require.True(t, lineFor(t, entry, equity).Debit.Equal(dec("3000")))
	require.True(t, lineFor(t, entry, kinds[accounts.KindSuspense].ID).Credit.Equal(dec("3000")))

	entry, err = Build(SingleEntry{Meta: meta("SE-2"), AccountID: equity, Side: accounts.SideCredit, Amount: dec("3000")}, book)
	require.NoError(t, err)
	require.True(t, lineFor(t, entry, kinds[accounts.KindSuspense].ID).Debit.Equal(dec("3000")))

	_, err = Build(SingleEntry{Meta: meta("SE-3"), AccountID: kinds[accounts.KindSuspense].ID, Amount: dec("1")}, book)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBuildValidation(t *testing.T) {
	book, _ := testBook(t)
	cases := map[string]Event{
		"missing reference": Sale{Meta: Meta{Date: time.Now()}, SaleTerms: SaleTerms{Customer: EntityRef{ID: "c"}, Total: dec("1")}},
		"zero amount":       Expense{Meta: meta("E"), Amount: decimal.Zero},
		"negative deposit":  RentalBooking{Meta: meta("B"), Customer: EntityRef{ID: "c"}, Advance: dec("10"), Deposit: dec("-1")},
		"missing worker":    WorkerPayment{Meta: meta("W"), Amount: dec("1")},
		"unknown method":    SupplierPayment{Meta: meta("S"), Supplier: EntityRef{ID: "s"}, Amount: dec("1"), Payment: Payment{Method: "barter"}},
		"sub-unit total":    Sale{Meta: meta("INV-S"), SaleTerms: SaleTerms{Customer: EntityRef{ID: "c"}, Total: dec("0.00004")}},
		"sub-unit paid":     Sale{Meta: meta("INV-P"), SaleTerms: SaleTerms{Customer: EntityRef{ID: "c"}, Total: dec("10"), Paid: dec("1.00005")}},
		"fine transfer":     Transfer{Meta: meta("T"), FromAccountID: 1, ToAccountID: 2, Amount: dec("12.34567")},
	}
	for name, evt := range cases {
		_, err := Build(evt, book)
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}
}

func TestBuildMissingSystemAccountIsConfigurationError(t *testing.T) {
	book := accounts.NewBook(nil)
	_, err := Build(WorkerJobCompletion{Meta: meta("JOB-2"), Worker: EntityRef{ID: "w"}, Cost: dec("5")}, book)
	require.True(t, errors.Is(err, shared.ErrConfiguration))
}

func TestCheckBalanceEpsilon(t *testing.T) {
	lines := []JournalLine{
		{AccountID: 1, Debit: dec("10.004")},
		{AccountID: 2, Credit: dec("10")},
	}
	require.NoError(t, CheckBalance(lines))
	lines[0].Debit = dec("10.01")
	var bErr *shared.BalanceError
	require.ErrorAs(t, CheckBalance(lines), &bErr)
	require.True(t, bErr.Debit.Equal(dec("10.01")))
}

func TestCheckLinesSidedness(t *testing.T) {
	require.ErrorIs(t, CheckLines([]JournalLine{{AccountID: 1, Debit: dec("1")}}), shared.ErrTooFewLines)
	both := []JournalLine{
		{AccountID: 1, Debit: dec("1"), Credit: dec("1")},
		{AccountID: 2, Credit: dec("1")},
	}
	require.ErrorIs(t, CheckLines(both), shared.ErrValidation)
	neither := []JournalLine{
		{AccountID: 1},
		{AccountID: 2, Credit: dec("1")},
	}
	require.ErrorIs(t, CheckLines(neither), shared.ErrValidation)
	tiny := []JournalLine{
		{AccountID: 1, Debit: dec("0.00004")},
		{AccountID: 2, Credit: dec("0.00004")},
	}
	require.ErrorIs(t, CheckLines(tiny), shared.ErrValidation)
	fourPlaces := []JournalLine{
		{AccountID: 1, Debit: dec("0.0001")},
		{AccountID: 2, Credit: dec("0.0001")},
	}
	require.NoError(t, CheckLines(fourPlaces))
}
