package journals

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Build translates one event into a balanced candidate entry. It has no side
// effects; every account comes from book.
func Build(evt Event, book *accounts.Book) (JournalEntry, error) {
	if evt == nil {
		return JournalEntry{}, shared.Invalid("event", "required")
	}
	if book == nil {
		return JournalEntry{}, shared.Misconfigured("chart", "no account book")
	}
	meta := evt.Header()
	if err := checkMeta(meta); err != nil {
		return JournalEntry{}, err
	}
	b := &builder{book: book}
	var (
		module Module
		desc   string
	)
	switch e := evt.(type) {
	case Sale:
		module, desc = ModuleSales, b.sale(e.SaleTerms, accounts.KindSalesIncome)
	case StudioSale:
		module, desc = ModuleStudio, b.sale(e.SaleTerms, accounts.KindStudioSalesIncome)
	case SalePayment:
		module, desc = ModulePayment, b.salePayment(e)
	case RentalBooking:
		module, desc = ModuleRental, b.rentalBooking(e)
	case RentalDelivery:
		module, desc = ModuleRental, b.rentalDelivery(e)
	case RentalReturn:
		module, desc = ModuleRental, b.rentalReturn(e)
	case WorkerJobCompletion:
		module, desc = ModuleStudio, b.workerJob(e)
	case WorkerPayment:
		module, desc = ModulePayment, b.workerPayment(e)
	case Expense:
		module, desc = ModuleExpense, b.expense(e)
	case Purchase:
		module, desc = ModulePurchase, b.purchase(e)
	case SupplierPayment:
		module, desc = ModulePayment, b.supplierPayment(e)
	case Transfer:
		module, desc = ModuleGeneral, b.transfer(e)
	case SingleEntry:
		module, desc = ModuleGeneral, b.singleEntry(e)
	default:
		return JournalEntry{}, shared.Invalid("event", fmt.Sprintf("unsupported event %T", evt))
	}
	if b.err != nil {
		return JournalEntry{}, b.err
	}
	if strings.TrimSpace(meta.Description) != "" {
		desc = strings.TrimSpace(meta.Description)
	}
	entry := JournalEntry{
		Date:        meta.Date,
		ReferenceNo: strings.TrimSpace(meta.ReferenceNo),
		Description: desc,
		Module:      module,
		Event:       evt.Kind(),
		SourceID:    SourceFor(evt),
		Lines:       b.lines,
		Attachments: append([]string(nil), meta.Attachments...),
	}
	if err := entry.Validate(); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func checkMeta(m Meta) error {
	if m.Date.IsZero() {
		return shared.Invalid("date", "required")
	}
	if strings.TrimSpace(m.ReferenceNo) == "" {
		return shared.Invalid("reference_no", "required")
	}
	return nil
}

// builder accumulates lines and keeps the first error.
type builder struct {
	book  *accounts.Book
	lines []JournalLine
	err   error
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) system(kind accounts.SystemKind) accounts.Account {
	acc, err := b.book.System(kind)
	if err != nil {
		b.fail(err)
	}
	return acc
}

func (b *builder) payment(p Payment) accounts.Account {
	acc, err := b.book.Payment(p.Method, p.AccountID)
	if err != nil {
		b.fail(err)
	}
	return acc
}

func (b *builder) chosen(field string, id int64) accounts.Account {
	if id <= 0 {
		b.fail(shared.Invalid(field, "required"))
		return accounts.Account{}
	}
	acc, err := b.book.ByID(id)
	if err != nil {
		b.fail(shared.Invalid(field, err.Error()))
	}
	return acc
}

func (b *builder) positive(field string, v decimal.Decimal) bool {
	if !v.IsPositive() {
		b.fail(shared.Invalid(field, "must be greater than zero"))
		return false
	}
	return b.exact(field, v)
}

func (b *builder) exact(field string, v decimal.Decimal) bool {
	if !Exact(v) {
		b.fail(shared.Invalid(field, fmt.Sprintf("must have at most %d decimal places", MaxScale)))
		return false
	}
	return true
}

func (b *builder) nonNegative(field string, v decimal.Decimal) bool {
	if v.IsNegative() {
		b.fail(shared.Invalid(field, "must not be negative"))
		return false
	}
	return b.exact(field, v)
}

func (b *builder) entity(field string, ref EntityRef, typ EntityType) *EntityRef {
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Name = strings.TrimSpace(ref.Name)
	if ref.ID == "" {
		ref.ID = strings.ToLower(ref.Name)
	}
	if ref.ID == "" {
		b.fail(shared.Invalid(field, "id or name required"))
		return nil
	}
	ref.Type = typ
	return &ref
}

func (b *builder) debit(acc accounts.Account, amount decimal.Decimal, ref *EntityRef, appliesTo string) {
	if b.err != nil || amount.IsZero() {
		return
	}
	b.lines = append(b.lines, JournalLine{AccountID: acc.ID, Debit: amount, Entity: ref, AppliesTo: appliesTo})
}

func (b *builder) credit(acc accounts.Account, amount decimal.Decimal, ref *EntityRef, appliesTo string) {
	if b.err != nil || amount.IsZero() {
		return
	}
	b.lines = append(b.lines, JournalLine{AccountID: acc.ID, Credit: amount, Entity: ref, AppliesTo: appliesTo})
}

// split validates paid against total and returns the unpaid remainder.
func (b *builder) split(total, paid decimal.Decimal) (decimal.Decimal, bool) {
	if !b.positive("total", total) || !b.nonNegative("paid", paid) {
		return decimal.Zero, false
	}
	if paid.GreaterThan(total) {
		b.fail(shared.Invalid("paid", "must not exceed total"))
		return decimal.Zero, false
	}
	return total.Sub(paid), true
}

func (b *builder) sale(t SaleTerms, income accounts.SystemKind) string {
	customer := b.entity("customer", t.Customer, EntityCustomer)
	unpaid, ok := b.split(t.Total, t.Paid)
	if !ok || customer == nil {
		return ""
	}
	if t.Paid.IsPositive() {
		b.debit(b.payment(t.Payment), t.Paid, nil, "")
	}
	if unpaid.IsPositive() {
		b.debit(b.system(accounts.KindReceivable), unpaid, customer, "")
	}
	b.credit(b.system(income), t.Total, nil, "")
	switch {
	case unpaid.IsZero():
		return fmt.Sprintf("Sale to %s - Full Payment", customer.label())
	case t.Paid.IsZero():
		return fmt.Sprintf("Sale to %s - Credit", customer.label())
	default:
		return fmt.Sprintf("Sale to %s - Partial Payment", customer.label())
	}
}

func (b *builder) salePayment(e SalePayment) string {
	customer := b.entity("customer", e.Customer, EntityCustomer)
	if !b.positive("amount", e.Amount) || customer == nil {
		return ""
	}
	b.debit(b.payment(e.Payment), e.Amount, nil, "")
	b.credit(b.system(accounts.KindReceivable), e.Amount, customer, strings.TrimSpace(e.InvoiceRef))
	return fmt.Sprintf("Payment received from %s", customer.label())
}

func (b *builder) rentalBooking(e RentalBooking) string {
	customer := b.entity("customer", e.Customer, EntityCustomer)
	if !b.nonNegative("advance", e.Advance) || !b.nonNegative("deposit", e.Deposit) || customer == nil {
		return ""
	}
	received := e.Advance.Add(e.Deposit)
	if !b.positive("advance", received) {
		return ""
	}
	b.debit(b.payment(e.Payment), received, nil, "")
	b.credit(b.system(accounts.KindCustomerAdvance), e.Advance, customer, "")
	b.credit(b.system(accounts.KindSecurityDeposit), e.Deposit, customer, "")
	return fmt.Sprintf("Rental booking advance - %s", customer.label())
}

func (b *builder) rentalDelivery(e RentalDelivery) string {
	customer := b.entity("customer", e.Customer, EntityCustomer)
	if !b.positive("amount", e.Amount) || customer == nil {
		return ""
	}
	b.debit(b.payment(e.Payment), e.Amount, nil, "")
	if e.AgainstReceivable {
		b.credit(b.system(accounts.KindReceivable), e.Amount, customer, "")
	} else {
		b.credit(b.system(accounts.KindRentalIncome), e.Amount, nil, "")
	}
	return fmt.Sprintf("Rental remaining payment - %s", customer.label())
}

func (b *builder) rentalReturn(e RentalReturn) string {
	customer := b.entity("customer", e.Customer, EntityCustomer)
	if !b.nonNegative("deposit", e.Deposit) || !b.nonNegative("damage", e.Damage) || customer == nil {
		return ""
	}
	if !b.positive("deposit", e.Deposit.Add(e.Damage)) {
		return ""
	}
	var pay accounts.Account
	if !e.Deposit.Equal(e.Damage) {
		pay = b.payment(e.Payment)
	}
	b.debit(b.system(accounts.KindSecurityDeposit), e.Deposit, customer, "")
	if e.Damage.GreaterThan(e.Deposit) {
		b.debit(pay, e.Damage.Sub(e.Deposit), nil, "")
	} else {
		b.credit(pay, e.Deposit.Sub(e.Damage), nil, "")
	}
	b.credit(b.system(accounts.KindRentalDamageIncome), e.Damage, nil, "")
	if e.Damage.IsPositive() {
		return fmt.Sprintf("Security deposit returned less damage - %s", customer.label())
	}
	return fmt.Sprintf("Security deposit returned - %s", customer.label())
}

func (b *builder) workerJob(e WorkerJobCompletion) string {
	worker := b.entity("worker", e.Worker, EntityWorker)
	if !b.positive("cost", e.Cost) || worker == nil {
		return ""
	}
	b.debit(b.system(accounts.KindCostOfProduction), e.Cost, nil, "")
	b.credit(b.system(accounts.KindWorkerPayable), e.Cost, worker, "")
	if stage := strings.TrimSpace(e.Stage); stage != "" {
		return fmt.Sprintf("%s job completed - %s", stage, worker.label())
	}
	return fmt.Sprintf("Job completed - %s", worker.label())
}

func (b *builder) workerPayment(e WorkerPayment) string {
	worker := b.entity("worker", e.Worker, EntityWorker)
	if !b.positive("amount", e.Amount) || worker == nil {
		return ""
	}
	b.debit(b.system(accounts.KindWorkerPayable), e.Amount, worker, strings.TrimSpace(e.AppliesTo))
	b.credit(b.payment(e.Payment), e.Amount, nil, "")
	return fmt.Sprintf("Payment to worker %s", worker.label())
}

func (b *builder) expense(e Expense) string {
	if !b.positive("amount", e.Amount) {
		return ""
	}
	category := strings.TrimSpace(e.Category)
	target := accounts.Account{}
	if category == "" {
		target = b.system(accounts.KindGeneralExpense)
		category = "General"
	} else {
		acc, err := b.book.Child(accounts.KindGeneralExpense, category)
		if err != nil {
			b.fail(err)
		}
		target = acc
	}
	b.debit(target, e.Amount, nil, "")
	b.credit(b.payment(e.Payment), e.Amount, nil, "")
	return category + " expense"
}

func (b *builder) purchase(e Purchase) string {
	supplier := b.entity("supplier", e.Supplier, EntitySupplier)
	unpaid, ok := b.split(e.Total, e.Paid)
	if !ok || supplier == nil {
		return ""
	}
	var target accounts.Account
	switch e.Type {
	case PurchaseInventory, "":
		target = b.system(accounts.KindInventory)
	case PurchaseExpense:
		target = b.system(accounts.KindPurchaseExpense)
	default:
		b.fail(shared.Invalid("purchase_type", fmt.Sprintf("unknown purchase type %q", e.Type)))
		return ""
	}
	b.debit(target, e.Total, nil, "")
	if e.Paid.IsPositive() {
		b.credit(b.payment(e.Payment), e.Paid, nil, "")
	}
	b.credit(b.system(accounts.KindPayable), unpaid, supplier, "")
	switch {
	case unpaid.IsZero():
		return fmt.Sprintf("Purchase from %s - Full Payment", supplier.label())
	case e.Paid.IsZero():
		return fmt.Sprintf("Purchase from %s - Credit", supplier.label())
	default:
		return fmt.Sprintf("Purchase from %s - Partial Payment", supplier.label())
	}
}

func (b *builder) supplierPayment(e SupplierPayment) string {
	supplier := b.entity("supplier", e.Supplier, EntitySupplier)
	if !b.positive("amount", e.Amount) || supplier == nil {
		return ""
	}
	b.debit(b.system(accounts.KindPayable), e.Amount, supplier, strings.TrimSpace(e.PurchaseRef))
	b.credit(b.payment(e.Payment), e.Amount, nil, "")
	return fmt.Sprintf("Payment to supplier %s", supplier.label())
}

func (b *builder) transfer(e Transfer) string {
	if !b.positive("amount", e.Amount) {
		return ""
	}
	if e.FromAccountID > 0 && e.FromAccountID == e.ToAccountID {
		b.fail(shared.Invalid("to_account_id", "must differ from from_account_id"))
		return ""
	}
	from := b.chosen("from_account_id", e.FromAccountID)
	to := b.chosen("to_account_id", e.ToAccountID)
	b.debit(to, e.Amount, nil, "")
	b.credit(from, e.Amount, nil, "")
	return fmt.Sprintf("Transfer from %s to %s", from.Name, to.Name)
}

func (b *builder) singleEntry(e SingleEntry) string {
	if !b.positive("amount", e.Amount) {
		return ""
	}
	acc := b.chosen("account_id", e.AccountID)
	suspense := b.system(accounts.KindSuspense)
	if b.err != nil {
		return ""
	}
	if acc.ID == suspense.ID {
		b.fail(shared.Invalid("account_id", "cannot post the suspense account against itself"))
		return ""
	}
	var ref *EntityRef
	if e.Entity != nil {
		ref = b.entity("entity", *e.Entity, e.Entity.Type)
		if ref != nil && !ref.Type.Valid() {
			b.fail(shared.Invalid("entity", fmt.Sprintf("unknown entity type %q", ref.Type)))
			return ""
		}
	}
	switch e.Side {
	case accounts.SideDebit, "":
		b.debit(acc, e.Amount, ref, "")
		b.credit(suspense, e.Amount, nil, "")
	case accounts.SideCredit:
		b.debit(suspense, e.Amount, nil, "")
		b.credit(acc, e.Amount, ref, "")
	default:
		b.fail(shared.Invalid("side", fmt.Sprintf("unknown side %q", e.Side)))
		return ""
	}
	return fmt.Sprintf("Single entry %s against suspense", acc.Name)
}

func (r *EntityRef) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
