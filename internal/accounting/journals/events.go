package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
)

// EventKind tags an event variant.
type EventKind string

const (
	KindSale                EventKind = "SALE"
	KindStudioSale          EventKind = "STUDIO_SALE"
	KindSalePayment         EventKind = "SALE_PAYMENT"
	KindRentalBooking       EventKind = "RENTAL_BOOKING"
	KindRentalDelivery      EventKind = "RENTAL_DELIVERY"
	KindRentalReturn        EventKind = "RENTAL_RETURN"
	KindWorkerJobCompletion EventKind = "WORKER_JOB_COMPLETION"
	KindWorkerPayment       EventKind = "WORKER_PAYMENT"
	KindExpense             EventKind = "EXPENSE"
	KindPurchase            EventKind = "PURCHASE"
	KindSupplierPayment     EventKind = "SUPPLIER_PAYMENT"
	KindTransfer            EventKind = "TRANSFER"
	KindSingleEntry         EventKind = "SINGLE_ENTRY"
	KindReversal            EventKind = "REVERSAL"
)

// Event is one business fact the ledger can record. The set is closed.
type Event interface {
	Kind() EventKind
	Header() Meta
	sealed()
}

// Meta carries the fields every event shares. EventID, when set, is the
// caller's own identifier for the event and replaces the derived source key.
type Meta struct {
	EventID     string
	Date        time.Time
	ReferenceNo string
	Description string
	Attachments []string
}

// Header returns the shared fields.
func (m Meta) Header() Meta { return m }

// Payment selects the account money moves through.
type Payment struct {
	Method    accounts.PaymentMethod
	AccountID int64
}

// SaleTerms is shared by shop and studio sales.
type SaleTerms struct {
	Customer EntityRef
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Payment  Payment
}

// Sale is a shop sale, fully or partly paid.
type Sale struct {
	Meta
	SaleTerms
}

// StudioSale is a studio production sale.
type StudioSale struct {
	Meta
	SaleTerms
}

// SalePayment collects a receivable against an invoice.
type SalePayment struct {
	Meta
	Customer   EntityRef
	Amount     decimal.Decimal
	InvoiceRef string
	Payment    Payment
}

// RentalBooking takes the advance and a cash security deposit.
type RentalBooking struct {
	Meta
	Customer EntityRef
	Advance  decimal.Decimal
	Deposit  decimal.Decimal
	Payment  Payment
}

// RentalDelivery settles the remaining rent at hand-over.
type RentalDelivery struct {
	Meta
	Customer EntityRef
	Amount   decimal.Decimal
	Payment  Payment

	// AgainstReceivable bills the remainder instead of collecting it.
	AgainstReceivable bool
}

// RentalReturn releases the deposit, withholding any damage charge.
type RentalReturn struct {
	Meta
	Customer EntityRef
	Deposit  decimal.Decimal
	Damage   decimal.Decimal
	Payment  Payment
}

// WorkerJobCompletion recognises production cost owed to a worker.
type WorkerJobCompletion struct {
	Meta
	Worker EntityRef
	Stage  string
	Cost   decimal.Decimal
}

// WorkerPayment pays a worker.
type WorkerPayment struct {
	Meta
	Worker    EntityRef
	Amount    decimal.Decimal
	AppliesTo string
	Payment   Payment
}

// Expense is a direct expense paid out of a payment account.
type Expense struct {
	Meta
	Category string
	Amount   decimal.Decimal
	Payment  Payment
}

// PurchaseType selects where a purchase is debited.
type PurchaseType string

const (
	PurchaseInventory PurchaseType = "inventory"
	PurchaseExpense   PurchaseType = "expense"
)

// Purchase is a supplier purchase, fully or partly paid.
type Purchase struct {
	Meta
	Supplier EntityRef
	Type     PurchaseType
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Payment  Payment
}

// SupplierPayment settles a payable.
type SupplierPayment struct {
	Meta
	Supplier    EntityRef
	Amount      decimal.Decimal
	PurchaseRef string
	Payment     Payment
}

// Transfer moves an amount between two chosen accounts.
type Transfer struct {
	Meta
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
}

// SingleEntry posts one chosen account against Suspense.
type SingleEntry struct {
	Meta
	AccountID int64
	Side      accounts.Side
	Amount    decimal.Decimal
	Entity    *EntityRef
}

func (Sale) Kind() EventKind                { return KindSale }
func (StudioSale) Kind() EventKind          { return KindStudioSale }
func (SalePayment) Kind() EventKind         { return KindSalePayment }
func (RentalBooking) Kind() EventKind       { return KindRentalBooking }
func (RentalDelivery) Kind() EventKind      { return KindRentalDelivery }
func (RentalReturn) Kind() EventKind        { return KindRentalReturn }
func (WorkerJobCompletion) Kind() EventKind { return KindWorkerJobCompletion }
func (WorkerPayment) Kind() EventKind       { return KindWorkerPayment }
func (Expense) Kind() EventKind             { return KindExpense }
func (Purchase) Kind() EventKind            { return KindPurchase }
func (SupplierPayment) Kind() EventKind     { return KindSupplierPayment }
func (Transfer) Kind() EventKind            { return KindTransfer }
func (SingleEntry) Kind() EventKind         { return KindSingleEntry }

func (Sale) sealed()                {}
func (StudioSale) sealed()          {}
func (SalePayment) sealed()         {}
func (RentalBooking) sealed()       {}
func (RentalDelivery) sealed()      {}
func (RentalReturn) sealed()        {}
func (WorkerJobCompletion) sealed() {}
func (WorkerPayment) sealed()       {}
func (Expense) sealed()             {}
func (Purchase) sealed()            {}
func (SupplierPayment) sealed()     {}
func (Transfer) sealed()            {}
func (SingleEntry) sealed()         {}
