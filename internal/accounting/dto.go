package accounting

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
)

const dateLayout = "2006-01-02"

// EventRequest is the body of POST /events/{kind}.
type EventRequest interface {
	Event() (journals.Event, error)
}

// NewEventRequest returns an empty request body for a URL event kind such as
// "sale" or "supplier-payment".
func NewEventRequest(kind string) (EventRequest, bool) {
	switch kind {
	case "sale":
		return &SaleRequest{}, true
	case "studio-sale":
		return &StudioSaleRequest{}, true
	case "sale-payment":
		return &SalePaymentRequest{}, true
	case "rental-booking":
		return &RentalBookingRequest{}, true
	case "rental-delivery":
		return &RentalDeliveryRequest{}, true
	case "rental-return":
		return &RentalReturnRequest{}, true
	case "worker-job":
		return &WorkerJobRequest{}, true
	case "worker-payment":
		return &WorkerPaymentRequest{}, true
	case "expense":
		return &ExpenseRequest{}, true
	case "purchase":
		return &PurchaseRequest{}, true
	case "supplier-payment":
		return &SupplierPaymentRequest{}, true
	case "transfer":
		return &TransferRequest{}, true
	case "single-entry":
		return &SingleEntryRequest{}, true
	}
	return nil, false
}

// MetaRequest carries the fields every event shares.
type MetaRequest struct {
	EventID     string   `json:"event_id" validate:"max=128"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	ReferenceNo string   `json:"reference_no" validate:"max=64"`
	Description string   `json:"description" validate:"max=500"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,required,max=500"`
}

func (m MetaRequest) meta() (journals.Meta, error) {
	date, err := time.Parse(dateLayout, m.Date)
	if err != nil {
		return journals.Meta{}, err
	}
	return journals.Meta{EventID: m.EventID, Date: date, ReferenceNo: m.ReferenceNo, Description: m.Description, Attachments: m.Attachments}, nil
}

// EntityRequest names a customer, supplier or worker.
type EntityRequest struct {
	ID   string `json:"id" validate:"required_without=Name,max=64"`
	Name string `json:"name" validate:"max=200"`
}

func (e EntityRequest) ref() journals.EntityRef {
	return journals.EntityRef{ID: e.ID, Name: e.Name}
}

// PaymentRequest selects the account money moves through.
type PaymentRequest struct {
	Method    string `json:"method" validate:"max=32"`
	AccountID int64  `json:"account_id" validate:"gte=0"`
}

func (p PaymentRequest) payment() journals.Payment {
	return journals.Payment{Method: accounts.PaymentMethod(p.Method), AccountID: p.AccountID}
}

type SaleRequest struct {
	MetaRequest
	Customer EntityRequest   `json:"customer"`
	Total    decimal.Decimal `json:"total"`
	Paid     decimal.Decimal `json:"paid"`
	Payment  PaymentRequest  `json:"payment"`
}

func (r *SaleRequest) terms() journals.SaleTerms {
	return journals.SaleTerms{Customer: r.Customer.ref(), Total: r.Total, Paid: r.Paid, Payment: r.Payment.payment()}
}

func (r *SaleRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.Sale{Meta: meta, SaleTerms: r.terms()}, nil
}

type StudioSaleRequest struct {
	SaleRequest
}

func (r *StudioSaleRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.StudioSale{Meta: meta, SaleTerms: r.terms()}, nil
}

type SalePaymentRequest struct {
	MetaRequest
	Customer   EntityRequest   `json:"customer"`
	Amount     decimal.Decimal `json:"amount"`
	InvoiceRef string          `json:"invoice_ref" validate:"max=64"`
	Payment    PaymentRequest  `json:"payment"`
}

func (r *SalePaymentRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.SalePayment{Meta: meta, Customer: r.Customer.ref(), Amount: r.Amount, InvoiceRef: r.InvoiceRef, Payment: r.Payment.payment()}, nil
}

type RentalBookingRequest struct {
	MetaRequest
	Customer EntityRequest   `json:"customer"`
	Advance  decimal.Decimal `json:"advance"`
	Deposit  decimal.Decimal `json:"deposit"`
	Payment  PaymentRequest  `json:"payment"`
}

func (r *RentalBookingRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.RentalBooking{Meta: meta, Customer: r.Customer.ref(), Advance: r.Advance, Deposit: r.Deposit, Payment: r.Payment.payment()}, nil
}

type RentalDeliveryRequest struct {
	MetaRequest
	Customer          EntityRequest   `json:"customer"`
	Amount            decimal.Decimal `json:"amount"`
	Payment           PaymentRequest  `json:"payment"`
	AgainstReceivable bool            `json:"against_receivable"`
}

func (r *RentalDeliveryRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.RentalDelivery{Meta: meta, Customer: r.Customer.ref(), Amount: r.Amount, Payment: r.Payment.payment(), AgainstReceivable: r.AgainstReceivable}, nil
}

type RentalReturnRequest struct {
	MetaRequest
	Customer EntityRequest   `json:"customer"`
	Deposit  decimal.Decimal `json:"deposit"`
	Damage   decimal.Decimal `json:"damage"`
	Payment  PaymentRequest  `json:"payment"`
}

func (r *RentalReturnRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.RentalReturn{Meta: meta, Customer: r.Customer.ref(), Deposit: r.Deposit, Damage: r.Damage, Payment: r.Payment.payment()}, nil
}

type WorkerJobRequest struct {
	MetaRequest
	Worker EntityRequest   `json:"worker"`
	Stage  string          `json:"stage" validate:"max=64"`
	Cost   decimal.Decimal `json:"cost"`
}

func (r *WorkerJobRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.WorkerJobCompletion{Meta: meta, Worker: r.Worker.ref(), Stage: r.Stage, Cost: r.Cost}, nil
}

type WorkerPaymentRequest struct {
	MetaRequest
	Worker    EntityRequest   `json:"worker"`
	Amount    decimal.Decimal `json:"amount"`
	AppliesTo string          `json:"applies_to" validate:"max=64"`
	Payment   PaymentRequest  `json:"payment"`
}

func (r *WorkerPaymentRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.WorkerPayment{Meta: meta, Worker: r.Worker.ref(), Amount: r.Amount, AppliesTo: r.AppliesTo, Payment: r.Payment.payment()}, nil
}

type ExpenseRequest struct {
	MetaRequest
	Category string          `json:"category" validate:"max=100"`
	Amount   decimal.Decimal `json:"amount"`
	Payment  PaymentRequest  `json:"payment"`
}

func (r *ExpenseRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.Expense{Meta: meta, Category: r.Category, Amount: r.Amount, Payment: r.Payment.payment()}, nil
}

type PurchaseRequest struct {
	MetaRequest
	Supplier EntityRequest   `json:"supplier"`
	Type     string          `json:"type" validate:"omitempty,oneof=inventory expense"`
	Total    decimal.Decimal `json:"total"`
	Paid     decimal.Decimal `json:"paid"`
	Payment  PaymentRequest  `json:"payment"`
}

func (r *PurchaseRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.Purchase{Meta: meta, Supplier: r.Supplier.ref(), Type: journals.PurchaseType(r.Type), Total: r.Total, Paid: r.Paid, Payment: r.Payment.payment()}, nil
}

type SupplierPaymentRequest struct {
	MetaRequest
	Supplier    EntityRequest   `json:"supplier"`
	Amount      decimal.Decimal `json:"amount"`
	PurchaseRef string          `json:"purchase_ref" validate:"max=64"`
	Payment     PaymentRequest  `json:"payment"`
}

func (r *SupplierPaymentRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.SupplierPayment{Meta: meta, Supplier: r.Supplier.ref(), Amount: r.Amount, PurchaseRef: r.PurchaseRef, Payment: r.Payment.payment()}, nil
}

type TransferRequest struct {
	MetaRequest
	FromAccountID int64           `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64           `json:"to_account_id" validate:"required,gt=0,nefield=FromAccountID"`
	Amount        decimal.Decimal `json:"amount"`
}

func (r *TransferRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	return journals.Transfer{Meta: meta, FromAccountID: r.FromAccountID, ToAccountID: r.ToAccountID, Amount: r.Amount}, nil
}

type SingleEntryRequest struct {
	MetaRequest
	AccountID  int64           `json:"account_id" validate:"required,gt=0"`
	Side       string          `json:"side" validate:"omitempty,oneof=DEBIT CREDIT"`
	Amount     decimal.Decimal `json:"amount"`
	EntityType string          `json:"entity_type" validate:"omitempty,oneof=customer supplier worker"`
	EntityID   string          `json:"entity_id" validate:"max=64"`
	EntityName string          `json:"entity_name" validate:"max=200"`
}

func (r *SingleEntryRequest) Event() (journals.Event, error) {
	meta, err := r.meta()
	if err != nil {
		return nil, err
	}
	evt := journals.SingleEntry{Meta: meta, AccountID: r.AccountID, Side: accounts.Side(r.Side), Amount: r.Amount}
	if r.EntityType != "" || r.EntityID != "" || r.EntityName != "" {
		evt.Entity = &journals.EntityRef{Type: journals.EntityType(r.EntityType), ID: r.EntityID, Name: r.EntityName}
	}
	return evt, nil
}

// ReverseRequest is the body of POST /entries/{id}/reverse.
type ReverseRequest struct {
	Memo string `json:"memo" validate:"max=500"`
}

// EntryView is the JSON form of a journal entry.
type EntryView struct {
	ID            int64      `json:"id"`
	Number        string     `json:"number"`
	Date          string     `json:"date"`
	ReferenceNo   string     `json:"reference_no"`
	Description   string     `json:"description"`
	Module        string     `json:"module"`
	Source        string     `json:"source"`
	Event         string     `json:"event"`
	SourceID      string     `json:"source_id"`
	Amount        string     `json:"amount"`
	DebitAccount  string     `json:"debit_account"`
	CreditAccount string     `json:"credit_account"`
	Lines         []LineView `json:"lines"`
	Attachments   []string   `json:"attachments,omitempty"`
	PostedAt      time.Time  `json:"posted_at"`
	ReversalOf    *int64     `json:"reversal_of,omitempty"`
}

// LineView is the JSON form of a journal line.
type LineView struct {
	AccountID   int64               `json:"account_id"`
	AccountCode string              `json:"account_code,omitempty"`
	AccountName string              `json:"account_name,omitempty"`
	Debit       string              `json:"debit"`
	Credit      string              `json:"credit"`
	Entity      *journals.EntityRef `json:"entity,omitempty"`
	AppliesTo   string              `json:"applies_to,omitempty"`
	Memo        string              `json:"memo,omitempty"`
}

// ResultView is the JSON form of a Result.
type ResultView struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Entry   *EntryView `json:"entry,omitempty"`
}

// AccountView is the JSON form of an account.
type AccountView struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Kind     string `json:"kind,omitempty"`
	System   bool   `json:"system"`
	ParentID *int64 `json:"parent_id,omitempty"`
	IsActive bool   `json:"is_active"`
}

// BalanceView is the JSON form of an account balance.
type BalanceView struct {
	Account AccountView `json:"account"`
	Debit   string      `json:"debit"`
	Credit  string      `json:"credit"`
	Balance string      `json:"balance"`
}

// accountIndex resolves line account ids for views.
type accountIndex map[int64]accounts.Account

func newAccountIndex(list []accounts.Account) accountIndex {
	idx := make(accountIndex, len(list))
	for _, acc := range list {
		idx[acc.ID] = acc
	}
	return idx
}

// side names the accounts on one side of e, joined in line order.
func (idx accountIndex) side(e journals.JournalEntry, debit bool) string {
	var names []string
	seen := make(map[int64]bool)
	for _, l := range e.Lines {
		if l.Debit.IsPositive() != debit || seen[l.AccountID] {
			continue
		}
		seen[l.AccountID] = true
		if acc, ok := idx[l.AccountID]; ok {
			names = append(names, acc.Name)
		} else {
			names = append(names, strconv.FormatInt(l.AccountID, 10))
		}
	}
	return strings.Join(names, ", ")
}

func toEntryView(e journals.JournalEntry, idx accountIndex) EntryView {
	lines := make([]LineView, 0, len(e.Lines))
	for _, l := range e.Lines {
		acc := idx[l.AccountID]
		lines = append(lines, LineView{
			AccountID:   l.AccountID,
			AccountCode: acc.Code,
			AccountName: acc.Name,
			Debit:       l.Debit.StringFixed(2),
			Credit:      l.Credit.StringFixed(2),
			Entity:      l.Entity,
			AppliesTo:   l.AppliesTo,
			Memo:        l.Memo,
		})
	}
	return EntryView{
		ID:            e.ID,
		Number:        e.Number,
		Date:          e.Date.Format(dateLayout),
		ReferenceNo:   e.ReferenceNo,
		Description:   e.Description,
		Module:        string(e.Module),
		Source:        string(e.Module),
		Event:         string(e.Event),
		SourceID:      e.SourceID.String(),
		Amount:        e.Amount().StringFixed(2),
		DebitAccount:  idx.side(e, true),
		CreditAccount: idx.side(e, false),
		Lines:         lines,
		Attachments:   e.Attachments,
		PostedAt:      e.PostedAt,
		ReversalOf:    e.ReversalOf,
	}
}

func toEntryViews(list []journals.JournalEntry, idx accountIndex) []EntryView {
	out := make([]EntryView, 0, len(list))
	for _, e := range list {
		out = append(out, toEntryView(e, idx))
	}
	return out
}

func toResultView(r Result, idx accountIndex) ResultView {
	view := ResultView{Success: r.Success, Message: r.Message}
	if r.Entry != nil {
		entry := toEntryView(*r.Entry, idx)
		view.Entry = &entry
	}
	return view
}

func toAccountView(a accounts.Account) AccountView {
	return AccountView{
		ID:       a.ID,
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		Kind:     string(a.Kind),
		System:   a.System,
		ParentID: a.ParentID,
		IsActive: a.IsActive,
	}
}

func toAccountViews(list []accounts.Account) []AccountView {
	out := make([]AccountView, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountView(a))
	}
	return out
}

func toBalanceView(acc accounts.Account, bal posting.Balance) BalanceView {
	return BalanceView{
		Account: toAccountView(acc),
		Debit:   bal.Debit.StringFixed(2),
		Credit:  bal.Credit.StringFixed(2),
		Balance: bal.Balance.StringFixed(2),
	}
}
