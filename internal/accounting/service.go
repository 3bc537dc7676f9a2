package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/reports"
	"github.com/textile-erp/ledger/internal/accounting/shared"
	"github.com/textile-erp/ledger/internal/accounting/subledger"
)

// Deps carries the collaborators of one company's Service.
type Deps struct {
	Company  string
	Accounts accounts.Repository
	Store    posting.Store
	Audit    posting.AuditPort
	Cache    *subledger.Cache
	Metrics  MetricsPort
	Logger   *slog.Logger
	FeedSize int
}

// Service records business events for a single company and answers ledger
// queries. Construct one per company session and Close it on logout.
type Service struct {
	company string
	chart   *accounts.Chart
	engine  *posting.Engine
	ledgers *subledger.Service
	feed    *Feed
	metrics MetricsPort
	logger  *slog.Logger
	printer *message.Printer
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// AccountBalance pairs an account with its cached balance.
type AccountBalance struct {
	Account accounts.Account `json:"account"`
	Balance posting.Balance  `json:"balance"`
}

// NewService wires a company's ledger.
func NewService(deps Deps) (*Service, error) {
	company := strings.TrimSpace(deps.Company)
	if company == "" {
		return nil, errors.New("accounting: company required")
	}
	if deps.Accounts == nil || deps.Store == nil {
		return nil, errors.New("accounting: account repository and ledger store required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("company", company))
	engine := posting.NewEngine(deps.Store, deps.Audit)
	return &Service{
		company: company,
		chart:   accounts.NewChart(deps.Accounts),
		engine:  engine,
		ledgers: subledger.NewService(engine, deps.Cache, logger),
		feed:    NewFeed(deps.FeedSize),
		metrics: deps.Metrics,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}, nil
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.engine.WithNow(now)
	}
}

// Company returns the scope this service writes to.
func (s *Service) Company() string { return s.company }

// Warm fills the recent entries feed from the stored log.
func (s *Service) Warm(ctx context.Context) error {
	entries, err := s.engine.Entries(ctx, posting.EntryFilter{})
	if err != nil {
		return err
	}
	s.feed.Seed(entries)
	return nil
}

// Close ends the session. Later calls fail with ErrServiceClosed.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feed.Reset()
}

func (s *Service) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// Setup creates every missing system account.
func (s *Service) Setup(ctx context.Context) ([]accounts.Account, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	list, err := s.chart.EnsureDefaults(ctx)
	if err != nil {
		s.logger.Error("chart setup failed", slog.Any("error", err))
		return nil, err
	}
	s.logger.Info("chart ready", slog.Int("accounts", len(list)))
	return list, nil
}

// Chart exposes account maintenance.
func (s *Service) Chart() *accounts.Chart { return s.chart }

func (s *Service) RecordSale(ctx context.Context, e journals.Sale) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordStudioSale(ctx context.Context, e journals.StudioSale) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordSalePayment(ctx context.Context, e journals.SalePayment) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordRentalBooking(ctx context.Context, e journals.RentalBooking) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordRentalDelivery(ctx context.Context, e journals.RentalDelivery) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordRentalReturn(ctx context.Context, e journals.RentalReturn) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordWorkerJobCompletion(ctx context.Context, e journals.WorkerJobCompletion) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordWorkerPayment(ctx context.Context, e journals.WorkerPayment) Result {
	return s.Record(ctx, e)
}

// RecordExpense creates the category sub-account on first use. The event is
// built against a provisional chart first, and a new sub-account is removed
// again when the post is not accepted.
func (s *Service) RecordExpense(ctx context.Context, e journals.Expense) Result {
	category := strings.TrimSpace(e.Category)
	if category == "" || !e.Amount.IsPositive() {
		return s.Record(ctx, e)
	}
	if err := s.ensureOpen(); err != nil {
		return s.fail(e.Kind(), err)
	}
	book, err := s.chart.Book(ctx)
	if err != nil {
		return s.fail(e.Kind(), err)
	}
	if _, err := book.Child(accounts.KindGeneralExpense, category); err == nil {
		return s.Record(ctx, e)
	}
	provisional, err := book.WithChild(accounts.KindGeneralExpense, category)
	if err != nil {
		return s.fail(e.Kind(), err)
	}
	if _, err := journals.Build(e, provisional); err != nil {
		return s.fail(e.Kind(), err)
	}
	child, err := s.chart.EnsureSubAccount(ctx, accounts.KindGeneralExpense, category)
	if err != nil {
		return s.fail(e.Kind(), err)
	}
	res := s.Record(ctx, e)
	if !res.Success && !book.Has(child.ID) {
		if err := s.chart.DeleteAccount(ctx, child.ID); err != nil && !errors.Is(err, shared.ErrAccountInUse) {
			s.logger.Warn("expense sub-account left behind", slog.String("code", child.Code), slog.Any("error", err))
		}
	}
	return res
}

func (s *Service) RecordPurchase(ctx context.Context, e journals.Purchase) Result {
	return s.Record(ctx, e)
}

func (s *Service) RecordSupplierPayment(ctx context.Context, e journals.SupplierPayment) Result {
	return s.Record(ctx, e)
}

// RecordTransfer generates a reference when none is given.
func (s *Service) RecordTransfer(ctx context.Context, e journals.Transfer) Result {
	if strings.TrimSpace(e.ReferenceNo) == "" {
		e.ReferenceNo = newReference("TRF")
	}
	return s.Record(ctx, e)
}

// RecordSingleEntry generates a reference when none is given.
func (s *Service) RecordSingleEntry(ctx context.Context, e journals.SingleEntry) Result {
	if strings.TrimSpace(e.ReferenceNo) == "" {
		e.ReferenceNo = newReference("JV")
	}
	return s.Record(ctx, e)
}

// Dispatch routes evt to its Record method.
func (s *Service) Dispatch(ctx context.Context, evt journals.Event) Result {
	switch e := evt.(type) {
	case journals.Sale:
		return s.RecordSale(ctx, e)
	case journals.StudioSale:
		return s.RecordStudioSale(ctx, e)
	case journals.SalePayment:
		return s.RecordSalePayment(ctx, e)
	case journals.RentalBooking:
		return s.RecordRentalBooking(ctx, e)
	case journals.RentalDelivery:
		return s.RecordRentalDelivery(ctx, e)
	case journals.RentalReturn:
		return s.RecordRentalReturn(ctx, e)
	case journals.WorkerJobCompletion:
		return s.RecordWorkerJobCompletion(ctx, e)
	case journals.WorkerPayment:
		return s.RecordWorkerPayment(ctx, e)
	case journals.Expense:
		return s.RecordExpense(ctx, e)
	case journals.Purchase:
		return s.RecordPurchase(ctx, e)
	case journals.SupplierPayment:
		return s.RecordSupplierPayment(ctx, e)
	case journals.Transfer:
		return s.RecordTransfer(ctx, e)
	case journals.SingleEntry:
		return s.RecordSingleEntry(ctx, e)
	}
	return s.Record(ctx, evt)
}

// Record builds and posts evt. Recording an event whose source is already
// in the ledger succeeds and returns the existing entry.
func (s *Service) Record(ctx context.Context, evt journals.Event) Result {
	if evt == nil {
		return s.fail("EVENT", shared.Invalid("event", "required"))
	}
	kind := evt.Kind()
	if err := s.ensureOpen(); err != nil {
		return s.fail(kind, err)
	}
	book, err := s.chart.Book(ctx)
	if err != nil {
		return s.fail(kind, err)
	}
	entry, err := journals.Build(evt, book)
	if err != nil {
		return s.fail(kind, err)
	}
	posted, err := s.engine.Post(ctx, entry)
	if errors.Is(err, shared.ErrSourceAlreadyLinked) {
		return s.duplicate(ctx, kind, entry)
	}
	if err != nil {
		return s.fail(kind, err)
	}
	return s.accepted(ctx, kind, posted)
}

// RecordReversal posts the mirror image of an entry.
func (s *Service) RecordReversal(ctx context.Context, entryID int64, memo string) Result {
	kind := journals.KindReversal
	if err := s.ensureOpen(); err != nil {
		return s.fail(kind, err)
	}
	posted, err := s.engine.Reverse(ctx, posting.ReverseInput{EntryID: entryID, Memo: memo})
	if err != nil {
		return s.fail(kind, err)
	}
	return s.accepted(ctx, kind, posted)
}

func (s *Service) accepted(ctx context.Context, kind journals.EventKind, posted journals.JournalEntry) Result {
	s.feed.Push(posted)
	s.ledgers.Invalidate(ctx)
	s.observe(kind, OutcomePosted)
	s.logger.Info("journal posted",
		slog.String("number", posted.Number),
		slog.String("event", string(kind)),
		slog.String("reference", posted.ReferenceNo),
		slog.String("amount", posted.Amount().StringFixed(2)),
	)
	return Result{
		Success: true,
		Message: s.printer.Sprintf("%s posted: %s (%.2f)", posted.Number, posted.Description, posted.Amount().InexactFloat64()),
		Entry:   &posted,
	}
}

func (s *Service) duplicate(ctx context.Context, kind journals.EventKind, candidate journals.JournalEntry) Result {
	existing, err := s.engine.Entries(ctx, posting.EntryFilter{SourceID: candidate.SourceID})
	if err != nil {
		return s.fail(kind, err)
	}
	if len(existing) == 0 {
		return s.fail(kind, fmt.Errorf("%w: %s", shared.ErrJournalNotFound, candidate.SourceID))
	}
	entry := existing[0]
	if !journals.SameLines(entry.Lines, candidate.Lines) {
		return s.fail(kind, fmt.Errorf("%w: %s %s is %s", shared.ErrSourceMismatch, label(kind), candidate.ReferenceNo, entry.Number))
	}
	s.observe(kind, OutcomeDuplicate)
	s.logger.Info("event already recorded", slog.String("event", string(kind)), slog.String("number", entry.Number))
	return Result{
		Success: true,
		Message: fmt.Sprintf("%s %s already recorded as %s", label(kind), candidate.ReferenceNo, entry.Number),
		Entry:   &entry,
	}
}

func (s *Service) fail(kind journals.EventKind, err error) Result {
	result := outcome(err)
	s.observe(kind, result)
	attrs := []any{slog.String("event", string(kind)), slog.Any("error", err)}
	if result == OutcomeFailed {
		s.logger.Error("journal post failed", attrs...)
	} else {
		s.logger.Warn("journal rejected", attrs...)
	}
	return Result{Success: false, Message: describe(kind, err)}
}

func (s *Service) observe(kind journals.EventKind, result string) {
	if s.metrics != nil {
		s.metrics.ObservePost(s.company, kind, result)
	}
}

func newReference(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// Entries returns the recent entries feed, newest first.
func (s *Service) Entries() []journals.JournalEntry {
	return s.feed.List()
}

// ListEntries searches the full entry log.
func (s *Service) ListEntries(ctx context.Context, filter posting.EntryFilter) ([]journals.JournalEntry, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.engine.Entries(ctx, filter)
}

// Entry loads one entry by id.
func (s *Service) Entry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	if err := s.ensureOpen(); err != nil {
		return journals.JournalEntry{}, err
	}
	return s.engine.Entry(ctx, id)
}

// EntriesByReference lists every entry carrying the business reference.
func (s *Service) EntriesByReference(ctx context.Context, referenceNo string) ([]journals.JournalEntry, error) {
	return s.ListEntries(ctx, posting.EntryFilter{ReferenceNo: strings.TrimSpace(referenceNo)})
}

// EntriesBySource lists every entry raised by a module.
func (s *Service) EntriesBySource(ctx context.Context, module journals.Module) ([]journals.JournalEntry, error) {
	return s.ListEntries(ctx, posting.EntryFilter{Module: module})
}

// EntryForEvent finds the first entry recorded for an event kind and
// reference. Events sharing a reference, like the stages of one studio
// order, are listed with ListEntries.
func (s *Service) EntryForEvent(ctx context.Context, kind journals.EventKind, referenceNo string) (journals.JournalEntry, error) {
	list, err := s.ListEntries(ctx, posting.EntryFilter{Event: kind, ReferenceNo: strings.TrimSpace(referenceNo)})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if len(list) == 0 {
		return journals.JournalEntry{}, fmt.Errorf("%w: %s %s", shared.ErrJournalNotFound, kind, referenceNo)
	}
	return list[0], nil
}

// EntriesByEntity lists entries with at least one line attributed to ref.
func (s *Service) EntriesByEntity(ctx context.Context, ref journals.EntityRef) ([]journals.JournalEntry, error) {
	if ref.ID == "" {
		ref.ID = strings.ToLower(strings.TrimSpace(ref.Name))
	}
	return s.ListEntries(ctx, posting.EntryFilter{Entity: &ref})
}

// GetAccountBalance resolves an account by code or name and returns its
// cached balance. Accounts without activity report zero.
func (s *Service) GetAccountBalance(ctx context.Context, nameOrCode string) (AccountBalance, error) {
	if err := s.ensureOpen(); err != nil {
		return AccountBalance{}, err
	}
	acc, err := s.chart.FindByNameOrCode(ctx, nameOrCode)
	if err != nil {
		return AccountBalance{}, err
	}
	bal, err := s.engine.Balance(ctx, acc.ID)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{Account: acc, Balance: bal}, nil
}

// Accounts lists the chart ordered by code.
func (s *Service) Accounts(ctx context.Context) ([]accounts.Account, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.chart.ListAccounts(ctx)
}

// EntityLedger returns the statement of a customer, supplier or worker.
func (s *Service) EntityLedger(ctx context.Context, ref journals.EntityRef, asOf time.Time) (subledger.EntityLedger, error) {
	if err := s.ensureOpen(); err != nil {
		return subledger.EntityLedger{}, err
	}
	return s.ledgers.GetEntityLedger(ctx, ref, asOf)
}

// EntitySummaries lists the statements of every entity of a type.
func (s *Service) EntitySummaries(ctx context.Context, entityType journals.EntityType, asOf time.Time) ([]subledger.Summary, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.ledgers.Summaries(ctx, entityType, asOf)
}

// TrialBalance renders the trial balance from cached balances.
func (s *Service) TrialBalance(ctx context.Context) (reports.TrialBalance, error) {
	rows, err := s.reportRows(ctx)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(rows), nil
}

// Reports renders the trial balance, profit and loss and balance sheet.
func (s *Service) Reports(ctx context.Context) (reports.Pack, error) {
	rows, err := s.reportRows(ctx)
	if err != nil {
		return reports.Pack{}, err
	}
	return reports.BuildPack(s.company, s.now(), rows), nil
}

func (s *Service) reportRows(ctx context.Context) ([]reports.AccountBalance, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	chart, err := s.chart.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := s.engine.Balances(ctx)
	if err != nil {
		return nil, err
	}
	return reports.FromLedger(chart, balances), nil
}

// Verify replays the entry log and lists accounts whose cache drifted.
func (s *Service) Verify(ctx context.Context) ([]posting.Drift, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.engine.Verify(ctx)
}

// Rebuild replaces cached balances with a replay of the entry log.
func (s *Service) Rebuild(ctx context.Context) ([]posting.Balance, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	balances, err := s.engine.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	s.ledgers.Invalidate(ctx)
	return balances, nil
}
