package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/shared"
	internalShared "github.com/textile-erp/ledger/internal/shared"
)

// AuditPort records posting activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Engine applies journal entries to balances and sub-ledgers.
type Engine struct {
	store Store
	audit AuditPort
	now   func() time.Time
}

// NewEngine constructs the posting engine.
func NewEngine(store Store, audit AuditPort) *Engine {
	return &Engine{store: store, audit: audit, now: time.Now}
}

// WithNow overrides the clock.
func (s *Engine) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ReverseInput selects an entry to reverse.
type ReverseInput struct {
	EntryID int64
	Memo    string
	Date    *time.Time
	ActorID int64
}

// Drift is an account whose cached balance disagrees with a replay.
type Drift struct {
	AccountID int64
	Cached    Balance
	Replayed  Balance
}

// Post validates entry and applies it atomically. Nothing is written when any
// step fails.
func (s *Engine) Post(ctx context.Context, entry journals.JournalEntry) (journals.JournalEntry, error) {
	if err := checkCandidate(entry); err != nil {
		return journals.JournalEntry{}, err
	}
	var posted journals.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockScope(ctx); err != nil {
			return err
		}
		out, err := s.post(ctx, tx, entry)
		if err != nil {
			return err
		}
		posted = out
		return nil
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	s.record(ctx, 0, "journal.post", posted.ID, map[string]any{
		"number":    posted.Number,
		"event":     string(posted.Event),
		"reference": posted.ReferenceNo,
		"source_id": posted.SourceID.String(),
	})
	return posted, nil
}

func checkCandidate(entry journals.JournalEntry) error {
	if err := journals.CheckBalance(entry.Lines); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.SourceID == uuid.Nil {
		return shared.Invalid("source_id", "required")
	}
	if entry.Posted() {
		return shared.Invalid("sequence", "entry already posted")
	}
	return nil
}

func (s *Engine) post(ctx context.Context, tx Tx, entry journals.JournalEntry) (journals.JournalEntry, error) {
	if id, linked, err := tx.SourceLinked(ctx, entry.SourceID); err != nil {
		return journals.JournalEntry{}, err
	} else if linked {
		return journals.JournalEntry{}, fmt.Errorf("%w: entry %d", shared.ErrSourceAlreadyLinked, id)
	}
	accs, err := tx.AccountsByID(ctx, lineAccounts(entry.Lines))
	if err != nil {
		return journals.JournalEntry{}, err
	}
	for _, line := range entry.Lines {
		acc, ok := accs[line.AccountID]
		if !ok {
			return journals.JournalEntry{}, shared.Misconfigured(fmt.Sprintf("account %d", line.AccountID), "not in chart")
		}
		if !acc.IsActive {
			return journals.JournalEntry{}, shared.Misconfigured(acc.Code, "account is inactive")
		}
	}
	seq, err := tx.NextSequence(ctx)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	entry.Sequence = seq
	entry.Number = journals.FormatNumber(seq)
	entry.PostedAt = s.now()
	entry.Lines = append([]journals.JournalLine(nil), entry.Lines...)
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	entry.ID = id
	if err := tx.LinkSource(ctx, entry.Event, entry.SourceID, id); err != nil {
		if errors.Is(err, shared.ErrSourceConflict) {
			return journals.JournalEntry{}, shared.ErrSourceAlreadyLinked
		}
		return journals.JournalEntry{}, err
	}
	for _, line := range entry.Lines {
		acc := accs[line.AccountID]
		delta := Balance{
			AccountID: acc.ID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Balance:   signed(acc, line.Debit, line.Credit),
		}
		if err := tx.ApplyBalance(ctx, delta); err != nil {
			return journals.JournalEntry{}, err
		}
	}
	for _, line := range entry.Lines {
		if line.Entity == nil {
			continue
		}
		direction := accounts.SideDebit
		if line.Credit.IsPositive() {
			direction = accounts.SideCredit
		}
		if err := tx.AppendSubLedger(ctx, SubLedgerEntry{
			Entity:      *line.Entity,
			Date:        entry.Date,
			Sequence:    entry.Sequence,
			JournalID:   entry.ID,
			AccountID:   line.AccountID,
			ReferenceNo: entry.ReferenceNo,
			Description: entry.Description,
			Module:      entry.Module,
			Direction:   direction,
			Amount:      line.Amount(),
			AppliesTo:   line.AppliesTo,
		}); err != nil {
			return journals.JournalEntry{}, err
		}
	}
	return entry, nil
}

// Reverse posts a new entry with every line of entryID swapped.
func (s *Engine) Reverse(ctx context.Context, input ReverseInput) (journals.JournalEntry, error) {
	if input.EntryID <= 0 {
		return journals.JournalEntry{}, shared.Invalid("entry_id", "required")
	}
	var reversal journals.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockScope(ctx); err != nil {
			return err
		}
		original, err := tx.GetEntry(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.ReversalOf != nil {
			return shared.Invalid("entry_id", "entry is itself a reversal")
		}
		if id, found, err := tx.FindReversal(ctx, original.ID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: by entry %d", shared.ErrAlreadyReversed, id)
		}
		date := original.Date
		if input.Date != nil {
			date = *input.Date
		}
		originalID := original.ID
		candidate := journals.JournalEntry{
			Date:        date,
			ReferenceNo: original.ReferenceNo,
			Description: defaultReversalMemo(input.Memo, original.Number),
			Module:      original.Module,
			Event:       journals.KindReversal,
			SourceID:    journals.SourceKey(journals.KindReversal, original.Number),
			Lines:       reverseLines(original),
			ReversalOf:  &originalID,
		}
		if err := checkCandidate(candidate); err != nil {
			return err
		}
		out, err := s.post(ctx, tx, candidate)
		if err != nil {
			return err
		}
		reversal = out
		return nil
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// Replay recomputes every balance from the committed entry log.
func (s *Engine) Replay(ctx context.Context) ([]Balance, error) {
	list, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	accs := make(map[int64]accounts.Account, len(list))
	for _, acc := range list {
		accs[acc.ID] = acc
	}
	entries, err := s.store.ListEntries(ctx, EntryFilter{})
	if err != nil {
		return nil, err
	}
	return replay(entries, accs)
}

// Verify compares cached balances with a replay and returns every mismatch.
func (s *Engine) Verify(ctx context.Context) ([]Drift, error) {
	replayed, err := s.Replay(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := s.store.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[int64]Balance, len(replayed))
	for _, b := range replayed {
		want[b.AccountID] = b
	}
	got := make(map[int64]Balance, len(cached))
	for _, b := range cached {
		got[b.AccountID] = b
	}
	ids := make(map[int64]struct{})
	for id := range want {
		ids[id] = struct{}{}
	}
	for id := range got {
		ids[id] = struct{}{}
	}
	var drifts []Drift
	for id := range ids {
		w, g := orZero(want, id), orZero(got, id)
		if !w.Balance.Equal(g.Balance) || !w.Debit.Equal(g.Debit) || !w.Credit.Equal(g.Credit) {
			drifts = append(drifts, Drift{AccountID: id, Cached: g, Replayed: w})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AccountID < drifts[j].AccountID })
	return drifts, nil
}

// Rebuild overwrites cached balances with a replay of the entry log.
func (s *Engine) Rebuild(ctx context.Context) ([]Balance, error) {
	var out []Balance
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockScope(ctx); err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx)
		if err != nil {
			return err
		}
		accs, err := tx.AccountsByID(ctx, entryAccounts(entries))
		if err != nil {
			return err
		}
		balances, err := replay(entries, accs)
		if err != nil {
			return err
		}
		out = balances
		return tx.ReplaceBalances(ctx, balances)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, 0, "ledger.rebuild", 0, map[string]any{"accounts": len(out)})
	return out, nil
}

// Balance returns the cached balance of one account; untouched accounts are zero.
func (s *Engine) Balance(ctx context.Context, accountID int64) (Balance, error) {
	list, err := s.store.ListBalances(ctx)
	if err != nil {
		return Balance{}, err
	}
	for _, b := range list {
		if b.AccountID == accountID {
			return b, nil
		}
	}
	return Balance{AccountID: accountID}, nil
}

// Balances returns every cached balance ordered by account id.
func (s *Engine) Balances(ctx context.Context) ([]Balance, error) {
	list, err := s.store.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AccountID < list[j].AccountID })
	return list, nil
}

// Entries lists committed entries in sequence order.
func (s *Engine) Entries(ctx context.Context, filter EntryFilter) ([]journals.JournalEntry, error) {
	return s.store.ListEntries(ctx, filter)
}

// Entry returns one committed entry.
func (s *Engine) Entry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return s.store.GetEntry(ctx, id)
}

// SubLedger lists committed sub-ledger lines in posting order.
func (s *Engine) SubLedger(ctx context.Context, filter SubLedgerFilter) ([]SubLedgerEntry, error) {
	return s.store.ListSubLedger(ctx, filter)
}

func (s *Engine) record(ctx context.Context, actor int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func replay(entries []journals.JournalEntry, accs map[int64]accounts.Account) ([]Balance, error) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	totals := make(map[int64]Balance)
	for _, entry := range entries {
		for _, line := range entry.Lines {
			acc, ok := accs[line.AccountID]
			if !ok {
				return nil, shared.Misconfigured(fmt.Sprintf("account %d", line.AccountID), "referenced by "+entry.Number+" but not in chart")
			}
			b := totals[acc.ID]
			b.AccountID = acc.ID
			b.Debit = b.Debit.Add(line.Debit)
			b.Credit = b.Credit.Add(line.Credit)
			b.Balance = b.Balance.Add(signed(acc, line.Debit, line.Credit))
			totals[acc.ID] = b
		}
	}
	out := make([]Balance, 0, len(totals))
	for _, b := range totals {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// signed returns the balance movement of a line on acc.
func signed(acc accounts.Account, debit, credit decimal.Decimal) decimal.Decimal {
	if acc.NormalSide() == accounts.SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

func orZero(m map[int64]Balance, id int64) Balance {
	if b, ok := m[id]; ok {
		return b
	}
	return Balance{AccountID: id}
}

func lineAccounts(lines []journals.JournalLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		out = append(out, line.AccountID)
	}
	return out
}

func entryAccounts(entries []journals.JournalEntry) []int64 {
	var lines []journals.JournalLine
	for _, e := range entries {
		lines = append(lines, e.Lines...)
	}
	return lineAccounts(lines)
}

func reverseLines(entry journals.JournalEntry) []journals.JournalLine {
	out := make([]journals.JournalLine, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		rev := journals.JournalLine{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Entity:    line.Entity,
			AppliesTo: line.AppliesTo,
		}
		if rev.Entity != nil && rev.AppliesTo == "" {
			rev.AppliesTo = entry.ReferenceNo
		}
		out = append(out, rev)
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return "Reversal of " + number
}
