// Package memstore keeps a company's chart and ledger in process memory.
// Transactions work on a copy that replaces the committed state on success.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

type state struct {
	accounts      map[int64]accounts.Account
	nextAccountID int64
	entries       []journals.JournalEntry
	sources       map[uuid.UUID]int64
	reversals     map[int64]int64
	balances      map[int64]posting.Balance
	subledger     []posting.SubLedgerEntry
	sequence      int64
}

func newState() *state {
	return &state{
		accounts:  make(map[int64]accounts.Account),
		sources:   make(map[uuid.UUID]int64),
		reversals: make(map[int64]int64),
		balances:  make(map[int64]posting.Balance),
	}
}

func (s *state) clone() *state {
	out := &state{
		accounts:      make(map[int64]accounts.Account, len(s.accounts)),
		nextAccountID: s.nextAccountID,
		entries:       append([]journals.JournalEntry(nil), s.entries...),
		sources:       make(map[uuid.UUID]int64, len(s.sources)),
		reversals:     make(map[int64]int64, len(s.reversals)),
		balances:      make(map[int64]posting.Balance, len(s.balances)),
		subledger:     append([]posting.SubLedgerEntry(nil), s.subledger...),
		sequence:      s.sequence,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.sources {
		out.sources[k] = v
	}
	for k, v := range s.reversals {
		out.reversals[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	return out
}

var (
	_ accounts.Repository = (*Store)(nil)
	_ posting.Store       = (*Store)(nil)
)

// Store implements accounts.Repository and posting.Store for one company.
// Chart methods must not be called from inside WithTx.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithTx runs fn against a private copy and commits it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, posting.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// ListAccounts returns every account ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]accounts.Account, 0, len(s.st.accounts))
	for _, acc := range s.st.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) ListAccountsByKind(ctx context.Context, kind accounts.SystemKind) ([]accounts.Account, error) {
	all, _ := s.ListAccounts(ctx)
	var out []accounts.Account
	for _, acc := range all {
		if acc.Kind == kind {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.st.accounts {
		if strings.EqualFold(acc.Code, code) {
			return acc, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.st.accounts[id]
	if !ok {
		return accounts.Account{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return acc, nil
}

func (s *Store) InsertAccount(ctx context.Context, acc accounts.Account) (accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.accounts {
		if strings.EqualFold(existing.Code, acc.Code) {
			return accounts.Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, acc.Code)
		}
	}
	s.st.nextAccountID++
	acc.ID = s.st.nextAccountID
	acc.CreatedAt = s.now()
	acc.UpdatedAt = acc.CreatedAt
	s.st.accounts[acc.ID] = acc
	return acc, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acc accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.st.accounts[acc.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, acc.ID)
	}
	current.Name = acc.Name
	current.Kind = acc.Kind
	current.System = acc.System
	current.IsActive = acc.IsActive
	current.UpdatedAt = s.now()
	s.st.accounts[acc.ID] = current
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.accounts[id]; !ok {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	delete(s.st.accounts, id)
	return nil
}

func (s *Store) AccountReferenced(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.st.entries {
		for _, line := range entry.Lines {
			if line.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListEntries returns committed entries in sequence order.
func (s *Store) ListEntries(ctx context.Context, filter posting.EntryFilter) ([]journals.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []journals.JournalEntry
	for _, entry := range s.st.entries {
		if filter.Match(entry) {
			out = append(out, copyEntry(entry))
		}
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.entry(id)
}

func (s *Store) ListBalances(ctx context.Context) ([]posting.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]posting.Balance, 0, len(s.st.balances))
	for _, b := range s.st.balances {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (s *Store) ListSubLedger(ctx context.Context, filter posting.SubLedgerFilter) ([]posting.SubLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []posting.SubLedgerEntry
	for _, e := range s.st.subledger {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *state) entry(id int64) (journals.JournalEntry, error) {
	for _, entry := range s.entries {
		if entry.ID == id {
			return copyEntry(entry), nil
		}
	}
	return journals.JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
}

func copyEntry(e journals.JournalEntry) journals.JournalEntry {
	e.Lines = append([]journals.JournalLine(nil), e.Lines...)
	e.Attachments = append([]string(nil), e.Attachments...)
	return e
}

type tx struct {
	st *state
}

func (t *tx) LockScope(ctx context.Context) error { return nil }

func (t *tx) AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if acc, ok := t.st.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (t *tx) SourceLinked(ctx context.Context, source uuid.UUID) (int64, bool, error) {
	id, ok := t.st.sources[source]
	return id, ok, nil
}

func (t *tx) NextSequence(ctx context.Context) (int64, error) {
	t.st.sequence++
	return t.st.sequence, nil
}

func (t *tx) InsertEntry(ctx context.Context, entry journals.JournalEntry) (int64, error) {
	entry.ID = entry.Sequence
	t.st.entries = append(t.st.entries, copyEntry(entry))
	if entry.ReversalOf != nil {
		t.st.reversals[*entry.ReversalOf] = entry.ID
	}
	return entry.ID, nil
}

func (t *tx) LinkSource(ctx context.Context, event journals.EventKind, source uuid.UUID, entryID int64) error {
	if _, ok := t.st.sources[source]; ok {
		return shared.ErrSourceConflict
	}
	t.st.sources[source] = entryID
	return nil
}

func (t *tx) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return t.st.entry(id)
}

func (t *tx) FindReversal(ctx context.Context, id int64) (int64, bool, error) {
	rev, ok := t.st.reversals[id]
	return rev, ok, nil
}

func (t *tx) ApplyBalance(ctx context.Context, delta posting.Balance) error {
	b := t.st.balances[delta.AccountID]
	b.AccountID = delta.AccountID
	b.Debit = b.Debit.Add(delta.Debit)
	b.Credit = b.Credit.Add(delta.Credit)
	b.Balance = b.Balance.Add(delta.Balance)
	t.st.balances[delta.AccountID] = b
	return nil
}

func (t *tx) AppendSubLedger(ctx context.Context, entry posting.SubLedgerEntry) error {
	entry.ID = int64(len(t.st.subledger) + 1)
	t.st.subledger = append(t.st.subledger, entry)
	return nil
}

func (t *tx) ListEntries(ctx context.Context) ([]journals.JournalEntry, error) {
	out := make([]journals.JournalEntry, 0, len(t.st.entries))
	for _, entry := range t.st.entries {
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

func (t *tx) ReplaceBalances(ctx context.Context, balances []posting.Balance) error {
	t.st.balances = make(map[int64]posting.Balance, len(balances))
	for _, b := range balances {
		t.st.balances[b.AccountID] = b
	}
	return nil
}
