package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/accounting/shared"
)

func insert(t *testing.T, s *Store, ref string, source uuid.UUID) int64 {
	t.Helper()
	var id int64
	err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return err
		}
		id, err = tx.InsertEntry(ctx, journals.JournalEntry{
			Sequence:    seq,
			Date:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			ReferenceNo: ref,
			Event:       journals.KindSale,
			SourceID:    source,
			Lines: []journals.JournalLine{
				{AccountID: 1, Debit: decimal.NewFromInt(10)},
				{AccountID: 2, Credit: decimal.NewFromInt(10)},
			},
		})
		if err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, journals.KindSale, source, id); err != nil {
			return err
		}
		return tx.ApplyBalance(ctx, posting.Balance{AccountID: 1, Debit: decimal.NewFromInt(10), Balance: decimal.NewFromInt(10)})
	})
	require.NoError(t, err)
	return id
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := New()
	id := insert(t, s, "INV-1", uuid.New())
	require.Equal(t, int64(1), id)

	entry, err := s.GetEntry(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "INV-1", entry.ReferenceNo)

	balances, err := s.ListBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(10)))
}

func TestWithTxDiscardsFailedWork(t *testing.T) {
	s := New()
	source := uuid.New()
	insert(t, s, "INV-1", source)

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		seq, _ := tx.NextSequence(ctx)
		if _, err := tx.InsertEntry(ctx, journals.JournalEntry{Sequence: seq, ReferenceNo: "INV-2"}); err != nil {
			return err
		}
		if err := tx.ApplyBalance(ctx, posting.Balance{AccountID: 1, Debit: decimal.NewFromInt(99), Balance: decimal.NewFromInt(99)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		return tx.LinkSource(ctx, journals.KindSale, source, 7)
	})
	require.ErrorIs(t, err, shared.ErrSourceConflict)

	ctx, cancel := context.WithCancel(context.Background())
	err = s.WithTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		cancel()
		return tx.ReplaceBalances(ctx, nil)
	})
	require.ErrorIs(t, err, context.Canceled)

	entries, err := s.ListEntries(context.Background(), posting.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	balances, err := s.ListBalances(context.Background())
	require.NoError(t, err)
	require.True(t, balances[0].Balance.Equal(decimal.NewFromInt(10)))

	// The sequence consumed by the failed transaction is not burned.
	require.Equal(t, int64(2), insert(t, s, "INV-3", uuid.New()))
}

func TestEntriesAreCopied(t *testing.T) {
	s := New()
	id := insert(t, s, "INV-1", uuid.New())
	entry, err := s.GetEntry(context.Background(), id)
	require.NoError(t, err)
	entry.Lines[0].Debit = decimal.NewFromInt(1000)

	again, err := s.GetEntry(context.Background(), id)
	require.NoError(t, err)
	require.True(t, again.Lines[0].Debit.Equal(decimal.NewFromInt(10)))

	_, err = s.GetEntry(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestAccountsRepository(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc, err := s.InsertAccount(ctx, accounts.Account{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Kind: accounts.KindCash, IsActive: true})
	require.NoError(t, err)
	_, err = s.InsertAccount(ctx, accounts.Account{Code: "1000", Name: "Till"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	byKind, err := s.ListAccountsByKind(ctx, accounts.KindCash)
	require.NoError(t, err)
	require.Equal(t, []accounts.Account{acc}, byKind)

	referenced, err := s.AccountReferenced(ctx, acc.ID)
	require.NoError(t, err)
	require.False(t, referenced)
	insert(t, s, "INV-1", uuid.New())
	referenced, err = s.AccountReferenced(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, referenced)

	require.NoError(t, s.DeleteAccount(ctx, acc.ID))
	require.ErrorIs(t, s.DeleteAccount(ctx, acc.ID), shared.ErrAccountNotFound)
}
