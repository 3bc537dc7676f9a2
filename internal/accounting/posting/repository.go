package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/accounts"
	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/shared"
	"github.com/textile-erp/ledger/internal/platform/db"
)

type repository struct {
	pool    *pgxpool.Pool
	company string
	accts   accounts.Repository
}

// NewRepository returns a Postgres Store scoped to company.
func NewRepository(pool *pgxpool.Pool, company string) Store {
	return &repository{pool: pool, company: company, accts: accounts.NewRepository(pool, company)}
}

// postTxOptions runs posts under READ COMMITTED. Every statement after
// LockScope then sees what earlier posts of the company committed, which a
// RepeatableRead snapshot taken by the lock statement itself would not.
var postTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

const postTxAttempts = 3

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.Retry(ctx, postTxAttempts, func() error {
		return db.WithTxOptions(ctx, r.pool, postTxOptions, func(tx pgx.Tx) error {
			return fn(ctx, &txRepository{tx: tx, company: r.company})
		})
	})
}

func (r *repository) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	return r.accts.ListAccounts(ctx)
}

func (r *repository) ListEntries(ctx context.Context, filter EntryFilter) ([]journals.JournalEntry, error) {
	entries, err := listEntries(ctx, r.pool, r.company)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *repository) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return getEntry(ctx, r.pool, r.company, id)
}

func (r *repository) ListBalances(ctx context.Context) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT account_id, debit::text, credit::text, balance::text
FROM account_balances WHERE company_id=$1 ORDER BY account_id`, r.company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		var debit, credit, balance string
		if err := rows.Scan(&b.AccountID, &debit, &credit, &balance); err != nil {
			return nil, err
		}
		if b.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if b.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		if b.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) ListSubLedger(ctx context.Context, filter SubLedgerFilter) ([]SubLedgerEntry, error) {
	query := `SELECT id, entity_type, entity_id, entity_name, date, sequence, je_id, account_id, reference_no,
description, module, direction, amount::text, applies_to
FROM subledger_entries WHERE company_id=$1`
	args := []any{r.company}
	if filter.Entity != nil {
		query += ` AND entity_type=$2 AND entity_id=$3`
		args = append(args, string(filter.Entity.Type), filter.Entity.ID)
	} else if filter.Type != "" {
		query += ` AND entity_type=$2`
		args = append(args, string(filter.Type))
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY sequence, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SubLedgerEntry
	for rows.Next() {
		var e SubLedgerEntry
		var typ, module, direction, amount string
		if err := rows.Scan(&e.ID, &typ, &e.Entity.ID, &e.Entity.Name, &e.Date, &e.Sequence, &e.JournalID, &e.AccountID,
			&e.ReferenceNo, &e.Description, &module, &direction, &amount, &e.AppliesTo); err != nil {
			return nil, err
		}
		e.Entity.Type = journals.EntityType(typ)
		e.Module = journals.Module(module)
		e.Direction = accounts.Side(direction)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx      pgx.Tx
	company string
}

func (r *txRepository) LockScope(ctx context.Context) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "ledger:"+r.company)
	return err
}

func (r *txRepository) AccountsByID(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	repo := accounts.NewRepository(r.tx, r.company)
	for _, id := range ids {
		acc, err := repo.GetAccountByID(ctx, id)
		if errors.Is(err, shared.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = acc
	}
	return out, nil
}

func (r *txRepository) SourceLinked(ctx context.Context, source uuid.UUID) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT je_id FROM source_links WHERE company_id=$1 AND ref_id=$2`, r.company, source).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *txRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (company_id, last_value) VALUES ($1, 1)
ON CONFLICT (company_id) DO UPDATE SET last_value = journal_sequences.last_value + 1
RETURNING last_value`, r.company).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry journals.JournalEntry) (int64, error) {
	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, sequence, number, date, reference_no, description,
module, event, source_id, attachments, posted_at, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		r.company, entry.Sequence, entry.Number, entry.Date, entry.ReferenceNo, entry.Description,
		string(entry.Module), string(entry.Event), entry.SourceID, attachments, entry.PostedAt, entry.ReversalOf).Scan(&id)
	if err != nil {
		return 0, err
	}
	for i, line := range entry.Lines {
		var entityType, entityID, entityName *string
		if line.Entity != nil {
			t := string(line.Entity.Type)
			entityType, entityID, entityName = &t, &line.Entity.ID, &line.Entity.Name
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (company_id, je_id, line_no, account_id, debit, credit,
entity_type, entity_id, entity_name, applies_to)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, r.company, id, i+1, line.AccountID, toNumeric(line.Debit), toNumeric(line.Credit),
			entityType, entityID, entityName, line.AppliesTo); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *txRepository) LinkSource(ctx context.Context, event journals.EventKind, source uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (company_id, event, ref_id, je_id) VALUES ($1,$2,$3,$4)`, r.company, string(event), source, entryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return shared.ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return getEntry(ctx, r.tx, r.company, id)
}

func (r *txRepository) FindReversal(ctx context.Context, id int64) (int64, bool, error) {
	var rev int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE company_id=$1 AND reversal_of=$2`, r.company, id).Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rev, true, nil
}

func (r *txRepository) ApplyBalance(ctx context.Context, delta Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_balances (company_id, account_id, debit, credit, balance, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (company_id, account_id) DO UPDATE SET
  debit = account_balances.debit + EXCLUDED.debit,
  credit = account_balances.credit + EXCLUDED.credit,
  balance = account_balances.balance + EXCLUDED.balance,
  updated_at = NOW()`, r.company, delta.AccountID, toNumeric(delta.Debit), toNumeric(delta.Credit), toNumeric(delta.Balance))
	return err
}

func (r *txRepository) AppendSubLedger(ctx context.Context, e SubLedgerEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO subledger_entries (company_id, entity_type, entity_id, entity_name, date, sequence,
je_id, account_id, reference_no, description, module, direction, amount, applies_to)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.company, string(e.Entity.Type), e.Entity.ID, e.Entity.Name, e.Date, e.Sequence, e.JournalID, e.AccountID,
		e.ReferenceNo, e.Description, string(e.Module), string(e.Direction), toNumeric(e.Amount), e.AppliesTo)
	return err
}

func (r *txRepository) ListEntries(ctx context.Context) ([]journals.JournalEntry, error) {
	return listEntries(ctx, r.tx, r.company)
}

func (r *txRepository) ReplaceBalances(ctx context.Context, balances []Balance) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM account_balances WHERE company_id=$1`, r.company); err != nil {
		return err
	}
	for _, b := range balances {
		if err := r.ApplyBalance(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = `id, sequence, number, date, reference_no, description, module, event, source_id, attachments, posted_at, reversal_of`

func listEntries(ctx context.Context, conn db.DBTX, company string) ([]journals.JournalEntry, error) {
	rows, err := conn.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 ORDER BY sequence`, company)
	if err != nil {
		return nil, err
	}
	var entries []journals.JournalEntry
	index := make(map[int64]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := conn.Query(ctx, `SELECT je_id, account_id, debit::text, credit::text, entity_type, entity_id, entity_name, applies_to
FROM journal_lines WHERE company_id=$1 ORDER BY je_id, line_no`, company)
	if err != nil {
		return nil, err
	}
	defer lines.Close()
	for lines.Next() {
		jeID, line, err := scanLine(lines)
		if err != nil {
			return nil, err
		}
		if i, ok := index[jeID]; ok {
			entries[i].Lines = append(entries[i].Lines, line)
		}
	}
	return entries, lines.Err()
}

func getEntry(ctx context.Context, conn db.DBTX, company string, id int64) (journals.JournalEntry, error) {
	entry, err := scanEntry(conn.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2`, company, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journals.JournalEntry{}, fmt.Errorf("%w: id %d", shared.ErrJournalNotFound, id)
		}
		return journals.JournalEntry{}, err
	}
	rows, err := conn.Query(ctx, `SELECT je_id, account_id, debit::text, credit::text, entity_type, entity_id, entity_name, applies_to
FROM journal_lines WHERE company_id=$1 AND je_id=$2 ORDER BY line_no`, company, id)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		_, line, err := scanLine(rows)
		if err != nil {
			return journals.JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func scanEntry(row pgx.Row) (journals.JournalEntry, error) {
	var e journals.JournalEntry
	var module, event string
	var attachments []byte
	if err := row.Scan(&e.ID, &e.Sequence, &e.Number, &e.Date, &e.ReferenceNo, &e.Description, &module, &event,
		&e.SourceID, &attachments, &e.PostedAt, &e.ReversalOf); err != nil {
		return journals.JournalEntry{}, err
	}
	e.Module = journals.Module(module)
	e.Event = journals.EventKind(event)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
			return journals.JournalEntry{}, err
		}
	}
	return e, nil
}

func scanLine(rows pgx.Rows) (int64, journals.JournalLine, error) {
	var jeID int64
	var line journals.JournalLine
	var debit, credit string
	var entityType, entityID, entityName *string
	if err := rows.Scan(&jeID, &line.AccountID, &debit, &credit, &entityType, &entityID, &entityName, &line.AppliesTo); err != nil {
		return 0, journals.JournalLine{}, err
	}
	var err error
	if line.Debit, err = decimal.NewFromString(debit); err != nil {
		return 0, journals.JournalLine{}, err
	}
	if line.Credit, err = decimal.NewFromString(credit); err != nil {
		return 0, journals.JournalLine{}, err
	}
	if entityType != nil && entityID != nil {
		line.Entity = &journals.EntityRef{Type: journals.EntityType(*entityType), ID: *entityID}
		if entityName != nil {
			line.Entity.Name = *entityName
		}
	}
	return jeID, line, nil
}

func toNumeric(v decimal.Decimal) any {
	return v.StringFixed(4)
}

