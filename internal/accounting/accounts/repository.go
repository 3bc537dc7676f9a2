package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/textile-erp/ledger/internal/accounting/shared"
	"github.com/textile-erp/ledger/internal/platform/db"
)

const accountColumns = `id, code, name, label, type, kind, is_system, parent_id, is_active, created_at, updated_at`

type repository struct {
	db      db.DBTX
	company string
}

// NewRepository returns a Postgres backed Repository scoped to company.
// conn may be a pool or an open transaction.
func NewRepository(conn db.DBTX, company string) Repository {
	return &repository{db: conn, company: company}
}

func (r *repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, r.company)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) ListAccountsByKind(ctx context.Context, kind SystemKind) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND kind=$2 ORDER BY code`, r.company, string(kind))
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, r.company, code)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
	}
	return acc, err
}

func (r *repository) GetAccountByID(ctx context.Context, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, r.company, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return acc, err
}

func (r *repository) InsertAccount(ctx context.Context, acc Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, label, type, kind, is_system, parent_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		r.company, acc.Code, acc.Name, acc.Label, string(acc.Type), string(acc.Kind), acc.System, acc.ParentID, acc.IsActive)
	if err := row.Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_company_code") {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, acc.Code)
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *repository) UpdateAccount(ctx context.Context, acc Account) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET name=$3, kind=$4, is_system=$5, is_active=$6, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, r.company, acc.ID, acc.Name, string(acc.Kind), acc.System, acc.IsActive)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, acc.ID)
	}
	return nil
}

func (r *repository) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE company_id=$1 AND id=$2`, r.company, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	return nil
}

func (r *repository) AccountReferenced(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE company_id=$1 AND account_id=$2)`, r.company, id).Scan(&exists)
	return exists, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var typ, kind string
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Label, &typ, &kind, &a.System, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.Type = AccountType(typ)
	a.Kind = SystemKind(kind)
	return a, nil
}
