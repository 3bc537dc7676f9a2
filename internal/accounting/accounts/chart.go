package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Repository persists chart of accounts rows for one company.
type Repository interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	GetAccountByID(ctx context.Context, id int64) (Account, error)
	ListAccountsByKind(ctx context.Context, kind SystemKind) ([]Account, error)
	InsertAccount(ctx context.Context, acc Account) (Account, error)
	UpdateAccount(ctx context.Context, acc Account) error
	DeleteAccount(ctx context.Context, id int64) error
	AccountReferenced(ctx context.Context, id int64) (bool, error)
}

// Chart is the chart of accounts registry.
type Chart struct {
	repo Repository
}

// NewChart constructs the registry.
func NewChart(repo Repository) *Chart {
	return &Chart{repo: repo}
}

// ListAccounts returns every account ordered by code.
func (c *Chart) ListAccounts(ctx context.Context) ([]Account, error) {
	list, err := c.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, nil
}

// GetAccount looks up an account by its code.
func (c *Chart) GetAccount(ctx context.Context, code string) (Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Account{}, shared.Invalid("code", "required")
	}
	return c.repo.GetAccountByCode(ctx, code)
}

// GetAccountByID looks up an account by id.
func (c *Chart) GetAccountByID(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, shared.Invalid("account_id", "required")
	}
	return c.repo.GetAccountByID(ctx, id)
}

// FindByNameOrCode resolves a code first, then a case-insensitive name.
func (c *Chart) FindByNameOrCode(ctx context.Context, query string) (Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Account{}, shared.Invalid("account", "required")
	}
	acc, err := c.repo.GetAccountByCode(ctx, query)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, shared.ErrAccountNotFound) {
		return Account{}, err
	}
	list, err := c.ListAccounts(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, candidate := range list {
		if strings.EqualFold(candidate.Name, query) {
			return candidate, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, query)
}

// ResolveSystem returns the single active account of kind without creating it.
func (c *Chart) ResolveSystem(ctx context.Context, kind SystemKind) (Account, error) {
	found, err := c.repo.ListAccountsByKind(ctx, kind)
	if err != nil {
		return Account{}, err
	}
	return pickKind(kind, found)
}

// Book snapshots the chart for entry building.
func (c *Chart) Book(ctx context.Context) (*Book, error) {
	list, err := c.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return NewBook(list), nil
}

// EnsureSystemAccount creates the well-known account for kind when missing.
// Calling it again returns the existing account.
func (c *Chart) EnsureSystemAccount(ctx context.Context, kind SystemKind) (Account, error) {
	def, ok := LookupKind(kind)
	if !ok {
		return Account{}, shared.Misconfigured(string(kind), "unknown system account")
	}
	found, err := c.repo.ListAccountsByKind(ctx, kind)
	if err != nil {
		return Account{}, err
	}
	if len(found) > 1 {
		return Account{}, shared.Misconfigured(string(kind), fmt.Sprintf("ambiguous, %d accounts claim it", len(found)))
	}
	if len(found) == 1 {
		return found[0], nil
	}
	existing, err := c.repo.GetAccountByCode(ctx, def.Code)
	switch {
	case err == nil:
		return c.claim(ctx, existing, def)
	case !errors.Is(err, shared.ErrAccountNotFound):
		return Account{}, err
	}
	inserted, err := c.repo.InsertAccount(ctx, Account{
		Code:     def.Code,
		Name:     def.Name,
		Type:     def.Type,
		Kind:     def.Kind,
		System:   true,
		IsActive: true,
	})
	if errors.Is(err, shared.ErrDuplicateCode) {
		// lost a race with a concurrent setup
		existing, err = c.repo.GetAccountByCode(ctx, def.Code)
		if err != nil {
			return Account{}, err
		}
		return c.claim(ctx, existing, def)
	}
	return inserted, err
}

// claim adopts an account that already uses the catalogue code.
func (c *Chart) claim(ctx context.Context, existing Account, def SystemAccount) (Account, error) {
	if existing.Kind == def.Kind {
		return existing, nil
	}
	if existing.Kind != "" || existing.Type != def.Type {
		return Account{}, shared.Misconfigured(string(def.Kind), fmt.Sprintf("code %s already used by %q", def.Code, existing.Name))
	}
	existing.Kind = def.Kind
	existing.System = true
	existing.IsActive = true
	if err := c.repo.UpdateAccount(ctx, existing); err != nil {
		return Account{}, err
	}
	return existing, nil
}

// EnsureDefaults runs EnsureSystemAccount for the whole catalogue.
func (c *Chart) EnsureDefaults(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(catalogue))
	for _, def := range catalogue {
		acc, err := c.EnsureSystemAccount(ctx, def.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

// EnsureSubAccount returns the child of the parentKind account labelled
// label, creating it with the next free code when needed.
func (c *Chart) EnsureSubAccount(ctx context.Context, parentKind SystemKind, label string) (Account, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Account{}, shared.Invalid("label", "required")
	}
	parent, err := c.ResolveSystem(ctx, parentKind)
	if err != nil {
		return Account{}, err
	}
	name := parent.Name + ": " + label
	list, err := c.repo.ListAccounts(ctx)
	if err != nil {
		return Account{}, err
	}
	children := 0
	for _, acc := range list {
		if acc.ParentID == nil || *acc.ParentID != parent.ID {
			continue
		}
		if labelled(acc, parent, label) {
			return acc, nil
		}
		children++
	}
	parentID := parent.ID
	for attempt := 1; attempt <= 5; attempt++ {
		inserted, err := c.repo.InsertAccount(ctx, Account{
			Code:     fmt.Sprintf("%s-%02d", parent.Code, children+attempt),
			Name:     name,
			Label:    label,
			Type:     parent.Type,
			ParentID: &parentID,
			IsActive: true,
		})
		if errors.Is(err, shared.ErrDuplicateCode) {
			continue
		}
		return inserted, err
	}
	return Account{}, shared.Misconfigured(string(parentKind), "no free sub-account code")
}

// CreateAccount adds a user-defined account.
func (c *Chart) CreateAccount(ctx context.Context, in NewAccountInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		return Account{}, shared.Invalid("code", "required")
	}
	if in.Name == "" {
		return Account{}, shared.Invalid("name", "required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.Invalid("type", fmt.Sprintf("unknown account type %q", in.Type))
	}
	if in.ParentID != nil {
		parent, err := c.repo.GetAccountByID(ctx, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != in.Type {
			return Account{}, shared.Invalid("parent_id", "parent has a different account type")
		}
	}
	return c.repo.InsertAccount(ctx, Account{
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		ParentID: in.ParentID,
		IsActive: true,
	})
}

// RenameAccount changes the display name; allowed for system accounts too.
func (c *Chart) RenameAccount(ctx context.Context, id int64, name string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, shared.Invalid("name", "required")
	}
	acc, err := c.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	acc.Name = name
	if err := c.repo.UpdateAccount(ctx, acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// DeactivateAccount hides an account from new postings.
func (c *Chart) DeactivateAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := c.GetAccountByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc.System {
		return Account{}, fmt.Errorf("%w: %s is a system account", shared.ErrAccountInUse, acc.Code)
	}
	acc.IsActive = false
	if err := c.repo.UpdateAccount(ctx, acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// DeleteAccount removes an account that no posted entry references.
func (c *Chart) DeleteAccount(ctx context.Context, id int64) error {
	acc, err := c.GetAccountByID(ctx, id)
	if err != nil {
		return err
	}
	if acc.System {
		return fmt.Errorf("%w: %s is a system account", shared.ErrAccountInUse, acc.Code)
	}
	referenced, err := c.repo.AccountReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: %s has posted entries, deactivate it instead", shared.ErrAccountInUse, acc.Code)
	}
	return c.repo.DeleteAccount(ctx, id)
}

// PaymentAccount resolves where money moves for a payment method. An
// explicit override account wins; mobile wallets fall back to Bank.
func (c *Chart) PaymentAccount(ctx context.Context, method PaymentMethod, override int64) (Account, error) {
	book, err := c.Book(ctx)
	if err != nil {
		return Account{}, err
	}
	return book.Payment(method, override)
}
