package accounts

import (
	"fmt"
	"strings"

	"github.com/textile-erp/ledger/internal/accounting/shared"
)

// Book is a read-only snapshot of the chart used while building entries.
type Book struct {
	byID   map[int64]Account
	byKind map[SystemKind][]Account
	all    []Account
}

// NewBook indexes list.
func NewBook(list []Account) *Book {
	b := &Book{
		byID:   make(map[int64]Account, len(list)),
		byKind: make(map[SystemKind][]Account),
		all:    append([]Account(nil), list...),
	}
	for _, acc := range list {
		b.byID[acc.ID] = acc
		if acc.Kind != "" {
			b.byKind[acc.Kind] = append(b.byKind[acc.Kind], acc)
		}
	}
	return b
}

// System returns the single active account for kind.
func (b *Book) System(kind SystemKind) (Account, error) {
	return pickKind(kind, b.byKind[kind])
}

// ByID returns the active account with id.
func (b *Book) ByID(id int64) (Account, error) {
	acc, ok := b.byID[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
	}
	if !acc.IsActive {
		return Account{}, fmt.Errorf("%w: %s is inactive", shared.ErrAccountNotFound, acc.Code)
	}
	return acc, nil
}

// Has reports whether the snapshot holds id, active or not.
func (b *Book) Has(id int64) bool {
	_, ok := b.byID[id]
	return ok
}

// Child returns the sub-account of the parentKind account named label.
func (b *Book) Child(parentKind SystemKind, label string) (Account, error) {
	parent, err := b.System(parentKind)
	if err != nil {
		return Account{}, err
	}
	label = strings.TrimSpace(label)
	for _, acc := range b.all {
		if acc.IsActive && labelled(acc, parent, label) {
			return acc, nil
		}
	}
	return Account{}, shared.Misconfigured(string(parentKind), fmt.Sprintf("sub-account %q missing", label))
}

// WithChild returns a copy of b holding a provisional child of the
// parentKind account for label. Events can be built against it before the
// child is stored.
func (b *Book) WithChild(parentKind SystemKind, label string) (*Book, error) {
	parent, err := b.System(parentKind)
	if err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	var maxID int64
	for _, acc := range b.all {
		if acc.ID > maxID {
			maxID = acc.ID
		}
	}
	parentID := parent.ID
	child := Account{
		ID:       maxID + 1,
		Code:     parent.Code + "-00",
		Name:     parent.Name + ": " + label,
		Label:    label,
		Type:     parent.Type,
		ParentID: &parentID,
		IsActive: true,
	}
	return NewBook(append(append([]Account(nil), b.all...), child)), nil
}

// labelled reports whether acc is the sub-account of parent opened for
// label. Rows stored without a label are matched on their name suffix.
func labelled(acc, parent Account, label string) bool {
	if acc.ParentID == nil || *acc.ParentID != parent.ID {
		return false
	}
	if acc.Label != "" {
		return strings.EqualFold(acc.Label, label)
	}
	return strings.HasSuffix(strings.ToLower(acc.Name), ": "+strings.ToLower(label))
}

// Payment resolves the account money moves through for method. A positive
// override selects an explicit asset account.
func (b *Book) Payment(method PaymentMethod, override int64) (Account, error) {
	if override > 0 {
		acc, err := b.ByID(override)
		if err != nil {
			return Account{}, shared.Invalid("payment_account_id", err.Error())
		}
		if acc.Type != AccountTypeAsset {
			return Account{}, shared.Invalid("payment_account_id", "must be an asset account")
		}
		return acc, nil
	}
	kind, ok := PaymentKind(method)
	if !ok {
		return Account{}, shared.Invalid("payment_method", fmt.Sprintf("unsupported payment method %q", method))
	}
	acc, err := b.System(kind)
	if err != nil && kind == KindMobileWallet {
		return b.System(KindBank)
	}
	return acc, err
}

func pickKind(kind SystemKind, found []Account) (Account, error) {
	switch len(found) {
	case 0:
		return Account{}, shared.Misconfigured(string(kind), "missing, run chart setup")
	case 1:
	default:
		return Account{}, shared.Misconfigured(string(kind), fmt.Sprintf("ambiguous, %d accounts claim it", len(found)))
	}
	if !found[0].IsActive {
		return Account{}, shared.Misconfigured(string(kind), "account is inactive")
	}
	return found[0], nil
}
