package journals

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SourceFor returns the idempotency key of evt. A caller supplied EventID
// wins; otherwise the reference is combined with the fields that distinguish
// events sharing it, such as the stage and worker of a studio job.
// Amounts are not part of the key: a re-sent event with different figures
// collides with the original and is compared line by line.
func SourceFor(evt Event) uuid.UUID {
	meta := evt.Header()
	if id := strings.TrimSpace(meta.EventID); id != "" {
		return SourceKey(evt.Kind(), "id", id)
	}
	parts := []string{strings.TrimSpace(meta.ReferenceNo)}
	switch e := evt.(type) {
	case Sale:
		parts = append(parts, entityID(e.Customer))
	case StudioSale:
		parts = append(parts, entityID(e.Customer))
	case SalePayment:
		parts = append(parts, entityID(e.Customer), strings.TrimSpace(e.InvoiceRef))
	case RentalBooking:
		parts = append(parts, entityID(e.Customer))
	case RentalDelivery:
		parts = append(parts, entityID(e.Customer))
	case RentalReturn:
		parts = append(parts, entityID(e.Customer))
	case WorkerJobCompletion:
		parts = append(parts, entityID(e.Worker), fold(e.Stage))
	case WorkerPayment:
		parts = append(parts, entityID(e.Worker), strings.TrimSpace(e.AppliesTo))
	case Expense:
		parts = append(parts, fold(e.Category))
	case Purchase:
		parts = append(parts, entityID(e.Supplier))
	case SupplierPayment:
		parts = append(parts, entityID(e.Supplier), strings.TrimSpace(e.PurchaseRef))
	case Transfer:
		parts = append(parts, strconv.FormatInt(e.FromAccountID, 10), strconv.FormatInt(e.ToAccountID, 10))
	case SingleEntry:
		parts = append(parts, strconv.FormatInt(e.AccountID, 10), string(e.Side))
		if e.Entity != nil {
			parts = append(parts, string(e.Entity.Type)+":"+entityID(*e.Entity))
		}
	}
	return SourceKey(evt.Kind(), parts...)
}

func entityID(ref EntityRef) string {
	if id := strings.TrimSpace(ref.ID); id != "" {
		return id
	}
	return fold(ref.Name)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
