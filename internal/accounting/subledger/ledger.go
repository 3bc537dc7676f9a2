package subledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/textile-erp/ledger/internal/accounting/journals"
	"github.com/textile-erp/ledger/internal/accounting/posting"
)

// Compute builds the statement of ref from its sub-ledger lines. Lines dated
// after asOf are ignored. Settlements are allocated per control account:
// a settlement pays the charges named by AppliesTo first, then the oldest
// charges still open.
func Compute(ref journals.EntityRef, lines []posting.SubLedgerEntry, asOf time.Time) EntityLedger {
	out := EntityLedger{Entity: ref, AsOf: asOf, Rows: []Row{}}
	cutoff := truncateDay(asOf)
	visible := make([]posting.SubLedgerEntry, 0, len(lines))
	for _, line := range lines {
		if line.Entity.Key() != ref.Key() || truncateDay(line.Date).After(cutoff) {
			continue
		}
		visible = append(visible, line)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if !visible[i].Date.Equal(visible[j].Date) {
			return visible[i].Date.Before(visible[j].Date)
		}
		if visible[i].Sequence != visible[j].Sequence {
			return visible[i].Sequence < visible[j].Sequence
		}
		return visible[i].ID < visible[j].ID
	})

	charge := ChargeSide(ref.Type)
	running := decimal.Zero
	for _, line := range visible {
		row := Row{
			Date:        line.Date,
			Sequence:    line.Sequence,
			JournalID:   line.JournalID,
			AccountID:   line.AccountID,
			ReferenceNo: line.ReferenceNo,
			Description: line.Description,
			Module:      line.Module,
			Direction:   line.Direction,
			Amount:      line.Amount,
			AppliesTo:   line.AppliesTo,
			Charge:      line.Direction == charge,
			Status:      StatusPaid,
		}
		if row.Charge {
			running = running.Add(line.Amount)
			row.Outstanding = line.Amount
		} else {
			running = running.Sub(line.Amount)
		}
		row.Balance = running
		if ref.Name == "" && line.Entity.Name != "" {
			out.Entity.Name = line.Entity.Name
		}
		out.Rows = append(out.Rows, row)
	}
	allocate(out.Rows)

	for i := range out.Rows {
		row := &out.Rows[i]
		if !row.Charge {
			continue
		}
		if row.Outstanding.IsPositive() {
			row.Status = StatusPending
			out.Outstanding = out.Outstanding.Add(row.Outstanding)
			out.Aging.Add(AgeDays(row.Date, asOf), row.Outstanding)
		}
	}
	out.Balance = running
	return out
}

func allocate(rows []Row) {
	byAccount := make(map[int64][]int)
	for i, row := range rows {
		if row.Charge {
			byAccount[row.AccountID] = append(byAccount[row.AccountID], i)
		}
	}
	for _, row := range rows {
		if row.Charge {
			continue
		}
		charges := byAccount[row.AccountID]
		remaining := row.Amount
		if row.AppliesTo != "" {
			remaining = settle(rows, charges, remaining, func(c Row) bool { return c.ReferenceNo == row.AppliesTo })
		}
		settle(rows, charges, remaining, func(Row) bool { return true })
	}
}

func settle(rows []Row, charges []int, remaining decimal.Decimal, match func(Row) bool) decimal.Decimal {
	for _, idx := range charges {
		if !remaining.IsPositive() {
			break
		}
		c := &rows[idx]
		if !c.Outstanding.IsPositive() || !match(*c) {
			continue
		}
		paid := decimal.Min(remaining, c.Outstanding)
		c.Outstanding = c.Outstanding.Sub(paid)
		remaining = remaining.Sub(paid)
	}
	return remaining
}

// Summarise groups lines by entity and reduces each statement to a Summary.
func Summarise(lines []posting.SubLedgerEntry, asOf time.Time) []Summary {
	grouped := make(map[string][]posting.SubLedgerEntry)
	refs := make(map[string]journals.EntityRef)
	for _, line := range lines {
		key := line.Entity.Key()
		grouped[key] = append(grouped[key], line)
		if _, ok := refs[key]; !ok {
			refs[key] = journals.EntityRef{Type: line.Entity.Type, ID: line.Entity.ID}
		}
	}
	out := make([]Summary, 0, len(grouped))
	for key, group := range grouped {
		ledger := Compute(refs[key], group, asOf)
		if len(ledger.Rows) == 0 {
			continue
		}
		out = append(out, Summary{
			Entity:       ledger.Entity,
			Balance:      ledger.Balance,
			Outstanding:  ledger.Outstanding,
			Aging:        ledger.Aging,
			LastActivity: ledger.Rows[len(ledger.Rows)-1].Date,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity.Type != out[j].Entity.Type {
			return out[i].Entity.Type < out[j].Entity.Type
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	return out
}
