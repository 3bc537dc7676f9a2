package subledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgeDays counts whole calendar days between date and asOf.
func AgeDays(date, asOf time.Time) int {
	d := truncateDay(date)
	a := truncateDay(asOf)
	return int(a.Sub(d).Hours() / 24)
}

// Add places amount into the bucket for its age.
func (a *Aging) Add(days int, amount decimal.Decimal) {
	switch {
	case days <= 0:
		a.Current = a.Current.Add(amount)
	case days <= 30:
		a.Days30 = a.Days30.Add(amount)
	case days <= 60:
		a.Days60 = a.Days60.Add(amount)
	case days <= 90:
		a.Days90 = a.Days90.Add(amount)
	default:
		a.Over90 = a.Over90.Add(amount)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
