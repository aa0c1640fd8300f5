// Package period implements the anchor-based period arithmetic of
// spec.md §4.1 (C1). Every function here is a pure, stateless derivation
// from (billingStartDate, anchor, billingPeriod, periodIndex) so that the
// same period boundaries can be reproduced by any caller without storing
// per-period rows.
package period

import (
	"time"

	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Period is a half-open interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// daysInMonth returns the number of days in the month containing t.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AdvanceToAnchor moves d forward by n months and clamps the resulting day
// to min(anchor, days_in_month(result)), per spec.md §4.1.
func AdvanceToAnchor(d time.Time, n int, anchor int) time.Time {
	d = d.UTC()
	// Move to the first of the target month, then add the clamped day.
	firstOfTarget := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := anchor
	if max := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > max {
		day = max
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), time.UTC)
}

// anchorOfMonth returns the anchor day within the month containing t,
// clamped to that month's length.
func anchorOfMonth(t time.Time, anchor int) time.Time {
	day := anchor
	if max := daysInMonth(t.Year(), t.Month()); day > max {
		day = max
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

// At computes period(i) for the given billing start date, day-of-month
// anchor (1..28) and billing period, per spec.md §4.1:
//
//   period(0).start = billingStartDate
//   period(i+1).start = advance_to_anchor(period(i).start, BP.months)
//
// period(0).end is the next anchor if billingStartDate's day exceeds the
// anchor (truncated first period), otherwise the anchor of the same month.
func At(billingStartDate time.Time, anchor int, bp types.BillingPeriod, i int) Period {
	start := billingStartDate.UTC()
	months := bp.Months()

	for idx := 0; idx < i; idx++ {
		start = AdvanceToAnchor(start, months, anchor)
	}

	var end time.Time
	if i == 0 {
		if billingStartDate.Day() > anchor {
			end = AdvanceToAnchor(start, months, anchor)
		} else {
			end = anchorOfMonth(start, anchor)
			if !end.After(start) {
				end = AdvanceToAnchor(start, months, anchor)
			}
		}
	} else {
		end = AdvanceToAnchor(start, months, anchor)
	}

	return Period{Start: start, End: end}
}

// CurrentIndex returns the smallest i such that today < period(i).End, per
// spec.md §4.1 ("Implementations must reproduce this on every call").
func CurrentIndex(billingStartDate time.Time, anchor int, bp types.BillingPeriod, today time.Time) int {
	i := 0
	for {
		p := At(billingStartDate, anchor, bp, i)
		if today.Before(p.End) {
			return i
		}
		i++
		if i > 100000 {
			// Defensive bound: a billing start date far enough in the past
			// that this loop would otherwise run unbounded indicates a
			// data error upstream, not a legitimate period lookup.
			return i
		}
	}
}

// ProrationFactor returns the fraction of period p spanned by the
// subinterval [a, b), per spec.md §4.1, as a full-precision Decimal. The
// caller is responsible for the final half-even rounding to minor units at
// the money-conversion step.
func ProrationFactor(a, b time.Time, p Period) decimal.Decimal {
	total := p.End.Sub(p.Start)
	if total <= 0 {
		return decimal.Zero
	}
	sub := b.Sub(a)
	// 30 fractional digits comfortably exceeds the ≥26-digit intermediate
	// precision spec.md §4.2 requires before the final money rounding.
	return decimal.NewFromInt(int64(sub)).DivRound(decimal.NewFromInt(int64(total)), 30)
}
