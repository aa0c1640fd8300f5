// Package coupon implements C5: coupon applicability, ordering, and the
// two-pass proportional discount distribution across invoice line items,
// grounded on discount.rs's distribute_discount and
// calculate_coupons_discount.
package coupon

import (
	"sort"
	"time"

	couponDomain "github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// DiscountableLine is the minimal view of an invoice line item the
// distribution algorithm needs: a stable index plus its current taxable
// subtotal in minor units.
type DiscountableLine struct {
	Index         int
	SubtotalCents int64
}

// DistributeDiscount spreads discountCents proportionally to each line's
// share of the total positive subtotal, then hands any remainder (caused
// by integer-division truncation) to the lines with the largest truncated
// fraction, largest first, one cent each (spec.md §4.5), grounded
// verbatim on discount.rs's distribute_discount two-pass algorithm.
//
// Returns the post-discount taxable amount per line, indexed the same way
// as the input slice (not by Index).
func DistributeDiscount(lines []DiscountableLine, discountCents int64) []int64 {
	result := make([]int64, len(lines))
	for i, l := range lines {
		result[i] = l.SubtotalCents
	}
	if len(lines) == 0 || discountCents <= 0 {
		return result
	}

	var totalExclVAT int64
	for _, l := range lines {
		if l.SubtotalCents > 0 {
			totalExclVAT += l.SubtotalCents
		}
	}
	if totalExclVAT == 0 {
		return result
	}

	remainingDiscount := discountCents
	remainders := make([]int64, len(lines))

	for i, l := range lines {
		if l.SubtotalCents <= 0 {
			continue
		}
		itemDiscount := (discountCents * l.SubtotalCents) / totalExclVAT
		remainders[i] = (discountCents * l.SubtotalCents) % totalExclVAT
		after := l.SubtotalCents - itemDiscount
		if after < 0 {
			after = 0
		}
		result[i] = after
		remainingDiscount -= itemDiscount
	}

	if remainingDiscount > 0 {
		order := make([]int, 0, len(lines))
		for i, l := range lines {
			if l.SubtotalCents > 0 {
				order = append(order, i)
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]] > remainders[order[b]]
		})
		for k := 0; k < len(order) && int64(k) < remainingDiscount; k++ {
			idx := order[k]
			if result[idx] > 0 {
				result[idx]--
			}
		}
	}

	return result
}

// AppliedLine is one coupon's computed discount for an invoice, in the
// order the coupons were applied (spec.md §4.5).
type AppliedLine struct {
	CouponID        string
	AppliedCouponID string
	Name            string
	Code            string
	DiscountCents   int64
}

// Result is the aggregate outcome of applying every eligible coupon to an
// invoice subtotal.
type Result struct {
	TotalDiscountCents int64
	Applied            []AppliedLine
}

// ApplyCoupons walks the customer's applied coupons in creation order,
// each reducing the running taxable subtotal before the next is
// evaluated, per calculate_coupons_discount (spec.md §4.5 invariant:
// "coupons apply in the order they were attached, against the
// already-discounted remainder").
func ApplyCoupons(subtotalCents int64, invoiceCurrency, planID string, at time.Time, coupons []*couponDomain.Detailed) Result {
	applicable := make([]*couponDomain.Detailed, 0, len(coupons))
	for _, c := range coupons {
		if c.Applied.Status != couponDomain.AppliedCouponActive {
			continue
		}
		if !c.Coupon.Applicable(planID, at) {
			continue
		}
		applicable = append(applicable, c)
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Applied.CreatedAt.Before(applicable[j].Applied.CreatedAt)
	})

	remaining := decimal.NewFromInt(subtotalCents)
	var out Result

	for _, ac := range applicable {
		if remaining.LessThanOrEqual(decimal.NewFromInt(1)) {
			break
		}
		var discount decimal.Decimal
		switch ac.Coupon.Discount.Type {
		case types.CouponDiscountPercentage:
			discount = remaining.Mul(ac.Coupon.Discount.Percent).Div(decimal.NewFromInt(100))
		case types.CouponDiscountFixed:
			if ac.Coupon.Discount.Currency != invoiceCurrency {
				continue
			}
			consumed := ac.Applied.AppliedAmount
			available := ac.Coupon.Discount.Amount.Sub(consumed)
			discountSubunits := available.Shift(types.GetCurrencyPrecision(ac.Coupon.Discount.Currency))
			discount = decimal.Min(discountSubunits, remaining)
		default:
			continue
		}
		if discount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		remaining = remaining.Sub(discount)
		cents := discount.Round(0).IntPart()
		out.TotalDiscountCents += cents
		out.Applied = append(out.Applied, AppliedLine{
			CouponID:        ac.Coupon.ID,
			AppliedCouponID: ac.Applied.ID,
			Name:            "Coupon (" + ac.Coupon.Code + ")",
			Code:            ac.Coupon.Code,
			DiscountCents:   cents,
		})
	}

	return out
}
