package coupon

import (
	"testing"
	"time"

	couponDomain "github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDistributeDiscount_Simple(t *testing.T) {
	lines := []DiscountableLine{{Index: 0, SubtotalCents: 6000}, {Index: 1, SubtotalCents: 4000}}
	result := DistributeDiscount(lines, 1000)
	assert.Equal(t, int64(5400), result[0])
	assert.Equal(t, int64(3600), result[1])
}

func TestDistributeDiscount_Remainder(t *testing.T) {
	lines := []DiscountableLine{
		{Index: 0, SubtotalCents: 333},
		{Index: 1, SubtotalCents: 333},
		{Index: 2, SubtotalCents: 334},
	}
	var sumBefore int64
	for _, l := range lines {
		sumBefore += l.SubtotalCents
	}
	result := DistributeDiscount(lines, 100)

	var sumAfter int64
	for _, r := range result {
		sumAfter += r
	}
	assert.Equal(t, sumBefore, sumAfter+100)
	assert.Equal(t, int64(300), result[0])
	assert.Equal(t, int64(300), result[1])
	assert.Equal(t, int64(300), result[2])
}

func TestDistributeDiscount_EqualsSubtotal(t *testing.T) {
	lines := []DiscountableLine{{Index: 0, SubtotalCents: 1000}, {Index: 1, SubtotalCents: 2000}}
	result := DistributeDiscount(lines, 3000)
	assert.Equal(t, int64(0), result[0])
	assert.Equal(t, int64(0), result[1])
}

func TestDistributeDiscount_GreaterThanSubtotal(t *testing.T) {
	lines := []DiscountableLine{{Index: 0, SubtotalCents: 1000}, {Index: 1, SubtotalCents: 2000}}
	result := DistributeDiscount(lines, 4000)
	assert.Equal(t, int64(0), result[0])
	assert.Equal(t, int64(0), result[1])
}

func detailed(id string, discountType types.CouponDiscountType, percent, amount decimal.Decimal, currency string, createdAt time.Time) *couponDomain.Detailed {
	return &couponDomain.Detailed{
		Coupon: couponDomain.Coupon{
			ID:   id,
			Code: id,
			Discount: couponDomain.Discount{
				Type:     discountType,
				Percent:  percent,
				Amount:   amount,
				Currency: currency,
			},
		},
		Applied: couponDomain.AppliedCoupon{
			ID:        id + "-applied",
			CreatedAt: createdAt,
			Status:    couponDomain.AppliedCouponActive,
		},
	}
}

func TestApplyCoupons_OrderedSequentialPercentage(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := detailed("c1", types.CouponDiscountPercentage, decimal.NewFromInt(10), decimal.Zero, "", now)
	c2 := detailed("c2", types.CouponDiscountPercentage, decimal.NewFromInt(10), decimal.Zero, "", now.Add(time.Hour))

	result := ApplyCoupons(10000, "usd", "plan-1", now.Add(2*time.Hour), []*couponDomain.Detailed{c2, c1})

	// c1 applied first (earlier CreatedAt) despite input order: 10% of 10000 = 1000
	assert.Equal(t, "c1", result.Applied[0].CouponID)
	assert.Equal(t, int64(1000), result.Applied[0].DiscountCents)
	// c2 applies to the remaining 9000: 10% = 900
	assert.Equal(t, "c2", result.Applied[1].CouponID)
	assert.Equal(t, int64(900), result.Applied[1].DiscountCents)
	assert.Equal(t, int64(1900), result.TotalDiscountCents)
}

func TestApplyCoupons_FixedCapsAtRemaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := detailed("c1", types.CouponDiscountFixed, decimal.Zero, decimal.NewFromInt(500), "usd", now)

	result := ApplyCoupons(300, "usd", "plan-1", now.Add(time.Hour), []*couponDomain.Detailed{c1})

	assert.Equal(t, int64(300), result.TotalDiscountCents)
}
