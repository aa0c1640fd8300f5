// Package coupon models coupons and their per-subscription application
// state (spec.md §3, §4.5).
package coupon

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Discount is exactly one of Percentage or Fixed (spec.md §4.5).
type Discount struct {
	Type     types.CouponDiscountType
	Percent  decimal.Decimal // 0..100, set when Type == Percentage
	Amount   decimal.Decimal // set when Type == Fixed
	Currency string          // set when Type == Fixed
}

// Coupon is the reusable discount definition (spec.md §4.5).
type Coupon struct {
	ID              string
	Code            string
	Discount        Discount
	RecurringValue  *int // number of billing cycles the coupon applies to; nil = forever
	RedemptionLimit *int
	RedemptionCount int
	Reusable        bool
	PlanIDs         []string // restriction list; empty = unrestricted
	ExpiresAt       *time.Time
	Disabled        bool
	ArchivedAt      *time.Time

	types.BaseModel
}

// Applicable reports whether the coupon may be applied to an invoice for
// the given plan at instant t, per spec.md §4.5 ("Not disabled, not
// archived, not past expires_at, plan restriction matches").
func (c *Coupon) Applicable(planID string, t time.Time) bool {
	if c.Disabled || c.ArchivedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && t.After(*c.ExpiresAt) {
		return false
	}
	if len(c.PlanIDs) > 0 {
		found := false
		for _, id := range c.PlanIDs {
			if id == planID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.RedemptionLimit != nil && c.RedemptionCount >= *c.RedemptionLimit {
		return false
	}
	return true
}

// IsOneShot reports whether the coupon is consumed after a single
// application (spec.md §4.5: "recurring_value=1 is a one-shot coupon").
func (c *Coupon) IsOneShot() bool {
	return c.RecurringValue != nil && *c.RecurringValue == 1
}

// AppliedCouponStatus mirrors spec.md §3.
type AppliedCouponStatus string

const (
	AppliedCouponActive   AppliedCouponStatus = "active"
	AppliedCouponConsumed AppliedCouponStatus = "consumed"
)

// AppliedCoupon links a Coupon to its consumption against a subscription
// (spec.md §3).
type AppliedCoupon struct {
	ID              string
	CouponID        string
	CustomerID      string
	SubscriptionID  string
	AppliedAmount   decimal.Decimal
	RedemptionCount int
	LastAppliedAt   *time.Time
	CreatedAt       time.Time
	Status          AppliedCouponStatus

	types.BaseModel
}

// Detailed pairs an AppliedCoupon with the Coupon it references, which is
// what C5's applicability/ordering logic needs at invoice time.
type Detailed struct {
	Coupon  Coupon
	Applied AppliedCoupon
}

// Repository is the storage port for coupons (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Coupon, error)
	ListAppliedForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*Detailed, error)
	// IncrementRedemption atomically bumps Coupon.RedemptionCount and the
	// matching AppliedCoupon's RedemptionCount/AppliedAmount, inside the
	// caller's transaction (spec.md §4.7 point 5, invariant 8).
	IncrementRedemption(ctx context.Context, tenantID string, appliedCouponID string, amountApplied decimal.Decimal) error
}
