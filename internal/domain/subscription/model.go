// Package subscription models the Subscription aggregate and its
// per-subscription component overrides (spec.md §3, §4.8).
package subscription

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// ComponentOverride lets a subscription customize one attached component's
// price/quantity without forking the PlanVersion (spec.md §3).
type ComponentOverride struct {
	ComponentID string
	UnitPrice   *decimal.Decimal
	Quantity    *decimal.Decimal
}

// AddOn attaches an out-of-plan price.Component to a single subscription
// (spec.md §3: "add-on/coupon attachments").
type AddOn struct {
	ID          string
	Component   price.Component
	StartDate   *time.Time
	EndDate     *time.Time
}

// Subscription is the billable relationship between a Customer and a
// PlanVersion (spec.md §3).
type Subscription struct {
	ID                string
	CustomerID        string
	PlanVersionID     string
	StartDate         time.Time
	BillingStartDate  *time.Time
	BillingDayAnchor  int // 1..28
	BillingPeriod     types.BillingPeriod
	TrialDuration     *time.Duration
	ActivationCondition types.ActivationCondition
	Status            types.SubscriptionStatus

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   *time.Time
	NextCycleAction    types.NextCycleAction

	MRRCents int64

	CanceledAt *time.Time
	EndDate    *time.Time

	PaymentMethodType *string
	PaymentMethodID   *string

	Overrides []ComponentOverride
	AddOns    []AddOn
	CouponIDs []string

	types.BaseModel
}

// IsActive reports whether the subscription is currently billable
// (spec.md §4.8: trialing and active both accrue usage and invoices).
func (s *Subscription) IsActive() bool {
	return s.Status == types.SubscriptionStatusActive || s.Status == types.SubscriptionStatusTrialActive
}

// OverrideFor returns the override registered for componentID, if any.
func (s *Subscription) OverrideFor(componentID string) (ComponentOverride, bool) {
	for _, o := range s.Overrides {
		if o.ComponentID == componentID {
			return o, true
		}
	}
	return ComponentOverride{}, false
}

// EffectiveAnchorDate returns the date periods are computed from: the
// billing_start_date when set (service-period-start policy resolved it at
// activation time), otherwise the subscription start date (spec.md §4.1).
func (s *Subscription) EffectiveAnchorDate() time.Time {
	if s.BillingStartDate != nil {
		return *s.BillingStartDate
	}
	return s.StartDate
}

// Repository is the storage port for subscriptions (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Subscription, error)
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*Subscription, error)
	ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*Subscription, error)
}
