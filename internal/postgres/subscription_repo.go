package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/types"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// wireAddOn mirrors subscription.AddOn with its Component typed for the
// envelope codec.
type wireAddOn struct {
	ID        string
	Component json.RawMessage
	StartDate *time.Time
	EndDate   *time.Time
}

type wireSubscription struct {
	ID                  string
	CustomerID          string
	PlanVersionID       string
	StartDate           time.Time
	BillingStartDate    *time.Time
	BillingDayAnchor    int
	BillingPeriod       types.BillingPeriod
	TrialDuration       *time.Duration
	ActivationCondition types.ActivationCondition
	Status              types.SubscriptionStatus
	CurrentPeriodStart  time.Time
	CurrentPeriodEnd    *time.Time
	NextCycleAction     types.NextCycleAction
	MRRCents            int64
	CanceledAt          *time.Time
	EndDate             *time.Time
	PaymentMethodType   *string
	PaymentMethodID     *string
	Overrides           []subscription.ComponentOverride
	AddOns              []wireAddOn
	CouponIDs           []string
	types.BaseModel
}

func fromDomainSubscription(sub *subscription.Subscription) *wireSubscription {
	w := &wireSubscription{
		ID:                  sub.ID,
		CustomerID:          sub.CustomerID,
		PlanVersionID:       sub.PlanVersionID,
		StartDate:           sub.StartDate,
		BillingStartDate:    sub.BillingStartDate,
		BillingDayAnchor:    sub.BillingDayAnchor,
		BillingPeriod:       sub.BillingPeriod,
		TrialDuration:       sub.TrialDuration,
		ActivationCondition: sub.ActivationCondition,
		Status:              sub.Status,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		NextCycleAction:     sub.NextCycleAction,
		MRRCents:            sub.MRRCents,
		CanceledAt:          sub.CanceledAt,
		EndDate:             sub.EndDate,
		PaymentMethodType:   sub.PaymentMethodType,
		PaymentMethodID:     sub.PaymentMethodID,
		Overrides:           sub.Overrides,
		CouponIDs:           sub.CouponIDs,
		BaseModel:           sub.BaseModel,
	}
	for _, a := range sub.AddOns {
		raw, _ := price.MarshalComponent(a.Component)
		w.AddOns = append(w.AddOns, wireAddOn{ID: a.ID, Component: raw, StartDate: a.StartDate, EndDate: a.EndDate})
	}
	return w
}

func (w *wireSubscription) toDomain() (*subscription.Subscription, error) {
	sub := &subscription.Subscription{
		ID:                  w.ID,
		CustomerID:          w.CustomerID,
		PlanVersionID:       w.PlanVersionID,
		StartDate:           w.StartDate,
		BillingStartDate:    w.BillingStartDate,
		BillingDayAnchor:    w.BillingDayAnchor,
		BillingPeriod:       w.BillingPeriod,
		TrialDuration:       w.TrialDuration,
		ActivationCondition: w.ActivationCondition,
		Status:              w.Status,
		CurrentPeriodStart:  w.CurrentPeriodStart,
		CurrentPeriodEnd:    w.CurrentPeriodEnd,
		NextCycleAction:     w.NextCycleAction,
		MRRCents:            w.MRRCents,
		CanceledAt:          w.CanceledAt,
		EndDate:             w.EndDate,
		PaymentMethodType:   w.PaymentMethodType,
		PaymentMethodID:     w.PaymentMethodID,
		Overrides:           w.Overrides,
		CouponIDs:           w.CouponIDs,
		BaseModel:           w.BaseModel,
	}
	for _, a := range w.AddOns {
		c, err := price.UnmarshalComponent(a.Component)
		if err != nil {
			return nil, err
		}
		sub.AddOns = append(sub.AddOns, subscription.AddOn{ID: a.ID, Component: c, StartDate: a.StartDate, EndDate: a.EndDate})
	}
	return sub, nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, tenantID, id string) (*subscription.Subscription, error) {
	var w wireSubscription
	if err := getSnapshot(ctx, r.db, "subscriptions", tenantID, id, &w); err != nil {
		return nil, err
	}
	return w.toDomain()
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	return putSnapshot(ctx, r.db, "subscriptions", sub.TenantID, sub.ID, fromDomainSubscription(sub))
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	return putSnapshot(ctx, r.db, "subscriptions", sub.TenantID, sub.ID, fromDomainSubscription(sub))
}

// ListDue returns subscriptions with a pending cycle action whose current
// period has ended at or before asOf, for the cycle-transition batch
// processor (spec.md §4.8).
func (r *SubscriptionRepository) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*subscription.Subscription, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT data FROM subscriptions
		WHERE tenant_id = $1
		  AND data->>'NextCycleAction' <> ''
		  AND data->'CurrentPeriodEnd' IS NOT NULL
		  AND (data->>'CurrentPeriodEnd')::timestamptz <= $2
		ORDER BY (data->>'CurrentPeriodEnd')::timestamptz
	`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	return unmarshalWireSubscriptions(rows)
}

func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*subscription.Subscription, error) {
	rows, err := selectSnapshots(ctx, r.db,
		`SELECT data FROM subscriptions WHERE tenant_id = $1 AND data->>'CustomerID' = $2`, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	return unmarshalWireSubscriptions(rows)
}

func unmarshalWireSubscriptions(rows [][]byte) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(rows))
	for _, raw := range rows {
		var w wireSubscription
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		sub, err := w.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}
