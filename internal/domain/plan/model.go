// Package plan models Plan/PlanVersion (spec.md §3).
package plan

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/types"
)

// ServicePeriodStartPolicy controls whether a subscription's period start
// tracks its own anniversary or a fixed day-of-month (spec.md §3).
type ServicePeriodStartPolicy string

const (
	ServicePeriodAnniversary  ServicePeriodStartPolicy = "anniversary"
	ServicePeriodFixedDayOfMo ServicePeriodStartPolicy = "fixed_day_of_month"
)

// TrialPolicy describes the trial granted to new subscriptions on a
// PlanVersion (spec.md §3).
type TrialPolicy struct {
	Duration     time.Duration
	Free         bool
	FallbackPlan string
}

// Plan is the commercial product; PlanVersion carries the priceable
// structure.
type Plan struct {
	ID   string
	Name string
	types.BaseModel
}

// PlanVersion fixes currency, allowed periods, net terms, trial policy and
// service-period-start policy for every subscription created against it
// (spec.md §3). Exactly one Version per Plan may be draft.
type PlanVersion struct {
	ID                       string
	PlanID                   string
	IsDraft                  bool
	Currency                 string
	AllowedBillingPeriods    []types.BillingPeriod
	NetTermsDays             int
	Trial                    *TrialPolicy
	ServicePeriodStartPolicy ServicePeriodStartPolicy
	Components               []price.Component

	types.BaseModel
}

// Repository is the storage port for plans/plan versions (C11).
type Repository interface {
	GetPlan(ctx context.Context, tenantID, id string) (*Plan, error)
	GetVersion(ctx context.Context, tenantID, id string) (*PlanVersion, error)
	GetDraftVersion(ctx context.Context, tenantID, planID string) (*PlanVersion, error)
}
