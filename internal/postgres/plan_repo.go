package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/price"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/types"
)

// PlanRepository is a read-only storage port: plan/plan-version CRUD is
// out of this engine's scope (spec.md §6: "plan CRUD" lives on the
// inbound RPC surface named for context only), so only the lookups the
// pricing/composition/lifecycle engines need are implemented here.
type PlanRepository struct {
	db *DB
}

func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) GetPlan(ctx context.Context, tenantID, id string) (*plan.Plan, error) {
	var p plan.Plan
	if err := getSnapshot(ctx, r.db, "plans", tenantID, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// wirePlanVersion mirrors plan.PlanVersion but types Components as
// price.ComponentList so the polymorphic Component slice round-trips
// through JSON via the kind+data envelope codec.
type wirePlanVersion struct {
	ID                       string
	PlanID                   string
	IsDraft                  bool
	Currency                 string
	AllowedBillingPeriods    []types.BillingPeriod
	NetTermsDays             int
	Trial                    *plan.TrialPolicy
	ServicePeriodStartPolicy plan.ServicePeriodStartPolicy
	Components               price.ComponentList
	types.BaseModel
}

func (w *wirePlanVersion) toDomain() *plan.PlanVersion {
	return &plan.PlanVersion{
		ID:                       w.ID,
		PlanID:                   w.PlanID,
		IsDraft:                  w.IsDraft,
		Currency:                 w.Currency,
		AllowedBillingPeriods:    w.AllowedBillingPeriods,
		NetTermsDays:             w.NetTermsDays,
		Trial:                    w.Trial,
		ServicePeriodStartPolicy: w.ServicePeriodStartPolicy,
		Components:               []price.Component(w.Components),
		BaseModel:                w.BaseModel,
	}
}

func (r *PlanRepository) GetVersion(ctx context.Context, tenantID, id string) (*plan.PlanVersion, error) {
	var w wirePlanVersion
	if err := getSnapshot(ctx, r.db, "plan_versions", tenantID, id, &w); err != nil {
		return nil, err
	}
	return w.toDomain(), nil
}

func (r *PlanRepository) GetDraftVersion(ctx context.Context, tenantID, planID string) (*plan.PlanVersion, error) {
	rows, err := selectSnapshots(ctx, r.db,
		`SELECT data FROM plan_versions WHERE tenant_id = $1 AND data->>'PlanID' = $2 AND (data->>'IsDraft')::boolean LIMIT 1`,
		tenantID, planID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound("draft plan version", planID)
	}
	var w wirePlanVersion
	if err := json.Unmarshal(rows[0], &w); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	return w.toDomain(), nil
}
