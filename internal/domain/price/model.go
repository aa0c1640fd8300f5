// Package price models the PriceComponent variants owned by a PlanVersion
// (spec.md §3). Each variant is a distinct Go type implementing the
// Component marker interface; internal/pricing turns a Component plus
// runtime inputs into priced lines (C2).
package price

import (
	"time"

	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Component is the marker interface every PriceComponent variant
// implements, matching spec.md §3's Plan/PlanVersion/PriceComponent model:
// "Variants: Rate{...}, Slot{...}, Capacity{...}, Usage{...},
// ExtraRecurring{...}, OneTime{...}".
type Component interface {
	ComponentID() string
	ComponentName() string
	isComponent()
}

// base is embedded by every concrete component to supply identity fields.
type base struct {
	ID   string
	Name string
}

func (b base) ComponentID() string   { return b.ID }
func (b base) ComponentName() string { return b.Name }
func (base) isComponent()            {}

// Rate is a flat recurring fee billed once per billing period.
type Rate struct {
	base
	UnitPrice decimal.Decimal
}

// Tier is one row of a tiered/volume pricing table (spec.md §3, §4.2).
// UpTo is nil for the last (unbounded) tier; boundaries are inclusive.
type Tier struct {
	UpTo       *uint64
	UnitAmount decimal.Decimal
	FlatFee    *decimal.Decimal
	FlatCap    *decimal.Decimal
}

// Slot is a seat/license style component with a per-unit rate and
// min/max bounds (spec.md §3, §4.2, §4.4).
type Slot struct {
	base
	UnitPrice       decimal.Decimal
	Unit            string
	MinSlots        *uint64
	MaxSlots        *uint64
	UpgradePolicy   types.SlotUpgradePolicy
	DowngradePolicy types.SlotDowngradePolicy
}

// CapacityThreshold is one row of a Capacity component's threshold table.
type CapacityThreshold struct {
	IncludedAmount  decimal.Decimal
	Price           decimal.Decimal
	PerUnitOverage  decimal.Decimal
}

// Capacity bills a flat fee for the selected threshold in advance and
// meters overage for the previous period in arrears (spec.md §4.2).
type Capacity struct {
	base
	MetricID   string
	Thresholds []CapacityThreshold
}

// MatrixRow maps a (dim1, dim2?) pair to a per-unit price (spec.md §3).
type MatrixRow struct {
	Dim1         string
	Dim2         *string
	PerUnitPrice decimal.Decimal
}

// UsagePricing is the `pricing` field of a Usage component: exactly one of
// the embedded pointers is set (spec.md §3).
type UsagePricing struct {
	PerUnit *decimal.Decimal
	Tiered  *TieredPricing
	Volume  *VolumePricing
	Package *PackagePricing
	Matrix  *MatrixPricing
}

type TieredPricing struct {
	Tiers     []Tier
	BlockSize *uint64
}

type VolumePricing struct {
	Tiers     []Tier
	BlockSize *uint64
}

type PackagePricing struct {
	BlockSize uint64
	Rate      decimal.Decimal
}

type MatrixPricing struct {
	Rates []MatrixRow
}

// Usage bills metered consumption for the previous period in arrears
// (spec.md §3, §4.2).
type Usage struct {
	base
	MetricID string
	Pricing  UsagePricing
}

// ExtraRecurringCadence selects whether an ExtraRecurring line is emitted
// at period start or period end (spec.md §3).
type ExtraRecurringCadence string

const (
	ExtraRecurringAdvance ExtraRecurringCadence = "advance"
	ExtraRecurringArrear  ExtraRecurringCadence = "arrear"
)

// ExtraRecurring is a recurring flat fee distinct from Rate, carrying its
// own billing-type and cadence (spec.md §3).
type ExtraRecurring struct {
	base
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
	Cadence   ExtraRecurringCadence
}

// OneTime is emitted exactly once, on the first invoice that includes it
// (spec.md §4.2).
type OneTime struct {
	base
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

// AttachedComponent pairs a Component with the subscription-scoped
// metadata (overrides, attachment window) that governs whether and how it
// participates in a given period.
type AttachedComponent struct {
	Component  Component
	StartDate  *time.Time
	EndDate    *time.Time
	IsAddon    bool
	ProductID  string
}

// ActiveAt reports whether the attachment covers instant t.
func (a AttachedComponent) ActiveAt(t time.Time) bool {
	if a.StartDate != nil && t.Before(*a.StartDate) {
		return false
	}
	if a.EndDate != nil && !t.Before(*a.EndDate) {
		return false
	}
	return true
}
