// Package pricing turns a price.Component plus runtime inputs into priced
// ComponentLines (C2, spec.md §4.2), grounded on fees.rs's tiered/volume
// tier-selection algorithm and the teacher's CalculateCost dispatch.
package pricing

import (
	"sort"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/period"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Sub is one priced sub-line within a ComponentLine, used for tiered
// breakdowns (spec.md §4.2: "invoices must show the per-tier breakdown").
type Sub struct {
	Label      string
	Quantity   decimal.Decimal
	UnitAmount decimal.Decimal
	Amount     decimal.Decimal
}

// ComponentLine is the priced output of computing one price.Component over
// one period for one quantity (spec.md §4.2).
type ComponentLine struct {
	ComponentID     string
	Description     string
	Quantity        decimal.Decimal
	UnitAmount      decimal.Decimal
	Amount          decimal.Decimal
	ProrationFactor *decimal.Decimal
	Subs            []Sub
}

// Inputs carries everything Compute needs beyond the Component itself:
// the metered usage quantity (Usage/Capacity), the slot count (Slot), the
// service period and any sub-period being prorated, and the currency for
// final rounding.
type Inputs struct {
	Quantity     decimal.Decimal
	Period       period.Period
	ProrateFrom  *period.Period // nil when the component isn't prorated this cycle
	Currency     string
	UnitPriceOverride *decimal.Decimal
	QuantityOverride  *decimal.Decimal
}

func round(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(types.GetCurrencyPrecision(currency))
}

// Compute dispatches on the concrete Component type, mirroring the
// teacher's CalculateCost switch (spec.md §4.2).
func Compute(c price.Component, in Inputs) ComponentLine {
	switch comp := c.(type) {
	case *price.Rate:
		return computeRate(comp, in)
	case *price.Slot:
		return computeSlot(comp, in)
	case *price.Capacity:
		return computeCapacityAdvance(comp, in)
	case *price.Usage:
		return computeUsage(comp, in)
	case *price.ExtraRecurring:
		return computeExtraRecurring(comp, in)
	case *price.OneTime:
		return computeOneTime(comp, in)
	default:
		return ComponentLine{ComponentID: c.ComponentID(), Description: c.ComponentName()}
	}
}

func prorated(unitPrice decimal.Decimal, in Inputs) (decimal.Decimal, *decimal.Decimal) {
	if in.ProrateFrom == nil {
		return unitPrice, nil
	}
	factor := period.ProrationFactor(in.ProrateFrom.Start, in.ProrateFrom.End, in.Period)
	return unitPrice.Mul(factor), &factor
}

func computeRate(c *price.Rate, in Inputs) ComponentLine {
	unit := c.UnitPrice
	if in.UnitPriceOverride != nil {
		unit = *in.UnitPriceOverride
	}
	effective, factor := prorated(unit, in)
	return ComponentLine{
		ComponentID:     c.ID,
		Description:     c.Name,
		Quantity:        decimal.NewFromInt(1),
		UnitAmount:      unit,
		Amount:          round(effective, in.Currency),
		ProrationFactor: factor,
	}
}

// computeSlot prices the currently active slot count at the component's
// per-unit rate, prorated like Rate (spec.md §4.4).
func computeSlot(c *price.Slot, in Inputs) ComponentLine {
	qty := in.Quantity
	if in.QuantityOverride != nil {
		qty = *in.QuantityOverride
	}
	unit := c.UnitPrice
	if in.UnitPriceOverride != nil {
		unit = *in.UnitPriceOverride
	}
	total := qty.Mul(unit)
	effective, factor := prorated(total, in)
	return ComponentLine{
		ComponentID:     c.ID,
		Description:     c.Name,
		Quantity:        qty,
		UnitAmount:      unit,
		Amount:          round(effective, in.Currency),
		ProrationFactor: factor,
	}
}

// computeCapacityAdvance bills the flat fee for the threshold matching the
// committed quantity, billed in advance (spec.md §4.2). Overage for the
// prior period is a separate line emitted by the invoice composer (C7)
// once actual usage for that period is known.
func computeCapacityAdvance(c *price.Capacity, in Inputs) ComponentLine {
	if len(c.Thresholds) == 0 {
		return ComponentLine{ComponentID: c.ID, Description: c.Name}
	}
	sorted := append([]price.CapacityThreshold(nil), c.Thresholds...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].IncludedAmount.LessThan(sorted[j].IncludedAmount)
	})
	selected := sorted[0]
	for _, th := range sorted {
		if in.Quantity.GreaterThanOrEqual(th.IncludedAmount) {
			selected = th
		}
	}
	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    decimal.NewFromInt(1),
		UnitAmount:  selected.Price,
		Amount:      round(selected.Price, in.Currency),
	}
}

// CapacityOverage computes the per-unit overage line for usage above the
// committed threshold's included amount (spec.md §4.2).
func CapacityOverage(c *price.Capacity, committedIncluded, actualUsage decimal.Decimal, threshold price.CapacityThreshold, currency string) ComponentLine {
	overageUnits := actualUsage.Sub(committedIncluded)
	if overageUnits.LessThanOrEqual(decimal.Zero) {
		return ComponentLine{ComponentID: c.ID, Description: c.Name + " overage"}
	}
	amount := overageUnits.Mul(threshold.PerUnitOverage)
	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name + " overage",
		Quantity:    overageUnits,
		UnitAmount:  threshold.PerUnitOverage,
		Amount:      round(amount, currency),
	}
}

func computeUsage(c *price.Usage, in Inputs) ComponentLine {
	p := c.Pricing
	switch {
	case p.PerUnit != nil:
		amount := in.Quantity.Mul(*p.PerUnit)
		return ComponentLine{
			ComponentID: c.ID, Description: c.Name,
			Quantity: in.Quantity, UnitAmount: *p.PerUnit,
			Amount: round(amount, in.Currency),
		}
	case p.Tiered != nil:
		return computeTiered(c, p.Tiered, in)
	case p.Volume != nil:
		return computeVolume(c, p.Volume, in)
	case p.Package != nil:
		return computePackage(c, p.Package, in)
	case p.Matrix != nil:
		// Matrix pricing is resolved per-dimension-group by the usage
		// resolver (C3) before reaching Compute; a bare Usage component
		// with Matrix pricing and no pre-resolved rate prices as zero.
		return ComponentLine{ComponentID: c.ID, Description: c.Name}
	default:
		return ComponentLine{ComponentID: c.ID, Description: c.Name}
	}
}

// MatrixRate resolves the per-unit price for a (dim1, dim2) usage group,
// used by C3 before calling Compute for matrix-priced usage.
func MatrixRate(m *price.MatrixPricing, dim1 string, dim2 *string) (decimal.Decimal, bool) {
	for _, row := range m.Rates {
		if row.Dim1 != dim1 {
			continue
		}
		if (row.Dim2 == nil) != (dim2 == nil) {
			continue
		}
		if row.Dim2 != nil && dim2 != nil && *row.Dim2 != *dim2 {
			continue
		}
		return row.PerUnitPrice, true
	}
	return decimal.Zero, false
}

func sortedTiers(tiers []price.Tier) []price.Tier {
	sorted := append([]price.Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool {
		iv, jv := uint64(0), uint64(0)
		if sorted[i].UpTo != nil {
			iv = *sorted[i].UpTo
		} else {
			iv = ^uint64(0)
		}
		if sorted[j].UpTo != nil {
			jv = *sorted[j].UpTo
		} else {
			jv = ^uint64(0)
		}
		return iv < jv
	})
	return sorted
}

// computeTiered splits usage_units across successive tier bands, each
// paying that band's per-unit rate plus its flat fee, capped at flat_cap
// (spec.md §4.2), grounded on fees.rs's compute_tier_price.
func computeTiered(c *price.Usage, t *price.TieredPricing, in Inputs) ComponentLine {
	tiers := sortedTiers(t.Tiers)
	remaining := in.Quantity
	subtotal := decimal.Zero
	var subs []Sub
	var lowerBound uint64

	for _, tier := range tiers {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		var bandUnits decimal.Decimal
		if tier.UpTo != nil {
			bandSize := *tier.UpTo - lowerBound
			bandUnits = decimal.NewFromInt(int64(bandSize))
			lowerBound = *tier.UpTo
		} else {
			bandUnits = remaining
		}
		unitsInBand := bandUnits
		if remaining.LessThan(bandUnits) {
			unitsInBand = remaining
		}
		if unitsInBand.LessThanOrEqual(decimal.Zero) {
			continue
		}
		fee := unitsInBand.Mul(tier.UnitAmount)
		if tier.FlatFee != nil {
			fee = fee.Add(*tier.FlatFee)
		}
		if tier.FlatCap != nil && fee.GreaterThan(*tier.FlatCap) {
			fee = *tier.FlatCap
		}
		subtotal = subtotal.Add(fee)
		subs = append(subs, Sub{
			Label:      "tier",
			Quantity:   unitsInBand,
			UnitAmount: tier.UnitAmount,
			Amount:     round(fee, in.Currency),
		})
		remaining = remaining.Sub(unitsInBand)
	}

	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    in.Quantity,
		Amount:      round(subtotal, in.Currency),
		Subs:        subs,
	}
}

// computeVolume prices every unit at the rate of the single tier the total
// quantity falls into, plus that tier's flat fee, capped at flat_cap
// (spec.md §4.2), grounded on fees.rs's compute_volume_price.
func computeVolume(c *price.Usage, v *price.VolumePricing, in Inputs) ComponentLine {
	tiers := sortedTiers(v.Tiers)
	if len(tiers) == 0 {
		return ComponentLine{ComponentID: c.ID, Description: c.Name}
	}
	selected := tiers[len(tiers)-1]
	for _, tier := range tiers {
		if tier.UpTo == nil {
			selected = tier
			break
		}
		if in.Quantity.LessThanOrEqual(decimal.NewFromInt(int64(*tier.UpTo))) {
			selected = tier
			break
		}
	}

	fee := in.Quantity.Mul(selected.UnitAmount)
	if selected.FlatFee != nil {
		fee = fee.Add(*selected.FlatFee)
	}
	if selected.FlatCap != nil && fee.GreaterThan(*selected.FlatCap) {
		fee = *selected.FlatCap
	}

	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    in.Quantity,
		UnitAmount:  selected.UnitAmount,
		Amount:      round(fee, in.Currency),
		Subs: []Sub{{
			Label: "volume", Quantity: in.Quantity,
			UnitAmount: selected.UnitAmount, Amount: round(fee, in.Currency),
		}},
	}
}

// computePackage bills ceil(usage / block_size) blocks at a flat rate per
// block (spec.md §4.2), grounded on the teacher's BILLING_MODEL_PACKAGE
// transform-quantity handling (round-up is package pricing's only sane
// rounding mode: a partial block still consumes a whole block).
func computePackage(c *price.Usage, p *price.PackagePricing, in Inputs) ComponentLine {
	if p.BlockSize == 0 {
		return ComponentLine{ComponentID: c.ID, Description: c.Name}
	}
	blocks := in.Quantity.Div(decimal.NewFromInt(int64(p.BlockSize))).Ceil()
	amount := blocks.Mul(p.Rate)
	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    blocks,
		UnitAmount:  p.Rate,
		Amount:      round(amount, in.Currency),
	}
}

func computeExtraRecurring(c *price.ExtraRecurring, in Inputs) ComponentLine {
	unit := c.UnitPrice
	if in.UnitPriceOverride != nil {
		unit = *in.UnitPriceOverride
	}
	qty := c.Quantity
	if in.QuantityOverride != nil {
		qty = *in.QuantityOverride
	}
	amount := qty.Mul(unit)
	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    qty,
		UnitAmount:  unit,
		Amount:      round(amount, in.Currency),
	}
}

func computeOneTime(c *price.OneTime, in Inputs) ComponentLine {
	unit := c.UnitPrice
	if in.UnitPriceOverride != nil {
		unit = *in.UnitPriceOverride
	}
	qty := c.Quantity
	if in.QuantityOverride != nil {
		qty = *in.QuantityOverride
	}
	amount := qty.Mul(unit)
	return ComponentLine{
		ComponentID: c.ID,
		Description: c.Name,
		Quantity:    qty,
		UnitAmount:  unit,
		Amount:      round(amount, in.Currency),
	}
}
