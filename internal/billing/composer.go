// Package billing implements C7, the invoice composer: expanding a
// subscription's attached price components over a billing period into
// priced LineItems, folding in coupons (C5) and tax (C6), and producing
// the totals an invoice is created or refreshed from (spec.md §4.7).
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	couponEngine "github.com/ledgerbase/billing/internal/coupon"
	couponDomain "github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	"github.com/ledgerbase/billing/internal/domain/meter"
	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/period"
	"github.com/ledgerbase/billing/internal/pricing"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/ledgerbase/billing/internal/usage"
	"github.com/shopspring/decimal"
)

// Composer wires C2 (pricing), C3 (usage), C4 (slots), C5 (coupons) and C6
// (tax) into the single compose algorithm of spec.md §4.7.
type Composer struct {
	meters        meter.Repository
	usageClient   usage.Client
	slotLedger    *slotledger.Ledger
	taxEngine     tax.Engine
	sellerCountry string
}

func NewComposer(meters meter.Repository, usageClient usage.Client, slotLedger *slotledger.Ledger, taxEngine tax.Engine, sellerCountry string) *Composer {
	return &Composer{meters: meters, usageClient: usageClient, slotLedger: slotLedger, taxEngine: taxEngine, sellerCountry: sellerCountry}
}

// Input bundles the subscription_details_snapshot of spec.md §4.7 plus the
// caller-resolved coupon attachments (C5 needs them pre-fetched; Compose
// only orders and distributes).
type Input struct {
	Subscription       *subscription.Subscription
	PlanVersion        *plan.PlanVersion
	Customer           *customer.Customer
	InvoiceDate        time.Time
	PrepaidAmountCents *int64
	AppliedCoupons     []*couponDomain.Detailed
	AutoApplyCredits   bool
	// FinalPeriod marks the cancellation/expiry compose call: arrear lines
	// for the closing period must still be emitted even though the
	// subscription is ending (spec.md §4.7 point 4, §9).
	FinalPeriod bool
}

// attachedComponents merges the plan version's components with the
// subscription's own add-ons into one ActiveAt-filterable list (spec.md
// §4.7 point 2: "for each active price component and each attached
// add-on").
func attachedComponents(sub *subscription.Subscription, pv *plan.PlanVersion) []price.AttachedComponent {
	out := make([]price.AttachedComponent, 0, len(pv.Components)+len(sub.AddOns))
	for _, c := range pv.Components {
		out = append(out, price.AttachedComponent{Component: c})
	}
	for _, a := range sub.AddOns {
		out = append(out, price.AttachedComponent{Component: a.Component, StartDate: a.StartDate, EndDate: a.EndDate, IsAddon: true})
	}
	return out
}

// clip intersects [full.Start, full.End) with an attachment's optional
// [start, end) window, used to derive the sub-range a component actually
// covers within the period for proration (spec.md §4.7 point 2: "is_prorated").
func clip(full period.Period, start, end *time.Time) (time.Time, time.Time) {
	from, to := full.Start, full.End
	if start != nil && start.After(from) {
		from = *start
	}
	if end != nil && end.Before(to) {
		to = *end
	}
	if to.Before(from) {
		to = from
	}
	return from, to
}

func pricingInputs(full period.Period, from, to time.Time, qty decimal.Decimal, currency string, override subscription.ComponentOverride) pricing.Inputs {
	in := pricing.Inputs{Quantity: qty, Period: full, Currency: currency}
	if !from.Equal(full.Start) || !to.Equal(full.End) {
		sub := period.Period{Start: from, End: to}
		in.ProrateFrom = &sub
	}
	if override.UnitPrice != nil {
		in.UnitPriceOverride = override.UnitPrice
	}
	if override.Quantity != nil {
		in.QuantityOverride = override.Quantity
	}
	return in
}

func toLineItem(l pricing.ComponentLine, kind invoice.LineItemKind, start, end time.Time, currency string) invoice.LineItem {
	precision := types.GetCurrencyPrecision(currency)
	cents := l.Amount.Shift(precision).Round(0).IntPart()
	return invoice.LineItem{
		ID:              types.GenerateIDWithPrefix(types.IDPrefixInvoiceLine),
		ComponentID:     &l.ComponentID,
		Kind:            kind,
		Description:     l.Description,
		PeriodStart:     start,
		PeriodEnd:       end,
		Quantity:        l.Quantity,
		UnitAmount:      l.UnitAmount,
		SubtotalCents:   cents,
		TotalCents:      cents,
		ProrationFactor: l.ProrationFactor,
	}
}

// isRecurring reports whether a line kind counts toward subtotal_recurring
// (spec.md §4.7 point 5): rate/slot/capacity-advance/extra-recurring are
// recurring; usage, overage and one-time are not.
func isRecurring(k invoice.LineItemKind) bool {
	switch k {
	case invoice.LineKindRate, invoice.LineKindSlot, invoice.LineKindCapacityAdvance, invoice.LineKindExtraRecurring:
		return true
	default:
		return false
	}
}

// Compose runs the ten-step algorithm of spec.md §4.7 and returns the
// computed invoice content without persisting it (step 10: the caller
// either creates a new Invoice or patches an existing Draft's lines).
func (c *Composer) Compose(ctx context.Context, in Input) (*invoice.Invoice, error) {
	sub := in.Subscription
	pv := in.PlanVersion
	currency := pv.Currency

	anchorDate := sub.EffectiveAnchorDate()
	periodIdx := period.CurrentIndex(anchorDate, sub.BillingDayAnchor, sub.BillingPeriod, in.InvoiceDate)
	cur := period.At(anchorDate, sub.BillingDayAnchor, sub.BillingPeriod, periodIdx)
	var prev *period.Period
	if periodIdx > 0 {
		p := period.At(anchorDate, sub.BillingDayAnchor, sub.BillingPeriod, periodIdx-1)
		prev = &p
	} else if in.FinalPeriod {
		// A subscription cancelled inside period 0 still owes an arrears
		// line for whatever partial period it consumed (spec.md §4.7
		// point 4); treat period 0 itself as the arrear window.
		p := cur
		prev = &p
	}

	var lines []invoice.LineItem

	// Step 2: advance-billed components over the current period.
	for _, ac := range attachedComponents(sub, pv) {
		if !ac.ActiveAt(in.InvoiceDate) {
			continue
		}
		override, _ := sub.OverrideFor(ac.Component.ComponentID())
		from, to := clip(cur, ac.StartDate, ac.EndDate)

		switch comp := ac.Component.(type) {
		case *price.Rate:
			cin := pricingInputs(cur, from, to, decimal.Zero, currency, override)
			lines = append(lines, toLineItem(pricing.Compute(comp, cin), invoice.LineKindRate, from, to, currency))

		case *price.Slot:
			active, err := c.slotLedger.ActiveSlotsAt(ctx, sub.TenantID, sub.ID, comp.ID, in.InvoiceDate)
			if err != nil {
				return nil, err
			}
			qty := decimal.NewFromInt(active)
			pin := pricingInputs(cur, from, to, qty, currency, override)
			lines = append(lines, toLineItem(pricing.Compute(comp, pin), invoice.LineKindSlot, from, to, currency))

		case *price.Capacity:
			qty := decimal.Zero
			if override.Quantity != nil {
				qty = *override.Quantity
			}
			pin := pricingInputs(cur, from, to, qty, currency, override)
			lines = append(lines, toLineItem(pricing.Compute(comp, pin), invoice.LineKindCapacityAdvance, from, to, currency))

		case *price.ExtraRecurring:
			if comp.Cadence != price.ExtraRecurringAdvance {
				continue
			}
			pin := pricingInputs(cur, from, to, decimal.Zero, currency, override)
			lines = append(lines, toLineItem(pricing.Compute(comp, pin), invoice.LineKindExtraRecurring, from, to, currency))

		case *price.OneTime:
			if periodIdx != 0 {
				continue
			}
			pin := pricingInputs(cur, from, to, decimal.Zero, currency, override)
			lines = append(lines, toLineItem(pricing.Compute(comp, pin), invoice.LineKindOneTime, from, to, currency))

		case *price.Usage:
			// Usage bills in arrears only; handled in step 3.
		}
	}

	// Step 3: arrear components for the previous (or closing) period.
	if prev != nil {
		for _, ac := range attachedComponents(sub, pv) {
			if !ac.ActiveAt(prev.Start) {
				continue
			}
			override, _ := sub.OverrideFor(ac.Component.ComponentID())

			switch comp := ac.Component.(type) {
			case *price.Usage:
				m, err := c.meters.Get(ctx, sub.TenantID, comp.MetricID)
				if err != nil {
					return nil, err
				}
				groups, err := usage.Resolve(ctx, c.usageClient, m, usage.Query{
					TenantID: sub.TenantID, SubscriptionID: sub.ID,
					Period: struct {
						Start time.Time
						End   time.Time
					}{Start: prev.Start, End: prev.End},
				})
				if err != nil {
					return nil, err
				}
				for _, g := range groups {
					qty := g.Quantity
					if override.Quantity != nil {
						qty = *override.Quantity
					}

					var line pricing.ComponentLine
					if comp.Pricing.Matrix != nil {
						rate, ok := pricing.MatrixRate(comp.Pricing.Matrix, g.Dim1, g.Dim2)
						if !ok {
							continue
						}
						if override.UnitPrice != nil {
							rate = *override.UnitPrice
						}
						desc := fmt.Sprintf("%s (%s)", comp.Name, g.Dim1)
						if g.Dim2 != nil {
							desc = fmt.Sprintf("%s (%s/%s)", comp.Name, g.Dim1, *g.Dim2)
						}
						amount := qty.Mul(rate)
						line = pricing.ComponentLine{
							ComponentID: comp.ID, Description: desc,
							Quantity: qty, UnitAmount: rate,
							Amount: amount.Round(types.GetCurrencyPrecision(currency)),
						}
					} else {
						pin := pricing.Inputs{Quantity: qty, Period: *prev, Currency: currency, UnitPriceOverride: override.UnitPrice}
						line = pricing.Compute(comp, pin)
					}
					lines = append(lines, toLineItem(line, invoice.LineKindUsage, prev.Start, prev.End, currency))
				}

			case *price.Capacity:
				if len(comp.Thresholds) == 0 {
					continue
				}
				m, err := c.meters.Get(ctx, sub.TenantID, comp.MetricID)
				if err != nil {
					return nil, err
				}
				groups, err := usage.Resolve(ctx, c.usageClient, m, usage.Query{
					TenantID: sub.TenantID, SubscriptionID: sub.ID,
					Period: struct {
						Start time.Time
						End   time.Time
					}{Start: prev.Start, End: prev.End},
				})
				if err != nil {
					return nil, err
				}
				actual := decimal.Zero
				for _, g := range groups {
					actual = actual.Add(g.Quantity)
				}
				committed := decimal.Zero
				if override.Quantity != nil {
					committed = *override.Quantity
				}
				threshold := selectedThreshold(comp, committed)
				overageLine := pricing.CapacityOverage(comp, threshold.IncludedAmount, actual, threshold, currency)
				if overageLine.Amount.IsPositive() {
					lines = append(lines, toLineItem(overageLine, invoice.LineKindCapacityOverage, prev.Start, prev.End, currency))
				}

			case *price.ExtraRecurring:
				if comp.Cadence != price.ExtraRecurringArrear {
					continue
				}
				pin := pricingInputs(*prev, prev.Start, prev.End, decimal.Zero, currency, override)
				lines = append(lines, toLineItem(pricing.Compute(comp, pin), invoice.LineKindExtraRecurring, prev.Start, prev.End, currency))
			}
		}
	}

	// Step 5: subtotal / subtotal_recurring.
	var subtotalCents, subtotalRecurringCents int64
	for _, l := range lines {
		subtotalCents += l.SubtotalCents
		if isRecurring(l.Kind) {
			subtotalRecurringCents += l.SubtotalCents
		}
	}

	// Step 6: coupons reduce the subtotal (C5).
	couponResult := couponEngine.ApplyCoupons(subtotalCents, currency, pv.PlanID, in.InvoiceDate, in.AppliedCoupons)
	discountCents := couponResult.TotalDiscountCents
	postDiscount := couponEngine.DistributeDiscount(discountableLines(lines), discountCents)
	for i := range lines {
		lines[i].TotalCents = postDiscount[i]
	}

	// Step 7: tax on the post-discount taxable amount per line (C6).
	taxLines := make([]tax.Line, len(lines))
	for i, l := range lines {
		taxLines[i] = tax.Line{Index: i, TaxableCents: l.TotalCents}
	}
	taxCust := tax.Customer{
		Country:        in.Customer.BillingAddress.Country,
		Region:         in.Customer.BillingAddress.State,
		SellerCountry:  c.sellerCountry,
		VATNumber:      in.Customer.VATNumber,
		VATFormatValid: in.Customer.VATFormatValid,
	}
	if in.Customer.TaxExempt {
		taxCust.TaxExemption = types.TaxExemptionTaxExempt
	}
	if in.Customer.CustomTaxRate != nil {
		taxCust.CustomPercent = in.Customer.CustomTaxRate
	}
	var taxResult tax.Result
	if c.taxEngine != nil {
		var err error
		taxResult, err = c.taxEngine.Apply(ctx, sub.TenantID, taxCust, taxLines)
		if err != nil {
			return nil, err
		}
	} else {
		taxResult = tax.Result{PerLineCents: map[int]int64{}}
	}

	var taxTotalCents int64
	for i := range lines {
		t := taxResult.PerLineCents[i]
		lines[i].TaxCents = t
		lines[i].TotalCents += t
		taxTotalCents += t
	}

	var appliedTaxes []invoice.AppliedTax
	for _, b := range taxResult.Breakdown {
		appliedTaxes = append(appliedTaxes, invoice.AppliedTax{Name: b.Name, Rate: b.Percent, TaxedCents: b.TaxedCents, AmountCents: b.AmountCents, ExemptionType: b.ExemptionType})
	}

	// Step 8: applied_credits.
	var appliedCreditCents int64
	if in.AutoApplyCredits {
		remaining := subtotalCents - discountCents + taxTotalCents
		appliedCreditCents = minInt64(in.Customer.BalanceCents, remaining)
		if in.PrepaidAmountCents != nil {
			appliedCreditCents = minInt64(appliedCreditCents, *in.PrepaidAmountCents)
		}
		if appliedCreditCents < 0 {
			appliedCreditCents = 0
		}
	}

	// Step 9: total / amount_due.
	totalCents := subtotalCents - discountCents + taxTotalCents
	amountDueCents := totalCents - appliedCreditCents
	if in.PrepaidAmountCents != nil {
		amountDueCents -= *in.PrepaidAmountCents
	}
	if amountDueCents < 0 {
		amountDueCents = 0
	}

	var couponIDs []string
	for _, a := range couponResult.Applied {
		couponIDs = append(couponIDs, a.CouponID)
	}

	out := &invoice.Invoice{
		ID:                 types.GenerateIDWithPrefix(types.IDPrefixInvoice),
		CustomerID:         sub.CustomerID,
		SubscriptionID:     &sub.ID,
		Type:               types.InvoiceTypeRecurring,
		Status:             types.InvoiceStatusDraft,
		PaymentStatus:      types.InvoicePaymentStatusUnpaid,
		Currency:           currency,
		PeriodStart:        cur.Start,
		PeriodEnd:          cur.End,
		Lines:              lines,
		SubtotalCents:          subtotalCents,
		SubtotalRecurringCents: subtotalRecurringCents,
		DiscountCents:      discountCents,
		TaxCents:           taxTotalCents,
		TotalCents:         totalCents,
		AppliedCreditCents: appliedCreditCents,
		AmountDueCents:     amountDueCents,
		Taxes:              appliedTaxes,
		AppliedCouponIDs:   couponIDs,
	}
	out.TenantID = sub.TenantID
	out.EnvironmentID = sub.EnvironmentID
	return out, nil
}

// ComposeSlotAdjustment prices a mid-cycle slot upgrade's prorated delta
// as a standalone Adjustment invoice (spec.md §4.2, §4.4: "on upgrade
// mid-period, the delta is prorated and charged"). It taxes the line the
// same way Compose does, but runs independently of the subscription's
// current recurring invoice so billing it never triggers a full
// recompute of that invoice's lines.
func (c *Composer) ComposeSlotAdjustment(ctx context.Context, sub *subscription.Subscription, pv *plan.PlanVersion, cust *customer.Customer, slotComp *price.Slot, delta int64, now time.Time) (*invoice.Invoice, error) {
	if sub.CurrentPeriodEnd == nil {
		return nil, ierr.NewError("subscription has no active billing period").Mark(ierr.ErrInvalidOperation).Err()
	}
	full := period.Period{Start: sub.CurrentPeriodStart, End: *sub.CurrentPeriodEnd}
	remaining := period.Period{Start: now, End: *sub.CurrentPeriodEnd}
	currency := pv.Currency

	priced := pricing.Compute(slotComp, pricing.Inputs{
		Quantity:    decimal.NewFromInt(delta),
		Period:      full,
		ProrateFrom: &remaining,
		Currency:    currency,
	})
	line := toLineItem(priced, invoice.LineKindSlot, now, *sub.CurrentPeriodEnd, currency)
	if line.SubtotalCents <= 0 {
		return nil, nil
	}

	taxCust := tax.Customer{
		Country:        cust.BillingAddress.Country,
		Region:         cust.BillingAddress.State,
		SellerCountry:  c.sellerCountry,
		VATNumber:      cust.VATNumber,
		VATFormatValid: cust.VATFormatValid,
	}
	if cust.TaxExempt {
		taxCust.TaxExemption = types.TaxExemptionTaxExempt
	}
	if cust.CustomTaxRate != nil {
		taxCust.CustomPercent = cust.CustomTaxRate
	}

	var taxResult tax.Result
	if c.taxEngine != nil {
		var err error
		taxResult, err = c.taxEngine.Apply(ctx, sub.TenantID, taxCust, []tax.Line{{Index: 0, TaxableCents: line.SubtotalCents}})
		if err != nil {
			return nil, err
		}
	}
	taxCents := taxResult.PerLineCents[0]
	line.TaxCents = taxCents
	line.TotalCents += taxCents

	var appliedTaxes []invoice.AppliedTax
	for _, b := range taxResult.Breakdown {
		appliedTaxes = append(appliedTaxes, invoice.AppliedTax{Name: b.Name, Rate: b.Percent, TaxedCents: b.TaxedCents, AmountCents: b.AmountCents, ExemptionType: b.ExemptionType})
	}

	out := &invoice.Invoice{
		ID:             types.GenerateIDWithPrefix(types.IDPrefixInvoice),
		CustomerID:     sub.CustomerID,
		SubscriptionID: &sub.ID,
		Type:           types.InvoiceTypeAdjustment,
		Status:         types.InvoiceStatusDraft,
		PaymentStatus:  types.InvoicePaymentStatusUnpaid,
		Currency:       currency,
		PeriodStart:    now,
		PeriodEnd:      *sub.CurrentPeriodEnd,
		Lines:          []invoice.LineItem{line},
		SubtotalCents:  line.SubtotalCents,
		TaxCents:       taxCents,
		TotalCents:     line.TotalCents,
		AmountDueCents: line.TotalCents,
		Taxes:          appliedTaxes,
	}
	out.TenantID = sub.TenantID
	out.EnvironmentID = sub.EnvironmentID
	return out, nil
}

func selectedThreshold(c *price.Capacity, committed decimal.Decimal) price.CapacityThreshold {
	sorted := append([]price.CapacityThreshold(nil), c.Thresholds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].IncludedAmount.LessThan(sorted[j].IncludedAmount) })
	selected := sorted[0]
	for _, th := range sorted {
		if committed.GreaterThanOrEqual(th.IncludedAmount) {
			selected = th
		}
	}
	return selected
}

func discountableLines(lines []invoice.LineItem) []couponEngine.DiscountableLine {
	out := make([]couponEngine.DiscountableLine, len(lines))
	for i, l := range lines {
		out[i] = couponEngine.DiscountableLine{Index: i, SubtotalCents: l.SubtotalCents}
	}
	return out
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// RefreshInvoiceData recomposes an existing invoice's lines in place,
// refusing to touch invoices that are no longer mutable (spec.md §4.7:
// "refresh_invoice_data... must fail if the invoice is no longer in a
// mutable status").
func (c *Composer) RefreshInvoiceData(ctx context.Context, inv *invoice.Invoice, in Input) error {
	if !inv.IsMutable() {
		return ierr.NewError("invoice is not in a mutable status").
			WithHint("only draft invoices can have their lines recomputed").
			Mark(ierr.ErrInvalidOperation).Err()
	}
	fresh, err := c.Compose(ctx, in)
	if err != nil {
		return err
	}
	inv.Lines = fresh.Lines
	inv.SubtotalCents = fresh.SubtotalCents
	inv.SubtotalRecurringCents = fresh.SubtotalRecurringCents
	inv.DiscountCents = fresh.DiscountCents
	inv.TaxCents = fresh.TaxCents
	inv.TotalCents = fresh.TotalCents
	inv.AppliedCreditCents = fresh.AppliedCreditCents
	inv.AmountDueCents = fresh.AmountDueCents
	inv.Taxes = fresh.Taxes
	inv.AppliedCouponIDs = fresh.AppliedCouponIDs
	return nil
}
