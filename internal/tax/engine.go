// Package tax implements C6: resolving and applying tax rates to invoice
// line items (spec.md §4.6).
package tax

import (
	"context"

	taxDomain "github.com/ledgerbase/billing/internal/domain/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Line is the minimal view of a taxable invoice line the engine needs.
type Line struct {
	Index        int
	TaxableCents int64
}

// Breakdown is one resolved rate's contribution, aggregated across every
// line it applied to (spec.md §4.6: invoices show a tax breakdown per
// rate/jurisdiction, aggregated by name+rate+exemption_type).
type Breakdown struct {
	Name          string
	Percent       decimal.Decimal
	TaxedCents    int64
	AmountCents   int64
	ExemptionType types.TaxExemptionType
}

// Result is the per-line tax amount, keyed by Line.Index, plus the
// aggregated breakdown.
type Result struct {
	PerLineCents map[int]int64
	Breakdown    []Breakdown
}

// Engine resolves the applicable tax rate(s) for a customer and applies
// them to a set of taxable line amounts (spec.md §4.6).
type Engine interface {
	Apply(ctx context.Context, tenantID string, customer Customer, lines []Line) (Result, error)
}

// Customer is the subset of customer fields the tax engine needs, kept
// narrow so this package doesn't import internal/domain/customer.
// SellerCountry, VATNumber and VATFormatValid only matter to the
// automatic engine's (seller_country, customer_country, b2b) lookup
// (spec.md §4.6 step 4); the manual engine ignores them.
type Customer struct {
	Country        string
	Region         string
	SellerCountry  string
	VATNumber      string
	VATFormatValid bool
	TaxExemption   types.TaxExemptionType
	CustomPercent  *float64
}

// b2b reports whether the customer presented a VAT number in a valid
// format, the signal spec.md §4.6 step 4 uses to treat a customer as a
// business for cross-border reverse-charge purposes.
func (c Customer) b2b() bool {
	return c.VATNumber != "" && c.VATFormatValid
}

// zeroRateBreakdown is the single aggregated row spec.md §4.6 requires
// on a tax-exempt invoice: a zero-rate line carrying the exemption type
// rather than no breakdown at all.
func zeroRateBreakdown(name string, exemption types.TaxExemptionType, lines []Line) (map[int]int64, []Breakdown) {
	perLine := make(map[int]int64, len(lines))
	var totalTaxed int64
	for _, l := range lines {
		perLine[l.Index] = 0
		totalTaxed += l.TaxableCents
	}
	return perLine, []Breakdown{{Name: name, Percent: decimal.Zero, TaxedCents: totalTaxed, AmountCents: 0, ExemptionType: exemption}}
}

// exemptionBreakdownName gives the zero-rate breakdown row a readable
// label per exemption reason.
func exemptionBreakdownName(exemption types.TaxExemptionType) string {
	switch exemption {
	case types.TaxExemptionReverseCharge:
		return "Reverse charge"
	case types.TaxExemptionTaxExempt:
		return "Tax exempt"
	default:
		return "No tax"
	}
}

// ManualTaxEngine resolves rates from operator-configured Rate rows,
// following the resolution order of spec.md §4.6: a customer exemption
// first, then a CustomPercent override, then a country+region rate,
// then a country-only rate, then no tax.
type ManualTaxEngine struct {
	repo taxDomain.Repository
}

func NewManualEngine(repo taxDomain.Repository) *ManualTaxEngine {
	return &ManualTaxEngine{repo: repo}
}

func (e *ManualTaxEngine) Apply(ctx context.Context, tenantID string, customer Customer, lines []Line) (Result, error) {
	if customer.TaxExemption == types.TaxExemptionTaxExempt ||
		customer.TaxExemption == types.TaxExemptionReverseCharge ||
		customer.TaxExemption == types.TaxExemptionNoTax {
		perLine, breakdown := zeroRateBreakdown(exemptionBreakdownName(customer.TaxExemption), customer.TaxExemption, lines)
		return Result{PerLineCents: perLine, Breakdown: breakdown}, nil
	}

	result := Result{PerLineCents: map[int]int64{}}
	var percent decimal.Decimal
	var name string

	if customer.CustomPercent != nil {
		percent = decimal.NewFromFloat(*customer.CustomPercent)
		name = "Custom rate"
	} else {
		rates, err := e.repo.ListForCountry(ctx, tenantID, customer.Country)
		if err != nil {
			return Result{}, err
		}
		var countryOnly *taxDomain.Rate
		var countryRegion *taxDomain.Rate
		for _, r := range rates {
			if r.Region != "" && r.Region == customer.Region {
				countryRegion = r
			}
			if r.Region == "" {
				countryOnly = r
			}
		}
		switch {
		case countryRegion != nil:
			percent = countryRegion.Percent
			name = countryRegion.Name
		case countryOnly != nil:
			percent = countryOnly.Percent
			name = countryOnly.Name
		default:
			perLine, breakdown := zeroRateBreakdown(exemptionBreakdownName(types.TaxExemptionNoTax), types.TaxExemptionNoTax, lines)
			return Result{PerLineCents: perLine, Breakdown: breakdown}, nil
		}
	}

	var totalTaxed, totalAmount int64
	for _, l := range lines {
		amount := decimal.NewFromInt(l.TaxableCents).Mul(percent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
		result.PerLineCents[l.Index] = amount
		totalTaxed += l.TaxableCents
		totalAmount += amount
	}
	result.Breakdown = []Breakdown{{Name: name, Percent: percent, TaxedCents: totalTaxed, AmountCents: totalAmount}}
	return result, nil
}

// AutomaticTaxEngine resolves a rate from an internal static table keyed
// by (seller_country, customer_country, b2b), per spec.md §4.6 step 4.
// A cross-border business customer (valid VAT number, country differs
// from the seller's) is always reverse-charged regardless of what the
// table holds for that country; everything else looks up a flat
// domestic rate for the customer's country, falling back to the
// seller's, and finally to no tax when neither is in the table.
type AutomaticTaxEngine struct {
	rates map[string]decimal.Decimal
}

// NewAutomaticEngine builds the engine with the built-in static rate
// table. Rates are flat country-level VAT/GST percentages; this is a
// simplification of real-world multi-rate jurisdictions, acceptable
// since automatic mode only needs to pick *a* rate, not every rate a
// full tax provider integration would expose.
func NewAutomaticEngine() *AutomaticTaxEngine {
	return &AutomaticTaxEngine{rates: defaultAutomaticRateTable()}
}

// NewAutomaticEngineWithRates overrides the static table, mainly for
// tests.
func NewAutomaticEngineWithRates(rates map[string]decimal.Decimal) *AutomaticTaxEngine {
	return &AutomaticTaxEngine{rates: rates}
}

func defaultAutomaticRateTable() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"FR": decimal.NewFromInt(20),
		"DE": decimal.NewFromInt(19),
		"GB": decimal.NewFromInt(20),
		"ES": decimal.NewFromInt(21),
		"IT": decimal.NewFromInt(22),
		"NL": decimal.NewFromInt(21),
		"SE": decimal.NewFromInt(25),
		"IE": decimal.NewFromInt(23),
		"AU": decimal.NewFromInt(10),
		"NZ": decimal.NewFromInt(15),
		"US": decimal.Zero,
		"CA": decimal.NewFromInt(5),
	}
}

func (e *AutomaticTaxEngine) Apply(ctx context.Context, tenantID string, customer Customer, lines []Line) (Result, error) {
	if customer.TaxExemption == types.TaxExemptionTaxExempt || customer.TaxExemption == types.TaxExemptionNoTax {
		perLine, breakdown := zeroRateBreakdown(exemptionBreakdownName(customer.TaxExemption), customer.TaxExemption, lines)
		return Result{PerLineCents: perLine, Breakdown: breakdown}, nil
	}

	crossBorder := customer.SellerCountry != "" && customer.Country != "" && customer.Country != customer.SellerCountry
	if customer.b2b() && crossBorder {
		perLine, breakdown := zeroRateBreakdown(exemptionBreakdownName(types.TaxExemptionReverseCharge), types.TaxExemptionReverseCharge, lines)
		return Result{PerLineCents: perLine, Breakdown: breakdown}, nil
	}

	percent, ok := e.rates[customer.Country]
	if !ok {
		percent, ok = e.rates[customer.SellerCountry]
	}
	if !ok || percent.IsZero() {
		exemption := types.TaxExemptionNoTax
		perLine, breakdown := zeroRateBreakdown(exemptionBreakdownName(exemption), exemption, lines)
		return Result{PerLineCents: perLine, Breakdown: breakdown}, nil
	}

	result := Result{PerLineCents: map[int]int64{}}
	var totalTaxed, totalAmount int64
	for _, l := range lines {
		amount := decimal.NewFromInt(l.TaxableCents).Mul(percent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
		result.PerLineCents[l.Index] = amount
		totalTaxed += l.TaxableCents
		totalAmount += amount
	}
	result.Breakdown = []Breakdown{{Name: "VAT", Percent: percent, TaxedCents: totalTaxed, AmountCents: totalAmount}}
	return result, nil
}

// Select returns the configured Engine for a tax engine kind (spec.md
// §4.6).
func Select(kind types.TaxEngineKind, manual *ManualTaxEngine, automatic *AutomaticTaxEngine) Engine {
	if kind == types.TaxEngineAutomatic && automatic != nil {
		return automatic
	}
	return manual
}
