package pricing

import (
	"testing"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/period"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mustUpTo(n uint64) *uint64 { return &n }

func TestComputeRate_Flat(t *testing.T) {
	rate := price.NewRate("rate-1", "Base plan", decimal.NewFromInt(5000))
	p := period.Period{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	line := Compute(rate, Inputs{Period: p, Currency: "usd"})
	assert.Equal(t, "5000.00", line.Amount.StringFixed(2))
}

func TestComputeRate_Prorated(t *testing.T) {
	rate := price.NewRate("rate-1", "Base plan", decimal.NewFromInt(3100))
	full := period.Period{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	sub := period.Period{Start: time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	line := Compute(rate, Inputs{Period: full, ProrateFrom: &sub, Currency: "usd"})
	assert.Equal(t, "1500.00", line.Amount.StringFixed(2))
}

func TestComputeTiered_SplitsAcrossBands(t *testing.T) {
	usage := price.NewUsage("usage-1", "API calls", "metric-1", price.UsagePricing{
		Tiered: &price.TieredPricing{
			Tiers: []price.Tier{
				{UpTo: mustUpTo(1000), UnitAmount: decimal.NewFromFloat(0.10)},
				{UpTo: mustUpTo(5000), UnitAmount: decimal.NewFromFloat(0.05)},
				{UpTo: nil, UnitAmount: decimal.NewFromFloat(0.02)},
			},
		},
	})

	line := computeUsage(usage, Inputs{Quantity: decimal.NewFromInt(6000), Currency: "usd"})

	// tier1: 1000*0.10=100, tier2: 4000*0.05=200, tier3: 1000*0.02=20 => 320
	assert.Equal(t, "320.00", line.Amount.StringFixed(2))
	assert.Len(t, line.Subs, 3)
}

func TestComputeVolume_SingleTierWholeQuantity(t *testing.T) {
	usage := price.NewUsage("usage-1", "API calls", "metric-1", price.UsagePricing{
		Volume: &price.VolumePricing{
			Tiers: []price.Tier{
				{UpTo: mustUpTo(1000), UnitAmount: decimal.NewFromFloat(0.10)},
				{UpTo: nil, UnitAmount: decimal.NewFromFloat(0.05)},
			},
		},
	})

	line := computeUsage(usage, Inputs{Quantity: decimal.NewFromInt(6000), Currency: "usd"})
	// falls in the unbounded tier: 6000*0.05 = 300
	assert.Equal(t, "300.00", line.Amount.StringFixed(2))
}

func TestComputePackage_RoundsUpPartialBlock(t *testing.T) {
	usage := price.NewUsage("usage-1", "storage", "metric-1", price.UsagePricing{
		Package: &price.PackagePricing{BlockSize: 100, Rate: decimal.NewFromInt(10)},
	})

	line := computeUsage(usage, Inputs{Quantity: decimal.NewFromInt(101), Currency: "usd"})
	// 101 units => 2 blocks => 20.00
	assert.Equal(t, "20.00", line.Amount.StringFixed(2))
}

func TestCapacityOverage_ZeroBelowIncluded(t *testing.T) {
	capComp := price.NewCapacity("cap-1", "requests", "metric-1", []price.CapacityThreshold{
		{IncludedAmount: decimal.NewFromInt(1000), Price: decimal.NewFromInt(50), PerUnitOverage: decimal.NewFromFloat(0.01)},
	})
	line := CapacityOverage(capComp, decimal.NewFromInt(1000), decimal.NewFromInt(900), capComp.Thresholds[0], "usd")
	assert.True(t, line.Amount.IsZero())
}

func TestCapacityOverage_ChargesAboveIncluded(t *testing.T) {
	capComp := price.NewCapacity("cap-1", "requests", "metric-1", []price.CapacityThreshold{
		{IncludedAmount: decimal.NewFromInt(1000), Price: decimal.NewFromInt(50), PerUnitOverage: decimal.NewFromFloat(0.01)},
	})
	line := CapacityOverage(capComp, decimal.NewFromInt(1000), decimal.NewFromInt(1500), capComp.Thresholds[0], "usd")
	assert.Equal(t, "5.00", line.Amount.StringFixed(2))
}
