package tax

import (
	"context"
	"testing"

	taxDomain "github.com/ledgerbase/billing/internal/domain/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRateRepo struct {
	rates []*taxDomain.Rate
}

func (f *fakeRateRepo) ListForCountry(ctx context.Context, tenantID, country string) ([]*taxDomain.Rate, error) {
	var out []*taxDomain.Rate
	for _, r := range f.rates {
		if r.Country == country {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestManualTaxEngine_ExemptCustomerPaysNoTax(t *testing.T) {
	engine := NewManualEngine(&fakeRateRepo{})
	result, err := engine.Apply(context.Background(), "t1", Customer{
		Country:      "us",
		TaxExemption: types.TaxExemptionTaxExempt,
	}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, types.TaxExemptionTaxExempt, result.Breakdown[0].ExemptionType)
	assert.True(t, result.Breakdown[0].Percent.IsZero())
}

func TestManualTaxEngine_PrefersRegionOverCountry(t *testing.T) {
	repo := &fakeRateRepo{rates: []*taxDomain.Rate{
		{Country: "us", Region: "", Percent: decimal.NewFromInt(5), Name: "US"},
		{Country: "us", Region: "ca", Percent: decimal.NewFromInt(9), Name: "US-CA"},
	}}
	engine := NewManualEngine(repo)

	result, err := engine.Apply(context.Background(), "t1", Customer{Country: "us", Region: "ca"}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(900), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, "US-CA", result.Breakdown[0].Name)
}

func TestManualTaxEngine_FallsBackToCountryRate(t *testing.T) {
	repo := &fakeRateRepo{rates: []*taxDomain.Rate{
		{Country: "us", Region: "", Percent: decimal.NewFromInt(5), Name: "US"},
	}}
	engine := NewManualEngine(repo)

	result, err := engine.Apply(context.Background(), "t1", Customer{Country: "us", Region: "ny"}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.PerLineCents[0])
}

func TestManualTaxEngine_CustomPercentOverride(t *testing.T) {
	engine := NewManualEngine(&fakeRateRepo{})
	custom := 12.5
	result, err := engine.Apply(context.Background(), "t1", Customer{Country: "us", CustomPercent: &custom}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(1250), result.PerLineCents[0])
}

func TestManualTaxEngine_NoMatchingRateMeansNoTax(t *testing.T) {
	engine := NewManualEngine(&fakeRateRepo{})
	result, err := engine.Apply(context.Background(), "t1", Customer{Country: "de"}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, types.TaxExemptionNoTax, result.Breakdown[0].ExemptionType)
}

func TestAutomaticTaxEngine_DomesticChargesFlatRate(t *testing.T) {
	engine := NewAutomaticEngineWithRates(map[string]decimal.Decimal{"FR": decimal.NewFromInt(20)})
	result, err := engine.Apply(context.Background(), "t1", Customer{
		Country:       "FR",
		SellerCountry: "FR",
	}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, "VAT", result.Breakdown[0].Name)
	assert.True(t, result.Breakdown[0].Percent.Equal(decimal.NewFromInt(20)))
}

func TestAutomaticTaxEngine_CrossBorderB2BReverseCharges(t *testing.T) {
	engine := NewAutomaticEngineWithRates(map[string]decimal.Decimal{"FR": decimal.NewFromInt(20), "DE": decimal.NewFromInt(19)})
	result, err := engine.Apply(context.Background(), "t1", Customer{
		Country:        "DE",
		SellerCountry:  "FR",
		VATNumber:      "DE123456789",
		VATFormatValid: true,
	}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, types.TaxExemptionReverseCharge, result.Breakdown[0].ExemptionType)
	assert.True(t, result.Breakdown[0].Percent.IsZero())
}

func TestAutomaticTaxEngine_CrossBorderB2CChargesCustomerCountryRate(t *testing.T) {
	engine := NewAutomaticEngineWithRates(map[string]decimal.Decimal{"FR": decimal.NewFromInt(20), "DE": decimal.NewFromInt(19)})
	result, err := engine.Apply(context.Background(), "t1", Customer{
		Country:       "DE",
		SellerCountry: "FR",
	}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(1900), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.True(t, result.Breakdown[0].Percent.Equal(decimal.NewFromInt(19)))
}

func TestAutomaticTaxEngine_UnknownCountryMeansNoTax(t *testing.T) {
	engine := NewAutomaticEngineWithRates(map[string]decimal.Decimal{"FR": decimal.NewFromInt(20)})
	result, err := engine.Apply(context.Background(), "t1", Customer{
		Country:       "ZZ",
		SellerCountry: "FR",
	}, []Line{{Index: 0, TaxableCents: 10000}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.PerLineCents[0])
	require.Len(t, result.Breakdown, 1)
	assert.Equal(t, types.TaxExemptionNoTax, result.Breakdown[0].ExemptionType)
}
