package billing

import (
	"context"
	"testing"
	"time"

	couponDomain "github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/meter"
	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/slot"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/ledgerbase/billing/internal/usage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMeterRepo struct {
	metrics map[string]*meter.Metric
}

func (r *fakeMeterRepo) Get(ctx context.Context, tenantID, id string) (*meter.Metric, error) {
	return r.metrics[id], nil
}
func (r *fakeMeterRepo) GetByCode(ctx context.Context, tenantID, code string) (*meter.Metric, error) {
	return nil, nil
}
func (r *fakeMeterRepo) List(ctx context.Context, tenantID string) ([]*meter.Metric, error) {
	return nil, nil
}

type fakeUsageClient struct {
	total decimal.Decimal
}

func (c *fakeUsageClient) Query(ctx context.Context, q usage.Query) ([]usage.Group, error) {
	return []usage.Group{{Quantity: c.total}}, nil
}

type noopSlotRepo struct{}

func (noopSlotRepo) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	return nil, nil
}
func (noopSlotRepo) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}
func (noopSlotRepo) Insert(ctx context.Context, tx *slot.Transaction) error { return nil }
func (noopSlotRepo) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	return nil
}

type zeroTaxEngine struct{}

func (zeroTaxEngine) Apply(ctx context.Context, tenantID string, cust tax.Customer, lines []tax.Line) (tax.Result, error) {
	result := tax.Result{PerLineCents: map[int]int64{}}
	for _, l := range lines {
		result.PerLineCents[l.Index] = 0
	}
	return result, nil
}

func baseSubscription() *subscription.Subscription {
	return &subscription.Subscription{
		ID:               "sub-1",
		CustomerID:       "cust-1",
		PlanVersionID:    "pv-1",
		StartDate:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingDayAnchor: 1,
		BillingPeriod:    types.BILLING_PERIOD_MONTHLY,
		Status:           types.SubscriptionStatusActive,
		BaseModel:        types.BaseModel{TenantID: "t1"},
	}
}

func TestCompose_RateAndArrearUsage(t *testing.T) {
	sub := baseSubscription()
	pv := &plan.PlanVersion{
		ID:       "pv-1",
		PlanID:   "plan-1",
		Currency: "usd",
		Components: []price.Component{
			price.NewRate("rate-1", "Base plan", decimal.NewFromInt(1000)),
			price.NewUsage("usage-1", "API calls", "m1", price.UsagePricing{PerUnit: decPtr("0.01")}),
		},
	}
	cust := &customer.Customer{ID: "cust-1"}

	composer := NewComposer(
		&fakeMeterRepo{metrics: map[string]*meter.Metric{"m1": {ID: "m1", Code: "calls", SegmentationMatrix: types.SEGMENTATION_NONE}}},
		&fakeUsageClient{total: decimal.NewFromInt(100)},
		slotledger.New(noopSlotRepo{}),
		zeroTaxEngine{},
		"US",
	)

	inv, err := composer.Compose(context.Background(), Input{
		Subscription: sub,
		PlanVersion:  pv,
		Customer:     cust,
		InvoiceDate:  time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, inv.Lines, 2)
	assert.Equal(t, int64(100000), inv.Lines[0].SubtotalCents) // 1000.00 rate
	assert.Equal(t, int64(100), inv.Lines[1].SubtotalCents)    // 100 units * 0.01
	assert.Equal(t, int64(100100), inv.SubtotalCents)
	assert.Equal(t, int64(100100), inv.TotalCents)
	assert.Equal(t, int64(100100), inv.AmountDueCents)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), inv.PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), inv.PeriodEnd)
}

func TestCompose_AppliesCouponDiscount(t *testing.T) {
	sub := baseSubscription()
	pv := &plan.PlanVersion{
		ID: "pv-1", PlanID: "plan-1", Currency: "usd",
		Components: []price.Component{
			price.NewRate("rate-1", "Base plan", decimal.NewFromInt(1000)),
		},
	}
	cust := &customer.Customer{ID: "cust-1"}

	composer := NewComposer(
		&fakeMeterRepo{metrics: map[string]*meter.Metric{}},
		&fakeUsageClient{},
		slotledger.New(noopSlotRepo{}),
		zeroTaxEngine{},
		"US",
	)

	coupons := []*couponDomain.Detailed{{
		Coupon: couponDomain.Coupon{
			ID: "coup-1", Code: "TENOFF",
			Discount: couponDomain.Discount{Type: types.CouponDiscountPercentage, Percent: decimal.NewFromInt(10)},
		},
		Applied: couponDomain.AppliedCoupon{ID: "applied-1", Status: couponDomain.AppliedCouponActive, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}

	inv, err := composer.Compose(context.Background(), Input{
		Subscription:   sub,
		PlanVersion:    pv,
		Customer:       cust,
		InvoiceDate:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		AppliedCoupons: coupons,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100000), inv.SubtotalCents)
	assert.Equal(t, int64(10000), inv.DiscountCents)
	assert.Equal(t, int64(90000), inv.TotalCents)
	require.Len(t, inv.AppliedCouponIDs, 1)
	assert.Equal(t, "coup-1", inv.AppliedCouponIDs[0])
}

func decPtr(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}
