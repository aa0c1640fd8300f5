package billing

import (
	"context"
	"testing"
	"time"

	couponDomain "github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
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

type fakeInvoiceRepoForFinalize struct {
	invoices map[string]*invoice.Invoice
}

func (r *fakeInvoiceRepoForFinalize) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	return r.invoices[id], nil
}
func (r *fakeInvoiceRepoForFinalize) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}
func (r *fakeInvoiceRepoForFinalize) Update(ctx context.Context, inv *invoice.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}
func (r *fakeInvoiceRepoForFinalize) ListDraftForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*invoice.Invoice, error) {
	return nil, nil
}

type fakeCustomerRepo struct {
	customers map[string]*customer.Customer
	adjusted  int64
}

func (r *fakeCustomerRepo) Get(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	return r.customers[id], nil
}
func (r *fakeCustomerRepo) Update(ctx context.Context, c *customer.Customer) error {
	r.customers[c.ID] = c
	return nil
}
func (r *fakeCustomerRepo) AdjustBalance(ctx context.Context, tenantID, customerID string, deltaCents int64) error {
	r.adjusted += deltaCents
	if c, ok := r.customers[customerID]; ok {
		c.BalanceCents += deltaCents
	}
	return nil
}

type fakeNumberer struct {
	calls int
}

func (n *fakeNumberer) NextInvoiceNumber(ctx context.Context, tenantID, invoicingEntityID string) (string, error) {
	n.calls++
	return "INV-0001", nil
}

type fakeCouponLedger struct {
	redemptions map[string]decimal.Decimal
}

func (l *fakeCouponLedger) IncrementRedemption(ctx context.Context, tenantID, appliedCouponID string, amountApplied decimal.Decimal) error {
	if l.redemptions == nil {
		l.redemptions = map[string]decimal.Decimal{}
	}
	l.redemptions[appliedCouponID] = amountApplied
	return nil
}

type fakeOutbox struct {
	events []string
}

func (o *fakeOutbox) Write(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) error {
	o.events = append(o.events, topic)
	return nil
}

func newTestComposer() *Composer {
	return NewComposer(
		&fakeMeterRepo{metrics: map[string]*meter.Metric{}},
		&fakeUsageClient{},
		slotledger.New(noopSlotRepoForFinalize{}),
		zeroTaxEngine{},
		"US",
	)
}

type noopSlotRepoForFinalize struct{}

func (noopSlotRepoForFinalize) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	return nil, nil
}
func (noopSlotRepoForFinalize) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}
func (noopSlotRepoForFinalize) Insert(ctx context.Context, tx *slot.Transaction) error { return nil }
func (noopSlotRepoForFinalize) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	return nil
}

var _ usage.Client = (*fakeUsageClient)(nil)
var _ tax.Engine = zeroTaxEngine{}

func baseFinalizeInput() (Input, *subscription.Subscription, *customer.Customer) {
	sub := baseSubscription()
	pv := &plan.PlanVersion{
		ID: "pv-1", PlanID: "plan-1", Currency: "usd",
		Components: []price.Component{
			price.NewRate("rate-1", "Base plan", decimal.NewFromInt(1000)),
		},
	}
	cust := &customer.Customer{ID: "cust-1", BalanceCents: 0}
	in := Input{
		Subscription: sub,
		PlanVersion:  pv,
		Customer:     cust,
		InvoiceDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	return in, sub, cust
}

func TestFinalize_RejectsNonDraftInvoice(t *testing.T) {
	in, _, cust := baseFinalizeInput()
	inv := &invoice.Invoice{ID: "inv-1", Status: types.InvoiceStatusFinalized}

	invRepo := &fakeInvoiceRepoForFinalize{invoices: map[string]*invoice.Invoice{"inv-1": inv}}
	custRepo := &fakeCustomerRepo{customers: map[string]*customer.Customer{"cust-1": cust}}
	numberer := &fakeNumberer{}
	coupons := &fakeCouponLedger{}
	outbox := &fakeOutbox{}

	f := NewFinalizer(newTestComposer(), invRepo, custRepo, numberer, coupons, outbox, "Test Seller Inc.")

	err := f.Finalize(context.Background(), "t1", "ie-1", inv, cust, in)
	require.Error(t, err)
	assert.Equal(t, 0, numberer.calls)
	assert.Empty(t, outbox.events)
}

func TestFinalize_MintsNumberAppliesCouponsAndEmitsEvent(t *testing.T) {
	in, _, cust := baseFinalizeInput()
	coupons := []*couponDomain.Detailed{{
		Coupon: couponDomain.Coupon{
			ID: "coup-1", Code: "TENOFF",
			Discount: couponDomain.Discount{Type: types.CouponDiscountPercentage, Percent: decimal.NewFromInt(10)},
		},
		Applied: couponDomain.AppliedCoupon{ID: "applied-1", Status: couponDomain.AppliedCouponActive, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}
	in.AppliedCoupons = coupons

	inv := &invoice.Invoice{
		ID: "inv-1", CustomerID: "cust-1", SubscriptionID: &in.Subscription.ID,
		Status: types.InvoiceStatusDraft, Currency: "usd",
	}

	invRepo := &fakeInvoiceRepoForFinalize{invoices: map[string]*invoice.Invoice{"inv-1": inv}}
	custRepo := &fakeCustomerRepo{customers: map[string]*customer.Customer{"cust-1": cust}}
	numberer := &fakeNumberer{}
	ledger := &fakeCouponLedger{}
	outbox := &fakeOutbox{}

	f := NewFinalizer(newTestComposer(), invRepo, custRepo, numberer, ledger, outbox, "Test Seller Inc.")

	err := f.Finalize(context.Background(), "t1", "ie-1", inv, cust, in)
	require.NoError(t, err)

	assert.Equal(t, types.InvoiceStatusFinalized, inv.Status)
	assert.Equal(t, "INV-0001", inv.InvoiceNumber)
	assert.NotNil(t, inv.FinalizedAt)
	assert.NotNil(t, inv.IssuedAt)
	assert.Equal(t, int64(100000), inv.SubtotalCents)
	assert.Equal(t, int64(10000), inv.DiscountCents)
	assert.Equal(t, int64(90000), inv.TotalCents)
	require.Contains(t, ledger.redemptions, "applied-1")
	assert.True(t, ledger.redemptions["applied-1"].Equal(decimal.NewFromInt(100)))
	require.Len(t, outbox.events, 1)
	assert.Equal(t, "invoice.finalized", outbox.events[0])
	assert.Equal(t, 1, numberer.calls)
}

func TestFinalize_AppliesCreditsAgainstCustomerBalance(t *testing.T) {
	in, _, cust := baseFinalizeInput()
	cust.BalanceCents = 50000
	in.AutoApplyCredits = true

	inv := &invoice.Invoice{
		ID: "inv-1", CustomerID: "cust-1", SubscriptionID: &in.Subscription.ID,
		Status: types.InvoiceStatusDraft, Currency: "usd",
	}

	invRepo := &fakeInvoiceRepoForFinalize{invoices: map[string]*invoice.Invoice{"inv-1": inv}}
	custRepo := &fakeCustomerRepo{customers: map[string]*customer.Customer{"cust-1": cust}}
	numberer := &fakeNumberer{}
	ledger := &fakeCouponLedger{}
	outbox := &fakeOutbox{}

	f := NewFinalizer(newTestComposer(), invRepo, custRepo, numberer, ledger, outbox, "Test Seller Inc.")

	err := f.Finalize(context.Background(), "t1", "ie-1", inv, cust, in)
	require.NoError(t, err)

	assert.Equal(t, int64(50000), inv.AppliedCreditCents)
	assert.Equal(t, int64(50000), inv.AmountDueCents)
	assert.Equal(t, int64(-50000), custRepo.adjusted)
	assert.Equal(t, int64(0), cust.BalanceCents)
}

func TestFinalize_FreezesSellerAndCustomerSnapshots(t *testing.T) {
	in, _, cust := baseFinalizeInput()
	cust.Alias = "Acme Inc."
	cust.BillingAddress = customer.Address{Line1: "1 Main St", City: "Paris", Country: "FR"}
	cust.VATNumber = "FR12345678901"

	inv := &invoice.Invoice{
		ID: "inv-1", CustomerID: "cust-1", SubscriptionID: &in.Subscription.ID,
		Status: types.InvoiceStatusDraft, Currency: "usd",
	}

	invRepo := &fakeInvoiceRepoForFinalize{invoices: map[string]*invoice.Invoice{"inv-1": inv}}
	custRepo := &fakeCustomerRepo{customers: map[string]*customer.Customer{"cust-1": cust}}
	numberer := &fakeNumberer{}
	ledger := &fakeCouponLedger{}
	outbox := &fakeOutbox{}

	f := NewFinalizer(newTestComposer(), invRepo, custRepo, numberer, ledger, outbox, "Test Seller Inc.")

	err := f.Finalize(context.Background(), "t1", "ie-1", inv, cust, in)
	require.NoError(t, err)

	require.NotNil(t, inv.SellerDetails)
	assert.Equal(t, "Test Seller Inc.", inv.SellerDetails.Name)
	assert.Equal(t, "US", inv.SellerDetails.Country)

	require.NotNil(t, inv.CustomerDetails)
	assert.Equal(t, "Acme Inc.", inv.CustomerDetails.Name)
	assert.Equal(t, "FR", inv.CustomerDetails.Country)
	assert.Equal(t, "FR12345678901", inv.CustomerDetails.VATNumber)
	assert.Contains(t, inv.CustomerDetails.Address, "Paris")

	// Snapshot is frozen, not a live view: mutating the customer
	// afterward must not change the invoice's recorded details.
	cust.Alias = "Renamed Inc."
	assert.Equal(t, "Acme Inc.", inv.CustomerDetails.Name)
}
