package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerbase/billing/internal/billing"
	checkoutDomain "github.com/ledgerbase/billing/internal/domain/checkout"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	"github.com/ledgerbase/billing/internal/domain/meter"
	paymentDomain "github.com/ledgerbase/billing/internal/domain/payment"
	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/slot"
	subdomain "github.com/ledgerbase/billing/internal/domain/subscription"
	"github.com/ledgerbase/billing/internal/payment"
	"github.com/ledgerbase/billing/internal/provider"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/subscription"
	"github.com/ledgerbase/billing/internal/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/ledgerbase/billing/internal/usage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckoutRepo struct {
	sessions map[string]*checkoutDomain.Session
}

func (r *fakeCheckoutRepo) Get(ctx context.Context, tenantID, id string) (*checkoutDomain.Session, error) {
	return r.sessions[id], nil
}
func (r *fakeCheckoutRepo) Create(ctx context.Context, s *checkoutDomain.Session) error {
	r.sessions[s.ID] = s
	return nil
}
func (r *fakeCheckoutRepo) Update(ctx context.Context, s *checkoutDomain.Session) error {
	r.sessions[s.ID] = s
	return nil
}
func (r *fakeCheckoutRepo) ListExpiring(ctx context.Context, tenantID string, asOf time.Time, limit int) ([]*checkoutDomain.Session, error) {
	return nil, nil
}

type fakeSubRepo struct {
	subs map[string]*subdomain.Subscription
}

func (r *fakeSubRepo) Get(ctx context.Context, tenantID, id string) (*subdomain.Subscription, error) {
	return r.subs[id], nil
}
func (r *fakeSubRepo) Create(ctx context.Context, sub *subdomain.Subscription) error {
	r.subs[sub.ID] = sub
	return nil
}
func (r *fakeSubRepo) Update(ctx context.Context, sub *subdomain.Subscription) error {
	r.subs[sub.ID] = sub
	return nil
}
func (r *fakeSubRepo) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*subdomain.Subscription, error) {
	return nil, nil
}
func (r *fakeSubRepo) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*subdomain.Subscription, error) {
	return nil, nil
}

type fakePlanRepo struct {
	versions map[string]*plan.PlanVersion
}

func (r *fakePlanRepo) GetPlan(ctx context.Context, tenantID, id string) (*plan.Plan, error) {
	return nil, nil
}
func (r *fakePlanRepo) GetVersion(ctx context.Context, tenantID, id string) (*plan.PlanVersion, error) {
	return r.versions[id], nil
}
func (r *fakePlanRepo) GetDraftVersion(ctx context.Context, tenantID, planID string) (*plan.PlanVersion, error) {
	return nil, nil
}

type fakeCustRepo struct {
	customers map[string]*customer.Customer
}

func (r *fakeCustRepo) Get(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	return r.customers[id], nil
}
func (r *fakeCustRepo) Update(ctx context.Context, c *customer.Customer) error {
	r.customers[c.ID] = c
	return nil
}
func (r *fakeCustRepo) AdjustBalance(ctx context.Context, tenantID, customerID string, deltaCents int64) error {
	return nil
}

type fakeInvoiceRepo struct {
	invoices map[string]*invoice.Invoice
}

func (r *fakeInvoiceRepo) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	return r.invoices[id], nil
}
func (r *fakeInvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}
func (r *fakeInvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}
func (r *fakeInvoiceRepo) ListDraftForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*invoice.Invoice, error) {
	return nil, nil
}

type fakePaymentRepo struct {
	txs map[string]*paymentDomain.Transaction
}

func (r *fakePaymentRepo) Get(ctx context.Context, tenantID, id string) (*paymentDomain.Transaction, error) {
	return r.txs[id], nil
}
func (r *fakePaymentRepo) Create(ctx context.Context, tx *paymentDomain.Transaction) error {
	r.txs[tx.ID] = tx
	return nil
}
func (r *fakePaymentRepo) Update(ctx context.Context, tx *paymentDomain.Transaction) error {
	r.txs[tx.ID] = tx
	return nil
}
func (r *fakePaymentRepo) ListActiveForInvoice(ctx context.Context, tenantID, invoiceID string) ([]*paymentDomain.Transaction, error) {
	return nil, nil
}

type fakeNumberer struct{}

func (fakeNumberer) NextInvoiceNumber(ctx context.Context, tenantID, invoicingEntityID string) (string, error) {
	return "INV-TEST", nil
}

type noCouponLedger struct{}

func (noCouponLedger) IncrementRedemption(ctx context.Context, tenantID, appliedCouponID string, amountApplied decimal.Decimal) error {
	return nil
}

type noopSlots struct{}

func (noopSlots) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	return nil, nil
}
func (noopSlots) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}
func (noopSlots) Insert(ctx context.Context, tx *slot.Transaction) error { return nil }
func (noopSlots) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	return nil
}

type zeroTax struct{}

func (zeroTax) Apply(ctx context.Context, tenantID string, cust tax.Customer, lines []tax.Line) (tax.Result, error) {
	r := tax.Result{PerLineCents: map[int]int64{}}
	for _, l := range lines {
		r.PerLineCents[l.Index] = 0
	}
	return r, nil
}

type noUsage struct{}

func (noUsage) Query(ctx context.Context, q usage.Query) ([]usage.Group, error) {
	return nil, nil
}

type noopMeters struct{}

func (noopMeters) Get(ctx context.Context, tenantID, id string) (*meter.Metric, error) {
	return nil, nil
}
func (noopMeters) GetByCode(ctx context.Context, tenantID, code string) (*meter.Metric, error) {
	return nil, nil
}
func (noopMeters) List(ctx context.Context, tenantID string) ([]*meter.Metric, error) {
	return nil, nil
}

type fakeProvider struct {
	result provider.ChargeResult
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Charge(ctx context.Context, req provider.ChargeRequest) (provider.ChargeResult, error) {
	return f.result, f.err
}
func (f *fakeProvider) Refund(ctx context.Context, providerTxID string, amountCents int64) error {
	return nil
}

func newTestService(fp *fakeProvider) (*Service, *fakeCheckoutRepo, *fakeSubRepo, *fakePlanRepo, *fakeCustRepo) {
	checkouts := &fakeCheckoutRepo{sessions: map[string]*checkoutDomain.Session{}}
	subs := &fakeSubRepo{subs: map[string]*subdomain.Subscription{}}
	plans := &fakePlanRepo{versions: map[string]*plan.PlanVersion{}}
	custs := &fakeCustRepo{customers: map[string]*customer.Customer{}}
	invoices := &fakeInvoiceRepo{invoices: map[string]*invoice.Invoice{}}
	paymentTxs := &fakePaymentRepo{txs: map[string]*paymentDomain.Transaction{}}

	composer := billing.NewComposer(noopMeters{}, noUsage{}, slotledger.New(noopSlots{}), zeroTax{}, "US")
	finalizer := billing.NewFinalizer(composer, invoices, custs, fakeNumberer{}, noCouponLedger{}, nil, "Test Seller Inc.")
	engine := subscription.New(composer, finalizer, subs, plans, custs, checkouts, nil, nil, nil)

	orchestrator := payment.New(map[string]provider.PaymentProvider{"fake": fp}, invoices, subs, paymentTxs, slotledger.New(noopSlots{}), nil)

	svc := New(checkouts, subs, plans, custs, engine, orchestrator, nil)
	return svc, checkouts, subs, plans, custs
}

func TestCompleteCheckout_CreatesSubscriptionAndStartsTrial(t *testing.T) {
	fp := &fakeProvider{result: provider.ChargeResult{ProviderTxID: "pi_1", Status: provider.ChargeSucceeded}}
	svc, checkouts, subs, plans, custs := newTestService(fp)

	plans.versions["pv-1"] = &plan.PlanVersion{
		ID: "pv-1", Currency: "usd",
		AllowedBillingPeriods: []types.BillingPeriod{types.BILLING_PERIOD_MONTHLY},
		Trial:                 &plan.TrialPolicy{Duration: 14 * 24 * time.Hour},
		Components:            []price.Component{price.NewRate("rate-1", "Base plan", decimal.NewFromInt(1000))},
	}
	custs.customers["cust-1"] = &customer.Customer{
		ID: "cust-1", InvoicingEntityID: "ie-1",
		PaymentMethods: []customer.PaymentMethod{
			{ID: "pm-1", Type: "card", ProviderConnectionID: "fake", ExternalID: "pm_ext_1", IsDefault: true},
		},
		DefaultPaymentMethodID: "pm-1",
	}
	pvID := "pv-1"
	session := &checkoutDomain.Session{
		ID: "cs-1", CustomerID: "cust-1", PlanVersionID: &pvID,
		Status: types.CheckoutStatusCreated, ExpiresAt: time.Now().Add(time.Hour),
	}
	session.TenantID = "t1"
	checkouts.sessions["cs-1"] = session

	result, err := svc.CompleteCheckout(context.Background(), "t1", "cs-1", "", 1000, "usd", time.Now())
	require.NoError(t, err)

	assert.Equal(t, types.CheckoutStatusCompleted, result.Status)
	require.NotNil(t, result.SubscriptionID)
	sub := subs.subs[*result.SubscriptionID]
	require.NotNil(t, sub)
	assert.Equal(t, types.SubscriptionStatusTrialActive, sub.Status)
	assert.Equal(t, "pm-1", *sub.PaymentMethodID)
}

func TestCompleteCheckout_RejectsTerminalSession(t *testing.T) {
	fp := &fakeProvider{result: provider.ChargeResult{Status: provider.ChargeSucceeded}}
	svc, checkouts, _, _, _ := newTestService(fp)

	session := &checkoutDomain.Session{ID: "cs-1", Status: types.CheckoutStatusCancelled}
	session.TenantID = "t1"
	checkouts.sessions["cs-1"] = session

	_, err := svc.CompleteCheckout(context.Background(), "t1", "cs-1", "", 1000, "usd", time.Now())
	require.Error(t, err)
}

func TestCompleteCheckout_ChargeFailed_LeavesSessionIncomplete(t *testing.T) {
	fp := &fakeProvider{result: provider.ChargeResult{Status: provider.ChargeFailed, FailureCode: "card_declined"}}
	svc, checkouts, _, plans, custs := newTestService(fp)

	plans.versions["pv-1"] = &plan.PlanVersion{
		ID: "pv-1", Currency: "usd",
		AllowedBillingPeriods: []types.BillingPeriod{types.BILLING_PERIOD_MONTHLY},
		Components:            []price.Component{price.NewRate("rate-1", "Base plan", decimal.NewFromInt(1000))},
	}
	custs.customers["cust-1"] = &customer.Customer{
		ID: "cust-1", InvoicingEntityID: "ie-1",
		PaymentMethods: []customer.PaymentMethod{
			{ID: "pm-1", Type: "card", ProviderConnectionID: "fake", ExternalID: "pm_ext_1", IsDefault: true},
		},
		DefaultPaymentMethodID: "pm-1",
	}
	pvID := "pv-1"
	session := &checkoutDomain.Session{
		ID: "cs-1", CustomerID: "cust-1", PlanVersionID: &pvID,
		Status: types.CheckoutStatusCreated, ExpiresAt: time.Now().Add(time.Hour),
	}
	session.TenantID = "t1"
	checkouts.sessions["cs-1"] = session

	_, err := svc.CompleteCheckout(context.Background(), "t1", "cs-1", "", 1000, "usd", time.Now())
	require.Error(t, err)
	assert.NotEqual(t, types.CheckoutStatusCompleted, checkouts.sessions["cs-1"].Status)
}
