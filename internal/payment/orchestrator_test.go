package payment

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerbase/billing/internal/domain/invoice"
	paymentDomain "github.com/ledgerbase/billing/internal/domain/payment"
	"github.com/ledgerbase/billing/internal/domain/slot"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	"github.com/ledgerbase/billing/internal/provider"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type fakeSubRepo struct {
	subs map[string]*subscription.Subscription
}

func (r *fakeSubRepo) Get(ctx context.Context, tenantID, id string) (*subscription.Subscription, error) {
	return r.subs[id], nil
}
func (r *fakeSubRepo) Create(ctx context.Context, sub *subscription.Subscription) error {
	r.subs[sub.ID] = sub
	return nil
}
func (r *fakeSubRepo) Update(ctx context.Context, sub *subscription.Subscription) error {
	r.subs[sub.ID] = sub
	return nil
}
func (r *fakeSubRepo) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (r *fakeSubRepo) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*subscription.Subscription, error) {
	return nil, nil
}

type fakePaymentRepo struct {
	txs map[string]*paymentDomain.Transaction
}

func (r *fakePaymentRepo) Get(ctx context.Context, tenantID, id string) (*paymentDomain.Transaction, error) {
	return r.txs[id], nil
}
func (r *fakePaymentRepo) Create(ctx context.Context, tx *paymentDomain.Transaction) error {
	tx.ID = "ptx-1"
	r.txs[tx.ID] = tx
	return nil
}
func (r *fakePaymentRepo) Update(ctx context.Context, tx *paymentDomain.Transaction) error {
	r.txs[tx.ID] = tx
	return nil
}
func (r *fakePaymentRepo) ListActiveForInvoice(ctx context.Context, tenantID, invoiceID string) ([]*paymentDomain.Transaction, error) {
	var out []*paymentDomain.Transaction
	for _, tx := range r.txs {
		for _, id := range tx.InvoiceIDs {
			if id == invoiceID && tx.Status.IsActiveHold() {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}

type fakeSlotRepo struct{}

func (f *fakeSlotRepo) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	return nil, nil
}
func (f *fakeSlotRepo) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}
func (f *fakeSlotRepo) Insert(ctx context.Context, tx *slot.Transaction) error { return nil }
func (f *fakeSlotRepo) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	return nil
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

func TestPayInvoice_SettlesAndActivatesTrialSubscription(t *testing.T) {
	invRepo := &fakeInvoiceRepo{invoices: map[string]*invoice.Invoice{
		"inv-1": {
			ID: "inv-1", CustomerID: "cust-1", SubscriptionID: strPtr("sub-1"),
			Status: types.InvoiceStatusFinalized, Currency: "usd",
			TotalCents: 1000, AmountDueCents: 1000,
		},
	}}
	subRepo := &fakeSubRepo{subs: map[string]*subscription.Subscription{
		"sub-1": {ID: "sub-1", Status: types.SubscriptionStatusTrialExpired},
	}}
	payRepo := &fakePaymentRepo{txs: map[string]*paymentDomain.Transaction{}}
	ledger := slotledger.New(&fakeSlotRepo{})
	fp := &fakeProvider{result: provider.ChargeResult{ProviderTxID: "pi_1", Status: provider.ChargeSucceeded}}

	o := New(map[string]provider.PaymentProvider{"fake": fp}, invRepo, subRepo, payRepo, ledger, nil)

	tx, err := o.PayInvoice(context.Background(), "t1", "inv-1", "fake", "pm_ext", "idem-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusSettled, tx.Status)
	assert.Equal(t, types.InvoicePaymentStatusPaid, invRepo.invoices["inv-1"].PaymentStatus)
	assert.Equal(t, types.SubscriptionStatusActive, subRepo.subs["sub-1"].Status)
}

func TestPayInvoice_RejectsDuplicatePending(t *testing.T) {
	invRepo := &fakeInvoiceRepo{invoices: map[string]*invoice.Invoice{
		"inv-1": {ID: "inv-1", CustomerID: "cust-1", Status: types.InvoiceStatusFinalized, Currency: "usd", TotalCents: 1000, AmountDueCents: 1000},
	}}
	subRepo := &fakeSubRepo{subs: map[string]*subscription.Subscription{}}
	payRepo := &fakePaymentRepo{txs: map[string]*paymentDomain.Transaction{
		"existing": {ID: "existing", InvoiceIDs: []string{"inv-1"}, Status: types.PaymentStatusPending, AmountCents: 1000},
	}}
	ledger := slotledger.New(&fakeSlotRepo{})
	fp := &fakeProvider{result: provider.ChargeResult{Status: provider.ChargeSucceeded}}

	o := New(map[string]provider.PaymentProvider{"fake": fp}, invRepo, subRepo, payRepo, ledger, nil)

	_, err := o.PayInvoice(context.Background(), "t1", "inv-1", "fake", "pm_ext", "idem-1")
	require.Error(t, err)
}

func TestPayInvoice_SettlementUpdatesSubscriptionDefaultPaymentMethod(t *testing.T) {
	invRepo := &fakeInvoiceRepo{invoices: map[string]*invoice.Invoice{
		"inv-1": {
			ID: "inv-1", CustomerID: "cust-1", SubscriptionID: strPtr("sub-1"),
			Status: types.InvoiceStatusFinalized, Currency: "usd",
			TotalCents: 1000, AmountDueCents: 1000,
		},
	}}
	subRepo := &fakeSubRepo{subs: map[string]*subscription.Subscription{
		"sub-1": {ID: "sub-1", Status: types.SubscriptionStatusActive},
	}}
	payRepo := &fakePaymentRepo{txs: map[string]*paymentDomain.Transaction{}}
	ledger := slotledger.New(&fakeSlotRepo{})
	fp := &fakeProvider{result: provider.ChargeResult{ProviderTxID: "pi_1", Status: provider.ChargeSucceeded}}

	o := New(map[string]provider.PaymentProvider{"fake": fp}, invRepo, subRepo, payRepo, ledger, nil)

	_, err := o.PayInvoice(context.Background(), "t1", "inv-1", "fake", "pm_ext", "idem-1")
	require.NoError(t, err)

	sub := subRepo.subs["sub-1"]
	require.NotNil(t, sub.PaymentMethodType)
	require.NotNil(t, sub.PaymentMethodID)
	assert.Equal(t, "fake", *sub.PaymentMethodType)
	assert.Equal(t, "pm_ext", *sub.PaymentMethodID)
}

func strPtr(s string) *string { return &s }
