package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerbase/billing/internal/domain/checkout"
	"github.com/ledgerbase/billing/internal/domain/coupon"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	"github.com/ledgerbase/billing/internal/domain/meter"
	"github.com/ledgerbase/billing/internal/domain/outbox"
	"github.com/ledgerbase/billing/internal/domain/payment"
	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/slot"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	"github.com/ledgerbase/billing/internal/domain/tax"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// CustomerStore implements customer.Repository.
type CustomerStore struct{ *InMemoryStore[*customer.Customer] }

func NewCustomerStore() *CustomerStore { return &CustomerStore{NewInMemoryStore[*customer.Customer]()} }

func (s *CustomerStore) Get(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	if c, ok := s.InMemoryStore.Get(id); ok {
		return c, nil
	}
	return nil, notFound("customer", id)
}
func (s *CustomerStore) Update(ctx context.Context, c *customer.Customer) error {
	s.Put(c.ID, c)
	return nil
}
func (s *CustomerStore) AdjustBalance(ctx context.Context, tenantID, customerID string, deltaCents int64) error {
	c, ok := s.InMemoryStore.Get(customerID)
	if !ok {
		return notFound("customer", customerID)
	}
	c.BalanceCents += deltaCents
	return nil
}

// SubscriptionStore implements subscription.Repository.
type SubscriptionStore struct{ *InMemoryStore[*subscription.Subscription] }

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{NewInMemoryStore[*subscription.Subscription]()}
}

func (s *SubscriptionStore) Get(ctx context.Context, tenantID, id string) (*subscription.Subscription, error) {
	if v, ok := s.InMemoryStore.Get(id); ok {
		return v, nil
	}
	return nil, notFound("subscription", id)
}
func (s *SubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	s.Put(sub.ID, sub)
	return nil
}
func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	s.Put(sub.ID, sub)
	return nil
}
func (s *SubscriptionStore) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for _, sub := range s.All() {
		if sub.NextCycleAction != types.CYCLE_ACTION_NONE && sub.CurrentPeriodEnd != nil && !sub.CurrentPeriodEnd.After(asOf) {
			out = append(out, sub)
		}
	}
	return out, nil
}
func (s *SubscriptionStore) ListByCustomer(ctx context.Context, tenantID, customerID string) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for _, sub := range s.All() {
		if sub.CustomerID == customerID {
			out = append(out, sub)
		}
	}
	return out, nil
}

// CheckoutStore implements checkout.Repository.
type CheckoutStore struct{ *InMemoryStore[*checkout.Session] }

func NewCheckoutStore() *CheckoutStore { return &CheckoutStore{NewInMemoryStore[*checkout.Session]()} }

func (s *CheckoutStore) Get(ctx context.Context, tenantID, id string) (*checkout.Session, error) {
	if v, ok := s.InMemoryStore.Get(id); ok {
		return v, nil
	}
	return nil, notFound("checkout session", id)
}
func (s *CheckoutStore) Create(ctx context.Context, sess *checkout.Session) error {
	s.Put(sess.ID, sess)
	return nil
}
func (s *CheckoutStore) Update(ctx context.Context, sess *checkout.Session) error {
	s.Put(sess.ID, sess)
	return nil
}
func (s *CheckoutStore) ListExpiring(ctx context.Context, tenantID string, asOf time.Time, limit int) ([]*checkout.Session, error) {
	var out []*checkout.Session
	for _, sess := range s.All() {
		if sess.Expired(asOf) {
			out = append(out, sess)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// InvoiceStore implements invoice.Repository.
type InvoiceStore struct{ *InMemoryStore[*invoice.Invoice] }

func NewInvoiceStore() *InvoiceStore { return &InvoiceStore{NewInMemoryStore[*invoice.Invoice]()} }

func (s *InvoiceStore) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	if v, ok := s.InMemoryStore.Get(id); ok {
		return v, nil
	}
	return nil, notFound("invoice", id)
}
func (s *InvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	s.Put(inv.ID, inv)
	return nil
}
func (s *InvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	s.Put(inv.ID, inv)
	return nil
}
func (s *InvoiceStore) ListDraftForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range s.All() {
		if inv.SubscriptionID != nil && *inv.SubscriptionID == subscriptionID && inv.Status == types.InvoiceStatusDraft {
			out = append(out, inv)
		}
	}
	return out, nil
}

// PaymentStore implements payment.Repository.
type PaymentStore struct{ *InMemoryStore[*payment.Transaction] }

func NewPaymentStore() *PaymentStore { return &PaymentStore{NewInMemoryStore[*payment.Transaction]()} }

func (s *PaymentStore) Get(ctx context.Context, tenantID, id string) (*payment.Transaction, error) {
	if v, ok := s.InMemoryStore.Get(id); ok {
		return v, nil
	}
	return nil, notFound("payment transaction", id)
}
func (s *PaymentStore) Create(ctx context.Context, tx *payment.Transaction) error {
	if tx.ID == "" {
		tx.ID = types.GenerateIDWithPrefix(types.IDPrefixPayment)
	}
	s.Put(tx.ID, tx)
	return nil
}
func (s *PaymentStore) Update(ctx context.Context, tx *payment.Transaction) error {
	s.Put(tx.ID, tx)
	return nil
}
func (s *PaymentStore) ListActiveForInvoice(ctx context.Context, tenantID, invoiceID string) ([]*payment.Transaction, error) {
	var out []*payment.Transaction
	for _, tx := range s.All() {
		for _, id := range tx.InvoiceIDs {
			if id == invoiceID && tx.IsActiveHold() {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}

// SlotStore implements slot.Repository as a plain append-only slice,
// mirroring the ledger's real append-only shape; LockForUpdate is a
// no-op since tests run single-threaded.
type SlotStore struct {
	mu  sync.Mutex
	txs []*slot.Transaction
}

func NewSlotStore() *SlotStore { return &SlotStore{} }

func (s *SlotStore) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*slot.Transaction
	for _, tx := range s.txs {
		if tx.SubscriptionID == subscriptionID && tx.ComponentID == componentID {
			out = append(out, tx)
		}
	}
	return out, nil
}
func (s *SlotStore) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	return nil
}
func (s *SlotStore) Insert(ctx context.Context, tx *slot.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}
func (s *SlotStore) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.InvoiceID != nil && *tx.InvoiceID == invoiceID && tx.Status == types.SlotTransactionPending {
			tx.Status = types.SlotTransactionActive
		}
	}
	return nil
}

// CouponStore implements coupon.Repository over two in-memory tables.
type CouponStore struct {
	coupons *InMemoryStore[*coupon.Coupon]
	applied *InMemoryStore[*coupon.AppliedCoupon]
}

func NewCouponStore() *CouponStore {
	return &CouponStore{coupons: NewInMemoryStore[*coupon.Coupon](), applied: NewInMemoryStore[*coupon.AppliedCoupon]()}
}
func (s *CouponStore) PutCoupon(c *coupon.Coupon) { s.coupons.Put(c.ID, c) }
func (s *CouponStore) PutApplied(a *coupon.AppliedCoupon) { s.applied.Put(a.ID, a) }

func (s *CouponStore) Get(ctx context.Context, tenantID, id string) (*coupon.Coupon, error) {
	if v, ok := s.coupons.Get(id); ok {
		return v, nil
	}
	return nil, notFound("coupon", id)
}
func (s *CouponStore) ListAppliedForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*coupon.Detailed, error) {
	var out []*coupon.Detailed
	for _, a := range s.applied.All() {
		if a.SubscriptionID != subscriptionID {
			continue
		}
		c, ok := s.coupons.Get(a.CouponID)
		if !ok {
			continue
		}
		out = append(out, &coupon.Detailed{Coupon: *c, Applied: *a})
	}
	return out, nil
}
func (s *CouponStore) IncrementRedemption(ctx context.Context, tenantID, appliedCouponID string, amountApplied decimal.Decimal) error {
	a, ok := s.applied.Get(appliedCouponID)
	if !ok {
		return notFound("applied coupon", appliedCouponID)
	}
	c, ok := s.coupons.Get(a.CouponID)
	if !ok {
		return notFound("coupon", a.CouponID)
	}
	now := time.Now()
	a.RedemptionCount++
	a.AppliedAmount = a.AppliedAmount.Add(amountApplied)
	a.LastAppliedAt = &now
	if c.IsOneShot() {
		a.Status = coupon.AppliedCouponConsumed
	}
	c.RedemptionCount++
	return nil
}

// MeterStore implements meter.Repository.
type MeterStore struct{ *InMemoryStore[*meter.Metric] }

func NewMeterStore() *MeterStore { return &MeterStore{NewInMemoryStore[*meter.Metric]()} }

func (s *MeterStore) Get(ctx context.Context, tenantID, id string) (*meter.Metric, error) {
	if v, ok := s.InMemoryStore.Get(id); ok {
		return v, nil
	}
	return nil, notFound("meter", id)
}
func (s *MeterStore) GetByCode(ctx context.Context, tenantID, code string) (*meter.Metric, error) {
	for _, m := range s.All() {
		if m.Code == code {
			return m, nil
		}
	}
	return nil, notFound("meter", code)
}
func (s *MeterStore) List(ctx context.Context, tenantID string) ([]*meter.Metric, error) {
	return s.All(), nil
}

// PlanStore implements plan.Repository.
type PlanStore struct {
	plans    *InMemoryStore[*plan.Plan]
	versions *InMemoryStore[*plan.PlanVersion]
}

func NewPlanStore() *PlanStore {
	return &PlanStore{plans: NewInMemoryStore[*plan.Plan](), versions: NewInMemoryStore[*plan.PlanVersion]()}
}
func (s *PlanStore) PutPlan(p *plan.Plan)               { s.plans.Put(p.ID, p) }
func (s *PlanStore) PutVersion(v *plan.PlanVersion)     { s.versions.Put(v.ID, v) }
func (s *PlanStore) GetPlan(ctx context.Context, tenantID, id string) (*plan.Plan, error) {
	if v, ok := s.plans.Get(id); ok {
		return v, nil
	}
	return nil, notFound("plan", id)
}
func (s *PlanStore) GetVersion(ctx context.Context, tenantID, id string) (*plan.PlanVersion, error) {
	if v, ok := s.versions.Get(id); ok {
		return v, nil
	}
	return nil, notFound("plan version", id)
}
func (s *PlanStore) GetDraftVersion(ctx context.Context, tenantID, planID string) (*plan.PlanVersion, error) {
	for _, v := range s.versions.All() {
		if v.PlanID == planID && v.IsDraft {
			return v, nil
		}
	}
	return nil, notFound("draft plan version", planID)
}

// TaxStore implements tax.Repository.
type TaxStore struct{ *InMemoryStore[*tax.Rate] }

func NewTaxStore() *TaxStore { return &TaxStore{NewInMemoryStore[*tax.Rate]()} }

func (s *TaxStore) ListForCountry(ctx context.Context, tenantID, country string) ([]*tax.Rate, error) {
	var out []*tax.Rate
	for _, r := range s.All() {
		if r.Country == country {
			out = append(out, r)
		}
	}
	return out, nil
}

// OutboxStore implements outbox.Repository.
type OutboxStore struct{ *InMemoryStore[*outbox.Event] }

func NewOutboxStore() *OutboxStore { return &OutboxStore{NewInMemoryStore[*outbox.Event]()} }

func (s *OutboxStore) Insert(ctx context.Context, evt *outbox.Event) error {
	s.Put(evt.ID, evt)
	return nil
}
func (s *OutboxStore) ListUndispatched(ctx context.Context, limit int) ([]*outbox.Event, error) {
	var out []*outbox.Event
	for _, e := range s.All() {
		if e.DispatchedAt == nil {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
func (s *OutboxStore) MarkDispatched(ctx context.Context, id string) error {
	e, ok := s.InMemoryStore.Get(id)
	if !ok {
		return notFound("outbox event", id)
	}
	now := time.Now()
	e.DispatchedAt = &now
	return nil
}
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, reason string) error {
	e, ok := s.InMemoryStore.Get(id)
	if !ok {
		return notFound("outbox event", id)
	}
	e.Attempts++
	e.LastError = reason
	return nil
}
