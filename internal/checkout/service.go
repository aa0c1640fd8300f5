// Package checkout implements the hosted-checkout completion path: a
// direct charge against a customer's on-file payment method followed by
// subscription activation, grounded on meteroid's checkout_completion.rs
// (charge_payment_method_directly / create_transaction_for_checkout)
// wired onto this module's C8/C9 boundary (spec.md §4.9 point 1).
package checkout

import (
	"context"
	"time"

	checkoutDomain "github.com/ledgerbase/billing/internal/domain/checkout"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/plan"
	subdomain "github.com/ledgerbase/billing/internal/domain/subscription"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/payment"
	"github.com/ledgerbase/billing/internal/subscription"
	"github.com/ledgerbase/billing/internal/types"
)

// Service completes a CheckoutSession: it creates (or reloads) the
// subscription the session was started for, charges the chosen payment
// method directly (no invoice exists yet), and activates the subscription
// once the charge succeeds.
type Service struct {
	checkouts checkoutDomain.Repository
	subs      subdomain.Repository
	plans     plan.Repository
	customers customer.Repository
	engine    *subscription.Engine
	payments  *payment.Orchestrator
	log       *logger.Logger
}

func New(
	checkouts checkoutDomain.Repository,
	subs subdomain.Repository,
	plans plan.Repository,
	customers customer.Repository,
	engine *subscription.Engine,
	payments *payment.Orchestrator,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		checkouts: checkouts, subs: subs, plans: plans, customers: customers,
		engine: engine, payments: payments, log: log,
	}
}

// CompleteCheckout is spec.md §4.9 entry point 1. On the first call for a
// session it creates the subscription in PendingActivation and stores its
// ID on the session before charging; later calls reuse that subscription.
// It then charges paymentMethodID directly for amountCents/currency (no
// invoice exists yet) and activates the subscription once the charge is
// settled or provider-pending. A failed charge leaves the session open
// and the PendingActivation subscription in place, so the hosted page can
// retry with another payment method; the subscription is not removed.
func (s *Service) CompleteCheckout(ctx context.Context, tenantID, sessionID, paymentMethodID string, amountCents int64, currency string, now time.Time) (*checkoutDomain.Session, error) {
	if amountCents <= 0 {
		return nil, ierr.NewError("checkout amount must be positive").Mark(ierr.ErrValidation).Err()
	}

	session, err := s.checkouts.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, ierr.NewError("checkout session is already terminal").Mark(ierr.ErrInvalidOperation).Err()
	}
	if session.Expired(now) {
		session.Status = types.CheckoutStatusExpired
		if uerr := s.checkouts.Update(ctx, session); uerr != nil {
			return nil, uerr
		}
		return nil, ierr.NewError("checkout session has expired").Mark(ierr.ErrInvalidOperation).Err()
	}
	if session.PlanVersionID == nil {
		return nil, ierr.NewError("checkout session has no plan version").Mark(ierr.ErrValidation).Err()
	}

	cust, err := s.customers.Get(ctx, tenantID, session.CustomerID)
	if err != nil {
		return nil, err
	}
	pv, err := s.plans.GetVersion(ctx, tenantID, *session.PlanVersionID)
	if err != nil {
		return nil, err
	}
	if currency != pv.Currency {
		return nil, ierr.NewError("checkout currency does not match plan version currency").Mark(ierr.ErrValidation).Err()
	}

	method, ok := resolvePaymentMethod(cust, paymentMethodID)
	if !ok {
		return nil, ierr.NewError("payment method not found on customer").Mark(ierr.ErrValidation).Err()
	}

	var sub *subdomain.Subscription
	if session.SubscriptionID != nil {
		sub, err = s.subs.Get(ctx, tenantID, *session.SubscriptionID)
		if err != nil {
			return nil, err
		}
	} else {
		sub = newSubscriptionForCheckout(tenantID, session, pv, now)
		if err := s.engine.Activate(ctx, tenantID, sub, pv, cust); err != nil {
			return nil, err
		}
		session.SubscriptionID = &sub.ID
		if uerr := s.checkouts.Update(ctx, session); uerr != nil {
			return nil, uerr
		}
	}

	tx, chargeErr := s.payments.ChargeAtCheckout(ctx, tenantID, cust.ID, session.ID,
		method.ProviderConnectionID, method.ExternalID, amountCents, currency, session.ID)
	if chargeErr != nil {
		s.log.Errorw("checkout direct charge failed", "session_id", session.ID, "error", chargeErr)
		return session, chargeErr
	}
	if tx.Status != types.PaymentStatusSettled && tx.Status != types.PaymentStatusReady {
		return session, ierr.NewError("checkout payment did not succeed").Mark(ierr.ErrPaymentProvider).Err()
	}

	sub.PaymentMethodID = &method.ID
	methodType := method.Type
	sub.PaymentMethodType = &methodType
	if sub.Status == types.SubscriptionStatusPendingActivation {
		if err := s.engine.ActivateManual(ctx, tenantID, sub, pv, cust, now); err != nil {
			return nil, err
		}
	} else if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	session.Status = types.CheckoutStatusCompleted
	session.PaymentMethodID = &method.ID
	if err := s.checkouts.Update(ctx, session); err != nil {
		return nil, err
	}

	s.log.Infow("checkout completed", "session_id", session.ID, "subscription_id", sub.ID, "transaction_id", tx.ID)
	return session, nil
}

func resolvePaymentMethod(cust *customer.Customer, paymentMethodID string) (customer.PaymentMethod, bool) {
	if paymentMethodID == "" {
		return cust.DefaultPaymentMethod()
	}
	for _, pm := range cust.PaymentMethods {
		if pm.ID == paymentMethodID {
			return pm, true
		}
	}
	return customer.PaymentMethod{}, false
}

// newSubscriptionForCheckout builds the not-yet-persisted Subscription an
// OnCheckout session activates into PendingActivation (spec.md §4.8); the
// billing day anchor tracks the checkout date since no anniversary exists
// yet to derive it from.
func newSubscriptionForCheckout(tenantID string, session *checkoutDomain.Session, pv *plan.PlanVersion, now time.Time) *subdomain.Subscription {
	period := types.BILLING_PERIOD_MONTHLY
	if len(pv.AllowedBillingPeriods) > 0 {
		period = pv.AllowedBillingPeriods[0]
	}
	anchor := now.Day()
	if anchor > 28 {
		anchor = 28
	}
	sub := &subdomain.Subscription{
		ID:                  types.GenerateIDWithPrefix(types.IDPrefixSubscription),
		CustomerID:          session.CustomerID,
		PlanVersionID:       pv.ID,
		StartDate:           now,
		BillingDayAnchor:    anchor,
		BillingPeriod:       period,
		ActivationCondition: types.ACTIVATION_ON_CHECKOUT,
	}
	sub.TenantID = tenantID
	return sub
}
