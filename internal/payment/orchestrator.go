// Package payment implements C9: the three payment entry points (direct
// charge, invoice payment, multi-invoice consolidation) and the
// post-payment orchestration that follows a settled transaction, grounded
// on process_payment.rs's duplicate-pending/over-payment guards and
// invoice_paid.rs's activation sequence.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	paymentDomain "github.com/ledgerbase/billing/internal/domain/payment"
	"github.com/ledgerbase/billing/internal/domain/subscription"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/provider"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/types"
)

// Orchestrator wires a PaymentProvider registry to invoice/subscription
// state transitions (spec.md §4.9).
type Orchestrator struct {
	providers   map[string]provider.PaymentProvider
	invoices    invoice.Repository
	subs        subscription.Repository
	paymentTxs  paymentDomain.Repository
	slotLedger  *slotledger.Ledger
	outboxWrite OutboxWriter
}

// OutboxWriter is the minimal dependency Orchestrator needs to record
// domain events transactionally (C10); kept narrow to avoid importing the
// full outbox package here.
type OutboxWriter interface {
	Write(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) error
}

func New(
	providers map[string]provider.PaymentProvider,
	invoices invoice.Repository,
	subs subscription.Repository,
	paymentTxs paymentDomain.Repository,
	slotLedger *slotledger.Ledger,
	outboxWrite OutboxWriter,
) *Orchestrator {
	return &Orchestrator{
		providers:   providers,
		invoices:    invoices,
		subs:        subs,
		paymentTxs:  paymentTxs,
		slotLedger:  slotLedger,
		outboxWrite: outboxWrite,
	}
}

// guardInvoicePayment enforces the duplicate-pending and over-payment
// checks, grounded verbatim on process_invoice_payment_tx's ordering:
// reject if a pending transaction already exists, then reject if active
// payments already cover (or would exceed) the invoice total (spec.md
// §4.9 invariant).
func guardInvoicePayment(inv *invoice.Invoice, existing []*paymentDomain.Transaction) error {
	for _, tx := range existing {
		if tx.Status == types.PaymentStatusPending {
			return ierr.NewError("payment already in progress").
				WithHint("a payment for this invoice is already being processed").
				Mark(ierr.ErrPayment).Err()
		}
	}

	var activeSum int64
	for _, tx := range existing {
		if tx.Status.IsActiveHold() {
			activeSum += tx.AmountCents
		}
	}
	if activeSum >= inv.TotalCents {
		return ierr.NewError("invoice already has sufficient payments").Mark(ierr.ErrPayment).Err()
	}
	if activeSum+inv.AmountDueCents > inv.TotalCents {
		return ierr.NewError("payment would exceed invoice total").Mark(ierr.ErrPayment).Err()
	}
	return nil
}

// PayInvoice is the invoice-payment entry point: it validates the
// invoice's status and amount due, guards against duplicate/over-payment,
// creates a pending transaction, charges the provider, and runs
// post-payment orchestration on success (spec.md §4.9).
func (o *Orchestrator) PayInvoice(ctx context.Context, tenantID, invoiceID, providerName, paymentMethodExternalID, idempotencyKey string) (*paymentDomain.Transaction, error) {
	inv, err := o.invoices.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != types.InvoiceStatusDraft && inv.Status != types.InvoiceStatusFinalized {
		return nil, ierr.NewError("cannot process payment for this invoice status").Mark(ierr.ErrBilling).Err()
	}
	if inv.AmountDueCents <= 0 {
		return nil, ierr.NewError("invoice has no amount due").Mark(ierr.ErrBilling).Err()
	}

	existing, err := o.paymentTxs.ListActiveForInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := guardInvoicePayment(inv, existing); err != nil {
		return nil, err
	}

	tx := &paymentDomain.Transaction{
		ID:              types.GenerateIDWithPrefix(types.IDPrefixPayment),
		CustomerID:      inv.CustomerID,
		InvoiceIDs:      []string{invoiceID},
		Type:            types.PaymentTypePayment,
		Status:          types.PaymentStatusPending,
		Currency:        inv.Currency,
		AmountCents:     inv.AmountDueCents,
		PaymentMethodID: paymentMethodExternalID,
	}
	tx.TenantID = tenantID
	if err := o.paymentTxs.Create(ctx, tx); err != nil {
		return nil, err
	}

	p, ok := o.providers[providerName]
	if !ok {
		return nil, ierr.NewError("unknown payment provider").Mark(ierr.ErrPaymentProvider).Err()
	}
	result, err := p.Charge(ctx, provider.ChargeRequest{
		AmountCents:     inv.AmountDueCents,
		Currency:        inv.Currency,
		PaymentMethodID: paymentMethodExternalID,
		IdempotencyKey:  idempotencyKey,
		Description:     "Invoice " + invoiceID,
	})
	if err != nil {
		tx.Status = types.PaymentStatusFailed
		tx.FailureReason = err.Error()
		_ = o.paymentTxs.Update(ctx, tx)
		return tx, err
	}

	tx.ProviderName = providerName
	tx.ProviderTxID = result.ProviderTxID
	tx.Status = chargeStatusToTxStatus(result.Status)
	now := time.Now()
	tx.ProcessedAt = &now
	if err := o.paymentTxs.Update(ctx, tx); err != nil {
		return nil, err
	}

	if tx.Status == types.PaymentStatusSettled {
		if err := o.OnInvoicePaid(ctx, tenantID, invoiceID, tx); err != nil {
			return tx, err
		}
	}
	return tx, nil
}

// ConsolidatePayment charges a single provider transaction for the summed
// amount due of several same-currency invoices (spec.md §4.9:
// "consolidation entry point"). The transaction lists every invoice ID;
// no per-invoice share of the amount is recorded.
func (o *Orchestrator) ConsolidatePayment(ctx context.Context, tenantID string, invoiceIDs []string, providerName, paymentMethodExternalID, idempotencyKey string) (*paymentDomain.Transaction, error) {
	var totalDue int64
	currency := ""
	invoices := make([]*invoice.Invoice, 0, len(invoiceIDs))
	for _, id := range invoiceIDs {
		inv, err := o.invoices.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if currency == "" {
			currency = inv.Currency
		} else if inv.Currency != currency {
			return nil, ierr.NewError("consolidated invoices must share a currency").Mark(ierr.ErrValidation).Err()
		}
		totalDue += inv.AmountDueCents
		invoices = append(invoices, inv)
	}
	if totalDue <= 0 {
		return nil, ierr.NewError("no amount due across consolidated invoices").Mark(ierr.ErrBilling).Err()
	}

	tx := &paymentDomain.Transaction{
		ID:              types.GenerateIDWithPrefix(types.IDPrefixPayment),
		CustomerID:      invoices[0].CustomerID,
		InvoiceIDs:      invoiceIDs,
		Type:            types.PaymentTypePayment,
		Status:          types.PaymentStatusPending,
		Currency:        currency,
		AmountCents:     totalDue,
		PaymentMethodID: paymentMethodExternalID,
	}
	tx.TenantID = tenantID
	if err := o.paymentTxs.Create(ctx, tx); err != nil {
		return nil, err
	}

	p, ok := o.providers[providerName]
	if !ok {
		return nil, ierr.NewError("unknown payment provider").Mark(ierr.ErrPaymentProvider).Err()
	}
	result, err := p.Charge(ctx, provider.ChargeRequest{
		AmountCents:     totalDue,
		Currency:        currency,
		PaymentMethodID: paymentMethodExternalID,
		IdempotencyKey:  idempotencyKey,
		Description:     "Consolidated payment",
	})
	if err != nil {
		tx.Status = types.PaymentStatusFailed
		tx.FailureReason = err.Error()
		_ = o.paymentTxs.Update(ctx, tx)
		return tx, err
	}
	tx.ProviderName = providerName
	tx.ProviderTxID = result.ProviderTxID
	tx.Status = chargeStatusToTxStatus(result.Status)
	now := time.Now()
	tx.ProcessedAt = &now
	if err := o.paymentTxs.Update(ctx, tx); err != nil {
		return nil, err
	}

	if tx.Status == types.PaymentStatusSettled {
		for _, id := range invoiceIDs {
			if err := o.OnInvoicePaid(ctx, tenantID, id, tx); err != nil {
				return tx, err
			}
		}
	}
	return tx, nil
}

// ChargeCustomerDirect charges a customer outside any invoice (spec.md
// §4.9: "direct charge entry point"), e.g. for an ad-hoc top-up.
func (o *Orchestrator) ChargeCustomerDirect(ctx context.Context, tenantID, customerID, providerName, paymentMethodExternalID string, amountCents int64, currency, idempotencyKey string) (*paymentDomain.Transaction, error) {
	return o.chargeDirect(ctx, tenantID, customerID, nil, providerName, paymentMethodExternalID, amountCents, currency, idempotencyKey)
}

// ChargeAtCheckout is entry point 1 of spec.md §4.9: a direct charge
// against a CheckoutSession before any subscription/invoice exists.
// transaction_id is the caller-supplied idempotency key (the spec's
// "caller-supplied transaction_id used as idempotency key"); passing the
// session ID itself is the natural choice since a session is completed
// at most once.
func (o *Orchestrator) ChargeAtCheckout(ctx context.Context, tenantID, customerID, checkoutSessionID, providerName, paymentMethodExternalID string, amountCents int64, currency, idempotencyKey string) (*paymentDomain.Transaction, error) {
	return o.chargeDirect(ctx, tenantID, customerID, &checkoutSessionID, providerName, paymentMethodExternalID, amountCents, currency, idempotencyKey)
}

func (o *Orchestrator) chargeDirect(ctx context.Context, tenantID, customerID string, checkoutSessionID *string, providerName, paymentMethodExternalID string, amountCents int64, currency, idempotencyKey string) (*paymentDomain.Transaction, error) {
	if idempotencyKey == "" {
		// Ad-hoc charges have no natural caller-supplied idempotency key
		// (unlike invoice/checkout payments, which key off the invoice or
		// transaction ID); mint one so a client retry of the same HTTP
		// call doesn't double-charge.
		idempotencyKey = uuid.NewString()
	}

	tx := &paymentDomain.Transaction{
		ID:                types.GenerateIDWithPrefix(types.IDPrefixPayment),
		CustomerID:        customerID,
		CheckoutSessionID: checkoutSessionID,
		Type:              types.PaymentTypePayment,
		Status:            types.PaymentStatusPending,
		Currency:          currency,
		AmountCents:       amountCents,
		PaymentMethodID:   paymentMethodExternalID,
	}
	tx.TenantID = tenantID
	if err := o.paymentTxs.Create(ctx, tx); err != nil {
		return nil, err
	}

	p, ok := o.providers[providerName]
	if !ok {
		return nil, ierr.NewError("unknown payment provider").Mark(ierr.ErrPaymentProvider).Err()
	}
	result, err := p.Charge(ctx, provider.ChargeRequest{
		AmountCents:     amountCents,
		Currency:        currency,
		PaymentMethodID: paymentMethodExternalID,
		IdempotencyKey:  idempotencyKey,
	})
	if err != nil {
		tx.Status = types.PaymentStatusFailed
		tx.FailureReason = err.Error()
		_ = o.paymentTxs.Update(ctx, tx)
		return tx, err
	}
	tx.ProviderName = providerName
	tx.ProviderTxID = result.ProviderTxID
	tx.Status = chargeStatusToTxStatus(result.Status)
	now := time.Now()
	tx.ProcessedAt = &now
	return tx, o.paymentTxs.Update(ctx, tx)
}

// OnInvoicePaid runs once a payment transaction against invoiceID
// settles: activate any pending slot transactions tied to the invoice,
// transition the subscription out of TrialExpired if it was waiting on
// this payment, mark the invoice paid, and emit an outbox event (spec.md
// §4.9, grounded on invoice_paid.rs's on_invoice_paid).
func (o *Orchestrator) OnInvoicePaid(ctx context.Context, tenantID, invoiceID string, tx *paymentDomain.Transaction) error {
	if err := o.slotLedger.ActivatePendingForInvoice(ctx, tenantID, invoiceID); err != nil {
		return err
	}

	inv, err := o.invoices.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return err
	}

	if inv.SubscriptionID != nil {
		sub, err := o.subs.Get(ctx, tenantID, *inv.SubscriptionID)
		if err != nil {
			return err
		}
		dirty := false
		if sub.Status == types.SubscriptionStatusTrialExpired {
			sub.Status = types.SubscriptionStatusActive
			dirty = true
		}
		// spec.md §4.9 point 3: a settled consolidation/invoice payment
		// with a resolvable subscription updates its default payment
		// method/type, grounded on process_payment.rs's
		// consolidate_intent_and_transaction_tx.
		if tx != nil && tx.ProviderName != "" {
			sub.PaymentMethodType = &tx.ProviderName
			sub.PaymentMethodID = &tx.PaymentMethodID
			dirty = true
		}
		if dirty {
			if err := o.subs.Update(ctx, sub); err != nil {
				return err
			}
		}
	}

	inv.PaymentStatus = types.InvoicePaymentStatusPaid
	inv.AmountPaidCents = inv.TotalCents
	inv.AmountDueCents = 0
	if err := o.invoices.Update(ctx, inv); err != nil {
		return err
	}

	if o.outboxWrite != nil {
		return o.outboxWrite.Write(ctx, tenantID, "invoice.paid", invoiceID, nil)
	}
	return nil
}

func chargeStatusToTxStatus(s provider.ChargeStatus) types.PaymentTransactionStatus {
	switch s {
	case provider.ChargeSucceeded:
		return types.PaymentStatusSettled
	case provider.ChargePending:
		return types.PaymentStatusReady
	default:
		return types.PaymentStatusFailed
	}
}
