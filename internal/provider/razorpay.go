package provider

import (
	"context"
	"strconv"

	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/razorpay/razorpay-go"
)

// RazorpayProvider charges through Razorpay orders/payments, offered
// alongside Stripe so the tenant's region determines the gateway (spec.md
// §4.9, §6).
type RazorpayProvider struct {
	client *razorpay.Client
}

func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	return &RazorpayProvider{client: razorpay.NewClient(keyID, keySecret)}
}

func (r *RazorpayProvider) Name() string { return "razorpay" }

// Charge captures an existing authorization, identified by
// req.PaymentMethodID (the Razorpay payment_id created client-side during
// checkout), for the requested amount.
func (r *RazorpayProvider) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	data := map[string]interface{}{
		"amount":   req.AmountCents,
		"currency": req.Currency,
	}
	extra := map[string]string{"Idempotency-Key": req.IdempotencyKey}

	resp, err := r.client.Payment.Capture(req.PaymentMethodID, req.AmountCents, data, extra)
	if err != nil {
		return ChargeResult{}, ierr.WithError(err).WithMessage("razorpay capture failed").Mark(ierr.ErrPaymentProvider).Err()
	}

	status, _ := resp["status"].(string)
	id, _ := resp["id"].(string)
	return ChargeResult{ProviderTxID: id, Status: mapRazorpayStatus(status)}, nil
}

func (r *RazorpayProvider) Refund(ctx context.Context, providerTxID string, amountCents int64) error {
	data := map[string]interface{}{"amount": amountCents}
	_, err := r.client.Payment.Refund(providerTxID, amountCents, data, map[string]string{"reference": strconv.FormatInt(amountCents, 10)})
	if err != nil {
		return ierr.WithError(err).WithMessage("razorpay refund failed").Mark(ierr.ErrPaymentProvider).Err()
	}
	return nil
}

func mapRazorpayStatus(status string) ChargeStatus {
	switch status {
	case "captured":
		return ChargeSucceeded
	case "authorized", "created":
		return ChargePending
	default:
		return ChargeFailed
	}
}
