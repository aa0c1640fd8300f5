package provider

import (
	"context"

	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// StripeProvider charges through Stripe PaymentIntents, grounded on the
// teacher's stripe-go integration (here generalized from usage sync to
// the engine's direct-charge/invoice-payment path, spec.md §4.9).
type StripeProvider struct {
	secretKey string
}

func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{secretKey: secretKey}
}

func (s *StripeProvider) Name() string { return "stripe" }

func (s *StripeProvider) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		OffSession:    stripe.Bool(true),
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return ChargeResult{}, ierr.WithError(err).WithMessage("stripe payment intent creation failed").Mark(ierr.ErrPaymentProvider).Err()
	}

	return ChargeResult{ProviderTxID: pi.ID, Status: mapStripeStatus(pi.Status)}, nil
}

func (s *StripeProvider) Refund(ctx context.Context, providerTxID string, amountCents int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerTxID),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	if _, err := refund.New(params); err != nil {
		return ierr.WithError(err).WithMessage("stripe refund failed").Mark(ierr.ErrPaymentProvider).Err()
	}
	return nil
}

func mapStripeStatus(status stripe.PaymentIntentStatus) ChargeStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusRequiresConfirmation:
		return ChargePending
	default:
		return ChargeFailed
	}
}
