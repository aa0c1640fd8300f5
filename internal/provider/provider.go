// Package provider adapts external payment processors to the engine's
// PaymentProvider port (C9, spec.md §4.9), grounded on the teacher's
// internal/integrations adapter style.
package provider

import "context"

// ChargeRequest is what C9 asks a provider to collect.
type ChargeRequest struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string // provider-specific external ID, not our internal one
	IdempotencyKey  string
	Description     string
}

// ChargeResult is the provider's response to a charge attempt.
type ChargeResult struct {
	ProviderTxID string
	Status       ChargeStatus
	FailureCode  string
}

// ChargeStatus abstracts every provider's status vocabulary into the
// three outcomes C9 needs to act on.
type ChargeStatus string

const (
	ChargeSucceeded  ChargeStatus = "succeeded"
	ChargePending    ChargeStatus = "pending"
	ChargeFailed     ChargeStatus = "failed"
)

// PaymentProvider is the port every concrete gateway integration
// implements (spec.md §4.9: "the orchestrator is provider-agnostic").
type PaymentProvider interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	// Refund reverses a previously succeeded charge. No code path in
	// this module calls it.
	Refund(ctx context.Context, providerTxID string, amountCents int64) error
}
