// Package payment models PaymentTransaction, the record of a single
// attempt to collect funds through a provider (spec.md §3, §4.9),
// grounded on process_payment.rs's hold/capture lifecycle.
package payment

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/types"
)

// Transaction records one attempt against a provider, whether a direct
// charge, an invoice payment, or a multi-invoice consolidation (spec.md
// §4.9).
type Transaction struct {
	ID                string
	CustomerID        string
	InvoiceIDs        []string // one for a direct invoice payment, many for consolidation
	CheckoutSessionID *string  // set for the direct-charge-at-checkout entry point, invoice_id left nil until the checkout completes
	Type              types.PaymentTransactionType
	Status            types.PaymentTransactionStatus
	Currency          string
	AmountCents       int64
	ProviderName      string
	ProviderTxID      string
	PaymentMethodID   string
	FailureReason     string
	ProcessedAt       *time.Time

	types.BaseModel
}

// IsActiveHold reports whether the transaction still reserves funds and
// must be considered by the duplicate-pending guard (spec.md §4.9,
// grounded on process_payment.rs's pending-payment check before charging
// again).
func (t *Transaction) IsActiveHold() bool {
	return t.Status.IsActiveHold()
}

// Repository is the storage port for payment transactions (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Transaction, error)
	Create(ctx context.Context, tx *Transaction) error
	Update(ctx context.Context, tx *Transaction) error
	ListActiveForInvoice(ctx context.Context, tenantID, invoiceID string) ([]*Transaction, error)
}
