// Package slot models SlotTransaction, the ledger of seat/license changes
// that backs a Slot price component (spec.md §3, §4.4), grounded on
// slots.rs's effective_at/active_at semantics.
package slot

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/types"
)

// Transaction is one signed delta to the active slot count, effective at a
// point in time (spec.md §4.4). Pending transactions are not yet counted
// by ActiveSlotsAt until activated against a finalized invoice.
type Transaction struct {
	ID             string
	SubscriptionID string
	ComponentID    string
	Delta          int64
	EffectiveAt    time.Time
	Status         types.SlotTransactionStatus
	InvoiceID      *string
	PricedUnitPrice *int64 // unit price in minor units locked at transaction time

	types.BaseModel
}

// ActiveSlotsAt sums committed transactions effective at or before t
// (spec.md §4.4: "the slot count is the running sum of committed
// transactions with effective_at <= t").
func ActiveSlotsAt(transactions []*Transaction, t time.Time) int64 {
	var total int64
	for _, tx := range transactions {
		if tx.Status != types.SlotTransactionActive {
			continue
		}
		if tx.EffectiveAt.After(t) {
			continue
		}
		total += tx.Delta
	}
	return total
}

// Repository is the storage port for slot transactions (C11). Writers must
// take a row lock on the subscription/component pair before validating
// min/max bounds and inserting, per slots.rs's lock-then-validate ordering
// (spec.md §4.4 invariant, Open Question: slot-limit race).
type Repository interface {
	ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*Transaction, error)
	LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error
	Insert(ctx context.Context, tx *Transaction) error
	ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error
}
