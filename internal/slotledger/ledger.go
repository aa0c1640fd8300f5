// Package slotledger implements C4: adding slot transactions and
// activating pending ones against a finalized invoice, grounded
// verbatim on slots.rs's effective_at rule and lock-then-validate-then-
// insert ordering (spec.md §4.4).
package slotledger

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/slot"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/types"
)

// Ledger adds and activates slot transactions against a subscription's
// Slot component. The caller is responsible for running AddTransaction
// inside a database transaction so the lock taken by Repo.LockForUpdate
// holds until the insert commits.
type Ledger struct {
	repo slot.Repository
}

func New(repo slot.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// EffectiveAt computes when a delta takes effect: immediately (clamped to
// the end of the current period, in case of backfilling) for an upgrade,
// or deferred to the current period's end for a downgrade (spec.md §4.4),
// grounded on slots.rs's add_slot_transaction_tx_internal.
func EffectiveAt(delta int64, now, currentPeriodEnd time.Time) time.Time {
	if delta > 0 {
		if now.Before(currentPeriodEnd) {
			return now
		}
		return currentPeriodEnd
	}
	return currentPeriodEnd
}

// ValidateLimits enforces the Slot component's min/max bounds against the
// slot count that would result from applying delta (spec.md §4.4
// invariant), grounded on slots.rs's validate_slot_limits.
func ValidateLimits(s *price.Slot, delta, activeSlots int64) error {
	newCount := activeSlots + delta
	if s.MinSlots != nil && newCount < int64(*s.MinSlots) {
		return ierr.NewError("slot count would fall below minimum").
			WithHintf("cannot reduce %s below minimum of %d", s.Unit, *s.MinSlots).
			Mark(ierr.ErrInvalidOperation).Err()
	}
	if s.MaxSlots != nil && newCount > int64(*s.MaxSlots) {
		return ierr.NewError("slot count would exceed maximum").
			WithHintf("cannot exceed %s maximum of %d", s.Unit, *s.MaxSlots).
			Mark(ierr.ErrInvalidOperation).Err()
	}
	return nil
}

// AddTransaction locks the (subscription, component) row, validates the
// resulting slot count against the component's bounds, and inserts a
// committed transaction effective per EffectiveAt — in that order, so a
// concurrent writer cannot slip a transaction past the limit check
// (spec.md §4.4, Open Question: slot-limit race resolved by taking the
// row lock before validating).
func (l *Ledger) AddTransaction(ctx context.Context, tenantID, subscriptionID string, s *price.Slot, delta int64, now, currentPeriodEnd time.Time) (*slot.Transaction, error) {
	if err := l.repo.LockForUpdate(ctx, tenantID, subscriptionID, s.ID); err != nil {
		return nil, err
	}
	existing, err := l.repo.ListForComponent(ctx, tenantID, subscriptionID, s.ID)
	if err != nil {
		return nil, err
	}
	effectiveAt := EffectiveAt(delta, now, currentPeriodEnd)
	activeAtEffective := slot.ActiveSlotsAt(existing, effectiveAt)

	if err := ValidateLimits(s, delta, activeAtEffective); err != nil {
		return nil, err
	}

	tx := &slot.Transaction{
		SubscriptionID: subscriptionID,
		ComponentID:    s.ID,
		Delta:          delta,
		EffectiveAt:    effectiveAt,
		Status:         types.SlotTransactionActive,
	}
	if err := l.repo.Insert(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// AddPendingTransaction records a slot change that only takes effect once
// the given invoice is finalized and paid, used for slot purchases billed
// in the same breath as their activation (spec.md §4.4).
func (l *Ledger) AddPendingTransaction(ctx context.Context, tenantID, subscriptionID string, s *price.Slot, delta int64, invoiceID string, now, currentPeriodEnd time.Time) (*slot.Transaction, error) {
	if err := l.repo.LockForUpdate(ctx, tenantID, subscriptionID, s.ID); err != nil {
		return nil, err
	}
	existing, err := l.repo.ListForComponent(ctx, tenantID, subscriptionID, s.ID)
	if err != nil {
		return nil, err
	}
	effectiveAt := EffectiveAt(delta, now, currentPeriodEnd)
	activeAtEffective := slot.ActiveSlotsAt(existing, effectiveAt)

	if err := ValidateLimits(s, delta, activeAtEffective); err != nil {
		return nil, err
	}

	tx := &slot.Transaction{
		SubscriptionID: subscriptionID,
		ComponentID:    s.ID,
		Delta:          delta,
		EffectiveAt:    effectiveAt,
		Status:         types.SlotTransactionPending,
		InvoiceID:      &invoiceID,
	}
	if err := l.repo.Insert(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ActivatePendingForInvoice commits every pending transaction tied to
// invoiceID, called once that invoice's payment succeeds (spec.md §4.4,
// §4.9).
func (l *Ledger) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	return l.repo.ActivatePendingForInvoice(ctx, tenantID, invoiceID)
}

// ActiveSlotsAt returns the committed slot count effective at t, used by
// the pricing engine to quantity a Slot component (spec.md §4.4).
func (l *Ledger) ActiveSlotsAt(ctx context.Context, tenantID, subscriptionID, componentID string, t time.Time) (int64, error) {
	txs, err := l.repo.ListForComponent(ctx, tenantID, subscriptionID, componentID)
	if err != nil {
		return 0, err
	}
	return slot.ActiveSlotsAt(txs, t), nil
}
