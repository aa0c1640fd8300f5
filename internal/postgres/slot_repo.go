package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/slot"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

// SlotRepository stores the append-only slot-transaction ledger (spec.md
// §4.4). Rows are never updated except ActivatePendingForInvoice's
// pending->active flip on payment settlement.
type SlotRepository struct {
	db *DB
}

func NewSlotRepository(db *DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) ListForComponent(ctx context.Context, tenantID, subscriptionID, componentID string) ([]*slot.Transaction, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT data FROM slot_transactions
		WHERE tenant_id = $1 AND data->>'SubscriptionID' = $2 AND data->>'ComponentID' = $3
		ORDER BY (data->>'EffectiveAt')::timestamptz
	`, tenantID, subscriptionID, componentID)
	if err != nil {
		return nil, err
	}
	out := make([]*slot.Transaction, 0, len(rows))
	for _, raw := range rows {
		var tx slot.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &tx)
	}
	return out, nil
}

// LockForUpdate takes a transaction-scoped advisory lock keyed on the
// (subscription, component) pair, standing in for a row lock since the
// ledger has no single parent row to lock before validating min/max
// bounds and inserting the next delta (spec.md §4.4 invariant).
func (r *SlotRepository) LockForUpdate(ctx context.Context, tenantID, subscriptionID, componentID string) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		tenantID+"|"+subscriptionID+"|"+componentID)
	if err != nil {
		return ierr.WithError(err).WithHint("failed to acquire slot ledger lock").Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

func (r *SlotRepository) Insert(ctx context.Context, tx *slot.Transaction) error {
	return putSnapshot(ctx, r.db, "slot_transactions", tx.TenantID, tx.ID, tx)
}

// ActivatePendingForInvoice flips every pending transaction tied to
// invoiceID to active, the slot-activation-on-paid step (spec.md §4.4,
// §4.9).
func (r *SlotRepository) ActivatePendingForInvoice(ctx context.Context, tenantID, invoiceID string) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		UPDATE slot_transactions
		SET data = jsonb_set(data, '{Status}', '"active"')
		WHERE tenant_id = $1 AND data->>'InvoiceID' = $2 AND data->>'Status' = 'pending'
	`, tenantID, invoiceID)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}
