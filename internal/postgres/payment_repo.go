package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/payment"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Get(ctx context.Context, tenantID, id string) (*payment.Transaction, error) {
	var tx payment.Transaction
	if err := getSnapshot(ctx, r.db, "payment_transactions", tenantID, id, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *PaymentRepository) Create(ctx context.Context, tx *payment.Transaction) error {
	return putSnapshot(ctx, r.db, "payment_transactions", tx.TenantID, tx.ID, tx)
}

func (r *PaymentRepository) Update(ctx context.Context, tx *payment.Transaction) error {
	return putSnapshot(ctx, r.db, "payment_transactions", tx.TenantID, tx.ID, tx)
}

// ListActiveForInvoice returns every transaction holding funds against
// invoiceID, the duplicate-pending guard process_invoice_payment_tx
// checks before charging again (spec.md §4.9, §8 scenario 5).
func (r *PaymentRepository) ListActiveForInvoice(ctx context.Context, tenantID, invoiceID string) ([]*payment.Transaction, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT data FROM payment_transactions
		WHERE tenant_id = $1 AND data->'InvoiceIDs' ? $2
	`, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	out := make([]*payment.Transaction, 0, len(rows))
	for _, raw := range rows {
		var tx payment.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		if tx.IsActiveHold() {
			out = append(out, &tx)
		}
	}
	return out, nil
}
