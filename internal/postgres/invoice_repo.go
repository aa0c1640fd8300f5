package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/invoice"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

type InvoiceRepository struct {
	db *DB
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Get(ctx context.Context, tenantID, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := getSnapshot(ctx, r.db, "invoices", tenantID, id, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	return putSnapshot(ctx, r.db, "invoices", inv.TenantID, inv.ID, inv)
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	return putSnapshot(ctx, r.db, "invoices", inv.TenantID, inv.ID, inv)
}

// ListDraftForSubscription returns every still-mutable invoice for a
// subscription, the set finalize/cancel must reconcile (spec.md §4.7).
func (r *InvoiceRepository) ListDraftForSubscription(ctx context.Context, tenantID, subscriptionID string) ([]*invoice.Invoice, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT data FROM invoices
		WHERE tenant_id = $1 AND data->>'SubscriptionID' = $2 AND data->>'Status' = 'draft'
		ORDER BY (data->>'PeriodStart')::timestamptz
	`, tenantID, subscriptionID)
	if err != nil {
		return nil, err
	}
	out := make([]*invoice.Invoice, 0, len(rows))
	for _, raw := range rows {
		var inv invoice.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &inv)
	}
	return out, nil
}
