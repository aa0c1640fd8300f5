package postgres

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/jmoiron/sqlx"
)

// Numberer allocates invoice numbers from a per-tenant, per-invoicing-
// entity, per-month sequence, grounded on the teacher's
// GetNextInvoiceNumber (internal/repository/ent/invoice.go): an atomic
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING against a sequences
// table, formatted INV-YYYYMM-00001.
type Numberer struct {
	db *DB
}

func NewNumberer(db *DB) *Numberer {
	return &Numberer{db: db}
}

func (n *Numberer) NextInvoiceNumber(ctx context.Context, tenantID, invoicingEntityID string) (string, error) {
	yearMonth := time.Now().UTC().Format("200601")

	var lastValue int64
	row := sqlx.QueryRowxContext(ctx, n.db.q(ctx), `
		INSERT INTO invoice_sequences (tenant_id, invoicing_entity_id, year_month, last_value, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (tenant_id, invoicing_entity_id, year_month) DO UPDATE
		SET last_value = invoice_sequences.last_value + 1, updated_at = now()
		RETURNING last_value
	`, tenantID, invoicingEntityID, yearMonth)
	if err := row.Scan(&lastValue); err != nil {
		return "", ierr.WithError(err).WithHint("failed to allocate invoice number").Mark(ierr.ErrDatabase).Err()
	}

	return fmt.Sprintf("INV-%s-%05d", yearMonth, lastValue), nil
}
