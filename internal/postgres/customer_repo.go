package postgres

import (
	"context"
	"encoding/json"

	"github.com/ledgerbase/billing/internal/domain/customer"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

// CustomerRepository stores the Customer aggregate as a JSON snapshot
// under `data`, with tenant_id/id/balance_cents broken out as real
// columns so AdjustBalance can lock and mutate the balance without a
// read-modify-write race (spec.md §4.11: row-level locks on money-
// touching reads).
type CustomerRepository struct {
	db *DB
}

func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Get(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	var raw []byte
	err := r.db.q(ctx).GetContext(ctx, &raw,
		`SELECT data FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("customer", id)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	var cust customer.Customer
	if err := json.Unmarshal(raw, &cust); err != nil {
		return nil, ierr.WithError(err).WithHint("corrupt customer snapshot").Mark(ierr.ErrSerde).Err()
	}
	return &cust, nil
}

func (r *CustomerRepository) Update(ctx context.Context, cust *customer.Customer) error {
	raw, err := json.Marshal(cust)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
	}
	_, err = r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO customers (tenant_id, id, balance_cents, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET balance_cents = EXCLUDED.balance_cents, data = EXCLUDED.data, updated_at = now()
	`, cust.TenantID, cust.ID, cust.BalanceCents, raw)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

// AdjustBalance locks the customer row, applies the signed delta, and
// writes the new balance back into the snapshot so a concurrent Get
// after commit sees the adjustment (spec.md §4.7 step 3, §4.11).
func (r *CustomerRepository) AdjustBalance(ctx context.Context, tenantID, customerID string, deltaCents int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		var raw []byte
		err := r.db.q(ctx).GetContext(ctx, &raw,
			`SELECT data FROM customers WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, customerID)
		if err != nil {
			if isNoRows(err) {
				return notFound("customer", customerID)
			}
			return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
		}
		var cust customer.Customer
		if err := json.Unmarshal(raw, &cust); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		cust.BalanceCents += deltaCents
		return r.Update(ctx, &cust)
	})
}
