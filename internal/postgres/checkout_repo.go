package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerbase/billing/internal/domain/checkout"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

type CheckoutRepository struct {
	db *DB
}

func NewCheckoutRepository(db *DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

func (r *CheckoutRepository) Get(ctx context.Context, tenantID, id string) (*checkout.Session, error) {
	var s checkout.Session
	if err := getSnapshot(ctx, r.db, "checkout_sessions", tenantID, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *CheckoutRepository) Create(ctx context.Context, session *checkout.Session) error {
	return putSnapshot(ctx, r.db, "checkout_sessions", session.TenantID, session.ID, session)
}

func (r *CheckoutRepository) Update(ctx context.Context, session *checkout.Session) error {
	return putSnapshot(ctx, r.db, "checkout_sessions", session.TenantID, session.ID, session)
}

// ListExpiring returns non-terminal sessions at or past asOf for the
// due-event scheduler's mark_expired_batch pass (spec.md §4.8).
func (r *CheckoutRepository) ListExpiring(ctx context.Context, tenantID string, asOf time.Time, limit int) ([]*checkout.Session, error) {
	rows, err := selectSnapshots(ctx, r.db, `
		SELECT data FROM checkout_sessions
		WHERE tenant_id = $1
		  AND data->>'Status' NOT IN ('completed', 'cancelled', 'expired')
		  AND (data->>'ExpiresAt')::timestamptz <= $2
		ORDER BY (data->>'ExpiresAt')::timestamptz
		LIMIT $3
	`, tenantID, asOf, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*checkout.Session, 0, len(rows))
	for _, raw := range rows {
		var s checkout.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSerde).Err()
		}
		out = append(out, &s)
	}
	return out, nil
}
