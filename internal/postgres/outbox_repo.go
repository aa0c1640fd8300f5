package postgres

import (
	"context"

	"github.com/ledgerbase/billing/internal/domain/outbox"
	ierr "github.com/ledgerbase/billing/internal/errors"
)

// OutboxRepository persists outbox rows in normal columns rather than a
// JSON snapshot: the dispatcher filters/orders on created_at and
// dispatched_at constantly, and the payload itself is already an opaque
// blob with no nested querying need.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, evt *outbox.Event) error {
	_, err := r.db.q(ctx).ExecContext(ctx, `
		INSERT INTO outbox_events (id, tenant_id, environment_id, topic, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.ID, evt.TenantID, evt.EnvironmentID, evt.Topic, evt.AggregateID, evt.Payload, evt.CreatedAt)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

func (r *OutboxRepository) ListUndispatched(ctx context.Context, limit int) ([]*outbox.Event, error) {
	rows, err := r.db.q(ctx).QueryxContext(ctx, `
		SELECT id, tenant_id, environment_id, topic, aggregate_id, payload, created_at, dispatched_at, attempts, COALESCE(last_error, '')
		FROM outbox_events
		WHERE dispatched_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	defer rows.Close()

	var out []*outbox.Event
	for rows.Next() {
		var e outbox.Event
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EnvironmentID, &e.Topic, &e.AggregateID, &e.Payload, &e.CreatedAt, &e.DispatchedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id string) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE outbox_events SET dispatched_at = now() WHERE id = $1`, id)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := r.db.q(ctx).ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase).Err()
	}
	return nil
}
