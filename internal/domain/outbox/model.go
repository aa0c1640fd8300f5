// Package outbox models OutboxEvent, the transactional-outbox record that
// backs the at-least-once pgmq-style dispatcher (spec.md §3, §4.10).
package outbox

import (
	"context"
	"time"
)

// Event is a domain fact recorded in the same transaction as the change
// that produced it, dispatched asynchronously by C10 (spec.md §4.10).
type Event struct {
	ID            string
	TenantID      string
	EnvironmentID string
	Topic         string
	AggregateID   string
	Payload       []byte
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	Attempts      int
	LastError     string
}

// Repository is the storage port for outbox events (C11). Insert must be
// called within the same transaction as the triggering write so dispatch
// is at-least-once, never lost (spec.md §4.10 invariant).
type Repository interface {
	Insert(ctx context.Context, evt *Event) error
	ListUndispatched(ctx context.Context, limit int) ([]*Event, error)
	MarkDispatched(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}
