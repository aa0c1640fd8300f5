// Package outbox implements the transactional outbox and its at-least-once
// dispatch loop (C10, spec.md §4.10): every business transaction that
// mutates invoice/subscription/payment state writes outbox rows in the
// same transaction; a separate consumer pulls due rows and projects each
// onto an internal pgmq-style queue and/or a webhook-out message.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerbase/billing/internal/domain/outbox"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/types"
)

// Writer adapts outbox.Repository to the narrow Write(ctx, tenant, topic,
// aggregateID, payload) shape the billing/payment/subscription packages
// already depend on, so Insert always happens inside the caller's
// transaction (spec.md §4.10: "at least once... transactional outbox").
type Writer struct {
	repo outbox.Repository
}

func NewWriter(repo outbox.Repository) *Writer {
	return &Writer{repo: repo}
}

func (w *Writer) Write(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) error {
	evt := &outbox.Event{
		ID:          types.GenerateIDWithPrefix(types.IDPrefixEvent),
		TenantID:    tenantID,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	if err := w.repo.Insert(ctx, evt); err != nil {
		return ierr.WithError(err).
			WithHint("failed to record outbox event").
			WithReportableDetails(map[string]interface{}{"topic": topic, "aggregate_id": aggregateID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// WriteJSON marshals v and writes it as the event payload, the shape
// every emit call in the engine actually wants (topic + a JSON body)
// rather than raw bytes.
func (w *Writer) WriteJSON(ctx context.Context, tenantID, topic, aggregateID string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to marshal outbox event payload").
			Mark(ierr.ErrValidation)
	}
	return w.Write(ctx, tenantID, topic, aggregateID, payload)
}
