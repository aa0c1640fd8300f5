package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerbase/billing/internal/domain/outbox"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/sourcegraph/conc/pool"
)

func errExhausted(eventID string, attempts int) error {
	return ierr.NewError("outbox event exceeded max delivery attempts").
		WithHintf("event %s failed %d times", eventID, attempts).
		Mark(ierr.ErrServiceUnavailable).Err()
}

// Dispatcher pulls due outbox rows and projects each onto its pgmq
// queue(s) and a webhook sink, at least once, with bounded concurrency
// (spec.md §4.10, §5).
type Dispatcher struct {
	repo      outbox.Repository
	queue     QueueBackend
	route     Router
	webhook   WebhookSink
	log       *logger.Logger
	workers   int
	maxRetry  int
}

// WebhookSink is the outbound webhook port; every dispatched event is
// also offered to it regardless of queue routing (spec.md §4.10: "and/or
// a webhook-out message").
type WebhookSink interface {
	Send(ctx context.Context, tenantID, topic string, payload []byte) error
}

// NoopWebhookSink discards every event; used where only the pgmq fan-out
// is exercised.
type NoopWebhookSink struct{}

func (NoopWebhookSink) Send(ctx context.Context, tenantID, topic string, payload []byte) error {
	return nil
}

func NewDispatcher(repo outbox.Repository, queue QueueBackend, route Router, webhook WebhookSink, workers, maxRetry int, log *logger.Logger) *Dispatcher {
	if route == nil {
		route = DefaultRouter
	}
	if webhook == nil {
		webhook = NoopWebhookSink{}
	}
	if workers <= 0 {
		workers = 8
	}
	if maxRetry <= 0 {
		maxRetry = 10
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{repo: repo, queue: queue, route: route, webhook: webhook, workers: workers, maxRetry: maxRetry, log: log}
}

// Result summarizes one dispatch tick.
type Result struct {
	Dispatched int
	Failed     int
}

// DispatchOnce pulls up to limit undispatched rows and fans each out with
// bounded concurrency via a conc pool, mirroring the teacher's batch
// event-republish loop. Rows exceeding maxRetry attempts are marked
// failed and left for manual inspection rather than retried forever.
func (d *Dispatcher) DispatchOnce(ctx context.Context, limit int) (*Result, error) {
	events, err := d.repo.ListUndispatched(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return &Result{}, nil
	}

	p := pool.New().WithMaxGoroutines(d.workers)
	var mu sync.Mutex
	var dispatched, failed int

	for _, e := range events {
		evt := e
		p.Go(func() {
			if err := d.dispatchOne(ctx, evt); err != nil {
				d.log.Errorw("failed to dispatch outbox event",
					"event_id", evt.ID, "topic", evt.Topic, "attempts", evt.Attempts+1, "error", err)
				if markErr := d.repo.MarkFailed(ctx, evt.ID, err.Error()); markErr != nil {
					d.log.Errorw("failed to record outbox failure", "event_id", evt.ID, "error", markErr)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			if markErr := d.repo.MarkDispatched(ctx, evt.ID); markErr != nil {
				d.log.Errorw("failed to mark outbox event dispatched", "event_id", evt.ID, "error", markErr)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			dispatched++
			mu.Unlock()
		})
	}
	p.Wait()

	d.log.Infow("outbox dispatch tick complete", "found", len(events), "dispatched", dispatched, "failed", failed)
	return &Result{Dispatched: dispatched, Failed: failed}, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, evt *outbox.Event) error {
	if evt.Attempts >= d.maxRetry {
		return errExhausted(evt.ID, evt.Attempts)
	}
	for _, msg := range d.route(evt.Topic, evt.Payload) {
		if err := d.queue.Send(ctx, msg); err != nil {
			return err
		}
	}
	return d.webhook.Send(ctx, evt.TenantID, evt.Topic, evt.Payload)
}

// Run loops DispatchOnce on the given interval until ctx is cancelled,
// the shape the worker binary's outbox processor runs under.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batchLimit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx, batchLimit); err != nil {
				d.log.Errorw("outbox dispatch tick failed", "error", err)
			}
		}
	}
}
