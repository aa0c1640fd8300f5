package outbox

import (
	"context"
	"sync"
	"testing"

	"github.com/ledgerbase/billing/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func (r *fakeOutboxRepo) Insert(ctx context.Context, evt *outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *fakeOutboxRepo) ListUndispatched(ctx context.Context, limit int) ([]*outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.Event
	for _, e := range r.events {
		if e.DispatchedAt == nil {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkDispatched(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := e.CreatedAt
			e.DispatchedAt = &now
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			e.Attempts++
			e.LastError = reason
		}
	}
	return nil
}

type recordingWebhook struct {
	mu    sync.Mutex
	calls []string
}

func (w *recordingWebhook) Send(ctx context.Context, tenantID, topic string, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, topic)
	return nil
}

func TestDispatchOnce_RoutesToQueueAndWebhookAndMarksDispatched(t *testing.T) {
	repo := &fakeOutboxRepo{}
	writer := NewWriter(repo)
	require.NoError(t, writer.Write(context.Background(), "t1", "invoice.finalized", "inv-1", []byte(`{"id":"inv-1"}`)))

	queue := NewChannelQueueBackend(4, QueueInvoicePdfRequest, QueueSendEmailRequest)
	hook := &recordingWebhook{}
	d := NewDispatcher(repo, queue, DefaultRouter, hook, 4, 10, nil)

	result, err := d.DispatchOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dispatched)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"invoice.finalized"}, hook.calls)

	select {
	case msg := <-queue.Channel(QueueInvoicePdfRequest):
		assert.Equal(t, QueueInvoicePdfRequest, msg.Queue)
	default:
		t.Fatal("expected a message on the pdf queue")
	}
	select {
	case <-queue.Channel(QueueSendEmailRequest):
	default:
		t.Fatal("expected a message on the email queue")
	}

	undispatched, err := repo.ListUndispatched(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, undispatched)
}

func TestDispatchOnce_MarksFailedWhenQueueUnroutable(t *testing.T) {
	repo := &fakeOutboxRepo{}
	writer := NewWriter(repo)
	require.NoError(t, writer.Write(context.Background(), "t1", "invoice.finalized", "inv-1", nil))

	queue := NewChannelQueueBackend(4) // no queues registered: Send always fails
	d := NewDispatcher(repo, queue, DefaultRouter, nil, 2, 10, nil)

	result, err := d.DispatchOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, repo.events[0].LastError)
}

func TestDispatchOnce_ExhaustedAttemptsAreNotRetried(t *testing.T) {
	repo := &fakeOutboxRepo{events: []*outbox.Event{
		{ID: "evt-1", TenantID: "t1", Topic: "invoice.finalized", Attempts: 10},
	}}
	queue := NewChannelQueueBackend(4, QueueInvoicePdfRequest, QueueSendEmailRequest)
	d := NewDispatcher(repo, queue, DefaultRouter, nil, 2, 10, nil)

	result, err := d.DispatchOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, 1, result.Failed)
}

func TestDispatchOnce_NoUndispatchedEventsIsNoop(t *testing.T) {
	repo := &fakeOutboxRepo{}
	queue := NewChannelQueueBackend(4)
	d := NewDispatcher(repo, queue, nil, nil, 0, 0, nil)

	result, err := d.DispatchOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, 0, result.Failed)
}
