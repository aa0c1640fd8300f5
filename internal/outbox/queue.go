package outbox

import (
	"context"

	ierr "github.com/ledgerbase/billing/internal/errors"
)

func errUnknownQueue(name string) error {
	return ierr.NewError("unknown outbox queue").
		WithHintf("no queue registered for %q", name).
		Mark(ierr.ErrInvalidOperation).Err()
}

// Message is what a dispatched outbox event projects onto: a named
// pgmq-style queue plus a JSON body (spec.md §6: "InvoicePdfRequest,
// SendEmailRequest, CreditNotePdfRequest...").
type Message struct {
	Queue   string
	Payload []byte
}

// QueueBackend is the pgmq port. Production wires this to a real pgmq
// (or SQS/NATS) client; tests and the in-process worker use the
// channel-backed implementation below.
type QueueBackend interface {
	Send(ctx context.Context, msg Message) error
}

// Router decides which queue(s) an outbox topic fans out to, and builds
// each queue's payload from the raw event payload. Topics this router
// has no route for are webhook-only (still dispatched, never queued).
type Router func(topic string, eventPayload []byte) []Message

// DefaultRouter implements the fan-out table of spec.md §6: invoice
// finalization also requests a PDF render and a confirmation email;
// credit notes request their own PDF render.
func DefaultRouter(topic string, payload []byte) []Message {
	switch topic {
	case "invoice.finalized":
		return []Message{
			{Queue: QueueInvoicePdfRequest, Payload: payload},
			{Queue: QueueSendEmailRequest, Payload: payload},
		}
	case "invoice.paid":
		return []Message{{Queue: QueueSendEmailRequest, Payload: payload}}
	case "credit_note.issued":
		return []Message{{Queue: QueueCreditNotePdfRequest, Payload: payload}}
	default:
		return nil
	}
}

const (
	QueueInvoicePdfRequest    = "InvoicePdfRequest"
	QueueSendEmailRequest     = "SendEmailRequest"
	QueueCreditNotePdfRequest = "CreditNotePdfRequest"
)

// ChannelQueueBackend is an in-process pgmq stand-in: each named queue is
// a buffered channel drained by a caller-supplied consumer. It exists so
// the worker binary and tests can run the dispatcher end-to-end without a
// real queue broker.
type ChannelQueueBackend struct {
	queues map[string]chan Message
}

// NewChannelQueueBackend creates the named queues with the given buffer
// depth. Sending to a queue not in this set is a programmer error
// reported as ErrInvalidOperation rather than panicking.
func NewChannelQueueBackend(buffer int, queueNames ...string) *ChannelQueueBackend {
	queues := make(map[string]chan Message, len(queueNames))
	for _, name := range queueNames {
		queues[name] = make(chan Message, buffer)
	}
	return &ChannelQueueBackend{queues: queues}
}

func (b *ChannelQueueBackend) Send(ctx context.Context, msg Message) error {
	ch, ok := b.queues[msg.Queue]
	if !ok {
		return errUnknownQueue(msg.Queue)
	}
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Channel exposes the named queue for a consumer goroutine to range over.
func (b *ChannelQueueBackend) Channel(name string) <-chan Message {
	return b.queues[name]
}
