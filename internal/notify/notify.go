// Package notify implements C14: the typed outbound notification
// interface. The orchestrator depends only on the Sink interface; nothing
// in the core depends on a specific transport. QueueSink is the reference
// internal-queue implementation; an external forwarder can be composed on
// top of it via WithForwarder.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency of a notification.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Notification is one outbound message.
type Notification struct {
	ID       string
	Type     string
	Title    string
	Body     string
	Priority Priority
	Context  map[string]interface{}
	SentAt   time.Time
}

// Result is the uniform response from Notify.
type Result struct {
	OK bool
}

// Sink is the interface the orchestrator depends on.
type Sink interface {
	Notify(ctx context.Context, ntype, title, body string, priority Priority, context map[string]interface{}) (Result, error)
}

// QueueSink is a bounded internal queue; an enqueue that would exceed
// capacity drops the notification (ok=false) rather than blocking,
// matching the spec's skill-queue backpressure policy applied here to
// notifications.
type QueueSink struct {
	queue     chan Notification
	forwarder func(Notification) error
}

// NewQueueSink creates a sink with the given bounded capacity.
func NewQueueSink(capacity int) *QueueSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &QueueSink{queue: make(chan Notification, capacity)}
}

// WithForwarder attaches an external forwarding function, invoked
// best-effort after a notification is enqueued. A forwarder failure does
// not affect the Notify result — Notify only reports on the enqueue.
func (q *QueueSink) WithForwarder(fn func(Notification) error) *QueueSink {
	q.forwarder = fn
	return q
}

// Notify enqueues a notification; it never blocks.
func (q *QueueSink) Notify(ctx context.Context, ntype, title, body string, priority Priority, context map[string]interface{}) (Result, error) {
	n := Notification{
		ID: uuid.NewString(), Type: ntype, Title: title, Body: body,
		Priority: priority, Context: context, SentAt: time.Now(),
	}
	select {
	case q.queue <- n:
		if q.forwarder != nil {
			go func() { _ = q.forwarder(n) }()
		}
		return Result{OK: true}, nil
	default:
		return Result{OK: false}, nil
	}
}

// Drain removes and returns up to n queued notifications (test/consumer helper).
func (q *QueueSink) Drain(n int) []Notification {
	out := make([]Notification, 0, n)
	for i := 0; i < n; i++ {
		select {
		case notif := <-q.queue:
			out = append(out, notif)
		default:
			return out
		}
	}
	return out
}

// Len reports the number of currently queued notifications.
func (q *QueueSink) Len() int {
	return len(q.queue)
}
