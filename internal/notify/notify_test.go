package notify

import (
	"context"
	"testing"
)

func TestQueueSinkEnqueueAndDrain(t *testing.T) {
	q := NewQueueSink(2)
	ctx := context.Background()

	res, err := q.Notify(ctx, "trigger", "title", "body", PriorityHigh, nil)
	if err != nil || !res.OK {
		t.Fatalf("got %+v err=%v", res, err)
	}
	if q.Len() != 1 {
		t.Fatalf("got len %d", q.Len())
	}
	drained := q.Drain(5)
	if len(drained) != 1 || drained[0].Title != "title" {
		t.Fatalf("got %+v", drained)
	}
}

func TestQueueSinkDropsWhenFull(t *testing.T) {
	q := NewQueueSink(1)
	ctx := context.Background()

	if _, err := q.Notify(ctx, "a", "a", "a", PriorityLow, nil); err != nil {
		t.Fatal(err)
	}
	res, err := q.Notify(ctx, "b", "b", "b", PriorityLow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Fatal("expected second notify to be dropped")
	}
}

func TestQueueSinkForwarderInvoked(t *testing.T) {
	q := NewQueueSink(4)
	done := make(chan Notification, 1)
	q.WithForwarder(func(n Notification) error {
		done <- n
		return nil
	})

	_, _ = q.Notify(context.Background(), "alert", "t", "b", PriorityCritical, map[string]interface{}{"k": "v"})
	n := <-done
	if n.Type != "alert" {
		t.Fatalf("got %+v", n)
	}
}
