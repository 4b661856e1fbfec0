package skills

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pojudge/node/internal/breaker"
)

func TestInvokeSuccess(t *testing.T) {
	r := New(time.Second, breaker.Options{FailureThreshold: 3})
	r.Register("protection", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	res := r.Invoke(context.Background(), "protection", nil)
	if !res.OK || res.Result["ok"] != true {
		t.Fatalf("got %+v", res)
	}
}

func TestInvokeMissingHandler(t *testing.T) {
	r := New(time.Second, breaker.Options{})
	res := r.Invoke(context.Background(), "nonexistent", nil)
	if res.OK {
		t.Fatal("expected not ok")
	}
}

func TestInvokeCircuitOpen(t *testing.T) {
	r := New(time.Second, breaker.Options{FailureThreshold: 1, BaseBackoff: time.Minute})
	r.Register("flaky", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})

	_ = r.Invoke(context.Background(), "flaky", nil)
	res := r.Invoke(context.Background(), "flaky", nil)
	if res.OK || res.Error != "circuit-open" {
		t.Fatalf("expected circuit-open, got %+v", res)
	}
}

func TestInvokeRejectsBeyondQueueCapacity(t *testing.T) {
	r := New(time.Second, breaker.Options{FailureThreshold: 100}, 2)
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	r.Register("busy", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		started.Done()
		<-release
		return map[string]interface{}{}, nil
	})

	var inFlight sync.WaitGroup
	inFlight.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer inFlight.Done()
			r.Invoke(context.Background(), "busy", nil)
		}()
	}

	started.Wait()
	rejected := r.Invoke(context.Background(), "busy", nil)
	close(release)
	inFlight.Wait()

	if rejected.OK || rejected.Error != "circuit-open" {
		t.Fatalf("expected an invocation beyond capacity to be rejected as circuit-open, got %+v", rejected)
	}
}

func TestInvokeDeadlineExceeded(t *testing.T) {
	r := New(10*time.Millisecond, breaker.Options{FailureThreshold: 5})
	r.Register("slow", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return map[string]interface{}{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	res := r.Invoke(context.Background(), "slow", nil)
	if res.OK {
		t.Fatal("expected deadline failure")
	}
}
