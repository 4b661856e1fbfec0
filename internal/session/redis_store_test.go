package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, time.Hour)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.SetTrust(ctx, "alice", 70); err != nil {
		t.Fatal(err)
	}
	st, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.TrustValue != 70 {
		t.Fatalf("got %v", st.TrustValue)
	}
}

func TestRedisStoreMatchFeedback(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	_ = s.RecordLastJudgment(ctx, "bob", "j-42")
	id, ok, err := s.MatchFeedback(ctx, "bob", "accepted")
	if err != nil || !ok || id != "j-42" {
		t.Fatalf("got id=%s ok=%v err=%v", id, ok, err)
	}
}
