// RedisStore satisfies the same Store interface as InMemoryStore, backed
// by Redis so session state survives orchestrator restarts and is shared
// across horizontally scaled instances — the teacher's platform/go.mod
// already depends on github.com/go-redis/redis/v8 (used there for policy
// caching); we reuse the same client here for the one component the spec
// explicitly calls out as TTL-bearing (C13).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Store backed by one JSON-encoded Redis key per user with a
// TTL refreshed on every write, natively expressing the spec's idle-eviction
// semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl defaults to 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: "pojnode:session:", ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) load(ctx context.Context, userID string) (State, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return State{UserID: userID, TrustValue: DefaultTrustValue}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("session: redis get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("session: unmarshal: %w", err)
	}
	return st, nil
}

func (s *RedisStore) save(ctx context.Context, st State) error {
	st.UpdatedAt = time.Now()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(st.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (State, error) {
	return s.load(ctx, userID)
}

func (s *RedisStore) Update(ctx context.Context, userID string, patch Patch) error {
	st, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if patch.CurrentProject != nil {
		st.CurrentProject = *patch.CurrentProject
	}
	if patch.TrustValue != nil {
		st.TrustValue = *patch.TrustValue
	}
	return s.save(ctx, st)
}

func (s *RedisStore) SetTrust(ctx context.Context, userID string, value float64) error {
	st, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	st.TrustValue = value
	return s.save(ctx, st)
}

func (s *RedisStore) TrackEvent(ctx context.Context, userID string, kind string) error {
	st, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	st.RecentEvents = append(st.RecentEvents, kind)
	if len(st.RecentEvents) > maxRecentEvents {
		st.RecentEvents = st.RecentEvents[len(st.RecentEvents)-maxRecentEvents:]
	}
	return s.save(ctx, st)
}

func (s *RedisStore) RecordLastJudgment(ctx context.Context, userID string, judgmentID string) error {
	st, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	st.LastJudgmentID = judgmentID
	st.LastJudgmentAt = time.Now()
	return s.save(ctx, st)
}

func (s *RedisStore) MatchFeedback(ctx context.Context, userID string, feedback string) (string, bool, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if st.LastJudgmentID == "" || time.Since(st.LastJudgmentAt) > lastJudgmentTTL {
		return "", false, nil
	}
	return st.LastJudgmentID, true, nil
}
