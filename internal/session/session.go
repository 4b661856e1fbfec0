// Package session implements C13: per-user running state, with an
// in-memory TTL-evicted store and a Redis-backed store that satisfies the
// same Store interface — the orchestrator depends only on the interface,
// matching the spec's "caller receives read-only snapshots" ownership
// rule for everything except Session State, which it may mutate only via
// these defined operations.
package session

import (
	"context"
	"sync"
	"time"
)

// State is the per-user running state the orchestrator consults and updates.
type State struct {
	UserID             string
	TrustValue         float64
	CurrentProject     string
	RecentEvents       []string // bounded <= 10, most recent last
	PendingSuggestions []string
	LastJudgmentID     string
	LastJudgmentAt     time.Time
	UpdatedAt          time.Time
}

// lastJudgmentTTL bounds how long a recorded last-judgment id remains
// linkable to incoming feedback.
const lastJudgmentTTL = 10 * time.Minute

// maxRecentEvents bounds the per-user recent event window.
const maxRecentEvents = 10

// Patch describes a partial update to apply to a user's State.
type Patch struct {
	CurrentProject *string
	TrustValue     *float64
}

// Store is the contract the orchestrator depends on; both InMemoryStore
// and the Redis-backed store satisfy it.
type Store interface {
	Get(ctx context.Context, userID string) (State, error)
	Update(ctx context.Context, userID string, patch Patch) error
	SetTrust(ctx context.Context, userID string, value float64) error
	TrackEvent(ctx context.Context, userID string, kind string) error
	RecordLastJudgment(ctx context.Context, userID string, judgmentID string) error
	MatchFeedback(ctx context.Context, userID string, feedback string) (string, bool, error)
}

// DefaultTrustValue is what a brand-new session starts at — "builder / 50"
// per spec §4.9 step 1 (best-effort load failure falls back here too).
const DefaultTrustValue = 50.0

// InMemoryStore is a process-local Store with idle-TTL eviction.
type InMemoryStore struct {
	mu    sync.Mutex
	byUser map[string]*entry
	ttl   time.Duration
}

type entry struct {
	state      State
	lastTouch  time.Time
}

// NewInMemoryStore creates a store whose entries are evicted after ttl of
// inactivity (default 24h if ttl <= 0).
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemoryStore{byUser: make(map[string]*entry), ttl: ttl}
}

func (s *InMemoryStore) getOrCreateLocked(userID string) *entry {
	e, ok := s.byUser[userID]
	if !ok {
		e = &entry{state: State{UserID: userID, TrustValue: DefaultTrustValue}}
		s.byUser[userID] = e
	}
	e.lastTouch = time.Now()
	return e
}

func (s *InMemoryStore) Get(ctx context.Context, userID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(userID)
	return e.state, nil
}

func (s *InMemoryStore) Update(ctx context.Context, userID string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(userID)
	if patch.CurrentProject != nil {
		e.state.CurrentProject = *patch.CurrentProject
	}
	if patch.TrustValue != nil {
		e.state.TrustValue = *patch.TrustValue
	}
	e.state.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) SetTrust(ctx context.Context, userID string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(userID)
	e.state.TrustValue = value
	e.state.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) TrackEvent(ctx context.Context, userID string, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(userID)
	e.state.RecentEvents = append(e.state.RecentEvents, kind)
	if len(e.state.RecentEvents) > maxRecentEvents {
		e.state.RecentEvents = e.state.RecentEvents[len(e.state.RecentEvents)-maxRecentEvents:]
	}
	return nil
}

func (s *InMemoryStore) RecordLastJudgment(ctx context.Context, userID string, judgmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(userID)
	e.state.LastJudgmentID = judgmentID
	e.state.LastJudgmentAt = time.Now()
	return nil
}

// MatchFeedback returns the last-judgment id only if it is still within
// the 10-minute TTL; expired references do not link feedback.
func (s *InMemoryStore) MatchFeedback(ctx context.Context, userID string, feedback string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byUser[userID]
	if !ok || e.state.LastJudgmentID == "" {
		return "", false, nil
	}
	if time.Since(e.state.LastJudgmentAt) > lastJudgmentTTL {
		return "", false, nil
	}
	return e.state.LastJudgmentID, true, nil
}

// Sweep evicts any entry untouched for longer than the store's TTL. It is
// intended to be run from a periodic background loop.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	now := time.Now()
	for id, e := range s.byUser {
		if now.Sub(e.lastTouch) > s.ttl {
			delete(s.byUser, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of resident sessions (test/metrics helper).
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}
