// Package breaker implements the three-state circuit breaker that guards
// every external dependency in the judgment node: closed (healthy),
// open (rejecting), half-open (probing).
//
// The backoff/jitter shape is adapted from the teacher's
// orchestrator/llm/sdk RetryConfig — exponential backoff with a jitter
// fraction — generalized here to golden-ratio growth per spec (φ^openings)
// and capped, rather than a fixed multiplier.
package breaker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/pojudge/node/internal/judgment"
)

// ErrOpen is returned by Call when the circuit is open or a half-open
// probe slot is not yet available.
var ErrOpen = errors.New("circuit-open")

// State is the circuit breaker's current mode.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// Options configures a Breaker. Zero values fall back to the published
// defaults (failure threshold 5, base backoff 250ms, max backoff 60s).
type Options struct {
	FailureThreshold int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	// HealthProbe, if set, is run first in half-open state; Call only
	// proceeds to fn if the probe succeeds.
	HealthProbe func(ctx context.Context) error
}

// Snapshot is the read-only Circuit State exposed to callers and metrics.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveOpenings int
	CurrentBackoffMs    int64
	TimeUntilProbeMs    int64
	LastFailAt          time.Time
	LastProbeAt         time.Time
}

// Counters are the monotonic counters exposed as metrics gauges.
type Counters struct {
	Opens           int64
	HalfOpenProbes  int64
	Passes          int64
	Rejects         int64
}

// Breaker is a single named circuit.
type Breaker struct {
	name string
	opts Options

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveOpenings int
	backoff             time.Duration
	openedAt            time.Time
	lastFailAt          time.Time
	lastProbeAt         time.Time
	probeInFlight       bool
	counters            Counters
}

// New creates a Breaker guarding one named resource.
func New(name string, opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * time.Second
	}
	return &Breaker{name: name, opts: opts, state: Closed}
}

// Call executes fn if the circuit allows it. In half-open state, if a
// HealthProbe is configured it is run first; fn only executes when the
// probe succeeds (or no probe is configured).
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		b.mu.Lock()
		b.counters.Rejects++
		b.mu.Unlock()
		return ErrOpen
	}

	err := fn(ctx)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && err == nil {
		err = ctx.Err()
	}

	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// allow decides, under lock, whether a call may proceed right now and
// transitions Open -> HalfOpen once the backoff window has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.counters.Passes++
		return true
	case Open:
		if time.Since(b.openedAt) < b.backoff {
			return false
		}
		b.state = HalfOpen
		b.probeInFlight = false
		fallthrough
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		b.lastProbeAt = time.Now()
		b.counters.HalfOpenProbes++
		if b.opts.HealthProbe != nil {
			if err := b.opts.HealthProbe(context.Background()); err != nil {
				b.probeInFlight = false
				b.tripLocked()
				return false
			}
		}
		b.counters.Passes++
		return true
	}
	return false
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.consecutiveOpenings = 0
	b.state = Closed
	b.probeInFlight = false
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailAt = time.Now()
	b.probeInFlight = false

	if b.state == HalfOpen {
		b.tripLocked()
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.opts.FailureThreshold {
		b.tripLocked()
	}
}

// tripLocked transitions to Open with a golden-ratio exponential backoff,
// jittered by ±20%. Caller must hold b.mu.
func (b *Breaker) tripLocked() {
	b.state = Open
	b.consecutiveOpenings++
	b.consecutiveFailures = 0
	b.openedAt = time.Now()
	b.counters.Opens++

	backoff := time.Duration(float64(b.opts.BaseBackoff) * pow(judgment.Phi, float64(b.consecutiveOpenings-1)))
	if backoff > b.opts.MaxBackoff {
		backoff = b.opts.MaxBackoff
	}
	jitterDelta := float64(backoff) * 0.2
	jitter := (rand.Float64() * 2 * jitterDelta) - jitterDelta
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = 0
	}
	b.backoff = backoff
}

// Trip forces the circuit Open indefinitely (beyond the normal backoff)
// until Reset is called explicitly.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked()
	b.backoff = 365 * 24 * time.Hour
}

// Reset returns the circuit to Closed and zeroes openings.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveOpenings = 0
	b.probeInFlight = false
}

// State returns a point-in-time snapshot of the circuit.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	var untilProbe time.Duration
	if b.state == Open {
		elapsed := time.Since(b.openedAt)
		if elapsed < b.backoff {
			untilProbe = b.backoff - elapsed
		}
	}

	return Snapshot{
		Name:                b.name,
		State:               b.state,
		ConsecutiveOpenings: b.consecutiveOpenings,
		CurrentBackoffMs:    b.backoff.Milliseconds(),
		TimeUntilProbeMs:    untilProbe.Milliseconds(),
		LastFailAt:          b.lastFailAt,
		LastProbeAt:         b.lastProbeAt,
	}
}

// CounterSnapshot returns a copy of the monotonic counters.
func (b *Breaker) CounterSnapshot() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
