// Package skills implements C8: named callable domain handlers, invoked
// under a per-call deadline and wrapped in a per-domain circuit breaker,
// always returning the uniform SkillResult envelope.
//
// Grounded on the teacher's AgentRegistry (orchestrator/agent_registry.go)
// for the registration/dispatch shape, generalized from YAML-loaded agent
// configs to a simple in-process domain->handler map per spec §4.8.
package skills

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pojudge/node/internal/breaker"
	"github.com/pojudge/node/internal/judgment"
)

// Handler is a named callable invoked with a free-form payload.
type Handler func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)

// defaultQueueCapacity bounds concurrent in-flight invocations per domain
// when the caller doesn't specify one.
const defaultQueueCapacity = 20

// Registry dispatches invocations to registered domain handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	breakers map[string]*breaker.Breaker
	slots    map[string]chan struct{} // per-domain bounded in-flight token bucket
	deadline time.Duration
	circuit  breaker.Options
	queueCap int
}

// New creates a Registry with the given per-call deadline, default
// circuit breaker options applied to every domain, and a bound on
// concurrent in-flight invocations per domain (<=0 uses
// defaultQueueCapacity). An invocation that arrives once a domain's
// queue is saturated is rejected as circuit-open rather than queued or
// blocked, per the skill invocation queue's bounded-capacity contract.
func New(deadline time.Duration, circuitOpts breaker.Options, queueCapacity ...int) *Registry {
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	capacity := defaultQueueCapacity
	if len(queueCapacity) > 0 && queueCapacity[0] > 0 {
		capacity = queueCapacity[0]
	}
	return &Registry{
		handlers: make(map[string]Handler),
		breakers: make(map[string]*breaker.Breaker),
		slots:    make(map[string]chan struct{}),
		deadline: deadline,
		circuit:  circuitOpts,
		queueCap: capacity,
	}
}

// Register binds a handler to a domain, creating its circuit breaker and
// its bounded in-flight token bucket.
func (r *Registry) Register(domain string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[domain] = h
	r.breakers[domain] = breaker.New("skill:"+domain, r.circuit)
	r.slots[domain] = make(chan struct{}, r.queueCap)
}

// Has reports whether a handler is registered for domain.
func (r *Registry) Has(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[domain]
	return ok
}

// Breaker returns the circuit breaker for a domain, or nil if unregistered.
func (r *Registry) Breaker(domain string) *breaker.Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[domain]
}

// Invoke dispatches to the domain's handler inside its circuit breaker and
// a per-call deadline, always returning the uniform SkillResult envelope —
// it never returns a Go error for a missing handler, a breaker trip, or a
// saturated invocation queue. A domain already running queueCap
// concurrent invocations rejects the new one as circuit-open immediately
// rather than queuing or blocking the caller.
func (r *Registry) Invoke(ctx context.Context, domain string, payload map[string]interface{}) judgment.SkillResult {
	start := time.Now()

	r.mu.RLock()
	h, ok := r.handlers[domain]
	b := r.breakers[domain]
	slots := r.slots[domain]
	r.mu.RUnlock()

	if !ok {
		return judgment.SkillResult{OK: false, Error: "no handler registered for domain " + domain, TookMs: 0}
	}

	select {
	case slots <- struct{}{}:
		defer func() { <-slots }()
	default:
		return judgment.SkillResult{OK: false, Error: "circuit-open", TookMs: time.Since(start).Milliseconds()}
	}

	cctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	var result map[string]interface{}
	callErr := b.Call(cctx, func(ctx context.Context) error {
		res, err := h(ctx, payload)
		result = res
		return err
	})

	took := time.Since(start).Milliseconds()
	if callErr != nil {
		if errors.Is(callErr, breaker.ErrOpen) {
			return judgment.SkillResult{OK: false, Error: "circuit-open", TookMs: took}
		}
		return judgment.SkillResult{OK: false, Error: callErr.Error(), TookMs: took}
	}

	return judgment.SkillResult{OK: true, Result: result, TookMs: took}
}
