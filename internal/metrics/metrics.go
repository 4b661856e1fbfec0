// Package metrics implements C10: the Metrics Collector and Alert
// Manager. Collect fans out to every registered source in parallel — a
// source failure surfaces as an error field on that section, never aborts
// the snapshot. The Alert Manager's Diff takes a Reading (not a Snapshot),
// compares it against published thresholds and fires/clears typed alerts;
// Collect does not call Diff, and no code in this package builds a Reading
// from a Snapshot.
package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Source names a fan-out section of a Snapshot.
type Source string

const (
	SourceChain   Source = "chain"
	SourceGraph   Source = "graph"
	SourceCircuit Source = "circuit"
	SourceTrace   Source = "trace"
	SourceSkills  Source = "skills"
	SourceQLearn  Source = "qlearn"
	SourceSystem  Source = "system"
)

// SectionFunc produces one section of a snapshot; returning an error
// leaves Data nil and populates Err without aborting the overall collect.
type SectionFunc func(ctx context.Context) (map[string]interface{}, error)

// Section is one fanned-out piece of a Snapshot.
type Section struct {
	Data map[string]interface{}
	Err  string
}

// Snapshot is a single point-in-time metrics gather.
type Snapshot struct {
	Taken     time.Time
	Sections  map[Source]Section
	Uptime    time.Duration
	HeapBytes uint64
}

// Collector owns the registered sources and collects snapshots on demand.
type Collector struct {
	mu      sync.RWMutex
	sources map[Source]SectionFunc
	started time.Time

	// counters aggregated directly from orchestrator callbacks, exposed
	// via to-prometheus alongside whatever collect() gathers.
	judgmentsByVerdict map[string]int64
	dogInvocations     map[string]int64
	qScores            []float64
}

// NewCollector creates an empty collector; sources are wired in with Register.
func NewCollector() *Collector {
	return &Collector{
		sources:            make(map[Source]SectionFunc),
		started:            time.Now(),
		judgmentsByVerdict: make(map[string]int64),
		dogInvocations:     make(map[string]int64),
	}
}

// Register wires a named source into the fan-out performed by Collect.
func (c *Collector) Register(name Source, fn SectionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = fn
}

// RecordJudgment increments the judgments_total counter for a verdict and
// appends to the rolling q-score series used for avg_q_score.
func (c *Collector) RecordJudgment(verdict string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.judgmentsByVerdict[verdict]++
	c.qScores = append(c.qScores, score)
	if len(c.qScores) > 10000 {
		c.qScores = c.qScores[len(c.qScores)-10000:]
	}
}

// RecordDogInvocation increments dog_invocations{dog=...} for a named
// domain handler ("dog" in the spec's metric-label vocabulary).
func (c *Collector) RecordDogInvocation(dog string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dogInvocations[dog]++
}

// AvgQScore returns the mean of recorded judgment scores, or 0 if none.
func (c *Collector) AvgQScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.qScores) == 0 {
		return 0
	}
	mean, err := stats.Mean(stats.Float64Data(c.qScores))
	if err != nil {
		return 0
	}
	return mean
}

// Collect gathers every registered source concurrently.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	c.mu.RLock()
	sources := make(map[Source]SectionFunc, len(c.sources))
	for k, v := range c.sources {
		sources[k] = v
	}
	c.mu.RUnlock()

	type result struct {
		name Source
		sec  Section
	}
	results := make(chan result, len(sources))
	var wg sync.WaitGroup
	for name, fn := range sources {
		wg.Add(1)
		go func(name Source, fn SectionFunc) {
			defer wg.Done()
			data, err := fn(ctx)
			sec := Section{Data: data}
			if err != nil {
				sec.Err = err.Error()
			}
			results <- result{name: name, sec: sec}
		}(name, fn)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	sections := make(map[Source]Section, len(sources))
	for r := range results {
		sections[r.name] = r.sec
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		Taken:     time.Now(),
		Sections:  sections,
		Uptime:    time.Since(c.started),
		HeapBytes: memStats.HeapAlloc,
	}
}

// ToPrometheus renders a snapshot plus the collector's own counters in
// Prometheus text exposition format, using the spec's stable metric names.
// alerts may be nil, in which case alerts_active is omitted.
func (c *Collector) ToPrometheus(snap Snapshot, alerts *AlertManager) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder

	verdicts := make([]string, 0, len(c.judgmentsByVerdict))
	for v := range c.judgmentsByVerdict {
		verdicts = append(verdicts, v)
	}
	sort.Strings(verdicts)
	fmt.Fprintf(&b, "# TYPE judgments_total counter\n")
	for _, v := range verdicts {
		fmt.Fprintf(&b, "judgments_total{verdict=%q} %d\n", v, c.judgmentsByVerdict[v])
	}

	avg := 0.0
	if len(c.qScores) > 0 {
		if m, err := stats.Mean(stats.Float64Data(c.qScores)); err == nil {
			avg = m
		}
	}
	fmt.Fprintf(&b, "# TYPE avg_q_score gauge\navg_q_score %f\n", avg)

	if chain, ok := snap.Sections[SourceChain]; ok && chain.Data != nil {
		if h, ok := chain.Data["head_slot"]; ok {
			fmt.Fprintf(&b, "# TYPE chain_height gauge\nchain_height %v\n", h)
		}
		if n, ok := chain.Data["block_count"]; ok {
			fmt.Fprintf(&b, "# TYPE poj_blocks_total counter\npoj_blocks_total %v\n", n)
		}
	}

	dogs := make([]string, 0, len(c.dogInvocations))
	for d := range c.dogInvocations {
		dogs = append(dogs, d)
	}
	sort.Strings(dogs)
	fmt.Fprintf(&b, "# TYPE dog_invocations counter\n")
	for _, d := range dogs {
		fmt.Fprintf(&b, "dog_invocations{dog=%q} %d\n", d, c.dogInvocations[d])
	}

	fmt.Fprintf(&b, "# TYPE uptime_seconds gauge\nuptime_seconds %d\n", int64(snap.Uptime.Seconds()))
	fmt.Fprintf(&b, "# TYPE memory_used_bytes gauge\nmemory_used_bytes %d\n", snap.HeapBytes)

	if alerts != nil {
		fmt.Fprintf(&b, "# TYPE alerts_active gauge\nalerts_active %d\n", alerts.ActiveCount())
	}

	return b.String()
}
