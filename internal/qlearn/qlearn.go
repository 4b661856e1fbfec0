// Package qlearn implements C12: the Q-learning feedback loop that
// updates evaluator weights from judgment outcomes, with a Fisher-style
// importance-weighted forgetting guard and Brier-score calibration.
package qlearn

import (
	"sync"

	"github.com/montanaflynn/stats"
)

// key identifies a (context-tag, action-tag) cell in the Q-table.
type key struct {
	context string
	action  string
}

// cell is the table's per-(s,a) bookkeeping.
type cell struct {
	value      float64
	tdErrors   []float64 // recent temporal-difference errors, for importance variance
	importance float64
	snapshot   float64
	hasSnap    bool
}

// Params are the learning-rate constants, overridable from their spec defaults.
type Params struct {
	Alpha                float64 // learning rate, ≈0.5
	Gamma                float64 // discount factor, ≈0.9
	Lambda               float64 // forgetting-guard penalty weight
	ConsolidationEpisodes int    // N, ≈100
}

// DefaultParams matches the spec's published constants.
func DefaultParams() Params {
	return Params{Alpha: 0.5, Gamma: 0.9, Lambda: 0.1, ConsolidationEpisodes: 100}
}

// Table is the Q-value store plus forgetting-guard and calibration state.
type Table struct {
	mu      sync.Mutex
	params  Params
	cells   map[key]*cell
	episode int

	predictions []prediction // for Brier score windows
}

type prediction struct {
	p        float64
	outcome  bool
}

// NewTable creates an empty Q-table.
func NewTable(p Params) *Table {
	return &Table{params: p, cells: make(map[key]*cell)}
}

func (t *Table) getOrCreate(k key) *cell {
	c, ok := t.cells[k]
	if !ok {
		c = &cell{}
		t.cells[k] = c
	}
	return c
}

// maxOverActions returns max_a' Q(s', a') across every action seen for contextTag.
func (t *Table) maxOverActions(contextTag string) float64 {
	best := 0.0
	found := false
	for k, c := range t.cells {
		if k.context != contextTag {
			continue
		}
		if !found || c.value > best {
			best = c.value
			found = true
		}
	}
	return best
}

// UpdateReward applies one TD update: Q(s,a) += α(r + γ·max Q(s',·) − Q(s,a)).
func (t *Table) UpdateReward(contextTag, actionTag string, reward float64, nextContextTag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{context: contextTag, action: actionTag}
	c := t.getOrCreate(k)

	maxNext := t.maxOverActions(nextContextTag)
	tdError := reward + t.params.Gamma*maxNext - c.value

	target := c.value + t.params.Alpha*tdError
	if c.hasSnap {
		penalty := t.params.Lambda * c.importance * (c.value - c.snapshot) * (c.value - c.snapshot)
		target -= t.params.Alpha * penalty
	}
	c.value = target

	c.tdErrors = append(c.tdErrors, tdError)
	if len(c.tdErrors) > 200 {
		c.tdErrors = c.tdErrors[len(c.tdErrors)-200:]
	}
	if v, err := stats.Variance(stats.Float64Data(c.tdErrors)); err == nil {
		c.importance = v
	}

	t.episode++
	if t.episode%t.params.ConsolidationEpisodes == 0 {
		t.consolidateLocked()
	}
}

// consolidateLocked freezes a snapshot of every cell's current value —
// called every ConsolidationEpisodes episodes.
func (t *Table) consolidateLocked() {
	for _, c := range t.cells {
		c.snapshot = c.value
		c.hasSnap = true
	}
}

// Value returns the current Q-value for (contextTag, actionTag), or 0 if unseen.
func (t *Table) Value(contextTag, actionTag string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cells[key{context: contextTag, action: actionTag}]
	if !ok {
		return 0
	}
	return c.value
}

// Importance returns the Fisher-style importance value for (s,a), or 0 if unseen.
func (t *Table) Importance(contextTag, actionTag string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cells[key{context: contextTag, action: actionTag}]
	if !ok {
		return 0
	}
	return c.importance
}

// RecordPrediction registers a calibration pair: the probability predicted
// before the fact, and the boolean outcome observed after.
func (t *Table) RecordPrediction(p float64, outcome bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.predictions = append(t.predictions, prediction{p: p, outcome: outcome})
	if len(t.predictions) > 5000 {
		t.predictions = t.predictions[len(t.predictions)-5000:]
	}
}

// BrierScore computes the Brier score over the last window predictions
// (or all of them if window <= 0 or exceeds the count). Perfect=0,
// random baseline (p=0.5)≈0.25, worst=1.
func (t *Table) BrierScore(window int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	preds := t.predictions
	if window > 0 && window < len(preds) {
		preds = preds[len(preds)-window:]
	}
	if len(preds) == 0 {
		return 0
	}
	sum := 0.0
	for _, pr := range preds {
		outcome := 0.0
		if pr.outcome {
			outcome = 1.0
		}
		diff := pr.p - outcome
		sum += diff * diff
	}
	return sum / float64(len(preds))
}

// RewardFor maps a judgment outcome to the numeric reward the spec's open
// question (§9) leaves unspecified; resolved as allow=+1, modified=+0.5,
// blocked=0, deferred/cancelled=-0.5.
func RewardFor(outcome string) float64 {
	switch outcome {
	case "allow":
		return 1.0
	case "modified":
		return 0.5
	case "blocked":
		return 0.0
	default: // deferred, cancelled, or any other terminal disposition
		return -0.5
	}
}
