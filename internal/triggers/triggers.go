// Package triggers implements C11: the proactive Trigger Engine. Each
// trigger kind evaluates a read-only view of running state on its own
// cooldown; a fire builds a suggestion from the published template table,
// optionally gated by a collective-vote consensus function, and the
// resulting suggestion moves through a short pending→resolved lifecycle.
package triggers

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pojudge/node/internal/judgment"
)

// Kind names one of the six trigger conditions.
type Kind string

const (
	KindErrorPattern  Kind = "error-pattern"
	KindContextDrift  Kind = "context-drift"
	KindBurnoutRisk   Kind = "burnout-risk"
	KindPatternMatch  Kind = "pattern-match"
	KindDeadlineNear  Kind = "deadline-near"
	KindLearningOpp   Kind = "learning-opp"
)

// Urgency is one of the three suggestion urgency levels.
type Urgency string

const (
	UrgencySubtle Urgency = "subtle"
	UrgencyActive Urgency = "active"
	UrgencyUrgent Urgency = "urgent"
)

// cooldowns per kind, within the spec's published 2-30 minute range.
var cooldowns = map[Kind]time.Duration{
	KindErrorPattern: 5 * time.Minute,
	KindContextDrift: 10 * time.Minute,
	KindBurnoutRisk:  30 * time.Minute,
	KindPatternMatch: 15 * time.Minute,
	KindDeadlineNear: 30 * time.Minute,
	KindLearningOpp:  20 * time.Minute,
}

// templates is the published three-urgency-level suggestion text table.
var templates = map[Kind]map[Urgency]string{
	KindErrorPattern: {
		UrgencySubtle: "A few similar errors have occurred recently.",
		UrgencyActive: "Repeated errors of the same kind — consider pausing to investigate.",
		UrgencyUrgent: "Error pattern is recurring frequently; recommend stopping to investigate before continuing.",
	},
	KindContextDrift: {
		UrgencySubtle: "Current focus may be drifting from the stated goal.",
		UrgencyActive: "Work appears to have drifted from the active goal.",
		UrgencyUrgent: "Significant drift from the active goal detected; consider re-aligning.",
	},
	KindBurnoutRisk: {
		UrgencySubtle: "Energy appears to be trending down.",
		UrgencyActive: "Energy is low; a short break may help.",
		UrgencyUrgent: "Energy is critically low; strongly recommend a break.",
	},
	KindPatternMatch: {
		UrgencySubtle: "A similar past approach succeeded here.",
		UrgencyActive: "A similar situation was handled successfully before — consider the same approach.",
		UrgencyUrgent: "High-confidence match to a previously successful approach.",
	},
	KindDeadlineNear: {
		UrgencySubtle: "A goal deadline is approaching.",
		UrgencyActive: "A goal deadline is within a day.",
		UrgencyUrgent: "A goal deadline is imminent.",
	},
	KindLearningOpp: {
		UrgencySubtle: "A recurring pattern has been noticed.",
		UrgencyActive: "A recurring pattern may be worth capturing as a reusable approach.",
		UrgencyUrgent: "A strong recurring pattern has emerged and should be captured now.",
	},
}

// State is the read-only view each trigger condition evaluates against.
type State struct {
	RecentErrorKinds   []string // most recent last
	Now                time.Time
	GoalText           string
	CurrentFocus       string
	EnergyLevel        float64
	PastSuccessConf    float64
	GoalDeadline       time.Time
	HasActiveGoal      bool
	EmergingPatternOccurrences int
	EmergingPatternSurfaced    bool
}

// Suggestion is a fired, possibly-pending recommendation.
type Suggestion struct {
	ID        string
	Kind      Kind
	Urgency   Urgency
	Text      string
	FiredAt   time.Time
	Status    Status
	ExpiresAt time.Time
}

// Status is a suggestion's lifecycle stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

const suggestionTTL = 5 * time.Minute

// VoteFunc is an optional collective-consensus gate; a fire only surfaces
// if VoteFunc returns a score >= judgment.PhiInverse.
type VoteFunc func(kind Kind, text string) float64

// Engine evaluates trigger conditions and tracks suggestion lifecycle.
type Engine struct {
	mu          sync.Mutex
	lastFired   map[Kind]time.Time
	pending     map[string]*Suggestion
	vote        VoteFunc
	acceptance  map[Kind]*acceptanceStats
	idSeq       int
}

type acceptanceStats struct {
	fired    int
	accepted int
}

// NewEngine creates a trigger engine; vote may be nil to auto-approve every fire.
func NewEngine(vote VoteFunc) *Engine {
	return &Engine{
		lastFired:  make(map[Kind]time.Time),
		pending:    make(map[string]*Suggestion),
		vote:       vote,
		acceptance: make(map[Kind]*acceptanceStats),
	}
}

func (e *Engine) onCooldown(kind Kind, now time.Time) bool {
	last, ok := e.lastFired[kind]
	if !ok {
		return false
	}
	return now.Sub(last) < cooldowns[kind]
}

// tokenOverlap returns the fraction of goal tokens also present in focus.
func tokenOverlap(goal, focus string) float64 {
	goalTokens := strings.Fields(strings.ToLower(goal))
	if len(goalTokens) == 0 {
		return 1
	}
	focusSet := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(focus)) {
		focusSet[t] = true
	}
	matched := 0
	for _, t := range goalTokens {
		if focusSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(goalTokens))
}

func urgencyFor(kind Kind, severity float64) Urgency {
	switch {
	case severity >= judgment.PhiInverse:
		return UrgencyUrgent
	case severity >= judgment.PhiInverseSquare:
		return UrgencyActive
	default:
		return UrgencySubtle
	}
}

// Evaluate checks every trigger kind against state and returns newly-fired
// suggestions (cooldown-gated, vote-gated, and inserted into pending).
func (e *Engine) Evaluate(state State) []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}

	var fired []Suggestion

	tryFire := func(kind Kind, severity float64) {
		if e.onCooldown(kind, now) {
			return
		}
		urgency := urgencyFor(kind, severity)
		text := templates[kind][urgency]
		if e.vote != nil {
			if e.vote(kind, text) < judgment.PhiInverse {
				return
			}
		}
		e.idSeq++
		s := Suggestion{
			ID: idOf(kind, e.idSeq), Kind: kind, Urgency: urgency, Text: text,
			FiredAt: now, Status: StatusPending, ExpiresAt: now.Add(suggestionTTL),
		}
		e.lastFired[kind] = now
		e.pending[s.ID] = &s
		stats := e.acceptance[kind]
		if stats == nil {
			stats = &acceptanceStats{}
			e.acceptance[kind] = stats
		}
		stats.fired++
		fired = append(fired, s)
	}

	if count := countRecentSameKind(state.RecentErrorKinds); count >= 3 {
		tryFire(KindErrorPattern, float64(count)/5.0)
	}
	if state.HasActiveGoal {
		overlap := tokenOverlap(state.GoalText, state.CurrentFocus)
		if overlap < 0.5 {
			tryFire(KindContextDrift, 1-overlap)
		}
	}
	if state.EnergyLevel < judgment.PhiInverseSquare {
		tryFire(KindBurnoutRisk, judgment.PhiInverseSquare-state.EnergyLevel+judgment.PhiInverseSquare)
	}
	if state.PastSuccessConf >= judgment.PhiInverse {
		tryFire(KindPatternMatch, state.PastSuccessConf)
	}
	if state.HasActiveGoal && !state.GoalDeadline.IsZero() {
		if d := state.GoalDeadline.Sub(now); d > 0 && d <= 24*time.Hour {
			tryFire(KindDeadlineNear, 1-float64(d)/float64(24*time.Hour))
		}
	}
	if state.EmergingPatternOccurrences >= 3 && !state.EmergingPatternSurfaced {
		tryFire(KindLearningOpp, float64(state.EmergingPatternOccurrences)/10.0)
	}

	return fired
}

func countRecentSameKind(kinds []string) int {
	if len(kinds) == 0 {
		return 0
	}
	last := kinds[len(kinds)-1]
	n := 0
	for i := len(kinds) - 1; i >= 0 && kinds[i] == last; i-- {
		n++
	}
	return n
}

func idOf(kind Kind, seq int) string {
	return string(kind) + "-" + strconv.Itoa(seq)
}

// Resolve marks a pending suggestion resolved (implicit acceptance detected).
func (e *Engine) Resolve(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.pending[id]
	if !ok || s.Status != StatusPending {
		return false
	}
	s.Status = StatusResolved
	if stats := e.acceptance[s.Kind]; stats != nil {
		stats.accepted++
	}
	return true
}

// Sweep expires any pending suggestion past its TTL; returns the count expired.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.pending {
		if s.Status == StatusPending && now.After(s.ExpiresAt) {
			s.Status = StatusExpired
			n++
		}
	}
	return n
}

// AcceptanceRate returns accepted/fired for a trigger kind, or 0 if never fired.
func (e *Engine) AcceptanceRate(kind Kind) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.acceptance[kind]
	if stats == nil || stats.fired == 0 {
		return 0
	}
	return float64(stats.accepted) / float64(stats.fired)
}

// Pending returns a copy of every suggestion currently pending.
func (e *Engine) Pending() []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Suggestion, 0, len(e.pending))
	for _, s := range e.pending {
		if s.Status == StatusPending {
			out = append(out, *s)
		}
	}
	return out
}
