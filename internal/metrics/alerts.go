package metrics

import (
	"sync"
	"time"
)

// Level is an alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is a fired threshold breach, addressable by Type.
type Alert struct {
	Type      string
	Level     Level
	Message   string
	Value     float64
	Threshold float64
	FiredAt   time.Time
}

// Thresholds are the five published, overridable alert boundaries.
type Thresholds struct {
	AvgJudgmentScoreFloor float64
	CacheHitRateFloor     float64
	ChainIntegrityMustBe  bool
	CriticalDriftMaxCount int
	SessionIdleTTL        time.Duration
}

// DefaultThresholds mirrors internal/config's MetricsThresholds defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AvgJudgmentScoreFloor: 0.5,
		CacheHitRateFloor:     0.7,
		ChainIntegrityMustBe:  true,
		CriticalDriftMaxCount: 0,
		SessionIdleTTL:        24 * time.Hour,
	}
}

// ThresholdsFromMinutes builds Thresholds from the config package's
// MetricsThresholds shape without importing internal/config here (keeping
// metrics dependency-free of config — the caller converts at the edge).
func ThresholdsFromMinutes(avgFloor, cacheFloor float64, chainMustHold bool, criticalDriftMax, idleTTLMinutes int) Thresholds {
	return Thresholds{
		AvgJudgmentScoreFloor: avgFloor,
		CacheHitRateFloor:     cacheFloor,
		ChainIntegrityMustBe:  chainMustHold,
		CriticalDriftMaxCount: criticalDriftMax,
		SessionIdleTTL:        time.Duration(idleTTLMinutes) * time.Minute,
	}
}

// Event is emitted by AlertManager.Diff: an alert transitioning state.
type Event struct {
	Kind  string // "fired" or "cleared"
	Alert Alert
}

// Reading is the set of observed values Diff checks against Thresholds.
type Reading struct {
	AvgJudgmentScore  float64
	CacheHitRate      float64
	ChainIntegrityOK  bool
	CriticalDriftCount int
	MaxSessionIdle    time.Duration
}

// AlertManager is the sole mutator of the active alert set.
type AlertManager struct {
	mu         sync.Mutex
	thresholds Thresholds
	active     map[string]Alert
}

// NewAlertManager creates a manager with the given thresholds.
func NewAlertManager(t Thresholds) *AlertManager {
	return &AlertManager{thresholds: t, active: make(map[string]Alert)}
}

// Diff evaluates a Reading against the published thresholds and returns
// the fired/cleared transitions since the prior call.
func (m *AlertManager) Diff(r Reading) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	wanted := make(map[string]Alert)

	if r.AvgJudgmentScore < m.thresholds.AvgJudgmentScoreFloor {
		wanted["avg-judgment-score-low"] = Alert{
			Type: "avg-judgment-score-low", Level: LevelWarning,
			Message: "average judgment score below floor", Value: r.AvgJudgmentScore,
			Threshold: m.thresholds.AvgJudgmentScoreFloor, FiredAt: now,
		}
	}
	if r.CacheHitRate < m.thresholds.CacheHitRateFloor {
		wanted["cache-hit-rate-low"] = Alert{
			Type: "cache-hit-rate-low", Level: LevelWarning,
			Message: "cache hit rate below floor", Value: r.CacheHitRate,
			Threshold: m.thresholds.CacheHitRateFloor, FiredAt: now,
		}
	}
	if m.thresholds.ChainIntegrityMustBe && !r.ChainIntegrityOK {
		wanted["chain-integrity"] = Alert{
			Type: "chain-integrity", Level: LevelCritical,
			Message: "chain integrity check failed", Value: 0, Threshold: 1, FiredAt: now,
		}
	}
	if r.CriticalDriftCount > m.thresholds.CriticalDriftMaxCount {
		wanted["critical-drift"] = Alert{
			Type: "critical-drift", Level: LevelCritical,
			Message: "critical drift detected", Value: float64(r.CriticalDriftCount),
			Threshold: float64(m.thresholds.CriticalDriftMaxCount), FiredAt: now,
		}
	}
	if r.MaxSessionIdle > m.thresholds.SessionIdleTTL {
		wanted["session-idle-exceeded"] = Alert{
			Type: "session-idle-exceeded", Level: LevelInfo,
			Message: "a session exceeded its idle TTL",
			Value:   r.MaxSessionIdle.Seconds(), Threshold: m.thresholds.SessionIdleTTL.Seconds(), FiredAt: now,
		}
	}

	var events []Event
	for typ, a := range wanted {
		if _, exists := m.active[typ]; !exists {
			events = append(events, Event{Kind: "fired", Alert: a})
		}
	}
	for typ, a := range m.active {
		if _, still := wanted[typ]; !still {
			events = append(events, Event{Kind: "cleared", Alert: a})
		}
	}
	m.active = wanted
	return events
}

// Raise manually fires a typed alert outside the normal Diff cycle (e.g.
// the orchestrator's chain-write-failed alert, which is not
// threshold-derived from a Reading).
func (m *AlertManager) Raise(a Alert) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.FiredAt.IsZero() {
		a.FiredAt = time.Now()
	}
	_, existed := m.active[a.Type]
	m.active[a.Type] = a
	if existed {
		return Event{}
	}
	return Event{Kind: "fired", Alert: a}
}

// Clear manually clears a named alert; returns ok=false if it wasn't active.
func (m *AlertManager) Clear(alertType string) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[alertType]
	if !ok {
		return Event{}, false
	}
	delete(m.active, alertType)
	return Event{Kind: "cleared", Alert: a}, true
}

// Active returns a snapshot of the currently active alerts.
func (m *AlertManager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	return out
}

// ActiveCount is the alerts_active gauge value.
func (m *AlertManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
