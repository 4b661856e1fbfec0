// Package config defines the single settings structure threaded to every
// component on construction. There is no process-wide mutable
// configuration anywhere in this module — the teacher's orchestrator
// used package-level vars for wiring (see axonflow's run.go); we replace
// that with explicit construction per the spec's redesign note.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TrustThresholds overrides the five trust-tier cutoffs.
type TrustThresholds struct {
	Guardian    float64 `yaml:"guardian"`
	Steward     float64 `yaml:"steward"`
	Builder     float64 `yaml:"builder"`
	Contributor float64 `yaml:"contributor"`
}

// DefaultTrustThresholds returns the published contract defaults.
func DefaultTrustThresholds() TrustThresholds {
	return TrustThresholds{
		Guardian:    61.8,
		Steward:     38.2,
		Builder:     30,
		Contributor: 15,
	}
}

// ChainSettings configures the Proof-of-Judgment chain store.
type ChainSettings struct {
	SlotJudgmentLimit int  `yaml:"slot_judgment_limit"`
	IdleCloseMs       int  `yaml:"idle_close_ms"`
	SignBlocks        bool `yaml:"sign_blocks"`
}

// CircuitSettings configures every circuit breaker instance by default.
type CircuitSettings struct {
	FailureThreshold int `yaml:"failure_threshold"`
	BaseBackoffMs    int `yaml:"base_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms"`
}

// SkillSettings configures the skill registry.
type SkillSettings struct {
	DeadlineMs int `yaml:"deadline_ms"`
	// QueueCapacity bounds concurrent in-flight invocations per domain; an
	// invocation attempted once that bound is saturated is rejected as
	// circuit-open rather than queued or blocked.
	QueueCapacity int `yaml:"queue_capacity"`
}

// MetricsThresholds are the five alert thresholds published by C10.
type MetricsThresholds struct {
	AvgJudgmentScoreFloor float64 `yaml:"avg_judgment_score_floor"`
	CacheHitRateFloor     float64 `yaml:"cache_hit_rate_floor"`
	ChainIntegrityMustBe  bool    `yaml:"chain_integrity_must_hold"`
	CriticalDriftMaxCount int     `yaml:"critical_drift_max_count"`
	SessionIdleTTLMinutes int     `yaml:"session_idle_ttl_minutes"`
}

// TraceSettings configures the decision tracer.
type TraceSettings struct {
	Capacity int `yaml:"capacity"`
}

// Settings is the single configuration structure threaded through the
// whole node on construction.
type Settings struct {
	ConfidenceCap   float64           `yaml:"confidence_cap"`
	TrustThresholds TrustThresholds   `yaml:"trust_thresholds"`
	Chain           ChainSettings     `yaml:"chain"`
	Circuit         CircuitSettings   `yaml:"circuit"`
	Skill           SkillSettings     `yaml:"skill"`
	Metrics         MetricsThresholds `yaml:"metrics_thresholds"`
	Trace           TraceSettings     `yaml:"trace"`
}

// Default returns the published defaults for every configuration option.
func Default() Settings {
	return Settings{
		ConfidenceCap:   0.6180339887498949,
		TrustThresholds: DefaultTrustThresholds(),
		Chain: ChainSettings{
			SlotJudgmentLimit: 50,
			IdleCloseMs:       30_000,
			SignBlocks:        false,
		},
		Circuit: CircuitSettings{
			FailureThreshold: 5,
			BaseBackoffMs:    250,
			MaxBackoffMs:     60_000,
		},
		Skill: SkillSettings{
			DeadlineMs:    5_000,
			QueueCapacity: 20,
		},
		Metrics: MetricsThresholds{
			AvgJudgmentScoreFloor: 0.5,
			CacheHitRateFloor:     0.7,
			ChainIntegrityMustBe:  true,
			CriticalDriftMaxCount: 0,
			SessionIdleTTLMinutes: 24 * 60,
		},
		Trace: TraceSettings{
			Capacity: 500,
		},
	}
}

// Load reads a YAML settings file, falling back to Default() for anything
// the file doesn't set, and then layers environment-variable overrides on
// top — mirroring the teacher's LoadLLMConfig hierarchy (env wins).
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return s, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &s); err != nil {
			return s, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&s)
	return s, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("POJNODE_CONFIDENCE_CAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.ConfidenceCap = f
		}
	}
	if v := os.Getenv("POJNODE_CHAIN_SLOT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Chain.SlotJudgmentLimit = n
		}
	}
	if v := os.Getenv("POJNODE_CHAIN_IDLE_CLOSE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Chain.IdleCloseMs = n
		}
	}
	if v := os.Getenv("POJNODE_CIRCUIT_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Circuit.FailureThreshold = n
		}
	}
	if v := os.Getenv("POJNODE_SKILL_DEADLINE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Skill.DeadlineMs = n
		}
	}
	if v := os.Getenv("POJNODE_SKILL_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Skill.QueueCapacity = n
		}
	}
	if v := os.Getenv("POJNODE_TRACE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Trace.Capacity = n
		}
	}
}
