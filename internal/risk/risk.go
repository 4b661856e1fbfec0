// Package risk implements the pure classification functions C5: content
// risk detection, trust-tier derivation, and the intervention matrix.
// None of these functions hold state — they are safe to call concurrently
// and always yield the same output for the same input, per the spec's
// "intervention(tier, risk) yields the same value regardless of history"
// testable property.
//
// The ordered substring scan is grounded on the teacher's RiskCalculator
// in orchestrator/dynamic_policy_engine.go, which also classifies free
// text by scanning against weighted pattern sets; we replace its weighted
// score with the spec's ordered, first-match-wins four-level scan.
package risk

import "strings"

// Level is a content risk classification.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Tier is a qualitative trust bucket derived from a scalar trust value.
type Tier string

const (
	TierGuardian    Tier = "guardian"
	TierSteward     Tier = "steward"
	TierBuilder     Tier = "builder"
	TierContributor Tier = "contributor"
	TierObserver    Tier = "observer"
)

// Intervention is how the orchestrator must treat an event.
type Intervention string

const (
	InterventionSilent Intervention = "silent"
	InterventionNotify Intervention = "notify"
	InterventionAsk    Intervention = "ask"
	InterventionBlock  Intervention = "block"
)

// Thresholds are the four cutoffs between the five trust tiers. A
// Thresholds with every field zero falls back to the published defaults in
// DetectTier; a partly-zero Thresholds is used as given.
type Thresholds struct {
	Guardian    float64
	Steward     float64
	Builder     float64
	Contributor float64
}

// DefaultThresholds are the published contract cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Guardian: 61.8, Steward: 38.2, Builder: 30, Contributor: 15}
}

// criticalPatterns are irreversible destructive operations.
var criticalPatterns = []string{
	"rm -rf", "drop table", "drop database", "truncate table",
	"format c:", "del /f /s /q", ":(){ :|:& };:", "shred ",
	"dd if=/dev/zero", "git push --force", "git push -f",
	"delete from", "sudo rm", "wipe disk",
}

// highPatterns are production / credential-adjacent terms.
var highPatterns = []string{
	"production", "prod database", "api key", "secret key",
	"private key", "access token", "password", "credential",
	"env file", ".env", "ssh key", "aws_secret", "deploy to prod",
}

// mediumPatterns cover edit/refactor terms.
var mediumPatterns = []string{
	"refactor", "rename", "edit", "modify", "update schema",
	"migrate", "change config", "rewrite", "alter table",
}

// DetectRisk scans text against four ordered pattern sets, critical
// first; the first set with a match wins. Unmatched text is low risk.
func DetectRisk(text string) Level {
	lower := strings.ToLower(text)
	if containsAny(lower, criticalPatterns) {
		return LevelCritical
	}
	if containsAny(lower, highPatterns) {
		return LevelHigh
	}
	if containsAny(lower, mediumPatterns) {
		return LevelMedium
	}
	return LevelLow
}

func containsAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// DetectTier derives a trust tier from a scalar reputation value using the
// given thresholds; a zero Thresholds falls back to DefaultThresholds.
func DetectTier(value float64, t Thresholds) Tier {
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	switch {
	case value >= t.Guardian:
		return TierGuardian
	case value >= t.Steward:
		return TierSteward
	case value >= t.Builder:
		return TierBuilder
	case value >= t.Contributor:
		return TierContributor
	default:
		return TierObserver
	}
}

// matrix is the authoritative 5x4 intervention table from spec §4.5.
var matrix = map[Tier]map[Level]Intervention{
	TierGuardian: {
		LevelCritical: InterventionAsk,
		LevelHigh:     InterventionNotify,
		LevelMedium:   InterventionSilent,
		LevelLow:      InterventionSilent,
	},
	TierSteward: {
		LevelCritical: InterventionAsk,
		LevelHigh:     InterventionAsk,
		LevelMedium:   InterventionNotify,
		LevelLow:      InterventionSilent,
	},
	TierBuilder: {
		LevelCritical: InterventionBlock,
		LevelHigh:     InterventionAsk,
		LevelMedium:   InterventionNotify,
		LevelLow:      InterventionSilent,
	},
	TierContributor: {
		LevelCritical: InterventionBlock,
		LevelHigh:     InterventionBlock,
		LevelMedium:   InterventionAsk,
		LevelLow:      InterventionNotify,
	},
	TierObserver: {
		LevelCritical: InterventionBlock,
		LevelHigh:     InterventionBlock,
		LevelMedium:   InterventionAsk,
		LevelLow:      InterventionNotify,
	},
}

// DetectIntervention is the pure function intervention(tier, risk).
func DetectIntervention(tier Tier, level Level) Intervention {
	if byLevel, ok := matrix[tier]; ok {
		if iv, ok := byLevel[level]; ok {
			return iv
		}
	}
	return InterventionAsk
}
