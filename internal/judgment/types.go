// Package judgment holds the core data types shared by the orchestrator,
// the chain, and the decision tracer: the transient Decision Event and the
// persistent Decision Record, plus the small enums that classify them.
//
// This package has no dependencies on any other internal package so that
// trace, skills, and orchestrator can all import it without cycles.
package judgment

import "time"

// EventKind classifies the kind of decision event entering the orchestrator.
type EventKind string

const (
	EventUserPrompt      EventKind = "user-prompt"
	EventToolUse         EventKind = "tool-use"
	EventSessionStart    EventKind = "session-start"
	EventSessionEnd      EventKind = "session-end"
	EventFileChange      EventKind = "file-change"
	EventError           EventKind = "error"
	EventJudgmentRequest EventKind = "judgment-request"
)

// Source identifies where a Decision Event originated.
type Source string

const (
	SourceTool     Source = "tool"
	SourceHook     Source = "hook"
	SourceInternal Source = "internal"
)

// Outcome is the terminal disposition of a processed event.
type Outcome string

const (
	OutcomeAllow    Outcome = "allow"
	OutcomeModified Outcome = "modified"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeDeferred Outcome = "deferred"
)

// Event is the transient input to the orchestrator. It is created on
// ingress and discarded once its Decision Record has been produced; only
// the record and its trace outlive it.
type Event struct {
	ID          string
	Timestamp   time.Time
	Kind        EventKind
	Source      Source
	Content     string
	UserContext map[string]interface{}
	Metadata    map[string]interface{}
}

// TraceStep records one stage of the orchestrator pipeline for a single
// event: what stage ran, how long it took, whether it succeeded, and a
// short human-readable note (populated on failure or notable branches).
type TraceStep struct {
	Stage string
	Took  time.Duration
	OK    bool
	Note  string
}

// SkillResult is the uniform envelope returned by a Skill Registry invocation.
type SkillResult struct {
	OK     bool
	Result map[string]interface{}
	Error  string
	TookMs int64
}

// Synthesis is the optional output of a domain's synthesis handler.
type Synthesis struct {
	Summary string
	Data    map[string]interface{}
}

// JudgmentOutput is the optional output of the protection/judgment handler.
type JudgmentOutput struct {
	Verdict    string
	Confidence float64
	Reasons    []string
}

// Record is the persistent outcome of one orchestrator pipeline run. It is
// appended to the chain and to the decision tracer.
type Record struct {
	ID                string
	EventID           string
	Domain            string
	InterventionLevel string
	Outcome           Outcome
	Judgment          *JudgmentOutput
	Synthesis         *Synthesis
	SkillResult       *SkillResult
	UserID            string
	Timestamp         time.Time
	Duration          time.Duration
	Confidence        float64
	TraceSteps        []TraceStep
}
