package orchestrator

import (
	"context"
	"testing"

	"github.com/pojudge/node/internal/breaker"
	"github.com/pojudge/node/internal/chain"
	"github.com/pojudge/node/internal/config"
	"github.com/pojudge/node/internal/graph"
	"github.com/pojudge/node/internal/judgment"
	"github.com/pojudge/node/internal/metrics"
	"github.com/pojudge/node/internal/notify"
	"github.com/pojudge/node/internal/qlearn"
	"github.com/pojudge/node/internal/routing"
	"github.com/pojudge/node/internal/session"
	"github.com/pojudge/node/internal/skills"
	"github.com/pojudge/node/internal/trace"
	"github.com/pojudge/node/internal/triggers"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	reg := skills.New(0, breaker.Options{})
	reg.Register("protection", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"verdict": "flagged", "confidence": 0.4}, nil
	})
	reg.Register("design", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"summary": "design invoked"}, nil
	})

	deps := Deps{
		Sessions: session.NewInMemoryStore(0),
		Graph:    graph.New(),
		Chain:    chain.New(chain.Options{SlotJudgmentLimit: 100, ProducerID: "test-node"}, chain.NoopPersistence{}),
		Skills:   reg,
		Routing:  routing.New(),
		Tracer:   trace.New(50),
		Metrics:  metrics.NewCollector(),
		Alerts:   metrics.NewAlertManager(metrics.DefaultThresholds()),
		QTable:   qlearn.NewTable(qlearn.DefaultParams()),
		Notifier: notify.NewQueueSink(10),
		Triggers: triggers.NewEngine(nil),
	}
	o, err := New(config.Default(), deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestScenario1CriticalContentBlocksAtObserverTier(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e1", Kind: judgment.EventUserPrompt, Content: "rm -rf /"}
	opts := Options{UserContext: map[string]interface{}{"trust_value": 10.0}}

	rec, err := o.Process(context.Background(), event, opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.InterventionLevel != "block" {
		t.Fatalf("expected intervention block, got %s", rec.InterventionLevel)
	}
	if rec.Outcome != judgment.OutcomeBlocked {
		t.Fatalf("expected outcome blocked, got %s", rec.Outcome)
	}
	if rec.Domain != "protection" {
		t.Fatalf("expected domain protection, got %s", rec.Domain)
	}
	if rec.Judgment == nil {
		t.Fatalf("expected a protection judgment to be attached (risk=critical triggers step 4)")
	}
	foundJudgeStep := false
	for _, s := range rec.TraceSteps {
		if s.Stage == "judge" {
			foundJudgeStep = true
		}
	}
	if !foundJudgeStep {
		t.Fatalf("expected a judge trace step, got %+v", rec.TraceSteps)
	}
}

func TestScenario2LowRiskGuardianAllowsAndInvokesTool(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e2", Kind: judgment.EventUserPrompt, Content: "design a new API"}
	opts := Options{UserContext: map[string]interface{}{"trust_value": 70.0}, AutoInvokeSkill: true}

	rec, err := o.Process(context.Background(), event, opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Domain != "design" {
		t.Fatalf("expected domain design, got %s", rec.Domain)
	}
	if rec.InterventionLevel != "silent" {
		t.Fatalf("expected intervention silent, got %s", rec.InterventionLevel)
	}
	if rec.Outcome != judgment.OutcomeAllow {
		t.Fatalf("expected outcome allow, got %s", rec.Outcome)
	}
	if rec.SkillResult == nil || !rec.SkillResult.OK {
		t.Fatalf("expected the design tool to have been invoked successfully, got %+v", rec.SkillResult)
	}
}

func TestScenario3WisdomContentRoutesToSageSilently(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e3", Kind: judgment.EventUserPrompt, Content: "what is the meaning of this?"}

	rec, err := o.Process(context.Background(), event, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Domain != "wisdom" {
		t.Fatalf("expected domain wisdom, got %s", rec.Domain)
	}
	if rec.InterventionLevel != "silent" {
		t.Fatalf("expected intervention silent, got %s", rec.InterventionLevel)
	}
}

func TestScenario4ErrorEventWithNoRoutableContentGoesToAnalysis(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e4", Kind: judgment.EventError, Content: ""}

	rec, err := o.Process(context.Background(), event, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Domain != "analysis" {
		t.Fatalf("expected domain analysis, got %s", rec.Domain)
	}
}

func TestConfidenceIsCappedAtPhiInverse(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e5", Kind: judgment.EventUserPrompt, Content: "design a new API"}
	opts := Options{UserContext: map[string]interface{}{"trust_value": 99.0}}

	rec, err := o.Process(context.Background(), event, opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Confidence > judgment.PhiInverse+1e-9 {
		t.Fatalf("expected confidence capped at phi-inverse, got %f", rec.Confidence)
	}
}

func TestCancelledContextStillProducesARecord(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := judgment.Event{ID: "e6", Kind: judgment.EventUserPrompt, Content: "design a new API"}
	rec, err := o.Process(ctx, event, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Outcome != judgment.OutcomeBlocked {
		t.Fatalf("expected cancelled processing to be recorded as blocked, got %s", rec.Outcome)
	}
	if rec == nil {
		t.Fatalf("expected a record to still be produced for a cancelled context")
	}
}

func TestBlockedOutcomeEmitsANotification(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e8", Kind: judgment.EventUserPrompt, Content: "rm -rf /"}
	opts := Options{UserContext: map[string]interface{}{"trust_value": 10.0}}

	if _, err := o.Process(context.Background(), event, opts); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sink := o.deps.Notifier.(*notify.QueueSink)
	notifications := sink.Drain(10)
	if len(notifications) != 1 {
		t.Fatalf("expected one notification for a blocked outcome, got %d", len(notifications))
	}
	if notifications[0].Priority != notify.PriorityCritical {
		t.Fatalf("expected critical priority for critical risk, got %s", notifications[0].Priority)
	}
}

func TestRepeatedErrorEventsFireATriggerSuggestion(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{Kind: judgment.EventError, Content: "",
		UserContext: map[string]interface{}{"user_id": "user-err"}}

	for i := 0; i < 2; i++ {
		event.ID = "err-" + string(rune('a'+i))
		if _, err := o.Process(context.Background(), event, Options{}); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	sink := o.deps.Notifier.(*notify.QueueSink)
	sink.Drain(10) // discard anything from the first two events

	event.ID = "err-c"
	if _, err := o.Process(context.Background(), event, Options{}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	notifications := sink.Drain(10)
	found := false
	for _, n := range notifications {
		if n.Type == "trigger-suggestion" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a trigger-suggestion notification after three same-kind events, got %+v", notifications)
	}
}

func TestEveryProcessedEventAppendsAJudgedEdge(t *testing.T) {
	o := newTestOrchestrator(t)
	event := judgment.Event{ID: "e7", Kind: judgment.EventUserPrompt, Content: "design a new API",
		UserContext: map[string]interface{}{"user_id": "user-42"}}

	if _, err := o.Process(context.Background(), event, Options{}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	subject, ok := o.deps.Graph.GetNodeByKey(graph.NodeUser, "user-42")
	if !ok {
		t.Fatalf("expected subject node to have been created")
	}
	edges := o.deps.Graph.InEdges(subject.ID, graph.EdgeJudged)
	if len(edges) != 1 {
		t.Fatalf("expected exactly one judged edge into the subject, got %d", len(edges))
	}
}
