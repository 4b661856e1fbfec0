package routing

import (
	"testing"

	"github.com/pojudge/node/internal/judgment"
)

func TestRouteWisdomScenario(t *testing.T) {
	tbl := New()
	r := tbl.Route("what is the meaning of this?", judgment.EventUserPrompt)
	if r.Domain != "wisdom" || r.Handler != "sage" {
		t.Fatalf("got %+v", r)
	}
}

func TestRouteDesignScenario(t *testing.T) {
	tbl := New()
	r := tbl.Route("design a new API", judgment.EventUserPrompt)
	if r.Domain != "design" {
		t.Fatalf("got %+v", r)
	}
}

func TestRouteDefaultsByEventKind(t *testing.T) {
	tbl := New()

	if r := tbl.Route("nothing matches here", judgment.EventError); r.Domain != "analysis" {
		t.Fatalf("error default: got %+v", r)
	}
	if r := tbl.Route("nothing matches here", judgment.EventJudgmentRequest); r.Domain != "protection" {
		t.Fatalf("judgment-request default: got %+v", r)
	}
	if r := tbl.Route("nothing matches here", judgment.EventFileChange); r.Domain != "mapping" {
		t.Fatalf("file-change default: got %+v", r)
	}
	if r := tbl.Route("nothing matches here", judgment.EventSessionStart); r.Domain != "crown" {
		t.Fatalf("generic default: got %+v", r)
	}
}

func TestRouteIsOrderStable(t *testing.T) {
	tbl := New()
	for i := 0; i < 10; i++ {
		r := tbl.Route("production delete the rm -rf files", judgment.EventUserPrompt)
		if r.Domain != "protection" {
			t.Fatalf("expected first registered match to win, got %+v", r)
		}
	}
}
