package trace

import (
	"testing"
	"time"

	"github.com/pojudge/node/internal/judgment"
)

func mkRecord(id, domain, user string, outcome judgment.Outcome) judgment.Record {
	return judgment.Record{ID: id, Domain: domain, UserID: user, Outcome: outcome, Timestamp: time.Now()}
}

func TestRingEvictsOldest(t *testing.T) {
	r := New(2)
	r.Push(mkRecord("1", "a", "u1", judgment.OutcomeAllow), nil)
	r.Push(mkRecord("2", "a", "u1", judgment.OutcomeAllow), nil)
	r.Push(mkRecord("3", "a", "u1", judgment.OutcomeAllow), nil)

	if _, ok := r.ByID("1"); ok {
		t.Fatal("expected entry 1 to have been evicted")
	}
	if _, ok := r.ByID("3"); !ok {
		t.Fatal("expected entry 3 to be resident")
	}
}

func TestRecentMostRecentFirst(t *testing.T) {
	r := New(10)
	r.Push(mkRecord("1", "a", "u1", judgment.OutcomeAllow), nil)
	r.Push(mkRecord("2", "a", "u1", judgment.OutcomeAllow), nil)

	recent := r.Recent(2)
	if recent[0].Record.ID != "2" || recent[1].Record.ID != "1" {
		t.Fatalf("got order %+v", recent)
	}
}

func TestByDomainAndUser(t *testing.T) {
	r := New(10)
	r.Push(mkRecord("1", "design", "alice", judgment.OutcomeAllow), nil)
	r.Push(mkRecord("2", "protection", "bob", judgment.OutcomeBlocked), nil)
	r.Push(mkRecord("3", "design", "bob", judgment.OutcomeAllow), nil)

	if len(r.ByDomain("design", 0)) != 2 {
		t.Fatal("expected 2 design entries")
	}
	if len(r.ByUser("bob", 0)) != 2 {
		t.Fatal("expected 2 bob entries")
	}
}

func TestSummarize(t *testing.T) {
	r := New(10)
	r.Push(mkRecord("1", "design", "alice", judgment.OutcomeAllow), nil)
	r.Push(mkRecord("2", "protection", "bob", judgment.OutcomeBlocked), nil)

	s := r.Summarize(0)
	if s.TotalEntries != 2 || s.ByOutcome[judgment.OutcomeAllow] != 1 || s.ByDomain["protection"] != 1 {
		t.Fatalf("got %+v", s)
	}
}
