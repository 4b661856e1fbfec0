package graph

import (
	"testing"
	"time"
)

func mustAddNode(t *testing.T, s *Store, typ NodeType, identifier string, attrs map[string]interface{}) Node {
	t.Helper()
	n, err := s.AddNode(Node{Type: typ, Identifier: identifier, Attributes: attrs})
	if err != nil {
		t.Fatalf("AddNode(%s:%s): %v", typ, identifier, err)
	}
	return *n
}

func TestAddNodeUpsertsByCanonicalKey(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "alice", nil)
	b := mustAddNode(t, s, NodeUser, "alice", map[string]interface{}{"trust": 70})
	if a.ID != b.ID {
		t.Fatalf("expected upsert to reuse id, got %s vs %s", a.ID, b.ID)
	}
	n, _ := s.GetNode(a.ID)
	if n.Attributes["trust"] != 70 {
		t.Fatalf("expected merged attribute, got %+v", n.Attributes)
	}
}

func TestAddNodeIdenticalAttributesUpsertIsANoOp(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "bob", map[string]interface{}{"trust": 70})
	time.Sleep(time.Millisecond)
	b := mustAddNode(t, s, NodeUser, "bob", map[string]interface{}{"trust": 70})
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatalf("expected UpdatedAt unchanged for identical-attribute upsert, got %s vs %s", a.UpdatedAt, b.UpdatedAt)
	}

	c := mustAddNode(t, s, NodeUser, "bob", map[string]interface{}{"trust": 80})
	if !c.UpdatedAt.After(b.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance when attributes actually change")
	}
}

func TestAddNodeValidatesRequiredAttributes(t *testing.T) {
	s := New()
	_, err := s.AddNode(Node{Type: NodeWallet, Identifier: "w1"})
	if err == nil {
		t.Fatal("expected validation error for missing chain attribute")
	}
}

func TestAddEdgeValidatesEndpointTypes(t *testing.T) {
	s := New()
	user := mustAddNode(t, s, NodeUser, "alice", nil)
	repo := mustAddNode(t, s, NodeRepo, "r1", map[string]interface{}{"url": "x"})

	if _, err := s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo.ID}); err != nil {
		t.Fatalf("expected valid edge, got %v", err)
	}

	// wrong direction: repo -> user for "committed" should fail.
	if _, err := s.AddEdge(Edge{Type: EdgeCommitted, SourceID: repo.ID, TargetID: user.ID}); err == nil {
		t.Fatal("expected endpoint type validation error")
	}
}

func TestAddEdgeDefaultsWeightGeometrically(t *testing.T) {
	s := New()
	user := mustAddNode(t, s, NodeUser, "alice", nil)
	repo := mustAddNode(t, s, NodeRepo, "r1", map[string]interface{}{"url": "x"})
	e, err := s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo.ID})
	if err != nil {
		t.Fatal(err)
	}
	if e.Weight <= 1 {
		t.Fatalf("expected default weight > 1 (phi^k), got %v", e.Weight)
	}
}

func TestAddEdgeUpsertReplacesWeight(t *testing.T) {
	s := New()
	user := mustAddNode(t, s, NodeUser, "alice", nil)
	repo := mustAddNode(t, s, NodeRepo, "r1", map[string]interface{}{"url": "x"})
	if _, err := s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo.ID, Weight: 5}); err != nil {
		t.Fatal(err)
	}
	e, err := s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo.ID, Weight: 9})
	if err != nil {
		t.Fatal(err)
	}
	if e.Weight != 9 {
		t.Fatalf("expected replaced weight 9, got %v", e.Weight)
	}
	if len(s.OutEdges(user.ID, "")) != 1 {
		t.Fatal("expected upsert, not a duplicate edge")
	}
}

func TestGetNodeAbsentReturnsFalse(t *testing.T) {
	s := New()
	if _, ok := s.GetNode("missing"); ok {
		t.Fatal("expected sentinel false for absent node")
	}
}

func TestDegreeAndNeighbors(t *testing.T) {
	s := New()
	user := mustAddNode(t, s, NodeUser, "alice", nil)
	repo1 := mustAddNode(t, s, NodeRepo, "r1", map[string]interface{}{"url": "x"})
	repo2 := mustAddNode(t, s, NodeRepo, "r2", map[string]interface{}{"url": "y"})
	s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo1.ID})
	s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo2.ID})

	if d := s.Degree(user.ID, DirOut); d != 2 {
		t.Fatalf("got degree %d", d)
	}
	neighbors := s.Neighbors(user.ID, DirOut, "")
	if len(neighbors) != 2 {
		t.Fatalf("got %v", neighbors)
	}
}

func TestStats(t *testing.T) {
	s := New()
	user := mustAddNode(t, s, NodeUser, "alice", nil)
	repo := mustAddNode(t, s, NodeRepo, "r1", map[string]interface{}{"url": "x"})
	s.AddEdge(Edge{Type: EdgeCommitted, SourceID: user.ID, TargetID: repo.ID})

	st := s.Stats()
	if st.NodeCount != 2 || st.EdgeCount != 1 {
		t.Fatalf("got %+v", st)
	}
	if st.NodesByType[NodeUser] != 1 {
		t.Fatalf("got %+v", st.NodesByType)
	}
}
