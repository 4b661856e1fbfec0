package graph

import (
	"math"
	"testing"
)

// buildChain creates user -authored-> project -depends_on-> project -depends_on-> project
func buildChain(t *testing.T) (*Store, []Node) {
	t.Helper()
	s := New()
	u := mustAddNode(t, s, NodeUser, "alice", nil)
	p1 := mustAddNode(t, s, NodeProject, "p1", map[string]interface{}{"name": "p1"})
	p2 := mustAddNode(t, s, NodeProject, "p2", map[string]interface{}{"name": "p2"})
	p3 := mustAddNode(t, s, NodeProject, "p3", map[string]interface{}{"name": "p3"})
	mustAddEdge(t, s, EdgeAuthored, u.ID, p1.ID, 0)
	mustAddEdge(t, s, EdgeDependsOn, p1.ID, p2.ID, 0)
	mustAddEdge(t, s, EdgeDependsOn, p2.ID, p3.ID, 0)
	return s, []Node{u, p1, p2, p3}
}

func mustAddEdge(t *testing.T, s *Store, typ EdgeType, from, to string, weight float64) Edge {
	t.Helper()
	e, err := s.AddEdge(Edge{Type: typ, SourceID: from, TargetID: to, Weight: weight})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return *e
}

func TestBFSVisitsInBreadthOrder(t *testing.T) {
	s, nodes := buildChain(t)
	it := s.BFS(nodes[0].ID, -1, DirOut, "")
	var order []string
	for {
		step, ok := it.Next()
		if !ok {
			break
		}
		order = append(order, step.NodeID)
	}
	if len(order) != 4 {
		t.Fatalf("got %v", order)
	}
	if order[0] != nodes[0].ID {
		t.Fatalf("expected start node first, got %v", order)
	}
}

func TestBFSRespectsMaxDepth(t *testing.T) {
	s, nodes := buildChain(t)
	it := s.BFS(nodes[0].ID, 1, DirOut, "")
	count := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 2 { // user + p1
		t.Fatalf("got %d", count)
	}
}

func TestShortestPathFindsMinimalHops(t *testing.T) {
	s, nodes := buildChain(t)
	path, ok := s.ShortestPath(nodes[0].ID, nodes[3].ID, DirOut)
	if !ok {
		t.Fatal("expected path to be found")
	}
	if path.Length != 3 {
		t.Fatalf("got length %d, path %+v", path.Length, path.NodeIDs)
	}
}

func TestWeightedPathPrefersHigherWeight(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "a", nil)
	b := mustAddNode(t, s, NodeUser, "b", nil)
	c := mustAddNode(t, s, NodeUser, "c", nil)
	// direct low-weight edge a->c, vs two-hop high-weight a->b->c
	mustAddEdge(t, s, EdgeTrusts, a.ID, c.ID, 1.0)
	mustAddEdge(t, s, EdgeTrusts, a.ID, b.ID, 10.0)
	mustAddEdge(t, s, EdgeTrusts, b.ID, c.ID, 10.0)

	path, ok := s.WeightedPath(a.ID, c.ID, DirOut)
	if !ok {
		t.Fatal("expected path")
	}
	if len(path.NodeIDs) != 3 {
		t.Fatalf("expected two-hop high-weight path to win, got %+v", path.NodeIDs)
	}
}

func TestAllPathsEnumeratesSimplePaths(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "a", nil)
	b := mustAddNode(t, s, NodeUser, "b", nil)
	c := mustAddNode(t, s, NodeUser, "c", nil)
	mustAddEdge(t, s, EdgeTrusts, a.ID, b.ID, 0)
	mustAddEdge(t, s, EdgeTrusts, b.ID, c.ID, 0)
	mustAddEdge(t, s, EdgeTrusts, a.ID, c.ID, 0)

	paths := s.AllPaths(a.ID, c.ID, 5, DirOut)
	if len(paths) != 2 {
		t.Fatalf("got %d paths: %+v", len(paths), paths)
	}
}

func TestSubgraphExtractsInducedEdges(t *testing.T) {
	s, nodes := buildChain(t)
	n, e := s.Subgraph(nodes[0].ID, 1)
	if len(n) != 2 {
		t.Fatalf("got %d nodes", len(n))
	}
	if len(e) != 1 {
		t.Fatalf("got %d edges", len(e))
	}
}

func TestTriangles(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "a", nil)
	b := mustAddNode(t, s, NodeUser, "b", nil)
	c := mustAddNode(t, s, NodeUser, "c", nil)
	mustAddEdge(t, s, EdgeTrusts, a.ID, b.ID, 0)
	mustAddEdge(t, s, EdgeTrusts, b.ID, c.ID, 0)
	mustAddEdge(t, s, EdgeTrusts, a.ID, c.ID, 0)

	tri := s.Triangles(a.ID)
	if len(tri) != 2 {
		t.Fatalf("got %v", tri)
	}
}

func TestConnectedComponentsSortedBySize(t *testing.T) {
	s := New()
	a := mustAddNode(t, s, NodeUser, "a", nil)
	b := mustAddNode(t, s, NodeUser, "b", nil)
	mustAddNode(t, s, NodeUser, "isolated", nil)
	mustAddEdge(t, s, EdgeTrusts, a.ID, b.ID, 0)

	components := s.ConnectedComponents()
	if len(components) != 2 {
		t.Fatalf("got %d components", len(components))
	}
	if len(components[0]) != 2 {
		t.Fatalf("expected largest component first, got %+v", components)
	}
}

func TestCentralitySortedDescending(t *testing.T) {
	s, nodes := buildChain(t)
	entries := s.Centrality()
	if len(entries) != 4 {
		t.Fatalf("got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Score < entries[i].Score {
			t.Fatalf("not sorted descending: %+v", entries)
		}
	}
	_ = nodes
}

func TestPageRankSumsToOne(t *testing.T) {
	s, _ := buildChain(t)
	ranks := s.PageRank(30)
	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Fatalf("expected ranks to sum to ~1, got %v (%+v)", sum, ranks)
	}
}

func TestPageRankHandlesEmptyGraph(t *testing.T) {
	s := New()
	ranks := s.PageRank(10)
	if len(ranks) != 0 {
		t.Fatalf("got %+v", ranks)
	}
}
