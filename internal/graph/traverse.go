package graph

import (
	"container/heap"
	"sort"

	"github.com/pojudge/node/internal/judgment"
)

// Step is one node visited during a BFS/DFS traversal.
type Step struct {
	NodeID  string
	Depth   int
	ViaEdge string // edge id used to reach this node; "" for the start node
}

// frontierEntry is one pending node in a traversal's to-visit set.
type frontierEntry struct {
	nodeID  string
	depth   int
	viaEdge string
}

// Iterator is a lazy, pull-based traversal: each call to Next() advances
// the walk by exactly one step, computed on demand rather than
// precomputed into a slice or pushed through a channel.
type Iterator struct {
	store    *Store
	frontier []frontierEntry
	visited  map[string]bool
	maxDepth int
	dir      Direction
	edgeType EdgeType
	bfs      bool
}

func newIterator(s *Store, start string, maxDepth int, dir Direction, edgeType EdgeType, bfs bool) *Iterator {
	return &Iterator{
		store:    s,
		frontier: []frontierEntry{{nodeID: start, depth: 0}},
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
		dir:      dir,
		edgeType: edgeType,
		bfs:      bfs,
	}
}

// Next advances the traversal by one step; ok is false once exhausted.
func (it *Iterator) Next() (Step, bool) {
	for len(it.frontier) > 0 {
		var entry frontierEntry
		if it.bfs {
			entry = it.frontier[0]
			it.frontier = it.frontier[1:]
		} else {
			last := len(it.frontier) - 1
			entry = it.frontier[last]
			it.frontier = it.frontier[:last]
		}

		if it.visited[entry.nodeID] {
			continue
		}
		it.visited[entry.nodeID] = true

		if it.maxDepth < 0 || entry.depth < it.maxDepth {
			var edges []Edge
			switch it.dir {
			case DirOut:
				edges = it.store.OutEdges(entry.nodeID, it.edgeType)
			case DirIn:
				edges = it.store.InEdges(entry.nodeID, it.edgeType)
			default:
				edges = it.store.GetEdges(entry.nodeID, it.edgeType)
			}
			sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
			for _, e := range edges {
				var other string
				if e.SourceID == entry.nodeID {
					other = e.TargetID
				} else {
					other = e.SourceID
				}
				if !it.visited[other] {
					it.frontier = append(it.frontier, frontierEntry{nodeID: other, depth: entry.depth + 1, viaEdge: e.ID})
				}
			}
		}

		return Step{NodeID: entry.nodeID, Depth: entry.depth, ViaEdge: entry.viaEdge}, true
	}
	return Step{}, false
}

// BFS returns a restartable lazy breadth-first iterator from start.
// maxDepth < 0 means unbounded.
func (s *Store) BFS(start string, maxDepth int, dir Direction, edgeType EdgeType) *Iterator {
	return newIterator(s, start, maxDepth, dir, edgeType, true)
}

// DFS returns a restartable lazy depth-first iterator from start.
func (s *Store) DFS(start string, maxDepth int, dir Direction, edgeType EdgeType) *Iterator {
	return newIterator(s, start, maxDepth, dir, edgeType, false)
}

// Path is a sequence of node ids connected by the named edges.
type Path struct {
	NodeIDs []string
	EdgeIDs []string
	Weight  float64 // product of edge weights, only meaningful for WeightedPath
	Length  int
}

// ShortestPath finds the path with the fewest edges via BFS; ties resolve
// to the earliest-discovered path (deterministic edge-id ordering).
func (s *Store) ShortestPath(from, to string, dir Direction) (Path, bool) {
	if from == to {
		return Path{NodeIDs: []string{from}}, true
	}
	type parentInfo = struct {
		node string
		edge string
	}
	parent := map[string]parentInfo{from: {}}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		var edges []Edge
		switch dir {
		case DirOut:
			edges = s.OutEdges(cur, "")
		case DirIn:
			edges = s.InEdges(cur, "")
		default:
			edges = s.GetEdges(cur, "")
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
		for _, e := range edges {
			next := e.TargetID
			if e.TargetID == cur {
				next = e.SourceID
			}
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = parentInfo{node: cur, edge: e.ID}
			if next == to {
				return reconstructPath(parent, from, to), true
			}
			queue = append(queue, next)
		}
	}
	return Path{}, false
}

func reconstructPath(parent map[string]struct {
	node string
	edge string
}, from, to string) Path {
	var nodeIDs []string
	var edgeIDs []string
	cur := to
	for cur != from {
		nodeIDs = append([]string{cur}, nodeIDs...)
		info := parent[cur]
		edgeIDs = append([]string{info.edge}, edgeIDs...)
		cur = info.node
	}
	nodeIDs = append([]string{from}, nodeIDs...)
	return Path{NodeIDs: nodeIDs, EdgeIDs: edgeIDs, Length: len(edgeIDs)}
}

// pqItem is one entry in the Dijkstra priority queue.
type pqItem struct {
	nodeID string
	dist   float64
	index  int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// WeightedPath finds the minimum-cost path by Dijkstra, where edge cost =
// 1/weight (higher-weight edges are preferred). Returns the path and its
// total weight (product of traversed edge weights).
func (s *Store) WeightedPath(from, to string, dir Direction) (Path, bool) {
	if from == to {
		return Path{NodeIDs: []string{from}, Weight: 1}, true
	}

	dist := map[string]float64{from: 0}
	parent := map[string]struct {
		node string
		edge string
	}{}
	visited := make(map[string]bool)

	pq := &priorityQueue{{nodeID: from, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		if visited[item.nodeID] {
			continue
		}
		visited[item.nodeID] = true
		if item.nodeID == to {
			break
		}

		var edges []Edge
		switch dir {
		case DirOut:
			edges = s.OutEdges(item.nodeID, "")
		case DirIn:
			edges = s.InEdges(item.nodeID, "")
		default:
			edges = s.GetEdges(item.nodeID, "")
		}
		for _, e := range edges {
			next := e.TargetID
			if e.TargetID == item.nodeID {
				next = e.SourceID
			}
			if visited[next] {
				continue
			}
			cost := 1.0
			if e.Weight > 0 {
				cost = 1.0 / e.Weight
			}
			nd := dist[item.nodeID] + cost
			if cur, ok := dist[next]; !ok || nd < cur {
				dist[next] = nd
				parent[next] = struct {
					node string
					edge string
				}{node: item.nodeID, edge: e.ID}
				heap.Push(pq, &pqItem{nodeID: next, dist: nd})
			}
		}
	}

	if _, ok := parent[to]; !ok {
		return Path{}, false
	}

	path := reconstructPath(parent, from, to)
	weight := 1.0
	for _, eid := range path.EdgeIDs {
		s.mu.RLock()
		e := s.edges[eid]
		s.mu.RUnlock()
		weight *= e.Weight
	}
	path.Weight = weight
	return path, true
}

// AllPaths enumerates every simple path from->to up to maxDepth edges, in
// deterministic lexicographic order of neighbour visitation.
func (s *Store) AllPaths(from, to string, maxDepth int, dir Direction) []Path {
	var results []Path
	visited := map[string]bool{from: true}
	var walk func(cur string, nodeIDs, edgeIDs []string)
	walk = func(cur string, nodeIDs, edgeIDs []string) {
		if cur == to && len(nodeIDs) > 1 {
			results = append(results, Path{
				NodeIDs: append([]string(nil), nodeIDs...),
				EdgeIDs: append([]string(nil), edgeIDs...),
				Length:  len(edgeIDs),
			})
			return
		}
		if len(edgeIDs) >= maxDepth {
			return
		}
		var edges []Edge
		switch dir {
		case DirOut:
			edges = s.OutEdges(cur, "")
		case DirIn:
			edges = s.InEdges(cur, "")
		default:
			edges = s.GetEdges(cur, "")
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
		for _, e := range edges {
			next := e.TargetID
			if e.TargetID == cur {
				next = e.SourceID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			walk(next, append(nodeIDs, next), append(edgeIDs, e.ID))
			visited[next] = false
		}
	}
	walk(from, []string{from}, nil)
	return results
}

// Subgraph extracts the induced node set within radius r of center (BFS),
// plus every edge whose endpoints are both in that set.
func (s *Store) Subgraph(center string, radius int) ([]Node, []Edge) {
	it := s.BFS(center, radius, DirBoth, "")
	nodeSet := make(map[string]bool)
	for {
		step, ok := it.Next()
		if !ok {
			break
		}
		nodeSet[step.NodeID] = true
	}

	var nodes []Node
	for id := range nodeSet {
		if n, ok := s.GetNode(id); ok {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	var edges []Edge
	seen := make(map[string]bool)
	for id := range nodeSet {
		for _, e := range s.GetEdges(id, "") {
			if nodeSet[e.SourceID] && nodeSet[e.TargetID] && !seen[e.ID] {
				seen[e.ID] = true
				edges = append(edges, e)
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return nodes, edges
}

// Triangles returns, for a node, the set of its neighbours that are
// mutually connected to each other (direction ignored).
func (s *Store) Triangles(nodeID string) []string {
	neighbors := s.Neighbors(nodeID, DirBoth, "")
	neighborSet := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		neighborSet[n] = true
	}
	var result []string
	for _, n := range neighbors {
		for _, other := range s.Neighbors(n, DirBoth, "") {
			if other != nodeID && neighborSet[other] {
				result = append(result, n)
				break
			}
		}
	}
	sort.Strings(result)
	return result
}

// ConnectedComponents returns every undirected connected component,
// sorted by size descending (ties broken by lowest member node id).
func (s *Store) ConnectedComponents() [][]string {
	visited := make(map[string]bool)
	var components [][]string
	ids := s.AllNodeIDs()
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		var component []string
		it := s.DFS(id, -1, DirBoth, "")
		for {
			step, ok := it.Next()
			if !ok {
				break
			}
			if !visited[step.NodeID] {
				visited[step.NodeID] = true
				component = append(component, step.NodeID)
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}

	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return components
}

// CentralityEntry pairs a node id with its degree centrality score.
type CentralityEntry struct {
	NodeID string
	Score  float64
}

// Centrality computes (in+out)/(N-1) per node, sorted descending.
func (s *Store) Centrality() []CentralityEntry {
	ids := s.AllNodeIDs()
	n := len(ids)
	var out []CentralityEntry
	for _, id := range ids {
		score := 0.0
		if n > 1 {
			score = float64(s.Degree(id, DirBoth)) / float64(n-1)
		}
		out = append(out, CentralityEntry{NodeID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

// PageRank runs power iteration with damping = φ⁻¹. Edges contribute
// weighted mass: from each source, rank(source) × edge.weight divided by
// the sum of the source's out-edge weights. Dangling nodes (no out-edges) redistribute their mass
// uniformly across every node. The result sums to 1 within floating-point
// tolerance.
func (s *Store) PageRank(iterations int) map[string]float64 {
	if iterations <= 0 {
		iterations = 20
	}
	damping := judgment.PhiInverse
	ids := s.AllNodeIDs()
	n := len(ids)
	if n == 0 {
		return map[string]float64{}
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	outWeightSum := make(map[string]float64, n)
	for _, id := range ids {
		sum := 0.0
		for _, e := range s.OutEdges(id, "") {
			sum += e.Weight
		}
		outWeightSum[id] = sum
	}

	for iter := 0; iter < iterations; iter++ {
		next := make(map[string]float64, n)
		danglingMass := 0.0
		for _, id := range ids {
			if outWeightSum[id] == 0 {
				danglingMass += rank[id]
			}
		}

		base := (1 - damping) / float64(n)
		for _, id := range ids {
			next[id] = base + damping*danglingMass/float64(n)
		}

		for _, id := range ids {
			if outWeightSum[id] == 0 {
				continue
			}
			for _, e := range s.OutEdges(id, "") {
				share := rank[id] * (e.Weight / outWeightSum[id])
				next[e.TargetID] += damping * share
			}
		}

		rank = next
	}

	return rank
}
