// Package graph implements C2 (Graph Store) and C3 (Graph Traversal &
// Query): a typed-node/typed-edge relationship graph, kept as a set of
// indices updated in lockstep with every write, plus lazy traversal and a
// fluent query builder layered over it.
package graph

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pojudge/node/internal/judgment"
)

// NodeType is one of the nine entity kinds the graph represents.
type NodeType string

const (
	NodeToken    NodeType = "token"
	NodeWallet   NodeType = "wallet"
	NodeProject  NodeType = "project"
	NodeRepo     NodeType = "repo"
	NodeUser     NodeType = "user"
	NodeContract NodeType = "contract"
	NodeNode     NodeType = "node"
	NodeDog      NodeType = "dog"
	NodeTool     NodeType = "tool"
)

// EdgeType is one of the twelve relationship labels the graph supports.
type EdgeType string

const (
	EdgeJudged        EdgeType = "judged"
	EdgeOwns          EdgeType = "owns"
	EdgeHolds         EdgeType = "holds"
	EdgeCommitted     EdgeType = "committed"
	EdgeAuthored      EdgeType = "authored"
	EdgeDependsOn     EdgeType = "depends_on"
	EdgeTransactsWith EdgeType = "transacts_with"
	EdgeInvokes       EdgeType = "invokes"
	EdgeFlags         EdgeType = "flags"
	EdgeTrusts        EdgeType = "trusts"
	EdgeGuards        EdgeType = "guards"
	EdgeObserves      EdgeType = "observes"
)

// edgeSpec constrains an edge type's legal source/target node types (nil
// means "any type") and its default geometric weight tier k in {0,1,2,3},
// default weight = φ^k.
type edgeSpec struct {
	sourceTypes []NodeType // nil = any
	targetTypes []NodeType // nil = any
	weightTier  int
}

var edgeSpecs = map[EdgeType]edgeSpec{
	EdgeJudged:        {sourceTypes: []NodeType{NodeNode}, targetTypes: nil, weightTier: 3},
	EdgeOwns:          {sourceTypes: []NodeType{NodeWallet}, targetTypes: []NodeType{NodeToken}, weightTier: 2},
	EdgeHolds:         {sourceTypes: []NodeType{NodeWallet}, targetTypes: []NodeType{NodeContract}, weightTier: 2},
	EdgeCommitted:     {sourceTypes: []NodeType{NodeUser}, targetTypes: []NodeType{NodeRepo}, weightTier: 1},
	EdgeAuthored:      {sourceTypes: []NodeType{NodeUser}, targetTypes: []NodeType{NodeProject}, weightTier: 1},
	EdgeDependsOn:     {sourceTypes: []NodeType{NodeProject}, targetTypes: []NodeType{NodeProject}, weightTier: 1},
	EdgeTransactsWith: {sourceTypes: []NodeType{NodeWallet}, targetTypes: []NodeType{NodeWallet}, weightTier: 2},
	EdgeInvokes:       {sourceTypes: []NodeType{NodeDog}, targetTypes: []NodeType{NodeTool}, weightTier: 0},
	EdgeFlags:         {sourceTypes: []NodeType{NodeNode}, targetTypes: nil, weightTier: 3},
	EdgeTrusts:        {sourceTypes: []NodeType{NodeUser}, targetTypes: []NodeType{NodeUser}, weightTier: 0},
	EdgeGuards:        {sourceTypes: []NodeType{NodeNode}, targetTypes: []NodeType{NodeProject}, weightTier: 2},
	EdgeObserves:      {sourceTypes: []NodeType{NodeNode}, targetTypes: []NodeType{NodeUser}, weightTier: 0},
}

// requiredAttributes lists the schema fields a node's Attributes map must
// carry, by type, beyond the universal Identifier.
var requiredAttributes = map[NodeType][]string{
	NodeWallet:   {"chain"},
	NodeProject:  {"name"},
	NodeRepo:     {"url"},
	NodeContract: {"address"},
	NodeTool:     {"domain"},
}

// Node is a typed graph vertex. Canonical key = type:identifier.
type Node struct {
	ID         string
	Type       NodeType
	Identifier string
	Attributes map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the canonical type:identifier key.
func (n Node) Key() string { return string(n.Type) + ":" + n.Identifier }

// Edge is a typed, weighted, directed graph relationship.
type Edge struct {
	ID         string
	Type       EdgeType
	SourceID   string
	TargetID   string
	Weight     float64
	Attributes map[string]interface{}
	CreatedAt  time.Time
}

// Key returns the canonical type:source:target key.
func (e Edge) Key() string { return string(e.Type) + ":" + e.SourceID + ":" + e.TargetID }

// ValidationError lists why a node or edge was rejected.
type ValidationError struct {
	Reason string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "graph: validation error: " + e.Reason
	}
	return fmt.Sprintf("graph: validation error: %s (fields: %v)", e.Reason, e.Fields)
}

// Direction selects which incident edges a traversal considers.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// Stats summarizes the store's current contents.
type Stats struct {
	NodeCount     int
	EdgeCount     int
	NodesByType   map[NodeType]int
	EdgesByType   map[EdgeType]int
}

// Store is the typed node/edge graph with lockstep indices.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*Node
	edges map[string]*Edge

	nodeKeyIndex map[string]string // type:identifier -> node id
	edgeKeyIndex map[string]string // type:source:target -> edge id

	nodesByType map[NodeType]map[string]bool
	outEdges    map[string]map[string]bool // node id -> edge ids
	inEdges     map[string]map[string]bool

	seq int
}

// New creates an empty graph store.
func New() *Store {
	return &Store{
		nodes:        make(map[string]*Node),
		edges:        make(map[string]*Edge),
		nodeKeyIndex: make(map[string]string),
		edgeKeyIndex: make(map[string]string),
		nodesByType:  make(map[NodeType]map[string]bool),
		outEdges:     make(map[string]map[string]bool),
		inEdges:      make(map[string]map[string]bool),
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func validateNode(n Node) error {
	if n.Identifier == "" {
		return &ValidationError{Reason: "missing identifier"}
	}
	var missing []string
	for _, field := range requiredAttributes[n.Type] {
		if n.Attributes == nil {
			missing = append(missing, field)
			continue
		}
		if _, ok := n.Attributes[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Reason: "missing required attributes for type " + string(n.Type), Fields: missing}
	}
	return nil
}

// AddNode validates and upserts a node by canonical key, merging
// attributes into an existing node and touching its UpdatedAt only when
// the merged attributes differ from the stored ones.
func (s *Store) AddNode(n Node) (*Node, error) {
	if err := validateNode(n); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := n.Key()
	now := time.Now()
	if existingID, ok := s.nodeKeyIndex[key]; ok {
		existing := s.nodes[existingID]
		merged := existing.Attributes
		if len(n.Attributes) > 0 {
			merged = make(map[string]interface{}, len(existing.Attributes)+len(n.Attributes))
			for k, v := range existing.Attributes {
				merged[k] = v
			}
			for k, v := range n.Attributes {
				merged[k] = v
			}
		}
		if !reflect.DeepEqual(merged, existing.Attributes) {
			existing.Attributes = merged
			existing.UpdatedAt = now
		}
		return existing, nil
	}

	n.ID = s.nextID("node")
	n.CreatedAt = now
	n.UpdatedAt = now
	s.nodes[n.ID] = &n
	s.nodeKeyIndex[key] = n.ID
	if s.nodesByType[n.Type] == nil {
		s.nodesByType[n.Type] = make(map[string]bool)
	}
	s.nodesByType[n.Type][n.ID] = true
	return &n, nil
}

func validateEdgeEndpoints(spec edgeSpec, source, target Node) error {
	typeMatches := func(t NodeType, allowed []NodeType) bool {
		if allowed == nil {
			return true
		}
		for _, a := range allowed {
			if a == t {
				return true
			}
		}
		return false
	}
	var bad []string
	if !typeMatches(source.Type, spec.sourceTypes) {
		bad = append(bad, "source type "+string(source.Type)+" not permitted")
	}
	if !typeMatches(target.Type, spec.targetTypes) {
		bad = append(bad, "target type "+string(target.Type)+" not permitted")
	}
	if len(bad) > 0 {
		return &ValidationError{Reason: "edge endpoint type mismatch", Fields: bad}
	}
	return nil
}

// AddEdge validates endpoint types against the edge spec, defaults the
// weight to φ^k if unset, and upserts by canonical key (merging
// attributes, replacing weight).
func (s *Store) AddEdge(e Edge) (*Edge, error) {
	spec, ok := edgeSpecs[e.Type]
	if !ok {
		return nil, &ValidationError{Reason: "unknown edge type " + string(e.Type)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, sok := s.nodes[e.SourceID]
	target, tok := s.nodes[e.TargetID]
	if !sok || !tok {
		return nil, &ValidationError{Reason: "edge endpoint node does not exist"}
	}
	if err := validateEdgeEndpoints(spec, *source, *target); err != nil {
		return nil, err
	}

	if e.Weight == 0 {
		e.Weight = pow(judgment.Phi, spec.weightTier)
	}

	key := e.Key()
	now := time.Now()
	if existingID, ok := s.edgeKeyIndex[key]; ok {
		existing := s.edges[existingID]
		for k, v := range e.Attributes {
			if existing.Attributes == nil {
				existing.Attributes = make(map[string]interface{})
			}
			existing.Attributes[k] = v
		}
		existing.Weight = e.Weight
		return existing, nil
	}

	e.ID = s.nextID("edge")
	e.CreatedAt = now
	s.edges[e.ID] = &e
	s.edgeKeyIndex[key] = e.ID

	if s.outEdges[e.SourceID] == nil {
		s.outEdges[e.SourceID] = make(map[string]bool)
	}
	s.outEdges[e.SourceID][e.ID] = true
	if s.inEdges[e.TargetID] == nil {
		s.inEdges[e.TargetID] = make(map[string]bool)
	}
	s.inEdges[e.TargetID][e.ID] = true

	return &e, nil
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// GetNode returns a node by id, or (nil, false) — never panics on absence.
func (s *Store) GetNode(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// GetNodeByKey looks up a node by its canonical type:identifier key.
func (s *Store) GetNodeByKey(t NodeType, identifier string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodeKeyIndex[string(t)+":"+identifier]
	if !ok {
		return Node{}, false
	}
	return *s.nodes[id], true
}

// GetNodesByType returns every node of the given type.
func (s *Store) GetNodesByType(t NodeType) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.nodesByType[t]
	out := make([]Node, 0, len(ids))
	for id := range ids {
		out = append(out, *s.nodes[id])
	}
	return out
}

// GetEdges returns edges incident to node in either direction, optionally
// filtered to a single edge type (pass "" for no filter).
func (s *Store) GetEdges(nodeID string, edgeType EdgeType) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []Edge
	collect := func(ids map[string]bool) {
		for id := range ids {
			if seen[id] {
				continue
			}
			e := s.edges[id]
			if edgeType != "" && e.Type != edgeType {
				continue
			}
			seen[id] = true
			out = append(out, *e)
		}
	}
	collect(s.outEdges[nodeID])
	collect(s.inEdges[nodeID])
	return out
}

// OutEdges returns edges where node is the source, optionally filtered by type.
func (s *Store) OutEdges(nodeID string, edgeType EdgeType) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for id := range s.outEdges[nodeID] {
		e := s.edges[id]
		if edgeType != "" && e.Type != edgeType {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// InEdges returns edges where node is the target, optionally filtered by type.
func (s *Store) InEdges(nodeID string, edgeType EdgeType) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for id := range s.inEdges[nodeID] {
		e := s.edges[id]
		if edgeType != "" && e.Type != edgeType {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// Neighbors returns the distinct neighbor node ids reachable via direction,
// optionally filtered by edge type.
func (s *Store) Neighbors(nodeID string, dir Direction, edgeType EdgeType) []string {
	var edges []Edge
	switch dir {
	case DirOut:
		edges = s.OutEdges(nodeID, edgeType)
	case DirIn:
		edges = s.InEdges(nodeID, edgeType)
	default:
		edges = s.GetEdges(nodeID, edgeType)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range edges {
		var other string
		if e.SourceID == nodeID {
			other = e.TargetID
		} else {
			other = e.SourceID
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// Degree counts incident edges in the given direction.
func (s *Store) Degree(nodeID string, dir Direction) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch dir {
	case DirOut:
		return len(s.outEdges[nodeID])
	case DirIn:
		return len(s.inEdges[nodeID])
	default:
		return len(s.outEdges[nodeID]) + len(s.inEdges[nodeID])
	}
}

// Stats summarizes the current node/edge population.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		NodeCount:   len(s.nodes),
		EdgeCount:   len(s.edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for t, ids := range s.nodesByType {
		st.NodesByType[t] = len(ids)
	}
	for _, e := range s.edges {
		st.EdgesByType[e.Type]++
	}
	return st
}

// AllNodeIDs returns every node id currently in the store (used by traverse/query).
func (s *Store) AllNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	return out
}
