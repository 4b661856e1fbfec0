package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Operator is one of the comparison operators a Where clause supports.
type Operator string

const (
	OpEquals      Operator = "="
	OpNotEquals   Operator = "!="
	OpLessThan    Operator = "<"
	OpLessEqual   Operator = "<="
	OpGreaterThan Operator = ">"
	OpGreaterEqual Operator = ">="
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "startsWith"
	OpIn          Operator = "in"
)

type condition struct {
	field string
	op    Operator
	value interface{}
}

// SortOrder selects ascending or descending sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// QueryBuilder composes a read-only, side-effect-free graph query.
type QueryBuilder struct {
	store      *Store
	fromIDs    []string
	nodeType   NodeType
	edgeType   EdgeType
	conditions []condition
	depth      int
	direction  Direction
	limit      int
	sortField  string
	sortOrder  SortOrder
}

// Query starts a new query against the store.
func (s *Store) Query() *QueryBuilder {
	return &QueryBuilder{store: s, depth: -1, direction: DirBoth, limit: -1}
}

// From seeds the query with explicit starting node ids; omit to scan every node.
func (q *QueryBuilder) From(ids ...string) *QueryBuilder {
	q.fromIDs = ids
	return q
}

// NodeType restricts results to nodes of this type.
func (q *QueryBuilder) NodeType(t NodeType) *QueryBuilder {
	q.nodeType = t
	return q
}

// EdgeType restricts edge traversal/results to this edge type.
func (q *QueryBuilder) EdgeType(t EdgeType) *QueryBuilder {
	q.edgeType = t
	return q
}

// Where adds a field comparison; field is looked up first on the node's
// own properties (id, type, identifier), then in its Attributes map.
func (q *QueryBuilder) Where(field string, op Operator, value interface{}) *QueryBuilder {
	q.conditions = append(q.conditions, condition{field: field, op: op, value: value})
	return q
}

// Depth bounds how far From's seeds are traversed before filtering; -1 (default) is unbounded.
func (q *QueryBuilder) Depth(d int) *QueryBuilder {
	q.depth = d
	return q
}

// Direction sets traversal direction from From's seeds.
func (q *QueryBuilder) Direction(d Direction) *QueryBuilder {
	q.direction = d
	return q
}

// Limit bounds the result count; -1 (default) is unbounded.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// SortBy orders results by a node field or attribute key.
func (q *QueryBuilder) SortBy(field string, order SortOrder) *QueryBuilder {
	q.sortField = field
	q.sortOrder = order
	return q
}

func fieldValue(n Node, field string) (interface{}, bool) {
	switch field {
	case "id":
		return n.ID, true
	case "type":
		return string(n.Type), true
	case "identifier":
		return n.Identifier, true
	default:
		if n.Attributes == nil {
			return nil, false
		}
		v, ok := n.Attributes[field]
		return v, ok
	}
}

func compareNumeric(a, b float64, op Operator) bool {
	switch op {
	case OpLessThan:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpGreaterThan:
		return a > b
	case OpGreaterEqual:
		return a >= b
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func matches(n Node, c condition) bool {
	actual, ok := fieldValue(n, c.field)

	switch c.op {
	case OpEquals:
		return ok && fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", c.value)
	case OpNotEquals:
		return !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", c.value)
	case OpContains:
		return ok && strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", c.value))
	case OpStartsWith:
		return ok && strings.HasPrefix(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", c.value))
	case OpIn:
		if !ok {
			return false
		}
		values, isSlice := c.value.([]interface{})
		if !isSlice {
			return false
		}
		for _, v := range values {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", actual) {
				return true
			}
		}
		return false
	case OpLessThan, OpLessEqual, OpGreaterThan, OpGreaterEqual:
		if !ok {
			return false
		}
		af, aok := toFloat(actual)
		bf, bok := toFloat(c.value)
		if !aok || !bok {
			return false
		}
		return compareNumeric(af, bf, c.op)
	}
	return false
}

func (q *QueryBuilder) candidateNodes() []Node {
	var candidates []Node
	if len(q.fromIDs) == 0 {
		for _, id := range q.store.AllNodeIDs() {
			if n, ok := q.store.GetNode(id); ok {
				candidates = append(candidates, n)
			}
		}
		return candidates
	}

	seen := make(map[string]bool)
	for _, seed := range q.fromIDs {
		it := q.store.BFS(seed, q.depth, q.direction, q.edgeType)
		for {
			step, ok := it.Next()
			if !ok {
				break
			}
			if seen[step.NodeID] {
				continue
			}
			seen[step.NodeID] = true
			if n, ok := q.store.GetNode(step.NodeID); ok {
				candidates = append(candidates, n)
			}
		}
	}
	return candidates
}

// Nodes executes the query and returns matching nodes.
func (q *QueryBuilder) Nodes() []Node {
	candidates := q.candidateNodes()

	var out []Node
	for _, n := range candidates {
		if q.nodeType != "" && n.Type != q.nodeType {
			continue
		}
		ok := true
		for _, c := range q.conditions {
			if !matches(n, c) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, n)
		}
	}

	if q.sortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			vi, _ := fieldValue(out[i], q.sortField)
			vj, _ := fieldValue(out[j], q.sortField)
			less := fmt.Sprintf("%v", vi) < fmt.Sprintf("%v", vj)
			if q.sortOrder == SortDesc {
				return !less
			}
			return less
		})
	}

	if q.limit >= 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}

// Edges returns the edges incident to the query's matching nodes,
// optionally filtered by EdgeType.
func (q *QueryBuilder) Edges() []Edge {
	nodes := q.Nodes()
	seen := make(map[string]bool)
	var out []Edge
	for _, n := range nodes {
		for _, e := range q.store.GetEdges(n.ID, q.edgeType) {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// Count returns the number of matching nodes; it runs Nodes() in full,
// including any sort and limit.
func (q *QueryBuilder) Count() int {
	return len(q.Nodes())
}
