// Package routing implements C6: the pure routing table that maps event
// content and kind to one of the ten registered domains. Table is
// immutable after construction — New() returns the ten registered
// domains in their authoritative order, and Route never mutates them.
package routing

import (
	"strings"

	"github.com/pojudge/node/internal/judgment"
)

// Domain is one registered handler category.
type Domain struct {
	Name     string
	Handler  string
	Triggers []string
	Tools    []string
}

// Result is what Route returns: the matched (or defaulted) domain.
type Result struct {
	Domain  string
	Handler string
	Tools   []string
}

// Table holds the ten domains in registration order.
type Table struct {
	domains []Domain
}

// New builds the default routing table: ten domains, each with a handler
// name and a short list of preferred tools.
func New() *Table {
	return &Table{domains: []Domain{
		{
			Name:     "wisdom",
			Handler:  "sage",
			Triggers: []string{"meaning of", "why should", "what is the purpose", "philosoph", "advice"},
			Tools:    []string{"reflect"},
		},
		{
			Name:     "design",
			Handler:  "architect",
			Triggers: []string{"design a", "architecture", "api design", "schema design", "wireframe"},
			Tools:    []string{"design_doc", "diagram"},
		},
		{
			Name:     "memory",
			Handler:  "archivist",
			Triggers: []string{"remember", "recall", "what did we", "previously", "last time"},
			Tools:    []string{"memory_search"},
		},
		{
			Name:     "analysis",
			Handler:  "analyst",
			Triggers: []string{"analyze", "investigate", "root cause", "why did this fail", "debug"},
			Tools:    []string{"log_search", "profiler"},
		},
		{
			Name:     "protection",
			Handler:  "sentinel",
			Triggers: []string{"delete", "drop ", "rm -rf", "force push", "revoke", "production"},
			Tools:    []string{"risk_scan"},
		},
		{
			Name:     "visualization",
			Handler:  "cartographer",
			Triggers: []string{"visualize", "chart", "graph this", "plot", "dashboard"},
			Tools:    []string{"render_chart"},
		},
		{
			Name:     "exploration",
			Handler:  "scout",
			Triggers: []string{"explore", "find all", "search for", "where is", "locate"},
			Tools:    []string{"codebase_search"},
		},
		{
			Name:     "cleanup",
			Handler:  "janitor",
			Triggers: []string{"clean up", "remove unused", "dead code", "tidy", "lint"},
			Tools:    []string{"lint_fix"},
		},
		{
			Name:     "deployment",
			Handler:  "pilot",
			Triggers: []string{"deploy", "release", "rollout", "ship it", "publish"},
			Tools:    []string{"deploy_pipeline"},
		},
		{
			Name:     "mapping",
			Handler:  "cartographer-map",
			Triggers: []string{"file change", "moved file", "renamed file", "directory structure"},
			Tools:    []string{"file_map"},
		},
	}}
}

// Route lowercases content and walks the domains in registration order,
// returning the first whose trigger substrings match. If none match, the
// default is derived from the event kind.
func (t *Table) Route(content string, kind judgment.EventKind) Result {
	lower := strings.ToLower(content)
	for _, d := range t.domains {
		for _, trig := range d.Triggers {
			if strings.Contains(lower, trig) {
				return Result{Domain: d.Name, Handler: d.Handler, Tools: d.Tools}
			}
		}
	}
	return t.defaultFor(kind)
}

func (t *Table) defaultFor(kind judgment.EventKind) Result {
	switch kind {
	case judgment.EventJudgmentRequest:
		return t.byName("protection")
	case judgment.EventError:
		return t.byName("analysis")
	case judgment.EventFileChange:
		return t.byName("mapping")
	default:
		return Result{Domain: "crown", Handler: "crown", Tools: nil}
	}
}

func (t *Table) byName(name string) Result {
	for _, d := range t.domains {
		if d.Name == name {
			return Result{Domain: d.Name, Handler: d.Handler, Tools: d.Tools}
		}
	}
	return Result{Domain: "crown", Handler: "crown", Tools: nil}
}

// Domains returns a read-only copy of the registered domains, in order.
func (t *Table) Domains() []Domain {
	out := make([]Domain, len(t.domains))
	copy(out, t.domains)
	return out
}
