package main

import (
	"context"
	"fmt"

	"github.com/pojudge/node/internal/routing"
	"github.com/pojudge/node/internal/skills"
)

// registerBuiltinHandlers wires a reference handler for every routed
// domain plus the dedicated protection handler C9 calls directly on
// step 4. Each handler is a thin placeholder that echoes its mode and
// domain back — real deployments are expected to replace these with
// handlers backed by whatever per-domain tooling the node operator runs;
// the registry's circuit breaker and deadline wrapping apply regardless
// of what a handler actually does.
func registerBuiltinHandlers(reg *skills.Registry, table *routing.Table) {
	for _, d := range table.Domains() {
		domain := d
		reg.Register(domain.Name, func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			mode, _ := payload["mode"].(string)
			if mode == "" {
				mode = "judge"
			}
			return map[string]interface{}{
				"summary": fmt.Sprintf("%s handled by %s", mode, domain.Handler),
				"handler": domain.Handler,
			}, nil
		})
	}

	reg.Register("protection", func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		risk, _ := payload["risk"].(string)
		return map[string]interface{}{
			"verdict":    "reviewed",
			"confidence": 0.5,
			"reasons":    []string{"risk=" + risk},
		}, nil
	})
}
