package compiler

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Validate runs the static integrity checks a machine must pass before
// execution: node name uniqueness, edge endpoint resolution, parent
// resolution, an entry node, and syntactically valid guard expressions.
// It returns every problem found, not just the first.
func Validate(g *domain.Graph) []error {
	var problems []error

	if len(g.Nodes) == 0 {
		return []error{fmt.Errorf("machine has no nodes")}
	}

	names := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Name == "" {
			problems = append(problems, fmt.Errorf("node with empty name"))
			continue
		}
		if names[n.Name] {
			problems = append(problems, fmt.Errorf("duplicate node name %q", n.Name))
		}
		names[n.Name] = true
	}

	for _, n := range g.Nodes {
		if n.Parent != "" && !names[n.Parent] {
			problems = append(problems, fmt.Errorf("node %q references unknown parent %q", n.Name, n.Parent))
		}
	}

	for _, e := range g.Edges {
		if !names[e.Source] {
			problems = append(problems, fmt.Errorf("edge references unknown source node %q", e.Source))
		}
		if !names[e.Target] {
			problems = append(problems, fmt.Errorf("edge references unknown target node %q", e.Target))
		}
		spec := ParseEdge(e)
		if spec.HasGuard() {
			if _, diags := hclsyntax.ParseExpression([]byte(spec.Guard), "guard", hcl.Pos{Line: 1, Column: 1}); diags.HasErrors() {
				problems = append(problems, fmt.Errorf("edge %s -> %s has invalid guard %q: %s", e.Source, e.Target, spec.Guard, diags.Error()))
			}
		}
	}

	if _, ok := g.EntryNode(); !ok {
		problems = append(problems, domain.ErrNoEntryNode)
	}

	return problems
}
