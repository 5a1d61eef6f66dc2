package runtime

import (
	"log/slog"

	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/internal/condition"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// DecisionKind classifies what a node activation should do next.
type DecisionKind int

const (
	// DecideAutomatic advances along Edge without consulting an agent.
	DecideAutomatic DecisionKind = iota
	// DecideAgent requires an agent activation to choose.
	DecideAgent
	// DecideTerminal ends the path: no outbound edges.
	DecideTerminal
	// DecideStall is the unreachable-by-design remainder; logged and
	// treated as not-continuing.
	DecideStall
)

// Decision is the outcome of the rails evaluation for one node.
type Decision struct {
	Kind       DecisionKind
	Edge       domain.Edge   // set for DecideAutomatic
	Candidates []domain.Edge // unresolved edges offered to the agent
}

// rails evaluates the automatic-transition rules. It is stateless; the
// graph snapshot and evaluation context come in per call.
type rails struct {
	evaluator *condition.Evaluator
	logger    *slog.Logger
}

// controlEdges returns the node's outbound control-flow edges: permission
// edges into context nodes and edges into notes are not transitions. A node
// with no direct edges nested in a state-typed parent inherits the parent's
// edges, so a terminal sub-node exits via its enclosing module.
func (r rails) controlEdges(g *domain.Graph, node *domain.Node) []domain.Edge {
	edges := filterControl(g, g.OutboundEdges(node.Name))
	if len(edges) > 0 {
		return edges
	}
	for parentName := node.Parent; parentName != ""; {
		parent, ok := g.NodeByName(parentName)
		if !ok || parent.Kind() != domain.KindState {
			break
		}
		if inherited := filterControl(g, g.OutboundEdges(parent.Name)); len(inherited) > 0 {
			return inherited
		}
		parentName = parent.Parent
	}
	return nil
}

func filterControl(g *domain.Graph, edges []domain.Edge) []domain.Edge {
	var out []domain.Edge
	for _, e := range edges {
		target, ok := g.NodeByName(e.Target)
		if !ok {
			continue
		}
		if k := target.Kind(); k == domain.KindContext || k == domain.KindNote {
			continue
		}
		out = append(out, e)
	}
	return out
}

// guardTrue evaluates an edge's guard. Unguarded edges pass; unless:
// guards invert the result.
func (r rails) guardTrue(spec compiler.EdgeSpec, ctx condition.Context) bool {
	if !spec.HasGuard() {
		return true
	}
	result := r.evaluator.Evaluate(spec.Guard, ctx)
	if spec.Negate {
		return !result
	}
	return result
}

// automatic searches for an automatic transition in fixed priority order:
// (a) a single outbound edge on a state/init/tool node whose guard holds,
// (b) any @auto edge whose guard holds,
// (c) any edge with a passing "simple" guard.
// Tool nodes qualify for (a) so that a path resumes on the rails once the
// host has folded the node's tool result back in.
func (r rails) automatic(node *domain.Node, edges []domain.Edge, ctx condition.Context) (domain.Edge, bool) {
	kind := node.Kind()
	if len(edges) == 1 && (kind == domain.KindState || kind == domain.KindInit || kind == domain.KindTool) {
		if r.guardTrue(compiler.ParseEdge(edges[0]), ctx) {
			return edges[0], true
		}
	}
	for _, e := range edges {
		spec := compiler.ParseEdge(e)
		if spec.Auto && r.guardTrue(spec, ctx) {
			return e, true
		}
	}
	for _, e := range edges {
		spec := compiler.ParseEdge(e)
		if spec.SimpleGuard() && r.guardTrue(spec, ctx) {
			return e, true
		}
	}
	return domain.Edge{}, false
}

// Decide runs the full rails evaluation for one node activation.
func (r rails) Decide(g *domain.Graph, node *domain.Node, ctx condition.Context) Decision {
	edges := r.controlEdges(g, node)

	if edge, ok := r.automatic(node, edges, ctx); ok {
		return Decision{Kind: DecideAutomatic, Edge: edge}
	}

	isPromptedTask := node.Kind() == domain.KindTask && node.StringAttr("prompt") != ""
	if isPromptedTask || len(edges) > 1 {
		return Decision{Kind: DecideAgent, Candidates: edges}
	}
	if len(edges) == 0 {
		return Decision{Kind: DecideTerminal}
	}

	r.logger.Warn("no transition rule applies, not continuing",
		"node", node.Name, "kind", node.Kind(), "edges", len(edges))
	return Decision{Kind: DecideStall}
}

// enterTarget performs state-module entry: when the target is a state node
// owning children, descend into its first eligible child (task > state >
// any non-context > first child) until a non-module leaf, returning every
// module boundary crossed plus the final node, in order.
func enterTarget(g *domain.Graph, target string) []string {
	trail := []string{target}
	current := target
	for {
		node, ok := g.NodeByName(current)
		if !ok || node.Kind() != domain.KindState {
			return trail
		}
		children := g.Children(current)
		if len(children) == 0 {
			return trail
		}
		next := pickEntryChild(children)
		if next == "" {
			return trail
		}
		trail = append(trail, next)
		current = next
	}
}

func pickEntryChild(children []domain.Node) string {
	for i := range children {
		if children[i].Kind() == domain.KindTask {
			return children[i].Name
		}
	}
	for i := range children {
		if children[i].Kind() == domain.KindState {
			return children[i].Name
		}
	}
	for i := range children {
		if k := children[i].Kind(); k != domain.KindContext && k != domain.KindNote {
			return children[i].Name
		}
	}
	return children[0].Name
}

// activeStateOf returns the deepest state-typed node enclosing (or equal
// to) the given node, or "" when it sits outside any state module.
func activeStateOf(g *domain.Graph, name string) string {
	for name != "" {
		node, ok := g.NodeByName(name)
		if !ok {
			return ""
		}
		if node.Kind() == domain.KindState {
			return node.Name
		}
		name = node.Parent
	}
	return ""
}
