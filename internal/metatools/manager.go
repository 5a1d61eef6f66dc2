// Package metatools exposes the machine-introspection and tool-construction
// surface available to nodes flagged meta: true. The manager owns the only
// mutable reference to the machine snapshot in the system; every mutation
// flows through applyMutation, which re-snapshots immediately so no caller
// ever observes a half-applied graph.
package metatools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/registry"
	"github.com/switchyard-dev/switchyard/pkg/schema"
)

// Meta-tool names.
const (
	ToolGetMachineDefinition    = "get_machine_definition"
	ToolUpdateDefinition        = "update_definition"
	ToolListTools               = "list_tools"
	ToolProposeToolImprovements = "propose_tool_improvements"
	ToolConstructTool           = "construct_tool"
	ToolGetToolNodes            = "get_tool_nodes"
	ToolBuildToolFromNode       = "build_tool_from_node"
)

// machineShape validates update_definition payloads for the required
// top-level ingestion shape before they replace the machine.
var machineShape = mustCompile(map[string]any{
	"type":     "object",
	"required": []any{"nodes", "edges"},
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name"},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"source", "target"},
			},
		},
	},
})

func mustCompile(doc map[string]any) *jsonschema.Schema {
	compiled, err := schema.CompileInputSchema(doc)
	if err != nil {
		panic(err)
	}
	return compiled
}

// Manager holds the live machine snapshot and the registry the constructed
// tools land in.
type Manager struct {
	mu       sync.Mutex
	machine  *domain.Graph
	registry *registry.Registry
	logger   *slog.Logger
	dynamic  map[string]domain.DynamicTool
	now      func() time.Time
}

// NewManager wraps a machine snapshot. The manager keeps its own clone, so
// the caller's graph is never aliased.
func NewManager(machine *domain.Graph, reg *registry.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		machine:  machine.Clone(),
		registry: reg,
		logger:   logger,
		dynamic:  make(map[string]domain.DynamicTool),
		now:      time.Now,
	}
}

// Snapshot returns an independent copy of the current machine.
func (m *Manager) Snapshot() *domain.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.Clone()
}

// Replace swaps the managed snapshot, used when the runtime folds an agent
// result that carried context writes.
func (m *Manager) Replace(machine *domain.Graph) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.machine = machine.Clone()
}

// applyMutation is the single entry point for graph mutation: the callback
// edits in place, then the result is re-snapshotted before release.
func (m *Manager) applyMutation(fn func(g *domain.Graph) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(m.machine); err != nil {
		return err
	}
	m.machine = m.machine.Clone()
	return nil
}

// Definitions lists the meta-tool surface in stable order.
func (m *Manager) Definitions() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        ToolGetMachineDefinition,
			Description: "Return the current machine definition, both as structured JSON and as rendered source text.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolUpdateDefinition,
			Description: "Replace the whole machine definition. The new definition is shape-validated before acceptance.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"definition"},
				"properties": map[string]any{
					"definition": map[string]any{"type": "object"},
				},
			},
		},
		{
			Name:        ToolListTools,
			Description: "List every registered tool, including runtime-constructed ones with their strategy.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolProposeToolImprovements,
			Description: "Analyze the machine and registry and propose concrete tool improvements.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolConstructTool,
			Description: "Construct a new tool at run time. Strategies: agent_backed (deferred prompt), code_generation (compiled expression over `input`), composition (chain of existing tools).",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"name", "implementation_strategy", "implementation"},
				"properties": map[string]any{
					"name":                    map[string]any{"type": "string"},
					"description":             map[string]any{"type": "string"},
					"input_schema":            map[string]any{"type": "object"},
					"implementation_strategy": map[string]any{"type": "string", "enum": []any{"agent_backed", "code_generation", "composition"}},
					"implementation":          map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        ToolGetToolNodes,
			Description: "List tool-typed nodes in the machine, flagging loosely defined ones (missing schema or implementation).",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        ToolBuildToolFromNode,
			Description: "Complete a loosely defined tool node with a schema and implementation, then register it.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"node_name"},
				"properties": map[string]any{
					"node_name":               map[string]any{"type": "string"},
					"description":             map[string]any{"type": "string"},
					"input_schema":            map[string]any{"type": "object"},
					"implementation_strategy": map[string]any{"type": "string"},
					"implementation":          map[string]any{"type": "string"},
				},
			},
		},
	}
}

// Call dispatches one meta-tool invocation.
func (m *Manager) Call(ctx context.Context, name string, input map[string]any) (any, error) {
	switch name {
	case ToolGetMachineDefinition:
		return m.getMachineDefinition()
	case ToolUpdateDefinition:
		return m.updateDefinition(input)
	case ToolListTools:
		return m.listTools(), nil
	case ToolProposeToolImprovements:
		return m.proposeImprovements(), nil
	case ToolConstructTool:
		return m.ConstructTool(input)
	case ToolGetToolNodes:
		return m.GetToolNodes(), nil
	case ToolBuildToolFromNode:
		return m.BuildToolFromNode(input)
	default:
		return nil, &domain.ToolNotFoundError{Name: name}
	}
}

// Handles reports whether name is part of the meta-tool surface.
func (m *Manager) Handles(name string) bool {
	switch name {
	case ToolGetMachineDefinition, ToolUpdateDefinition, ToolListTools,
		ToolProposeToolImprovements, ToolConstructTool, ToolGetToolNodes,
		ToolBuildToolFromNode:
		return true
	}
	return false
}

// DynamicDefinitions lists the definitions of runtime-constructed tools in
// stable order.
func (m *Manager) DynamicDefinitions() []domain.ToolDefinition {
	m.mu.Lock()
	defs := make([]domain.ToolDefinition, 0, len(m.dynamic))
	for _, t := range m.dynamic {
		defs = append(defs, t.Definition)
	}
	m.mu.Unlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (m *Manager) getMachineDefinition() (any, error) {
	snapshot := m.Snapshot()
	return map[string]any{
		"definition": snapshot,
		"source":     RenderSource(snapshot),
	}, nil
}

func (m *Manager) updateDefinition(input map[string]any) (any, error) {
	raw, ok := input["definition"]
	if !ok {
		return nil, fmt.Errorf("update_definition: missing definition")
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("update_definition: definition is not serializable: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return nil, err
	}
	if err := machineShape.Validate(decoded); err != nil {
		return nil, fmt.Errorf("update_definition: definition rejected: %w", err)
	}
	var next domain.Graph
	if err := json.Unmarshal(doc, &next); err != nil {
		return nil, fmt.Errorf("update_definition: definition does not decode: %w", err)
	}
	if err := m.applyMutation(func(g *domain.Graph) error {
		*g = next
		return nil
	}); err != nil {
		return nil, err
	}
	m.logger.Info("machine definition replaced",
		"title", next.Title, "nodes", len(next.Nodes), "edges", len(next.Edges))
	return map[string]any{"accepted": true, "nodes": len(next.Nodes), "edges": len(next.Edges)}, nil
}

func (m *Manager) listTools() any {
	m.mu.Lock()
	dynamic := make([]map[string]any, 0, len(m.dynamic))
	for _, t := range m.dynamic {
		dynamic = append(dynamic, map[string]any{
			"name":        t.Definition.Name,
			"description": t.Definition.Description,
			"strategy":    string(t.Strategy),
			"created":     t.Created.UTC().Format(time.RFC3339),
		})
	}
	m.mu.Unlock()
	sort.Slice(dynamic, func(i, j int) bool {
		return dynamic[i]["name"].(string) < dynamic[j]["name"].(string)
	})
	return map[string]any{
		"static":  m.registry.Definitions(),
		"dynamic": dynamic,
	}
}

func (m *Manager) proposeImprovements() any {
	var proposals []map[string]any
	for _, info := range m.GetToolNodes() {
		if info.LooselyDefined {
			proposals = append(proposals, map[string]any{
				"tool":   info.Name,
				"issue":  "loosely defined: " + strings.Join(info.Missing, ", "),
				"action": fmt.Sprintf("call build_tool_from_node with node_name=%q to complete it", info.Name),
			})
		}
	}
	for _, def := range m.registry.Definitions() {
		if def.Description == "" {
			proposals = append(proposals, map[string]any{
				"tool":   def.Name,
				"issue":  "no description; the model has to guess its purpose",
				"action": "add a description to the tool definition",
			})
		}
		if len(def.InputSchema) == 0 {
			proposals = append(proposals, map[string]any{
				"tool":   def.Name,
				"issue":  "no input_schema; inputs are unvalidated",
				"action": "declare an input_schema so calls are checked before execution",
			})
		}
	}
	return map[string]any{"proposals": proposals}
}

// RenderSource renders a machine definition as human-readable source text,
// the inverse-ish of the ingestion format.
func RenderSource(g *domain.Graph) string {
	var b strings.Builder
	if g.Title != "" {
		fmt.Fprintf(&b, "machine %q\n\n", g.Title)
	}
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "node %s", n.Name)
		if n.Type != "" {
			fmt.Fprintf(&b, " (%s)", n.Type)
		}
		if n.Parent != "" {
			fmt.Fprintf(&b, " in %s", n.Parent)
		}
		b.WriteString("\n")
		for _, a := range n.Attributes {
			fmt.Fprintf(&b, "  %s = %s\n", a.Name, renderAttrValue(a.Value))
		}
	}
	if len(g.Edges) > 0 {
		b.WriteString("\n")
	}
	for _, e := range g.Edges {
		if label := e.Text(); label != "" {
			fmt.Fprintf(&b, "%s -> %s : %s\n", e.Source, e.Target, label)
		} else {
			fmt.Fprintf(&b, "%s -> %s\n", e.Source, e.Target)
		}
	}
	return b.String()
}

func renderAttrValue(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
