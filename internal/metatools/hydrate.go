package metatools

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// ToolNodeInfo describes one tool-typed node in the machine. A node is
// loosely defined when source declared it but never completed it: it has no
// input schema or no implementation yet.
type ToolNodeInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	LooselyDefined bool     `json:"loosely_defined"`
	Missing        []string `json:"missing,omitempty"`
}

// GetToolNodes lists every tool-typed node with its completeness status.
func (m *Manager) GetToolNodes() []ToolNodeInfo {
	snapshot := m.Snapshot()
	var infos []ToolNodeInfo
	for i := range snapshot.Nodes {
		n := &snapshot.Nodes[i]
		if n.Kind() != domain.KindTool {
			continue
		}
		info := ToolNodeInfo{
			Name:        n.Name,
			Description: n.StringAttr("description"),
			Strategy:    n.StringAttr("implementation_strategy"),
		}
		if _, ok := n.Attribute("input_schema"); !ok {
			info.Missing = append(info.Missing, "input_schema")
		}
		if n.StringAttr("implementation") == "" {
			info.Missing = append(info.Missing, "implementation")
		}
		info.LooselyDefined = len(info.Missing) > 0
		infos = append(infos, info)
	}
	return infos
}

type buildFromNodeInput struct {
	NodeName       string         `mapstructure:"node_name"`
	Description    string         `mapstructure:"description"`
	InputSchema    map[string]any `mapstructure:"input_schema"`
	Strategy       string         `mapstructure:"implementation_strategy"`
	Implementation string         `mapstructure:"implementation"`
}

// BuildToolFromNode completes a loosely defined tool node: the provided
// fields are written onto the node, then the completed definition is
// registered like any constructed tool.
func (m *Manager) BuildToolFromNode(input map[string]any) (any, error) {
	var spec buildFromNodeInput
	if err := mapstructure.Decode(input, &spec); err != nil {
		return nil, fmt.Errorf("build_tool_from_node: bad input: %w", err)
	}
	if spec.NodeName == "" {
		return nil, fmt.Errorf("build_tool_from_node: node_name is required")
	}

	var tool domain.DynamicTool
	err := m.applyMutation(func(g *domain.Graph) error {
		node, ok := g.NodeByName(spec.NodeName)
		if !ok || node.Kind() != domain.KindTool {
			return fmt.Errorf("build_tool_from_node: no tool node named %q", spec.NodeName)
		}
		if spec.Description != "" {
			setAttr(node, "description", "string", spec.Description)
		}
		if spec.InputSchema != nil {
			setAttr(node, "input_schema", "object", spec.InputSchema)
		}
		if spec.Strategy != "" {
			setAttr(node, "implementation_strategy", "string", spec.Strategy)
		}
		if spec.Implementation != "" {
			setAttr(node, "implementation", "string", spec.Implementation)
		}

		var err error
		tool, err = toolFromNode(node)
		return err
	})
	if err != nil {
		return nil, err
	}

	handler, err := m.buildHandler(tool.Definition, tool.Strategy, tool.Implementation)
	if err != nil {
		return nil, err
	}
	if err := m.registry.RegisterStatic(tool.Definition, handler); err != nil {
		return nil, fmt.Errorf("build_tool_from_node: %w", err)
	}

	m.mu.Lock()
	m.dynamic[tool.Definition.Name] = tool
	m.mu.Unlock()

	m.logger.Info("tool built from node", "tool", tool.Definition.Name, "strategy", string(tool.Strategy))
	return map[string]any{"registered": true, "name": tool.Definition.Name}, nil
}

// InitializeToolsFromMachine rehydrates every completely defined tool node
// into the registry. Rehydration is deterministic: the same strategy tag
// and implementation always restore the same handler shape. Loosely defined
// nodes are skipped; malformed complete ones are reported.
func (m *Manager) InitializeToolsFromMachine() error {
	snapshot := m.Snapshot()
	var errs []error
	for i := range snapshot.Nodes {
		n := &snapshot.Nodes[i]
		if n.Kind() != domain.KindTool {
			continue
		}
		tool, err := toolFromNode(n)
		if err != nil {
			m.logger.Debug("skipping tool node", "node", n.Name, "reason", err)
			continue
		}
		handler, err := m.buildHandler(tool.Definition, tool.Strategy, tool.Implementation)
		if err != nil {
			errs = append(errs, fmt.Errorf("tool node %q: %w", n.Name, err))
			continue
		}
		m.registry.ReplaceStatic(tool.Definition, handler)
		m.mu.Lock()
		m.dynamic[tool.Definition.Name] = tool
		m.mu.Unlock()
		m.logger.Debug("tool rehydrated", "tool", tool.Definition.Name, "strategy", string(tool.Strategy))
	}
	return errors.Join(errs...)
}

// toolFromNode reads a persisted tool node back into its dynamic-tool form.
func toolFromNode(n *domain.Node) (domain.DynamicTool, error) {
	implementation := n.StringAttr("implementation")
	if implementation == "" {
		return domain.DynamicTool{}, fmt.Errorf("loosely defined: no implementation")
	}
	schemaAttr, ok := n.Attribute("input_schema")
	if !ok {
		return domain.DynamicTool{}, fmt.Errorf("loosely defined: no input_schema")
	}
	inputSchema, _ := compiler.AttributeValue(schemaAttr).(map[string]any)

	tool := domain.DynamicTool{
		Definition: domain.ToolDefinition{
			Name:        n.Name,
			Description: n.StringAttr("description"),
			InputSchema: inputSchema,
		},
		Strategy:       strategyOf(n.StringAttr("implementation_strategy")),
		Implementation: implementation,
	}
	if created, err := time.Parse(timeLayout, n.StringAttr("created")); err == nil {
		tool.Created = created
	}
	return tool, nil
}

func setAttr(n *domain.Node, name, typ string, value any) {
	if attr, ok := n.Attribute(name); ok {
		attr.Type = typ
		attr.Value = value
		return
	}
	n.Attributes = append(n.Attributes, domain.Attribute{Name: name, Type: typ, Value: value})
}
