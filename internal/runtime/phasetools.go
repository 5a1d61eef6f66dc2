package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/access"
	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/internal/condition"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Tool names generated per phase.
const (
	TransitionToolPrefix = "transition_to_"
	ToolGetContextValue  = "get_context_value"
	ToolSetContextValue  = "set_context_value"
)

// PhaseToolset is the tool surface for one agent activation: transition
// tools for the unresolved edges, context read/write tools scoped by the
// permission resolver, meta-tools when the node is flagged, and every
// dynamic tool. Calls stage their side effects; nothing touches the shared
// snapshot until the turn's AgentResult is folded back.
type PhaseToolset struct {
	core *Core

	machine *domain.Graph // private working copy; same-turn reads see staged writes
	pathID  string
	node    *domain.Node
	access  map[string]access.Access
	targets map[string]domain.Edge

	writes     []domain.ContextWrite
	executions []domain.ToolExecution
	nextNode   string
	transition string
}

// BuildPhaseTools assembles the toolset for the path's current node.
func (c *Core) BuildPhaseTools(state *domain.ExecutionState, pathID string) (*PhaseToolset, error) {
	path, ok := state.Path(pathID)
	if !ok {
		return nil, fmt.Errorf("unknown path %q", pathID)
	}
	machine := state.Machine.Clone()
	node, ok := machine.NodeByName(path.CurrentNode)
	if !ok {
		return nil, fmt.Errorf("path %s positioned at unknown node %q", pathID, path.CurrentNode)
	}

	evalCtx := condition.BuildContext(machine, state.Metadata.ErrorCount, state.ActiveState)
	decision := c.rails.Decide(machine, node, evalCtx)

	targets := make(map[string]domain.Edge)
	for _, e := range decision.Candidates {
		if _, seen := targets[e.Target]; !seen {
			targets[e.Target] = e
		}
	}

	return &PhaseToolset{
		core:    c,
		machine: machine,
		pathID:  pathID,
		node:    node,
		access:  access.ContextAccess(machine, node.Name),
		targets: targets,
	}, nil
}

// Node returns the node this toolset serves.
func (t *PhaseToolset) Node() string {
	return t.node.Name
}

// Staged returns the side effects recorded so far, for carrying inside a
// TurnState when a conversation pauses mid-turn.
func (t *PhaseToolset) Staged() ([]domain.ContextWrite, []domain.ToolExecution) {
	return t.writes, t.executions
}

// Seed restores side effects staged before a pause: the executions and
// writes re-enter the turn's ledger and each write is re-applied to the
// working copy, so reads and guards after resume observe the same values
// the conversation already saw.
func (t *PhaseToolset) Seed(writes []domain.ContextWrite, execs []domain.ToolExecution) error {
	for _, w := range writes {
		if err := applyContextWrite(t.machine, w); err != nil {
			return err
		}
	}
	t.writes = append(t.writes, writes...)
	t.executions = append(t.executions, execs...)
	return nil
}

// Decided reports whether a transition tool has been called.
func (t *PhaseToolset) Decided() bool {
	return t.nextNode != ""
}

// Definitions lists the phase tools in stable order: transition tools
// first, then context tools, then meta-tools, then dynamic tools.
func (t *PhaseToolset) Definitions() []domain.ToolDefinition {
	var defs []domain.ToolDefinition

	targetNames := make([]string, 0, len(t.targets))
	for name := range t.targets {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)
	for _, target := range targetNames {
		edge := t.targets[target]
		description := fmt.Sprintf("Transition to node %q.", target)
		if spec := compiler.ParseEdge(edge); spec.Raw != "" {
			description = fmt.Sprintf("Transition to node %q (edge: %s).", target, spec.Raw)
		}
		defs = append(defs, domain.ToolDefinition{
			Name:        TransitionToolPrefix + target,
			Description: description,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}

	var canRead, canWrite bool
	for _, acc := range t.access {
		canRead = canRead || acc.CanRead
		canWrite = canWrite || acc.CanWrite
	}
	if canRead {
		defs = append(defs, domain.ToolDefinition{
			Name:        ToolGetContextValue,
			Description: "Read an attribute from a context node this task has read access to. Omit attribute to read all accessible attributes.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"node"},
				"properties": map[string]any{
					"node":      map[string]any{"type": "string"},
					"attribute": map[string]any{"type": "string"},
				},
			},
		})
	}
	if canWrite {
		defs = append(defs, domain.ToolDefinition{
			Name:        ToolSetContextValue,
			Description: "Write an attribute on a context node this task has write access to.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"node", "attribute", "value"},
				"properties": map[string]any{
					"node":      map[string]any{"type": "string"},
					"attribute": map[string]any{"type": "string"},
					"value":     map[string]any{},
				},
			},
		})
	}

	if t.node.IsMeta() && t.core.meta != nil {
		defs = append(defs, t.core.meta.Definitions()...)
	}
	if t.core.meta != nil {
		defs = append(defs, t.core.meta.DynamicDefinitions()...)
	}
	return defs
}

// Call executes one phase tool, recording the execution and staging any
// side effects.
func (t *PhaseToolset) Call(ctx context.Context, name string, input map[string]any) (any, error) {
	t.core.emitToolCall(ctx, t.pathID, t.node.Name, name, input)
	result, err := t.dispatch(ctx, name, input)

	exec := domain.ToolExecution{Name: name, Input: input, Result: result}
	if err != nil {
		exec.IsError = true
		exec.Error = err.Error()
		exec.Result = nil
	}
	t.executions = append(t.executions, exec)
	t.core.emitToolReturn(ctx, t.pathID, t.node.Name, name, result, err != nil)
	return result, err
}

func (t *PhaseToolset) dispatch(ctx context.Context, name string, input map[string]any) (any, error) {
	switch {
	case strings.HasPrefix(name, TransitionToolPrefix):
		return t.callTransition(name)
	case name == ToolGetContextValue:
		return t.callGetContext(input)
	case name == ToolSetContextValue:
		return t.callSetContext(input)
	case t.core.meta != nil && t.core.meta.Handles(name):
		if !t.node.IsMeta() {
			return nil, fmt.Errorf("node %q is not flagged meta: true, %s is unavailable", t.node.Name, name)
		}
		return t.core.meta.Call(ctx, name, input)
	default:
		return t.core.registry.Execute(ctx, name, input)
	}
}

func (t *PhaseToolset) callTransition(name string) (any, error) {
	target := strings.TrimPrefix(name, TransitionToolPrefix)
	edge, ok := t.targets[target]
	if !ok {
		return nil, fmt.Errorf("no transition from %q to %q", t.node.Name, target)
	}
	t.nextNode = target
	t.transition = edge.Text()
	return map[string]any{"transitioning_to": target}, nil
}

func (t *PhaseToolset) callGetContext(input map[string]any) (any, error) {
	ctxName, _ := input["node"].(string)
	attrName, _ := input["attribute"].(string)
	if ctxName == "" {
		return nil, fmt.Errorf("get_context_value: node is required")
	}
	if err := access.CheckRead(t.machine, t.node.Name, ctxName, attrName); err != nil {
		return nil, err
	}
	ctxNode, ok := t.machine.NodeByName(ctxName)
	if !ok {
		return nil, fmt.Errorf("get_context_value: unknown node %q", ctxName)
	}
	if attrName != "" {
		attr, ok := ctxNode.Attribute(attrName)
		if !ok {
			return map[string]any{"node": ctxName, "attribute": attrName, "value": nil}, nil
		}
		return map[string]any{"node": ctxName, "attribute": attrName, "value": compiler.AttributeValue(attr)}, nil
	}

	acc := t.access[ctxName]
	values := make(map[string]any)
	for name, v := range compiler.NodeAttributes(ctxNode) {
		if acc.AllowsField(name) {
			values[name] = v
		}
	}
	return map[string]any{"node": ctxName, "values": values}, nil
}

func (t *PhaseToolset) callSetContext(input map[string]any) (any, error) {
	ctxName, _ := input["node"].(string)
	attrName, _ := input["attribute"].(string)
	if ctxName == "" || attrName == "" {
		return nil, fmt.Errorf("set_context_value: node and attribute are required")
	}
	if err := access.CheckWrite(t.machine, t.node.Name, ctxName, attrName); err != nil {
		return nil, err
	}
	write := domain.ContextWrite{Node: ctxName, Attribute: attrName, Value: input["value"]}
	// Apply to the working copy so later reads and guards in this turn
	// observe the staged value.
	if err := applyContextWrite(t.machine, write); err != nil {
		return nil, err
	}
	t.writes = append(t.writes, write)
	return map[string]any{"written": true, "node": ctxName, "attribute": attrName}, nil
}

// Result packages the turn's outcome for ApplyAgentResult. Stalled is left
// false when no transition was chosen so the engine can still discover an
// automatic edge unblocked by this turn's writes.
func (t *PhaseToolset) Result(output string, turns int) domain.AgentResult {
	return domain.AgentResult{
		PathID:         t.pathID,
		Node:           t.node.Name,
		NextNode:       t.nextNode,
		TransitionName: t.transition,
		Output:         output,
		ToolExecutions: t.executions,
		ContextWrites:  t.writes,
		Turns:          turns,
	}
}

func (c *Core) emitToolCall(ctx context.Context, pathID, node, tool string, input any) {
	if c.hooks.OnToolCall == nil {
		return
	}
	c.hooks.OnToolCall(ctx, &domain.ToolEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventToolCall, PathID: pathID},
		Node:      node,
		Tool:      tool,
		Input:     input,
	})
}

func (c *Core) emitToolReturn(ctx context.Context, pathID, node, tool string, output any, isError bool) {
	if c.hooks.OnToolReturn == nil {
		return
	}
	c.hooks.OnToolReturn(ctx, &domain.ToolEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventToolReturn, PathID: pathID},
		Node:      node,
		Tool:      tool,
		Output:    output,
		IsError:   isError,
	})
}
