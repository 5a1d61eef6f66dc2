// Package runtime implements the execution core: a pure step function over
// immutable state snapshots, the rails transition rules, phase-scoped tool
// sets for agent activations, and checkpoint/serialization of the whole
// snapshot. The core performs no I/O; it emits declarative effects that
// pkg/runner executes against the real model client and tool registry.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/switchyard-dev/switchyard/internal/condition"
	"github.com/switchyard-dev/switchyard/internal/metatools"
	"github.com/switchyard-dev/switchyard/internal/safety"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/registry"
)

// Core drives one machine instance. It holds only configuration and the
// meta-tool manager; all execution state lives in the snapshot passed to
// each call.
type Core struct {
	logger    *slog.Logger
	limits    domain.Limits
	hooks     domain.LifecycleHooks
	registry  *registry.Registry
	evaluator *condition.Evaluator
	monitor   *safety.Monitor
	meta      *metatools.Manager
	rails     rails
	now       func() time.Time
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithLimits sets safety limits; zero fields take defaults.
func WithLimits(limits domain.Limits) Option {
	return func(c *Core) { c.limits = limits }
}

// WithHooks overlays lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Core) { c.hooks = c.hooks.Merge(hooks) }
}

// WithRegistry supplies a pre-populated tool registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Core) { c.registry = reg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// NewCore builds an execution core.
func NewCore(opts ...Option) *Core {
	c := &Core{
		logger: slog.New(slog.DiscardHandler),
		limits: domain.DefaultLimits(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limits = c.limits.Normalized()
	if c.registry == nil {
		c.registry = registry.New()
	}
	c.evaluator = condition.New(c.logger)
	c.monitor = safety.New(c.limits, c.logger)
	c.rails = rails{evaluator: c.evaluator, logger: c.logger}
	return c
}

// Limits returns the normalized limits in force.
func (c *Core) Limits() domain.Limits {
	return c.limits
}

// Registry exposes the tool registry, primarily for host-registered tools.
func (c *Core) Registry() *registry.Registry {
	return c.registry
}

// Meta exposes the meta-tool manager after Initialize or Attach.
func (c *Core) Meta() *metatools.Manager {
	return c.meta
}

// Initialize creates a fresh execution state positioned at the machine's
// entry node and rehydrates any persisted tool nodes into the registry.
func (c *Core) Initialize(machine *domain.Graph) (*domain.ExecutionState, error) {
	entry, ok := machine.EntryNode()
	if !ok {
		return nil, domain.ErrNoEntryNode
	}
	if err := c.bind(machine); err != nil {
		return nil, err
	}
	state := domain.NewExecutionState(machine, entry.Name)
	state.ActiveState = activeStateOf(machine, entry.Name)
	c.logger.Info("execution initialized",
		"machine", machine.Title, "entry", entry.Name, "nodes", len(machine.Nodes))
	return state, nil
}

// Attach rebinds the core to a previously serialized or checkpointed state,
// rehydrating its persisted tools. Required before stepping a restored
// snapshot.
func (c *Core) Attach(state *domain.ExecutionState) error {
	return c.bind(state.Machine)
}

func (c *Core) bind(machine *domain.Graph) error {
	c.meta = metatools.NewManager(machine, c.registry, c.logger)
	if err := c.meta.InitializeToolsFromMachine(); err != nil {
		return fmt.Errorf("rehydrating tools: %w", err)
	}
	return nil
}

// Step advances every active path by one activation. It is pure with
// respect to its input: the returned snapshot is freshly built and the
// input state is never mutated. I/O-requiring decisions come back as
// effects; automatic transitions are applied directly.
func (c *Core) Step(ctx context.Context, state *domain.ExecutionState) (*domain.StepResult, error) {
	next := state.Clone()
	if next.Paused {
		return &domain.StepResult{State: next, Status: domain.StatusPaused}, nil
	}

	var effects []domain.Effect
	for _, path := range next.Paths {
		if path.Status != domain.PathActive {
			continue
		}
		node, ok := next.Machine.NodeByName(path.CurrentNode)
		if !ok {
			return nil, fmt.Errorf("path %s positioned at unknown node %q", path.ID, path.CurrentNode)
		}

		if err := c.monitor.CheckTimeout(next.Metadata, c.now(), node.Name); err != nil {
			c.emitLimit(ctx, path.ID, "timeout", node.Name)
			return nil, err
		}
		if err := c.monitor.CheckStepBudget(next.Metadata.StepCount); err != nil {
			c.emitLimit(ctx, path.ID, "steps", node.Name)
			return nil, err
		}
		if err := c.monitor.RecordInvocation(path, node); err != nil {
			c.emitLimit(ctx, path.ID, "invocation", node.Name)
			return nil, err
		}
		next.Metadata.StepCount++

		if node.Kind() == domain.KindTool {
			effects = append(effects, buildToolEffect(path, node))
			path.Status = domain.PathWaiting
			continue
		}

		evalCtx := condition.BuildContext(next.Machine, next.Metadata.ErrorCount, next.ActiveState)
		decision := c.rails.Decide(next.Machine, node, evalCtx)

		switch decision.Kind {
		case DecideAutomatic:
			if err := c.transition(ctx, next, path, decision.Edge.Target, decision.Edge.Text(), "", true); err != nil {
				return nil, err
			}

		case DecideAgent:
			effect, err := c.buildAgentEffect(next, path, node, evalCtx)
			if err != nil {
				return nil, err
			}
			effects = append(effects, effect)
			path.Status = domain.PathWaiting

		case DecideTerminal:
			c.logger.Info("path terminal", "path", path.ID, "node", node.Name)
			c.emitNodeLeave(ctx, path.ID, node)
			path.Status = domain.PathDone

		case DecideStall:
			path.Status = domain.PathStalled
		}
	}

	status := domain.StatusRunning
	switch {
	case len(effects) > 0:
		status = domain.StatusWaiting
	case next.Stalled():
		status = domain.StatusStalled
	case next.Done():
		status = domain.StatusDone
	}
	return &domain.StepResult{Effects: effects, State: next, Status: status}, nil
}

// buildToolEffect assembles the tool_call effect for a tool-typed node on
// the control path. The tool name defaults to the node name; a `tool`
// attribute overrides it, and a map-valued `input` attribute becomes the
// call input.
func buildToolEffect(path *domain.Path, node *domain.Node) domain.Effect {
	name := node.StringAttr("tool")
	if name == "" {
		name = node.Name
	}
	effect := domain.Effect{
		Type:     domain.EffectToolCall,
		PathID:   path.ID,
		Node:     node.Name,
		ToolName: name,
	}
	if attr, ok := node.Attribute("input"); ok {
		if m, ok := attr.Value.(map[string]any); ok {
			effect.ToolInput = m
		}
	}
	return effect
}

// buildAgentEffect assembles the invoke_llm effect for a node that needs an
// agent decision.
func (c *Core) buildAgentEffect(state *domain.ExecutionState, path *domain.Path, node *domain.Node, evalCtx condition.Context) (domain.Effect, error) {
	toolset, err := c.BuildPhaseTools(state, path.ID)
	if err != nil {
		return domain.Effect{}, err
	}
	prompt := c.evaluator.ResolveTemplate(node.StringAttr("prompt"), evalCtx)
	systemPrompt := c.evaluator.ResolveTemplate(node.StringAttr("system_prompt"), evalCtx)
	return domain.Effect{
		Type:         domain.EffectInvokeAgent,
		PathID:       path.ID,
		Node:         node.Name,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Tools:        toolset.Definitions(),
		ModelID:      node.StringAttr("model"),
	}, nil
}

// ApplyAgentResult folds one agent activation result back into the state by
// path id, producing the next immutable snapshot. Context writes land in
// effect-list order; tools constructed during the turn are already present
// in the meta manager's snapshot and are carried over here.
func (c *Core) ApplyAgentResult(ctx context.Context, state *domain.ExecutionState, result domain.AgentResult) (*domain.ExecutionState, error) {
	next := state.Clone()
	path, ok := next.Path(result.PathID)
	if !ok {
		return nil, fmt.Errorf("agent result for unknown path %q", result.PathID)
	}

	machine := next.Machine
	if c.meta != nil {
		machine = c.meta.Snapshot()
	}
	for _, w := range result.ContextWrites {
		if err := applyContextWrite(machine, w); err != nil {
			return nil, err
		}
	}
	next.Machine = machine
	if c.meta != nil {
		c.meta.Replace(machine)
	}

	for _, exec := range result.ToolExecutions {
		if exec.IsError {
			next.Metadata.ErrorCount++
		}
	}
	next.Turn = nil
	path.Status = domain.PathActive

	target := result.NextNode
	if target == "" && !result.Stalled {
		// The agent finished without choosing; its writes may have
		// unblocked an automatic edge.
		node, nodeOK := machine.NodeByName(path.CurrentNode)
		if nodeOK {
			evalCtx := condition.BuildContext(machine, next.Metadata.ErrorCount, next.ActiveState)
			if decision := c.rails.Decide(machine, node, evalCtx); decision.Kind == DecideAutomatic {
				target = decision.Edge.Target
			}
		}
	}

	switch {
	case target != "":
		if _, ok := machine.NodeByName(target); !ok {
			return nil, fmt.Errorf("agent chose unknown node %q", target)
		}
		if err := c.transition(ctx, next, path, target, result.TransitionName, result.Output, false); err != nil {
			return nil, err
		}
	default:
		c.logger.Warn("execution stalled: no decision and no automatic path",
			"path", path.ID, "node", path.CurrentNode)
		path.Status = domain.PathStalled
	}
	return next, nil
}

// transition moves a path along an edge, performing state-module entry:
// one history entry per module boundary crossed plus the final entry.
// State-typed entries feed the cycle detector.
func (c *Core) transition(ctx context.Context, state *domain.ExecutionState, path *domain.Path, target, transitionName, output string, automatic bool) error {
	from := path.CurrentNode
	if node, ok := state.Machine.NodeByName(from); ok {
		c.emitNodeLeave(ctx, path.ID, node)
	}

	trail := enterTarget(state.Machine, target)
	now := c.now().UTC()
	for i, stop := range trail {
		entry := domain.Transition{From: from, To: stop, Timestamp: now}
		if i == 0 {
			entry.Transition = transitionName
			entry.Output = output
		}
		path.History = append(path.History, entry)

		node, ok := state.Machine.NodeByName(stop)
		if ok {
			c.emitTransition(ctx, path.ID, from, stop, transitionName, automatic)
			c.emitNodeEnter(ctx, path.ID, node)
			if node.Kind() == domain.KindState {
				if err := c.monitor.RecordStateTransition(path, stop); err != nil {
					c.emitLimit(ctx, path.ID, "cycle", stop)
					return err
				}
			}
		}
		from = stop
	}

	final := trail[len(trail)-1]
	path.CurrentNode = final
	state.ActiveState = activeStateOf(state.Machine, final)
	c.logger.Debug("transition applied",
		"path", path.ID, "to", final, "automatic", automatic, "active_state", state.ActiveState)
	return nil
}

// RequiresAgentDecision reports whether activating the named node right now
// would need an agent, given the current snapshot.
func (c *Core) RequiresAgentDecision(state *domain.ExecutionState, nodeName string) (bool, error) {
	node, ok := state.Machine.NodeByName(nodeName)
	if !ok {
		return false, fmt.Errorf("unknown node %q", nodeName)
	}
	evalCtx := condition.BuildContext(state.Machine, state.Metadata.ErrorCount, state.ActiveState)
	return c.rails.Decide(state.Machine, node, evalCtx).Kind == DecideAgent, nil
}

func applyContextWrite(g *domain.Graph, w domain.ContextWrite) error {
	node, ok := g.NodeByName(w.Node)
	if !ok {
		return fmt.Errorf("context write to unknown node %q", w.Node)
	}
	if attr, ok := node.Attribute(w.Attribute); ok {
		attr.Value = w.Value
		return nil
	}
	node.Attributes = append(node.Attributes, domain.Attribute{Name: w.Attribute, Value: w.Value})
	return nil
}

func (c *Core) emitNodeEnter(ctx context.Context, pathID string, node *domain.Node) {
	if c.hooks.OnNodeEnter == nil {
		return
	}
	c.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventNodeEnter, PathID: pathID},
		Node:      node.Name,
		Kind:      node.Kind(),
	})
}

func (c *Core) emitNodeLeave(ctx context.Context, pathID string, node *domain.Node) {
	if c.hooks.OnNodeLeave == nil {
		return
	}
	c.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventNodeLeave, PathID: pathID},
		Node:      node.Name,
		Kind:      node.Kind(),
	})
}

func (c *Core) emitTransition(ctx context.Context, pathID, from, to, label string, automatic bool) {
	if c.hooks.OnTransition == nil {
		return
	}
	c.hooks.OnTransition(ctx, &domain.TransitionEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventTransition, PathID: pathID},
		From:      from,
		To:        to,
		Label:     label,
		Automatic: automatic,
	})
}

func (c *Core) emitLimit(ctx context.Context, pathID, kind, node string) {
	if c.hooks.OnLimitHit == nil {
		return
	}
	c.hooks.OnLimitHit(ctx, &domain.LimitEvent{
		EventBase: domain.EventBase{Timestamp: c.now(), Type: domain.EventLimitHit, PathID: pathID},
		Kind:      kind,
		Node:      node,
	})
}
