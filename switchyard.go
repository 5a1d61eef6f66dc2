package switchyard

import (
	"context"
	"log/slog"
	"time"

	"github.com/switchyard-dev/switchyard/internal/presentation/graph"
	"github.com/switchyard-dev/switchyard/internal/runtime"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
	"github.com/switchyard-dev/switchyard/pkg/registry"
	"github.com/switchyard-dev/switchyard/pkg/runner"
)

// Version is stamped into banners, server identifiers and the CLI.
const Version = "0.3.0"

// Engine is the high-level entry point for the library. It wraps the
// internal runtime core and, when a model client is configured, a driver
// loop that executes effects against it.
type Engine struct {
	core   *runtime.Core
	client ports.ModelClient
	store  ports.StateStore
	logger *slog.Logger

	limits   domain.Limits
	hooks    domain.LifecycleHooks
	registry *registry.Registry
	clock    func() time.Time
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLimits overrides the default safety limits.
func WithLimits(limits domain.Limits) Option {
	return func(e *Engine) { e.limits = limits }
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithToolRegistry injects a pre-populated tool registry for host tools.
func WithToolRegistry(reg *registry.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithModelClient wires a model client so Run can drive agent effects
// itself. Without it the host must execute effects and call
// ApplyAgentResult.
func WithModelClient(client ports.ModelClient) Option {
	return func(e *Engine) { e.client = client }
}

// WithStore enables autosaving of snapshots while Run executes.
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// New initializes a new Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		limits: domain.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(e)
	}

	coreOpts := []runtime.Option{
		runtime.WithLimits(e.limits),
		runtime.WithHooks(e.hooks),
	}
	if e.logger != nil {
		coreOpts = append(coreOpts, runtime.WithLogger(e.logger))
	}
	if e.registry != nil {
		coreOpts = append(coreOpts, runtime.WithRegistry(e.registry))
	}
	if e.clock != nil {
		coreOpts = append(coreOpts, runtime.WithClock(e.clock))
	}

	e.core = runtime.NewCore(coreOpts...)
	return e
}

// Core exposes the underlying runtime core for adapters that drive the
// engine directly (HTTP, MCP).
func (e *Engine) Core() *runtime.Core {
	return e.core
}

// Initialize validates the machine and produces the initial snapshot.
func (e *Engine) Initialize(machine *domain.Graph) (*domain.ExecutionState, error) {
	return e.core.Initialize(machine)
}

// Attach rebinds the engine to a previously serialized snapshot.
func (e *Engine) Attach(state *domain.ExecutionState) error {
	return e.core.Attach(state)
}

// Step advances the execution by one decision without executing effects.
func (e *Engine) Step(ctx context.Context, state *domain.ExecutionState) (*domain.StepResult, error) {
	return e.core.Step(ctx, state)
}

// ApplyAgentResult folds the outcome of an agent conversation back into
// the snapshot.
func (e *Engine) ApplyAgentResult(ctx context.Context, state *domain.ExecutionState, result domain.AgentResult) (*domain.ExecutionState, error) {
	return e.core.ApplyAgentResult(ctx, state, result)
}

// Run drives the execution to completion (or until it pauses, stalls or
// the context is canceled), executing effects against the configured
// model client. A model client is required only when the machine reaches
// an agent decision.
func (e *Engine) Run(ctx context.Context, state *domain.ExecutionState, sessionID string) (*domain.ExecutionState, domain.RunStatus, error) {
	return e.driver(sessionID).Execute(ctx, state)
}

// Start initializes the machine and runs it in one call.
func (e *Engine) Start(ctx context.Context, machine *domain.Graph, sessionID string) (*domain.ExecutionState, domain.RunStatus, error) {
	state, err := e.core.Initialize(machine)
	if err != nil {
		return nil, "", err
	}
	return e.Run(ctx, state, sessionID)
}

func (e *Engine) driver(sessionID string) *runner.Runner {
	opts := []runner.RunnerOption{}
	if e.store != nil && sessionID != "" {
		opts = append(opts, runner.WithStore(e.store, sessionID))
	}
	if e.logger != nil {
		opts = append(opts, runner.WithRunnerLogger(e.logger))
	}
	return runner.New(e.core, e.client, opts...)
}

// Checkpoint captures a named immutable snapshot of the state.
func (e *Engine) Checkpoint(state *domain.ExecutionState, name string) *domain.Checkpoint {
	return e.core.CreateCheckpoint(state, name)
}

// Restore rebuilds a live snapshot from a checkpoint and attaches it.
func (e *Engine) Restore(cp *domain.Checkpoint) (*domain.ExecutionState, error) {
	return e.core.RestoreCheckpoint(cp)
}

// Serialize encodes a snapshot for persistence.
func (e *Engine) Serialize(state *domain.ExecutionState) ([]byte, error) {
	return runtime.SerializeState(state)
}

// Deserialize decodes a snapshot and attaches it to this engine.
func (e *Engine) Deserialize(raw []byte) (*domain.ExecutionState, error) {
	state, err := runtime.DeserializeState(raw)
	if err != nil {
		return nil, err
	}
	if err := e.core.Attach(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Mermaid renders the machine (with an optional execution overlay) as a
// Mermaid flowchart.
func Mermaid(machine *domain.Graph, state *domain.ExecutionState) string {
	var overlay *graph.GraphOverlay
	if state != nil {
		overlay = graph.OverlayFromState(state)
	}
	return graph.GenerateMermaid(machine, overlay)
}
