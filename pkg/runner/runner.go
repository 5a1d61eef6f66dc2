// Package runner is the driver loop: it calls the pure step function,
// executes the effects it emits against the real model client and tool
// registry, and folds the results back in. Suspension happens only at
// effect execution; pause requests are observed at turn boundaries so a
// paused state is always a consistent, resumable snapshot.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/switchyard-dev/switchyard/internal/runtime"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
)

// Runner executes a machine to completion, pause, or a limit.
type Runner struct {
	core   *runtime.Core
	turns  *TurnExecutor
	store  ports.StateStore
	logger *slog.Logger

	sessionID string
	pause     atomic.Bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore enables autosave of every new snapshot under the session id.
func WithStore(store ports.StateStore, sessionID string) RunnerOption {
	return func(r *Runner) {
		r.store = store
		r.sessionID = sessionID
	}
}

// WithRunnerLogger sets the structured logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// New builds a runner around an execution core and a model client.
func New(core *runtime.Core, client ports.ModelClient, opts ...RunnerOption) *Runner {
	r := &Runner{
		core:   core,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.turns = NewTurnExecutor(client, core.Limits().MaxTurns, r.logger)
	return r
}

// RequestPause asks the runner to stop at the next turn boundary. The
// request is cooperative: an in-flight model call finishes first.
func (r *Runner) RequestPause() {
	r.pause.Store(true)
}

// Resume clears the pause flag on both the runner and the snapshot so a
// paused state can be handed back to Execute.
func (r *Runner) Resume(state *domain.ExecutionState) *domain.ExecutionState {
	r.pause.Store(false)
	next := state.Clone()
	next.Paused = false
	return next
}

// Execute drives the step loop until every path terminates, a pause is
// honored, or a safety limit fires. The returned state is always the last
// consistent snapshot, also autosaved when a store is configured.
func (r *Runner) Execute(ctx context.Context, state *domain.ExecutionState) (*domain.ExecutionState, domain.RunStatus, error) {
	if state.Turn != nil && state.Turn.WaitingForTurn && !state.Paused {
		resumed, paused, err := r.resumeConversation(ctx, state)
		if err != nil {
			return state, domain.StatusRunning, err
		}
		state = resumed
		if paused {
			return state, domain.StatusPaused, r.autosave(ctx, state)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return state, domain.StatusRunning, err
		}
		if r.pause.Load() {
			state = pausedSnapshot(state)
			return state, domain.StatusPaused, r.autosave(ctx, state)
		}

		result, err := r.core.Step(ctx, state)
		if err != nil {
			return state, domain.StatusRunning, err
		}
		state = result.State

		switch result.Status {
		case domain.StatusDone, domain.StatusStalled, domain.StatusPaused:
			return state, result.Status, r.autosave(ctx, state)
		}

		for _, effect := range result.Effects {
			switch effect.Type {
			case domain.EffectInvokeAgent:
				next, paused, err := r.runAgentEffect(ctx, state, effect)
				if err != nil {
					return state, domain.StatusRunning, err
				}
				state = next
				if paused {
					return state, domain.StatusPaused, r.autosave(ctx, state)
				}
			case domain.EffectToolCall:
				next, err := r.runToolEffect(ctx, state, effect)
				if err != nil {
					return state, domain.StatusRunning, err
				}
				state = next
			default:
				return state, domain.StatusRunning, fmt.Errorf("unknown effect type %q", effect.Type)
			}
		}

		if err := r.autosave(ctx, state); err != nil {
			return state, domain.StatusRunning, err
		}
	}
}

// runAgentEffect drives a full tool-use conversation for one invoke_llm
// effect and folds the agent's decision back into the state.
func (r *Runner) runAgentEffect(ctx context.Context, state *domain.ExecutionState, effect domain.Effect) (*domain.ExecutionState, bool, error) {
	turn := r.turns.InitializeConversation(effect)
	return r.driveConversation(ctx, state, turn)
}

// resumeConversation continues an in-flight conversation restored from a
// paused or checkpointed snapshot.
func (r *Runner) resumeConversation(ctx context.Context, state *domain.ExecutionState) (*domain.ExecutionState, bool, error) {
	r.logger.Info("resuming in-flight conversation",
		"path", state.Turn.PathID, "node", state.Turn.NodeName, "turns", state.Turn.TurnCount)
	return r.driveConversation(ctx, state, state.Turn.Clone())
}

func (r *Runner) driveConversation(ctx context.Context, state *domain.ExecutionState, turn *domain.TurnState) (*domain.ExecutionState, bool, error) {
	toolset, err := r.core.BuildPhaseTools(state, turn.PathID)
	if err != nil {
		return nil, false, err
	}
	if err := toolset.Seed(turn.StagedWrites, turn.ToolExecutions); err != nil {
		return nil, false, err
	}

	var text string
	for {
		// Definitions are rebuilt per turn: a construct_tool call in one
		// turn is visible to the next.
		outcome, err := r.turns.ExecuteTurn(ctx, turn, toolset.Definitions(), toolset.Call, toolset.Decided)
		if err != nil {
			return nil, false, err
		}
		if outcome.Text != "" {
			text = outcome.Text
		}
		if outcome.IsComplete {
			break
		}
		if r.pause.Load() {
			turn.StagedWrites, turn.ToolExecutions = toolset.Staged()
			next := pausedSnapshot(state)
			next.Turn = turn
			r.logger.Info("paused mid-conversation", "path", turn.PathID, "node", turn.NodeName)
			return next, true, nil
		}
	}

	next, err := r.core.ApplyAgentResult(ctx, state, toolset.Result(text, turn.TurnCount))
	if err != nil {
		return nil, false, err
	}
	return next, false, nil
}

// runToolEffect executes a single tool_call effect and folds its result.
func (r *Runner) runToolEffect(ctx context.Context, state *domain.ExecutionState, effect domain.Effect) (*domain.ExecutionState, error) {
	output, err := r.core.Registry().Execute(ctx, effect.ToolName, effect.ToolInput)
	exec := domain.ToolExecution{Name: effect.ToolName, Input: effect.ToolInput, Result: output}
	if err != nil {
		exec.IsError = true
		exec.Error = err.Error()
		exec.Result = nil
	}
	return r.core.ApplyAgentResult(ctx, state, domain.AgentResult{
		PathID:         effect.PathID,
		Node:           effect.Node,
		Output:         renderToolResult(output),
		ToolExecutions: []domain.ToolExecution{exec},
	})
}

func (r *Runner) autosave(ctx context.Context, state *domain.ExecutionState) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, r.sessionID, state); err != nil {
		return fmt.Errorf("autosaving session %q: %w", r.sessionID, err)
	}
	return nil
}

func pausedSnapshot(state *domain.ExecutionState) *domain.ExecutionState {
	next := state.Clone()
	next.Paused = true
	return next
}
