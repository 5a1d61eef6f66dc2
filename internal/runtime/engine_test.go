package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

func chainMachine() *domain.Graph {
	return &domain.Graph{
		Title: "chain",
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "a", Type: "state"},
			{Name: "b", Type: "state"},
			{Name: "c", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}
}

func decisionMachine() *domain.Graph {
	return &domain.Graph{
		Title: "decision",
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "triage", Type: "task", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "route the ticket"},
			}},
			{Name: "escalate", Type: "state"},
			{Name: "archive", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "triage"},
			{Source: "triage", Target: "escalate", Label: "severity is high"},
			{Source: "triage", Target: "archive", Label: "nothing to do"},
		},
	}
}

func runToCompletion(t *testing.T, c *Core, state *domain.ExecutionState) *domain.ExecutionState {
	t.Helper()
	for i := 0; i < 20; i++ {
		result, err := c.Step(context.Background(), state)
		require.NoError(t, err)
		require.Empty(t, result.Effects, "expected a fully automatic run")
		state = result.State
		if state.Done() {
			return state
		}
	}
	t.Fatal("machine did not finish")
	return nil
}

func TestInitialize(t *testing.T) {
	c := NewCore()

	t.Run("positions at the entry node", func(t *testing.T) {
		state, err := c.Initialize(chainMachine())
		require.NoError(t, err)
		assert.Equal(t, "start", state.Paths[0].CurrentNode)
		assert.Equal(t, domain.PathActive, state.Paths[0].Status)
	})

	t.Run("empty machine has no entry", func(t *testing.T) {
		_, err := c.Initialize(&domain.Graph{})
		assert.ErrorIs(t, err, domain.ErrNoEntryNode)
	})
}

func TestStepAutomaticChain(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)

	final := runToCompletion(t, c, state)
	assert.Equal(t, "c", final.Paths[0].CurrentNode)
	assert.Equal(t, domain.PathDone, final.Paths[0].Status)

	var visited []string
	for _, tr := range final.Paths[0].History {
		visited = append(visited, tr.To)
	}
	assert.Equal(t, []string{"a", "b", "c"}, visited)
}

func TestStepDoesNotMutateInput(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)

	before := state.Clone()
	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, before.Paths[0].CurrentNode, state.Paths[0].CurrentNode)
	assert.Equal(t, before.Metadata.StepCount, state.Metadata.StepCount)
	assert.Len(t, state.Paths[0].History, 0)
	assert.NotEqual(t, state.Paths[0].CurrentNode, result.State.Paths[0].CurrentNode)
}

func TestStepPaused(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)
	state.Paused = true

	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, result.Status)
	assert.Empty(t, result.Effects)
}

func TestStepEmitsAgentEffect(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(decisionMachine())
	require.NoError(t, err)

	// First step rides the rails from start to triage.
	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, "triage", result.State.Paths[0].CurrentNode)

	// Second step needs the agent.
	result, err = c.Step(context.Background(), result.State)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, result.Status)
	require.Len(t, result.Effects, 1)

	effect := result.Effects[0]
	assert.Equal(t, domain.EffectInvokeAgent, effect.Type)
	assert.Equal(t, "triage", effect.Node)
	assert.Equal(t, "route the ticket", effect.Prompt)
	assert.Equal(t, domain.PathWaiting, result.State.Paths[0].Status)

	var names []string
	for _, def := range effect.Tools {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"transition_to_archive", "transition_to_escalate"}, names,
		"only the transition tools; no context access, not a meta node")
}

func TestApplyAgentResult(t *testing.T) {
	newWaiting := func(t *testing.T) (*Core, *domain.ExecutionState) {
		t.Helper()
		c := NewCore()
		state, err := c.Initialize(decisionMachine())
		require.NoError(t, err)
		result, err := c.Step(context.Background(), state)
		require.NoError(t, err)
		result, err = c.Step(context.Background(), result.State)
		require.NoError(t, err)
		require.Equal(t, domain.StatusWaiting, result.Status)
		return c, result.State
	}

	t.Run("transition chosen by the agent", func(t *testing.T) {
		c, state := newWaiting(t)
		next, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{
			PathID:         state.Paths[0].ID,
			Node:           "triage",
			NextNode:       "escalate",
			TransitionName: "severity is high",
			Output:         "looks severe",
		})
		require.NoError(t, err)
		assert.Equal(t, "escalate", next.Paths[0].CurrentNode)
		assert.Equal(t, domain.PathActive, next.Paths[0].Status)

		last := next.Paths[0].History[len(next.Paths[0].History)-1]
		assert.Equal(t, "severity is high", last.Transition)
		assert.Equal(t, "looks severe", last.Output)
	})

	t.Run("context writes land in the machine", func(t *testing.T) {
		c, state := newWaiting(t)
		next, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{
			PathID:   state.Paths[0].ID,
			NextNode: "archive",
			ContextWrites: []domain.ContextWrite{
				{Node: "triage", Attribute: "resolution", Value: "archived"},
			},
		})
		require.NoError(t, err)
		node, ok := next.Machine.NodeByName("triage")
		require.True(t, ok)
		assert.Equal(t, "archived", node.StringAttr("resolution"))
	})

	t.Run("tool errors bump the error count", func(t *testing.T) {
		c, state := newWaiting(t)
		next, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{
			PathID:   state.Paths[0].ID,
			NextNode: "archive",
			ToolExecutions: []domain.ToolExecution{
				{Name: "broken", IsError: true},
				{Name: "fine"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, next.Metadata.ErrorCount)
	})

	t.Run("no decision stalls the path", func(t *testing.T) {
		c, state := newWaiting(t)
		next, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{
			PathID:  state.Paths[0].ID,
			Stalled: true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.PathStalled, next.Paths[0].Status)
		assert.True(t, next.Stalled())
	})

	t.Run("unknown target is rejected", func(t *testing.T) {
		c, state := newWaiting(t)
		_, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{
			PathID:   state.Paths[0].ID,
			NextNode: "nowhere",
		})
		assert.Error(t, err)
	})

	t.Run("unknown path is rejected", func(t *testing.T) {
		c, state := newWaiting(t)
		_, err := c.ApplyAgentResult(context.Background(), state, domain.AgentResult{PathID: "ghost"})
		assert.Error(t, err)
	})
}

func TestApplyAgentResultUnblocksAutomaticEdge(t *testing.T) {
	machine := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "gather", Type: "task", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "fill in the order total"},
			}},
			{Name: "order", Type: "context"},
			{Name: "ship", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "gather"},
			{Source: "gather", Target: "order", Label: "writes"},
			{Source: "gather", Target: "ship", Label: `when:"attributes.order.total > 0"`},
		},
	}
	c := NewCore()
	state, err := c.Initialize(machine)
	require.NoError(t, err)

	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)
	result, err = c.Step(context.Background(), result.State)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, result.Status)

	// The agent writes the total but never calls a transition tool; its
	// write unblocks the guarded edge.
	next, err := c.ApplyAgentResult(context.Background(), result.State, domain.AgentResult{
		PathID: result.State.Paths[0].ID,
		Node:   "gather",
		ContextWrites: []domain.ContextWrite{
			{Node: "order", Attribute: "total", Value: float64(42)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ship", next.Paths[0].CurrentNode)
}

func TestTransitionIntoStateModule(t *testing.T) {
	machine := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "fulfillment", Type: "state"},
			{Name: "pick", Type: "task", Parent: "fulfillment", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "pick the items"},
			}},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "fulfillment"},
		},
	}
	c := NewCore()
	state, err := c.Initialize(machine)
	require.NoError(t, err)

	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)

	path := result.State.Paths[0]
	assert.Equal(t, "pick", path.CurrentNode, "entry descends into the module")
	assert.Equal(t, "fulfillment", result.State.ActiveState)

	var hops []string
	for _, tr := range path.History {
		hops = append(hops, tr.To)
	}
	assert.Equal(t, []string{"fulfillment", "pick"}, hops,
		"one history entry per module boundary crossed")
}

func TestStepBudget(t *testing.T) {
	loop := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "a", Type: "state"},
			{Name: "b", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	// Cycle window of 3 keeps the detector out of the way so the step
	// budget is what trips.
	c := NewCore(WithLimits(domain.Limits{
		MaxSteps:           4,
		MaxNodeInvocations: 100,
		CycleWindow:        3,
	}))
	state, err := c.Initialize(loop)
	require.NoError(t, err)

	var stepErr error
	for i := 0; i < 10; i++ {
		result, err := c.Step(context.Background(), state)
		if err != nil {
			stepErr = err
			break
		}
		state = result.State
	}
	var berr *domain.StepBudgetError
	require.ErrorAs(t, stepErr, &berr)
}

func TestCycleDetection(t *testing.T) {
	loop := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "a", Type: "state"},
			{Name: "b", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	c := NewCore(WithLimits(domain.Limits{
		MaxSteps:           1000,
		MaxNodeInvocations: 1000,
		CycleWindow:        10,
	}))
	state, err := c.Initialize(loop)
	require.NoError(t, err)

	var stepErr error
	for i := 0; i < 50; i++ {
		result, err := c.Step(context.Background(), state)
		if err != nil {
			stepErr = err
			break
		}
		state = result.State
	}
	var cerr *domain.CycleError
	require.ErrorAs(t, stepErr, &cerr)
	assert.Len(t, cerr.Pattern, 2)
}

func TestTimeout(t *testing.T) {
	now := time.Now()
	c := NewCore(
		WithLimits(domain.Limits{Timeout: time.Minute}),
		WithClock(func() time.Time { return now.Add(2 * time.Minute) }),
	)
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)
	state.Metadata.StartedAt = now

	_, err = c.Step(context.Background(), state)
	var terr *domain.TimeoutError
	require.ErrorAs(t, err, &terr)
}

func TestLifecycleHooks(t *testing.T) {
	var entered, left []string
	var transitions int
	c := NewCore(WithHooks(domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { entered = append(entered, e.Node) },
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) { left = append(left, e.Node) },
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			transitions++
		},
	}))
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)
	runToCompletion(t, c, state)

	assert.Equal(t, []string{"a", "b", "c"}, entered)
	assert.Equal(t, []string{"start", "a", "b", "c"}, left, "terminal node is left on completion")
	assert.Equal(t, 3, transitions)
}

func TestSerializeRoundTrip(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(decisionMachine())
	require.NoError(t, err)
	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)
	state = result.State
	state.Turn = &domain.TurnState{
		PathID:       state.Paths[0].ID,
		NodeName:     "triage",
		Conversation: []domain.Message{domain.TextMessage(domain.RoleUser, "route it")},
	}

	raw, err := SerializeState(state)
	require.NoError(t, err)

	restored, err := DeserializeState(raw)
	require.NoError(t, err)
	assert.Equal(t, state.Paths[0].CurrentNode, restored.Paths[0].CurrentNode)
	assert.Equal(t, state.Machine.Title, restored.Machine.Title)
	require.NotNil(t, restored.Turn)
	assert.Equal(t, "triage", restored.Turn.NodeName)
	assert.Equal(t, "route it", restored.Turn.Conversation[0].Content[0].Text)

	t.Run("restored snapshot keeps stepping", func(t *testing.T) {
		restored.Turn = nil
		require.NoError(t, c.Attach(restored))
		_, err := c.Step(context.Background(), restored)
		assert.NoError(t, err)
	})
}

func TestDeserializeRejectsBadBlobs(t *testing.T) {
	t.Run("wrong version", func(t *testing.T) {
		_, err := DeserializeState([]byte(`{"version": 999, "machine": {"nodes": []}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported snapshot version")
	})
	t.Run("not json", func(t *testing.T) {
		_, err := DeserializeState([]byte("not json"))
		assert.Error(t, err)
	})
	t.Run("missing machine", func(t *testing.T) {
		_, err := DeserializeState([]byte(`{"version": 1}`))
		assert.Error(t, err)
	})
}

func TestCheckpointRestore(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(chainMachine())
	require.NoError(t, err)

	result, err := c.Step(context.Background(), state)
	require.NoError(t, err)
	state = result.State

	cp := c.CreateCheckpoint(state, "midway")
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "midway", cp.Name)

	// Keep running past the checkpoint.
	final := runToCompletion(t, c, state)
	require.Equal(t, "c", final.Paths[0].CurrentNode)

	restored, err := c.RestoreCheckpoint(cp)
	require.NoError(t, err)
	assert.Equal(t, "a", restored.Paths[0].CurrentNode, "restore rewinds to the captured position")

	t.Run("restored state is independent", func(t *testing.T) {
		restored.Paths[0].CurrentNode = "mutated"
		assert.Equal(t, "a", cp.State.Paths[0].CurrentNode)
	})

	t.Run("restored run finishes", func(t *testing.T) {
		restored, err := c.RestoreCheckpoint(cp)
		require.NoError(t, err)
		final := runToCompletion(t, c, restored)
		assert.Equal(t, "c", final.Paths[0].CurrentNode)
	})
}

func TestRequiresAgentDecision(t *testing.T) {
	c := NewCore()
	state, err := c.Initialize(decisionMachine())
	require.NoError(t, err)

	needs, err := c.RequiresAgentDecision(state, "triage")
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = c.RequiresAgentDecision(state, "start")
	require.NoError(t, err)
	assert.False(t, needs)

	_, err = c.RequiresAgentDecision(state, "ghost")
	assert.Error(t, err)
}

func toolChainMachine() *domain.Graph {
	return &domain.Graph{
		Title: "tool-chain",
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "lookup", Type: "tool", Attributes: []domain.Attribute{
				{Name: "tool", Value: "fetch_total"},
				{Name: "input", Value: map[string]any{"order": "ord-1"}},
			}},
			{Name: "done", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "lookup"},
			{Source: "lookup", Target: "done"},
		},
	}
}

func TestToolNodeEffect(t *testing.T) {
	ctx := context.Background()
	c := NewCore()
	state, err := c.Initialize(toolChainMachine())
	require.NoError(t, err)

	// start -> lookup on the rails.
	result, err := c.Step(ctx, state)
	require.NoError(t, err)
	require.Equal(t, "lookup", result.State.Paths[0].CurrentNode)

	// At the tool node the step asks the host to run the tool.
	result, err = c.Step(ctx, result.State)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaiting, result.Status)
	require.Len(t, result.Effects, 1)
	effect := result.Effects[0]
	assert.Equal(t, domain.EffectToolCall, effect.Type)
	assert.Equal(t, "lookup", effect.Node)
	assert.Equal(t, "fetch_total", effect.ToolName)
	assert.Equal(t, map[string]any{"order": "ord-1"}, effect.ToolInput)
	assert.Equal(t, domain.PathWaiting, result.State.Paths[0].Status)

	// Folding the tool result resumes the rails through the single edge.
	next, err := c.ApplyAgentResult(ctx, result.State, domain.AgentResult{
		PathID: effect.PathID,
		Node:   "lookup",
		Output: "42.50",
		ToolExecutions: []domain.ToolExecution{
			{Name: "fetch_total", Input: effect.ToolInput, Result: 42.5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", next.Paths[0].CurrentNode)
	assert.Zero(t, next.Metadata.ErrorCount)

	t.Run("tool name defaults to the node name", func(t *testing.T) {
		machine := toolChainMachine()
		machine.Nodes[1].Attributes = nil
		state, err := c.Initialize(machine)
		require.NoError(t, err)
		result, err := c.Step(ctx, state)
		require.NoError(t, err)
		result, err = c.Step(ctx, result.State)
		require.NoError(t, err)
		require.Len(t, result.Effects, 1)
		assert.Equal(t, "lookup", result.Effects[0].ToolName)
		assert.Nil(t, result.Effects[0].ToolInput)
	})

	t.Run("failed execution bumps the error count", func(t *testing.T) {
		state, err := c.Initialize(toolChainMachine())
		require.NoError(t, err)
		result, err := c.Step(ctx, state)
		require.NoError(t, err)
		result, err = c.Step(ctx, result.State)
		require.NoError(t, err)
		require.Len(t, result.Effects, 1)

		next, err := c.ApplyAgentResult(ctx, result.State, domain.AgentResult{
			PathID: result.Effects[0].PathID,
			Node:   "lookup",
			ToolExecutions: []domain.ToolExecution{
				{Name: "fetch_total", IsError: true, Error: "upstream timeout"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, next.Metadata.ErrorCount)
		assert.Equal(t, "done", next.Paths[0].CurrentNode)
	})
}
