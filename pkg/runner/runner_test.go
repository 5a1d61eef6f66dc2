package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/internal/runtime"
	"github.com/switchyard-dev/switchyard/pkg/adapters/memory"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/registry"
)

// scriptedClient replays a fixed sequence of model responses. afterCall,
// when set, runs after each model round-trip with the 1-based call number.
type scriptedClient struct {
	responses []*domain.ModelResponse
	calls     int
	requests  []domain.ModelRequest
	afterCall func(call int)
}

func (c *scriptedClient) InvokeModel(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

func (c *scriptedClient) InvokeWithTools(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	c.requests = append(c.requests, req)
	if c.afterCall != nil {
		defer c.afterCall(len(c.requests))
	}
	if c.calls >= len(c.responses) {
		last := c.responses[len(c.responses)-1]
		return last, nil
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func toolUse(id, name string, input map[string]any) *domain.ModelResponse {
	return &domain.ModelResponse{
		Content: []domain.ContentBlock{{
			Type: domain.BlockToolUse, ID: id, Name: name, Input: input,
		}},
		StopReason: domain.StopToolUse,
	}
}

func textReply(text string) *domain.ModelResponse {
	return &domain.ModelResponse{
		Content:    []domain.ContentBlock{{Type: domain.BlockText, Text: text}},
		StopReason: domain.StopEndTurn,
	}
}

func decisionMachine() *domain.Graph {
	return &domain.Graph{
		Title: "routing",
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "triage", Type: "task", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "route the ticket"},
			}},
			{Name: "ticket", Type: "context", Attributes: []domain.Attribute{
				{Name: "severity", Value: "critical"},
			}},
			{Name: "escalate", Type: "state"},
			{Name: "archive", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "triage"},
			{Source: "triage", Target: "ticket"},
			{Source: "triage", Target: "escalate", Label: "severity is critical"},
			{Source: "triage", Target: "archive", Label: "anything else"},
		},
	}
}

func TestExecuteWithAgentDecision(t *testing.T) {
	client := &scriptedClient{responses: []*domain.ModelResponse{
		toolUse("c1", "get_context_value", map[string]any{"node": "ticket"}),
		toolUse("c2", "transition_to_escalate", map[string]any{}),
	}}

	core := runtime.NewCore()
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	r := New(core, client)
	final, status, err := r.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "escalate", final.Paths[0].CurrentNode)
	assert.Nil(t, final.Turn, "turn state is cleared after the decision folds")
	assert.Equal(t, 2, client.calls)

	t.Run("model saw the prompt and the tools", func(t *testing.T) {
		first := client.requests[0]
		require.NotEmpty(t, first.Messages)
		assert.Equal(t, "route the ticket", first.Messages[0].Content[0].Text)

		var names []string
		for _, def := range first.Tools {
			names = append(names, def.Name)
		}
		assert.Contains(t, names, "transition_to_escalate")
		assert.Contains(t, names, "transition_to_archive")
		assert.Contains(t, names, "get_context_value")
	})

	t.Run("tool result fed back into the conversation", func(t *testing.T) {
		second := client.requests[1]
		last := second.Messages[len(second.Messages)-1]
		require.NotEmpty(t, last.Content)
		assert.Equal(t, domain.BlockToolResult, last.Content[0].Type)
		assert.Contains(t, last.Content[0].Content, "critical")
	})
}

func TestExecuteContextWriteUnblocksEdge(t *testing.T) {
	machine := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "gather", Type: "task", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "record the total"},
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
	client := &scriptedClient{responses: []*domain.ModelResponse{
		toolUse("c1", "set_context_value", map[string]any{
			"node": "order", "attribute": "total", "value": float64(12),
		}),
		textReply("recorded the total"),
	}}

	core := runtime.NewCore()
	state, err := core.Initialize(machine)
	require.NoError(t, err)

	final, status, err := New(core, client).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "ship", final.Paths[0].CurrentNode,
		"the staged write unblocked the guarded edge without an explicit transition")

	node, ok := final.Machine.NodeByName("order")
	require.True(t, ok)
	assert.Equal(t, float64(12), mustAttr(t, node, "total"))
}

func mustAttr(t *testing.T, node *domain.Node, name string) any {
	t.Helper()
	attr, ok := node.Attribute(name)
	require.True(t, ok)
	return attr.Value
}

func TestExecuteStallsWithoutDecision(t *testing.T) {
	client := &scriptedClient{responses: []*domain.ModelResponse{
		textReply("I cannot decide."),
	}}
	core := runtime.NewCore()
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	final, status, err := New(core, client).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStalled, status)
	assert.True(t, final.Stalled())
}

func TestExecuteTurnLimit(t *testing.T) {
	// The model reads context forever and never decides.
	client := &scriptedClient{responses: []*domain.ModelResponse{
		toolUse("loop", "get_context_value", map[string]any{"node": "ticket"}),
	}}
	core := runtime.NewCore(runtime.WithLimits(domain.Limits{MaxTurns: 3}))
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	_, _, err = New(core, client).Execute(context.Background(), state)
	var terr *domain.TurnLimitError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "triage", terr.Node)
	assert.Equal(t, 3, terr.Limit)
}

func TestExecuteWithoutClient(t *testing.T) {
	core := runtime.NewCore()
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	_, _, err = New(core, nil).Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model client")
}

func TestExecuteAutomaticRunNeedsNoClient(t *testing.T) {
	machine := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "a", Type: "state"},
			{Name: "b", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
		},
	}
	core := runtime.NewCore()
	state, err := core.Initialize(machine)
	require.NoError(t, err)

	final, status, err := New(core, nil).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "b", final.Paths[0].CurrentNode)
}

func TestPauseAndResume(t *testing.T) {
	core := runtime.NewCore()
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	r := New(core, &scriptedClient{responses: []*domain.ModelResponse{textReply("x")}})
	r.RequestPause()

	paused, status, err := r.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)
	assert.True(t, paused.Paused)
	assert.Equal(t, "start", paused.Paths[0].CurrentNode, "paused before any work")

	resumed := r.Resume(paused)
	assert.False(t, resumed.Paused)
	assert.True(t, paused.Paused, "resume does not mutate the paused snapshot")
}

func TestAutosave(t *testing.T) {
	machine := &domain.Graph{
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "end", Type: "state"},
		},
		Edges: []domain.Edge{{Source: "start", Target: "end"}},
	}
	core := runtime.NewCore()
	state, err := core.Initialize(machine)
	require.NoError(t, err)

	store := memory.NewStore()
	r := New(core, nil, WithStore(store, "run-42"))
	final, status, err := r.Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, status)

	saved, err := store.Load(context.Background(), "run-42")
	require.NoError(t, err)
	assert.Equal(t, final.Paths[0].CurrentNode, saved.Paths[0].CurrentNode)
}

func TestCancelledContext(t *testing.T) {
	core := runtime.NewCore()
	state, err := core.Initialize(decisionMachine())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = New(core, &scriptedClient{responses: []*domain.ModelResponse{textReply("x")}}).Execute(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteToolNode(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterStatic(domain.ToolDefinition{
		Name:        "fetch_total",
		Description: "Look up an order total.",
	}, func(ctx context.Context, input map[string]any) (any, error) {
		assert.Equal(t, "ord-1", input["order"])
		return map[string]any{"total": 42.5}, nil
	}))

	machine := &domain.Graph{
		Title: "tool-run",
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

	core := runtime.NewCore(runtime.WithRegistry(reg))
	r := New(core, nil)

	state, err := core.Initialize(machine)
	require.NoError(t, err)
	final, status, err := r.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "done", final.Paths[0].CurrentNode)

	t.Run("unknown tool surfaces as an error count, not a crash", func(t *testing.T) {
		broken := &domain.Graph{
			Title: "tool-missing",
			Nodes: []domain.Node{
				{Name: "start", Type: "init"},
				{Name: "lookup", Type: "tool"},
				{Name: "done", Type: "state"},
			},
			Edges: []domain.Edge{
				{Source: "start", Target: "lookup"},
				{Source: "lookup", Target: "done"},
			},
		}
		state, err := core.Initialize(broken)
		require.NoError(t, err)
		final, status, err := r.Execute(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDone, status)
		assert.Equal(t, "done", final.Paths[0].CurrentNode)
		assert.Equal(t, 1, final.Metadata.ErrorCount)
	})
}

func TestPauseMidTurnKeepsStagedWrites(t *testing.T) {
	machine := &domain.Graph{
		Title: "pause-writes",
		Nodes: []domain.Node{
			{Name: "start", Type: "init"},
			{Name: "triage", Type: "task", Attributes: []domain.Attribute{
				{Name: "prompt", Value: "take notes, then finish"},
			}},
			{Name: "notes", Type: "context", Attributes: []domain.Attribute{
				{Name: "x", Value: "initial"},
			}},
			{Name: "done", Type: "state"},
		},
		Edges: []domain.Edge{
			{Source: "start", Target: "triage"},
			{Source: "triage", Target: "notes", Label: "writes[x]"},
			{Source: "triage", Target: "done", Label: "wrap up"},
		},
	}

	client := &scriptedClient{responses: []*domain.ModelResponse{
		toolUse("c1", "set_context_value", map[string]any{
			"node": "notes", "attribute": "x", "value": "written-before-pause",
		}),
		toolUse("c2", "transition_to_done", map[string]any{}),
	}}
	core := runtime.NewCore()
	r := New(core, client)
	client.afterCall = func(call int) {
		if call == 1 {
			r.RequestPause()
		}
	}

	state, err := core.Initialize(machine)
	require.NoError(t, err)

	paused, status, err := r.Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaused, status)
	require.NotNil(t, paused.Turn)
	require.Len(t, paused.Turn.StagedWrites, 1)
	assert.Equal(t, "written-before-pause", paused.Turn.StagedWrites[0].Value)
	require.Len(t, paused.Turn.ToolExecutions, 1)

	// The shared snapshot stays untouched until the result folds back.
	notes, ok := paused.Machine.NodeByName("notes")
	require.True(t, ok)
	assert.Equal(t, "initial", notes.StringAttr("x"))

	// Staged effects survive a full persistence round trip.
	raw, err := runtime.SerializeState(paused)
	require.NoError(t, err)
	restored, err := runtime.DeserializeState(raw)
	require.NoError(t, err)
	require.NoError(t, core.Attach(restored))
	require.NotNil(t, restored.Turn)
	require.Len(t, restored.Turn.StagedWrites, 1)

	final, status, err := r.Execute(context.Background(), r.Resume(restored))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "done", final.Paths[0].CurrentNode)

	notes, ok = final.Machine.NodeByName("notes")
	require.True(t, ok)
	assert.Equal(t, "written-before-pause", notes.StringAttr("x"),
		"a write the conversation observed must land after resume")
}
