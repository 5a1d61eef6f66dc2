package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMachine() *Graph {
	return &Graph{
		Title: "t",
		Nodes: []Node{
			{Name: "init", Type: KindInit},
			{Name: "work", Type: KindState},
		},
		Edges: []Edge{{Source: "init", Target: "work"}},
	}
}

func TestNewExecutionState(t *testing.T) {
	state := NewExecutionState(testMachine(), "init")
	require.Len(t, state.Paths, 1)
	assert.Equal(t, SnapshotVersion, state.Version)
	assert.Equal(t, "init", state.Paths[0].CurrentNode)
	assert.Equal(t, PathActive, state.Paths[0].Status)
	assert.NotEmpty(t, state.Paths[0].ID)
	assert.False(t, state.Metadata.StartedAt.IsZero())
}

func TestExecutionStateCloneIsDeep(t *testing.T) {
	state := NewExecutionState(testMachine(), "init")
	state.Paths[0].History = []Transition{{From: "init", To: "work"}}
	state.Paths[0].NodeInvocationCounts["init"] = 1
	state.Turn = &TurnState{
		PathID:       state.Paths[0].ID,
		NodeName:     "work",
		Conversation: []Message{TextMessage(RoleUser, "hi")},
	}

	cp := state.Clone()
	cp.Paths[0].CurrentNode = "mutated"
	cp.Paths[0].History[0].To = "mutated"
	cp.Paths[0].NodeInvocationCounts["init"] = 99
	cp.Turn.Conversation[0].Content[0].Text = "mutated"
	cp.Machine.Nodes[0].Name = "mutated"

	assert.Equal(t, "init", state.Paths[0].CurrentNode)
	assert.Equal(t, "work", state.Paths[0].History[0].To)
	assert.Equal(t, 1, state.Paths[0].NodeInvocationCounts["init"])
	assert.Equal(t, "hi", state.Turn.Conversation[0].Content[0].Text)
	assert.Equal(t, "init", state.Machine.Nodes[0].Name)
}

func TestActivePathsAndStatus(t *testing.T) {
	state := NewExecutionState(testMachine(), "init")
	state.Paths = append(state.Paths,
		&Path{ID: "p2", Status: PathDone},
		&Path{ID: "p3", Status: PathStalled},
		&Path{ID: "p4", Status: PathWaiting},
	)

	active := state.ActivePaths()
	require.Len(t, active, 2)
	assert.False(t, state.Done())
	assert.True(t, state.Stalled())

	state.Paths[0].Status = PathDone
	state.Paths[3].Status = PathDone
	assert.True(t, state.Done(), "stalled paths count as terminated")
}

func TestHistoryTail(t *testing.T) {
	p := &Path{History: []Transition{
		{To: "a"}, {To: "b"}, {To: "c"},
	}}
	assert.Equal(t, []string{"b", "c"}, p.HistoryTail(2))
	assert.Equal(t, []string{"a", "b", "c"}, p.HistoryTail(10))
}

func TestLimitsNormalized(t *testing.T) {
	l := Limits{MaxSteps: 5}.Normalized()
	d := DefaultLimits()
	assert.Equal(t, 5, l.MaxSteps)
	assert.Equal(t, d.MaxNodeInvocations, l.MaxNodeInvocations)
	assert.Equal(t, d.Timeout, l.Timeout)
	assert.Equal(t, d.CycleWindow, l.CycleWindow)
	assert.Equal(t, d.MaxTurns, l.MaxTurns)
}

func TestNewIDIsSortableAndUnique(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
