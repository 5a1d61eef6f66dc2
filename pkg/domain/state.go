package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// SnapshotVersion tags serialized state blobs so future layouts can be
// migrated on read.
const SnapshotVersion = 1

// PathStatus describes one path's position in its lifecycle.
type PathStatus string

const (
	PathActive  PathStatus = "active"
	PathWaiting PathStatus = "waiting"
	PathStalled PathStatus = "stalled"
	PathDone    PathStatus = "done"
)

// RunStatus is the aggregate status reported by a step or an execute call.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusWaiting RunStatus = "waiting"
	StatusPaused  RunStatus = "paused"
	StatusStalled RunStatus = "stalled"
	StatusDone    RunStatus = "done"
)

// Transition is one append-only history entry. History is the sole source
// for derived metrics (visit counts, cycle windows).
type Transition struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Transition string    `json:"transition,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Output     string    `json:"output,omitempty"`
}

// Path is one independently-advancing thread of control. Paths never share
// mutable history; agent results are applied by path id.
type Path struct {
	ID                   string         `json:"id"`
	CurrentNode          string         `json:"current_node"`
	Status               PathStatus     `json:"status"`
	History              []Transition   `json:"history,omitempty"`
	NodeInvocationCounts map[string]int `json:"node_invocation_counts,omitempty"`
	StateTransitions     []string       `json:"state_transitions,omitempty"`
}

// Clone returns a deep copy of the path.
func (p *Path) Clone() *Path {
	if p == nil {
		return nil
	}
	cp := *p
	cp.History = append([]Transition(nil), p.History...)
	cp.StateTransitions = append([]string(nil), p.StateTransitions...)
	cp.NodeInvocationCounts = make(map[string]int, len(p.NodeInvocationCounts))
	for k, v := range p.NodeInvocationCounts {
		cp.NodeInvocationCounts[k] = v
	}
	return &cp
}

// HistoryTail returns up to n most recent transition targets, oldest first.
func (p *Path) HistoryTail(n int) []string {
	start := len(p.History) - n
	if start < 0 {
		start = 0
	}
	tail := make([]string, 0, len(p.History)-start)
	for _, t := range p.History[start:] {
		tail = append(tail, t.To)
	}
	return tail
}

// Metadata carries run-scoped counters used by guards and safety limits.
type Metadata struct {
	StepCount  int       `json:"step_count"`
	ErrorCount int       `json:"error_count"`
	StartedAt  time.Time `json:"started_at"`
}

// TurnState exists only while a node's agent activation is mid-conversation.
// It is part of the snapshot so an in-flight conversation survives
// checkpoint/restore.
type TurnState struct {
	PathID         string    `json:"path_id"`
	NodeName       string    `json:"node_name"`
	Conversation   []Message `json:"conversation,omitempty"`
	TurnCount      int       `json:"turn_count"`
	WaitingForTurn bool      `json:"waiting_for_turn"`
	SystemPrompt   string    `json:"system_prompt,omitempty"`
	ModelID        string    `json:"model_id,omitempty"`

	// Side effects staged by phase tools before a mid-conversation pause.
	// The rebuilt toolset is seeded from them on resume, so a write the
	// conversation already observed cannot vanish from the snapshot.
	StagedWrites   []ContextWrite  `json:"staged_writes,omitempty"`
	ToolExecutions []ToolExecution `json:"tool_executions,omitempty"`
}

// Clone returns a deep copy of the turn state.
func (t *TurnState) Clone() *TurnState {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Conversation = make([]Message, len(t.Conversation))
	for i, m := range t.Conversation {
		cp.Conversation[i] = m.Clone()
	}
	if t.StagedWrites != nil {
		cp.StagedWrites = append([]ContextWrite(nil), t.StagedWrites...)
	}
	if t.ToolExecutions != nil {
		cp.ToolExecutions = append([]ToolExecution(nil), t.ToolExecutions...)
	}
	return &cp
}

// ExecutionState is the full resumable snapshot of one machine instance.
// Every step produces a new value; no component holds a mutable reference
// across steps.
type ExecutionState struct {
	Version     int        `json:"version"`
	Machine     *Graph     `json:"machine"`
	Paths       []*Path    `json:"paths"`
	Metadata    Metadata   `json:"metadata"`
	ActiveState string     `json:"active_state,omitempty"`
	Turn        *TurnState `json:"turn,omitempty"`
	Paused      bool       `json:"paused,omitempty"`
}

// NewExecutionState creates a fresh state positioned at entry with a single
// active path.
func NewExecutionState(machine *Graph, entry string) *ExecutionState {
	return &ExecutionState{
		Version: SnapshotVersion,
		Machine: machine.Clone(),
		Paths: []*Path{{
			ID:                   NewID(),
			CurrentNode:          entry,
			Status:               PathActive,
			NodeInvocationCounts: make(map[string]int),
		}},
		Metadata: Metadata{StartedAt: time.Now().UTC()},
	}
}

// Clone returns a deep, independent copy of the whole snapshot.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Machine = s.Machine.Clone()
	cp.Paths = make([]*Path, len(s.Paths))
	for i, p := range s.Paths {
		cp.Paths[i] = p.Clone()
	}
	cp.Turn = s.Turn.Clone()
	return &cp
}

// Path finds a path by id.
func (s *ExecutionState) Path(id string) (*Path, bool) {
	for _, p := range s.Paths {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ActivePaths returns paths that still have work to do.
func (s *ExecutionState) ActivePaths() []*Path {
	var out []*Path
	for _, p := range s.Paths {
		if p.Status != PathDone && p.Status != PathStalled {
			out = append(out, p)
		}
	}
	return out
}

// Done reports whether every path has terminated, stalled ones included.
func (s *ExecutionState) Done() bool {
	return len(s.ActivePaths()) == 0
}

// Stalled reports whether any path ended without a decision.
func (s *ExecutionState) Stalled() bool {
	for _, p := range s.Paths {
		if p.Status == PathStalled {
			return true
		}
	}
	return false
}

// Checkpoint is a named, timestamped deep copy of an execution state,
// sufficient to restore exactly to that point, in-flight turn included.
type Checkpoint struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	State     *ExecutionState `json:"state"`
}

// Limits bounds one execution. Zero values are replaced by defaults at
// engine construction.
type Limits struct {
	MaxSteps           int           `json:"max_steps" yaml:"max_steps"`
	MaxNodeInvocations int           `json:"max_node_invocations" yaml:"max_node_invocations"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	CycleWindow        int           `json:"cycle_window" yaml:"cycle_window"`
	MaxTurns           int           `json:"max_turns" yaml:"max_turns"`
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:           1000,
		MaxNodeInvocations: 100,
		Timeout:            5 * time.Minute,
		CycleWindow:        20,
		MaxTurns:           50,
	}
}

// Normalized fills zero fields with defaults.
func (l Limits) Normalized() Limits {
	d := DefaultLimits()
	if l.MaxSteps <= 0 {
		l.MaxSteps = d.MaxSteps
	}
	if l.MaxNodeInvocations <= 0 {
		l.MaxNodeInvocations = d.MaxNodeInvocations
	}
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.CycleWindow <= 0 {
		l.CycleWindow = d.CycleWindow
	}
	if l.MaxTurns <= 0 {
		l.MaxTurns = d.MaxTurns
	}
	return l
}

// NewID mints a lexically sortable unique identifier for paths, tool calls
// and checkpoints.
func NewID() string {
	return ulid.Make().String()
}
