package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when a session ID cannot be found in a store.
var ErrSessionNotFound = errors.New("session not found")

// ErrCheckpointNotFound is returned when a checkpoint ID cannot be found.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrNoEntryNode is returned when a machine has no usable entry point.
var ErrNoEntryNode = errors.New("machine has no entry node")

// PermissionError reports a context access attempted without an explicit
// granting edge. Hint carries the exact edge syntax that would grant it.
type PermissionError struct {
	Task      string
	Context   string
	Operation string // "read" or "write"
	Hint      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("task %q has no %s access to context %q: %s", e.Task, e.Operation, e.Context, e.Hint)
}

// ToolNotFoundError reports a tool name that matched neither a static
// registration nor a dynamic pattern.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ToolExecutionError wraps the underlying cause of a failed tool call. For
// generated-code tools, Source holds a truncated copy of the implementation
// so the failure can be reproduced from a log alone.
type ToolExecutionError struct {
	Name   string
	Source string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("tool %q execution failed: %v (source: %s)", e.Name, e.Err, truncate(e.Source, 120))
	}
	return fmt.Sprintf("tool %q execution failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// InvocationLimitError reports a node activated more times than its
// declared or configured limit allows.
type InvocationLimitError struct {
	Node        string
	Count       int
	Limit       int
	HistoryTail []string
}

func (e *InvocationLimitError) Error() string {
	return fmt.Sprintf("node %q exceeded invocation limit: %d activations (limit %d, recent: %s)",
		e.Node, e.Count, e.Limit, strings.Join(e.HistoryTail, " -> "))
}

// CycleError reports a repeating state-transition pattern.
type CycleError struct {
	Pattern []string
	Window  int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("state transition cycle detected: pattern [%s] repeated within window %d",
		strings.Join(e.Pattern, " -> "), e.Window)
}

// TimeoutError reports wall-clock execution time exceeding the limit.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
	Node    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timeout exceeded at node %q: elapsed %s, limit %s", e.Node, e.Elapsed, e.Limit)
}

// StepBudgetError reports the global activation budget being exhausted.
type StepBudgetError struct {
	Steps  int
	Budget int
}

func (e *StepBudgetError) Error() string {
	return fmt.Sprintf("step budget exceeded: %d steps (budget %d)", e.Steps, e.Budget)
}

// TurnLimitError reports a runaway tool-use loop inside one activation.
type TurnLimitError struct {
	Node  string
	Turns int
	Limit int
}

func (e *TurnLimitError) Error() string {
	return fmt.Sprintf("node %q exceeded turn limit: %d turns (limit %d)", e.Node, e.Turns, e.Limit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
