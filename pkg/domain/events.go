package domain

import (
	"context"
	"time"
)

// EventType categorizes lifecycle events.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventTransition EventType = "transition"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventLimitHit   EventType = "limit_hit"
)

// EventBase carries fields common to all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	PathID    string    `json:"path_id,omitempty"`
}

// NodeEvent marks entering or leaving a node.
type NodeEvent struct {
	EventBase
	Node string `json:"node"`
	Kind string `json:"kind"`
}

// TransitionEvent marks one edge traversal, automatic or agent-chosen.
type TransitionEvent struct {
	EventBase
	From      string `json:"from"`
	To        string `json:"to"`
	Label     string `json:"label,omitempty"`
	Automatic bool   `json:"automatic"`
}

// ToolEvent marks a tool execution.
type ToolEvent struct {
	EventBase
	Node    string `json:"node"`
	Tool    string `json:"tool"`
	Input   any    `json:"input,omitempty"`
	Output  any    `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// LimitEvent marks a safety limit firing.
type LimitEvent struct {
	EventBase
	Kind string `json:"kind"` // invocation|cycle|timeout|steps|turns
	Node string `json:"node,omitempty"`
}

// LifecycleHooks are observability callbacks emitted alongside each new
// state snapshot. Nil members are skipped. Hooks must not mutate state.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnTransition func(context.Context, *TransitionEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnLimitHit   func(context.Context, *LimitEvent)
}

// Merge overlays non-nil callbacks from other onto a copy of h.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	if other.OnNodeEnter != nil {
		h.OnNodeEnter = other.OnNodeEnter
	}
	if other.OnNodeLeave != nil {
		h.OnNodeLeave = other.OnNodeLeave
	}
	if other.OnTransition != nil {
		h.OnTransition = other.OnTransition
	}
	if other.OnToolCall != nil {
		h.OnToolCall = other.OnToolCall
	}
	if other.OnToolReturn != nil {
		h.OnToolReturn = other.OnToolReturn
	}
	if other.OnLimitHit != nil {
		h.OnLimitHit = other.OnLimitHit
	}
	return h
}
