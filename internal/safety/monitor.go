// Package safety bounds execution: per-node invocation counters, a
// state-transition cycle detector, a wall-clock timeout and a global step
// budget. Every check logs before raising its typed error so a failure can
// be reproduced from the log alone.
package safety

import (
	"log/slog"
	"time"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Monitor applies the configured limits to path data. It keeps no state of
// its own; counters live in the snapshot so they survive checkpoints.
type Monitor struct {
	limits domain.Limits
	logger *slog.Logger
}

// New creates a monitor with normalized limits.
func New(limits domain.Limits, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{limits: limits.Normalized(), logger: logger}
}

// Limits returns the normalized limits in force.
func (m *Monitor) Limits() domain.Limits {
	return m.limits
}

// RecordInvocation counts one activation of node on path and fails once
// the node's own maxInvocations attribute (when declared) or the global
// limit is exceeded.
func (m *Monitor) RecordInvocation(path *domain.Path, node *domain.Node) error {
	if path.NodeInvocationCounts == nil {
		path.NodeInvocationCounts = make(map[string]int)
	}
	path.NodeInvocationCounts[node.Name]++
	count := path.NodeInvocationCounts[node.Name]

	limit := m.limits.MaxNodeInvocations
	if declared, ok := node.IntAttr("maxInvocations"); ok && declared > 0 {
		limit = declared
	}
	if count > limit {
		m.logger.Error("node invocation limit exceeded",
			"node", node.Name, "count", count, "limit", limit, "path", path.ID)
		return &domain.InvocationLimitError{
			Node:        node.Name,
			Count:       count,
			Limit:       limit,
			HistoryTail: path.HistoryTail(5),
		}
	}
	return nil
}

// RecordStateTransition appends to the path's state-transition log and
// runs cycle detection over the fresh tail.
func (m *Monitor) RecordStateTransition(path *domain.Path, stateName string) error {
	path.StateTransitions = append(path.StateTransitions, stateName)
	return m.DetectCycle(path)
}

// DetectCycle inspects the last CycleWindow state transitions. For every
// pattern length from 2 up to half the window it compares the most recent
// run of that length against the one immediately preceding it; a match is
// a cycle.
func (m *Monitor) DetectCycle(path *domain.Path) error {
	window := m.limits.CycleWindow
	transitions := path.StateTransitions
	if len(transitions) > window {
		transitions = transitions[len(transitions)-window:]
	}
	n := len(transitions)
	for length := 2; length <= window/2; length++ {
		if 2*length > n {
			break
		}
		recent := transitions[n-length:]
		previous := transitions[n-2*length : n-length]
		if equal(recent, previous) {
			m.logger.Error("state transition cycle detected",
				"pattern", recent, "window", window, "path", path.ID)
			return &domain.CycleError{Pattern: append([]string(nil), recent...), Window: window}
		}
	}
	return nil
}

// CheckTimeout compares elapsed wall-clock time against the limit. The
// check is cooperative: it runs once per step, so a single long-blocking
// effect call can overrun before detection. That trade-off is accepted
// rather than hidden.
func (m *Monitor) CheckTimeout(meta domain.Metadata, now time.Time, node string) error {
	if meta.StartedAt.IsZero() {
		return nil
	}
	elapsed := now.Sub(meta.StartedAt)
	if elapsed > m.limits.Timeout {
		m.logger.Error("execution timeout exceeded",
			"elapsed", elapsed, "limit", m.limits.Timeout, "node", node)
		return &domain.TimeoutError{Elapsed: elapsed, Limit: m.limits.Timeout, Node: node}
	}
	return nil
}

// CheckStepBudget bounds total activations per execute call regardless of
// cycle detection.
func (m *Monitor) CheckStepBudget(steps int) error {
	if steps >= m.limits.MaxSteps {
		m.logger.Error("step budget exceeded", "steps", steps, "budget", m.limits.MaxSteps)
		return &domain.StepBudgetError{Steps: steps, Budget: m.limits.MaxSteps}
	}
	return nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
