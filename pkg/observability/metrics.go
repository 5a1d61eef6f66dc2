// Package observability exposes execution metrics as Prometheus collectors
// fed by the engine's lifecycle hooks.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Metrics holds the Prometheus instruments for one engine instance.
type Metrics struct {
	nodeActivations *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	toolExecutions  *prometheus.CounterVec
	limitViolations *prometheus.CounterVec
}

// NewMetrics creates and registers the instruments on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodeActivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_activations_total",
				Help:      "Total node activations by node kind.",
			},
			[]string{"kind"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total transitions, split by automatic vs agent-chosen.",
			},
			[]string{"automatic"},
		),
		toolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Total tool executions by result.",
			},
			[]string{"tool", "result"},
		),
		limitViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limit_violations_total",
				Help:      "Safety limit violations by kind.",
			},
			[]string{"kind"},
		),
	}
	for _, c := range []prometheus.Collector{m.nodeActivations, m.transitions, m.toolExecutions, m.limitViolations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the instruments. Merge them into
// the engine's hook set.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeActivations.WithLabelValues(e.Kind).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(boolLabel(e.Automatic)).Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			m.toolExecutions.WithLabelValues(e.Tool, resultLabel(e.IsError)).Inc()
		},
		OnLimitHit: func(_ context.Context, e *domain.LimitEvent) {
			m.limitViolations.WithLabelValues(e.Kind).Inc()
		},
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resultLabel(isError bool) string {
	if isError {
		return "error"
	}
	return "ok"
}
