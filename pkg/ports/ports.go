// Package ports declares the boundary interfaces of the engine. Adapters
// under pkg/adapters implement them; the core depends only on these
// contracts.
package ports

import (
	"context"
	"time"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Engine is the execution surface a host drives.
type Engine interface {
	// Initialize builds a fresh state positioned at the machine's entry.
	Initialize(machine *domain.Graph) (*domain.ExecutionState, error)
	// Step advances every active path by one activation, returning effects
	// for the host to execute. Pure with respect to its input.
	Step(ctx context.Context, state *domain.ExecutionState) (*domain.StepResult, error)
	// ApplyAgentResult folds one agent activation outcome back in by path id.
	ApplyAgentResult(ctx context.Context, state *domain.ExecutionState, result domain.AgentResult) (*domain.ExecutionState, error)
}

// MachineLoader resolves a machine definition from some source: a file, an
// embedded document, a remote service.
type MachineLoader interface {
	Load(ctx context.Context, ref string) (*domain.Graph, error)
}

// ModelClient is the language-model boundary.
type ModelClient interface {
	// InvokeModel performs a single plain-text completion.
	InvokeModel(ctx context.Context, prompt string) (string, error)
	// InvokeWithTools performs one tool-use round trip.
	InvokeWithTools(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error)
}

// UnlockFunc releases a held lock. Calling it more than once is a no-op.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes access to a session across processes. The
// TTL bounds how long a crashed holder can block others.
type DistributedLocker interface {
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}
