package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Loader is a MachineLoader over machines registered in memory, keyed by
// reference name.
type Loader struct {
	machines map[string]*domain.Graph
}

// NewLoader creates a loader over the given machines.
func NewLoader(machines map[string]*domain.Graph) *Loader {
	cloned := make(map[string]*domain.Graph, len(machines))
	for ref, g := range machines {
		cloned[ref] = g.Clone()
	}
	return &Loader{machines: cloned}
}

// Load returns a deep copy of the machine registered under ref.
func (l *Loader) Load(ctx context.Context, ref string) (*domain.Graph, error) {
	g, ok := l.machines[ref]
	if !ok {
		return nil, fmt.Errorf("no machine registered as %q", ref)
	}
	return g.Clone(), nil
}

// ParseGraph decodes a machine definition from its ingestion-contract JSON.
func ParseGraph(raw []byte) (*domain.Graph, error) {
	var g domain.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parsing machine definition: %w", err)
	}
	if len(g.Nodes) == 0 {
		return nil, fmt.Errorf("machine definition has no nodes")
	}
	return &g, nil
}
