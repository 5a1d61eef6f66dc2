package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// SerializeState encodes a snapshot as a versioned JSON blob. The blob
// round-trips the whole ExecutionState, in-flight turn included.
func SerializeState(state *domain.ExecutionState) ([]byte, error) {
	cp := state.Clone()
	cp.Version = domain.SnapshotVersion
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("serializing state: %w", err)
	}
	return raw, nil
}

// DeserializeState decodes a blob produced by SerializeState. Unknown
// versions are rejected rather than guessed at.
func DeserializeState(raw []byte) (*domain.ExecutionState, error) {
	var state domain.ExecutionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}
	if state.Version != domain.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", state.Version, domain.SnapshotVersion)
	}
	if state.Machine == nil {
		return nil, fmt.Errorf("snapshot has no machine definition")
	}
	for _, p := range state.Paths {
		if p.NodeInvocationCounts == nil {
			p.NodeInvocationCounts = make(map[string]int)
		}
	}
	return &state, nil
}
