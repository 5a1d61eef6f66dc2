package runtime

import (
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// CreateCheckpoint takes a named, deep, independent copy of the state.
// Resumability is a property of the data model: the checkpoint holds
// everything needed to continue, including an in-flight conversation.
func (c *Core) CreateCheckpoint(state *domain.ExecutionState, name string) *domain.Checkpoint {
	cp := &domain.Checkpoint{
		ID:        domain.NewID(),
		Name:      name,
		CreatedAt: c.now().UTC(),
		State:     state.Clone(),
	}
	c.logger.Info("checkpoint created", "checkpoint", cp.ID, "name", name)
	return cp
}

// RestoreCheckpoint returns an independent state restored from a
// checkpoint and rebinds the core to it, rehydrating persisted tools.
func (c *Core) RestoreCheckpoint(cp *domain.Checkpoint) (*domain.ExecutionState, error) {
	state := cp.State.Clone()
	if err := c.Attach(state); err != nil {
		return nil, err
	}
	c.logger.Info("checkpoint restored", "checkpoint", cp.ID, "name", cp.Name)
	return state, nil
}
