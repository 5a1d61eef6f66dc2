package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
)

func TestStoreContract(t *testing.T) {
	ports.RunStateStoreContract(t, NewStore())
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	machine := &domain.Graph{Nodes: []domain.Node{{Name: "init", Type: domain.KindInit}}}

	cp := &domain.Checkpoint{
		ID:        domain.NewID(),
		Name:      "before-risky-step",
		CreatedAt: time.Now().UTC(),
		State:     domain.NewExecutionState(machine, "init"),
	}
	require.NoError(t, store.SaveCheckpoint(ctx, "s1", cp))

	t.Run("load by id", func(t *testing.T) {
		loaded, err := store.LoadCheckpoint(ctx, "s1", cp.ID)
		require.NoError(t, err)
		assert.Equal(t, "before-risky-step", loaded.Name)
	})

	t.Run("stored checkpoint is not aliased", func(t *testing.T) {
		cp.State.Paths[0].CurrentNode = "mutated"
		loaded, err := store.LoadCheckpoint(ctx, "s1", cp.ID)
		require.NoError(t, err)
		assert.Equal(t, "init", loaded.State.Paths[0].CurrentNode)
	})

	t.Run("unknown checkpoint", func(t *testing.T) {
		_, err := store.LoadCheckpoint(ctx, "s1", "nope")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("list preserves creation order", func(t *testing.T) {
		second := &domain.Checkpoint{
			ID:    domain.NewID(),
			Name:  "later",
			State: domain.NewExecutionState(machine, "init"),
		}
		require.NoError(t, store.SaveCheckpoint(ctx, "s1", second))

		all, err := store.ListCheckpoints(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "before-risky-step", all[0].Name)
		assert.Equal(t, "later", all[1].Name)
	})

	t.Run("delete removes checkpoints with the session", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "s1"))
		all, err := store.ListCheckpoints(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
