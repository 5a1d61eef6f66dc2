package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// RunStateStoreContract verifies that a StateStore implementation adheres
// to the interface contract. Adapter test suites call it against their
// concrete store.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	machine := &domain.Graph{
		Title: "contract",
		Nodes: []domain.Node{
			{Name: "init", Type: domain.KindInit},
			{Name: "work", Type: domain.KindState, Attributes: []domain.Attribute{
				{Name: "note", Type: "string", Value: "persisted"},
			}},
		},
		Edges: []domain.Edge{{Source: "init", Target: "work"}},
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewExecutionState(machine, "init")
		state.Metadata.StepCount = 3

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		require.Len(t, loaded.Paths, 1)
		assert.Equal(t, state.Paths[0].CurrentNode, loaded.Paths[0].CurrentNode)
		assert.Equal(t, 3, loaded.Metadata.StepCount)
		assert.Equal(t, "contract", loaded.Machine.Title)
	})

	t.Run("No Aliasing", func(t *testing.T) {
		state := domain.NewExecutionState(machine, "init")
		require.NoError(t, store.Save(ctx, sessionID, state))

		// Mutating the saved value must not leak into a later load.
		state.Paths[0].CurrentNode = "mutated"

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "init", loaded.Paths[0].CurrentNode)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewExecutionState(machine, "init"))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewExecutionState(machine, "init"))
		_ = store.Save(ctx, id2, domain.NewExecutionState(machine, "init"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
