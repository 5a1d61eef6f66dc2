package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStoreContract(t *testing.T) {
	store, _ := newTestStore(t)
	ports.RunStateStoreContract(t, store)
}

func TestKeyPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, WithPrefix("custom:"))
	machine := &domain.Graph{Nodes: []domain.Node{{Name: "init", Type: domain.KindInit}}}

	require.NoError(t, store.Save(ctx, "s1", domain.NewExecutionState(machine, "init")))
	assert.True(t, mr.Exists("custom:s1"))
	assert.True(t, mr.Exists("custom:index"))
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, WithTTL(time.Minute))
	machine := &domain.Graph{Nodes: []domain.Node{{Name: "init", Type: domain.KindInit}}}

	require.NoError(t, store.Save(ctx, "ephemeral", domain.NewExecutionState(machine, "init")))

	ttl := mr.TTL("switchyard:session:ephemeral")
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "ephemeral")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	machine := &domain.Graph{Nodes: []domain.Node{{Name: "init", Type: domain.KindInit}}}

	first := &domain.Checkpoint{
		ID:        domain.NewID(),
		Name:      "first",
		CreatedAt: time.Now().UTC(),
		State:     domain.NewExecutionState(machine, "init"),
	}
	second := &domain.Checkpoint{
		ID:        domain.NewID(),
		Name:      "second",
		CreatedAt: first.CreatedAt.Add(time.Second),
		State:     domain.NewExecutionState(machine, "init"),
	}
	require.NoError(t, store.SaveCheckpoint(ctx, "s1", first))
	require.NoError(t, store.SaveCheckpoint(ctx, "s1", second))

	t.Run("load by id", func(t *testing.T) {
		loaded, err := store.LoadCheckpoint(ctx, "s1", first.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", loaded.Name)
		assert.Equal(t, "init", loaded.State.Paths[0].CurrentNode)
	})

	t.Run("unknown checkpoint", func(t *testing.T) {
		_, err := store.LoadCheckpoint(ctx, "s1", "nope")
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("list ordered by creation time", func(t *testing.T) {
		all, err := store.ListCheckpoints(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "first", all[0].Name)
		assert.Equal(t, "second", all[1].Name)
	})

	t.Run("delete removes checkpoints", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "s1"))
		all, err := store.ListCheckpoints(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
