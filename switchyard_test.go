package switchyard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard"
	"github.com/switchyard-dev/switchyard/pkg/adapters/memory"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/dsl"
)

func chain(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := dsl.New("chain").
		Node("start").Type("init").Edge("fetch").Done().
		Node("fetch").Type("state").Edge("ship").Done().
		Node("ship").Type("state").Edge("done").Done().
		Node("done").Type("state").Done().
		Build()
	require.NoError(t, err)
	return g
}

func TestFacadeAutomaticRun(t *testing.T) {
	engine := switchyard.New()

	state, status, err := engine.Start(context.Background(), chain(t), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "done", state.Paths[0].CurrentNode)
}

func TestFacadeAutosave(t *testing.T) {
	store := memory.NewStore()
	engine := switchyard.New(switchyard.WithStore(store))

	_, _, err := engine.Start(context.Background(), chain(t), "run-7")
	require.NoError(t, err)

	saved, err := store.Load(context.Background(), "run-7")
	require.NoError(t, err)
	assert.Equal(t, "done", saved.Paths[0].CurrentNode)
}

func TestFacadeSerializeRoundTrip(t *testing.T) {
	engine := switchyard.New()
	state, err := engine.Initialize(chain(t))
	require.NoError(t, err)

	raw, err := engine.Serialize(state)
	require.NoError(t, err)

	restored, err := engine.Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, state.Paths[0].CurrentNode, restored.Paths[0].CurrentNode)

	// The restored snapshot is live: it can still run to completion.
	final, status, err := engine.Run(context.Background(), restored, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, status)
	assert.Equal(t, "done", final.Paths[0].CurrentNode)
}

func TestFacadeCheckpointRestore(t *testing.T) {
	engine := switchyard.New()
	state, err := engine.Initialize(chain(t))
	require.NoError(t, err)

	cp := engine.Checkpoint(state, "at-start")
	require.NotNil(t, cp)
	assert.Equal(t, "at-start", cp.Name)

	final, _, err := engine.Run(context.Background(), state, "")
	require.NoError(t, err)
	require.Equal(t, "done", final.Paths[0].CurrentNode)

	rewound, err := engine.Restore(cp)
	require.NoError(t, err)
	assert.Equal(t, "start", rewound.Paths[0].CurrentNode)
}

func TestMermaid(t *testing.T) {
	machine := chain(t)
	out := switchyard.Mermaid(machine, nil)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `start(("start"))`)

	engine := switchyard.New()
	state, _, err := engine.Start(context.Background(), machine, "")
	require.NoError(t, err)
	overlaid := switchyard.Mermaid(machine, state)
	assert.Contains(t, overlaid, "class done current;")
}
