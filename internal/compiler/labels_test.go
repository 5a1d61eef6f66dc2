package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

func edge(label string) domain.Edge {
	return domain.Edge{Source: "a", Target: "b", Label: label}
}

func TestParseEdgeGuards(t *testing.T) {
	spec := ParseEdge(edge(`when:"errorCount > 2"`))
	assert.Equal(t, "errorCount > 2", spec.Guard)
	assert.False(t, spec.Negate)
	assert.True(t, spec.HasGuard())

	spec = ParseEdge(edge(`unless:'attributes.order.paid'`))
	assert.Equal(t, "attributes.order.paid", spec.Guard)
	assert.True(t, spec.Negate)

	spec = ParseEdge(edge(`IF:"true"`))
	assert.Equal(t, "true", spec.Guard, "verbs are case-insensitive")

	spec = ParseEdge(edge("plain prose label"))
	assert.False(t, spec.HasGuard())
	assert.Equal(t, "plain prose label", spec.Raw)
}

func TestParseEdgeAuto(t *testing.T) {
	assert.True(t, ParseEdge(edge(`@auto when:"x > 1"`)).Auto)
	assert.False(t, ParseEdge(edge(`when:"x > 1"`)).Auto)
}

func TestParseEdgeVerbs(t *testing.T) {
	spec := ParseEdge(edge("reads[amount, status]"))
	assert.Equal(t, VerbReads, spec.Verb)
	assert.Equal(t, []string{"amount", "status"}, spec.Fields)

	spec = ParseEdge(edge("writes: total, paid"))
	assert.Equal(t, VerbWrites, spec.Verb)
	assert.Equal(t, []string{"total", "paid"}, spec.Fields)

	spec = ParseEdge(edge("stores"))
	assert.Equal(t, VerbStores, spec.Verb)
	assert.Empty(t, spec.Fields)
}

func TestEdgeTypeFallback(t *testing.T) {
	spec := ParseEdge(domain.Edge{Source: "a", Target: "b", Type: `when:"true"`})
	assert.Equal(t, "true", spec.Guard)
}

func TestSimpleGuard(t *testing.T) {
	assert.True(t, ParseEdge(edge(`when:"errorCount > 2"`)).SimpleGuard())
	assert.False(t, ParseEdge(edge(`when:"tool_result == \"ok\""`)).SimpleGuard(), "tool reference disqualifies")
	assert.False(t, ParseEdge(edge(`when:"external_status"`)).SimpleGuard())
	assert.False(t, ParseEdge(edge(`when:"api_ready"`)).SimpleGuard())
	assert.False(t, ParseEdge(edge(`when:"callCount > 1"`)).SimpleGuard())
	assert.False(t, ParseEdge(edge("no guard at all")).SimpleGuard())
}

func TestValidate(t *testing.T) {
	t.Run("clean machine passes", func(t *testing.T) {
		g := &domain.Graph{Nodes: []domain.Node{
			{Name: "init", Type: domain.KindInit},
			{Name: "work", Type: domain.KindState},
		}, Edges: []domain.Edge{
			{Source: "init", Target: "work", Label: `when:"errorCount < 3"`},
		}}
		assert.Empty(t, Validate(g))
	})

	t.Run("reports all problems", func(t *testing.T) {
		g := &domain.Graph{Nodes: []domain.Node{
			{Name: "a", Type: domain.KindNote},
			{Name: "a", Type: domain.KindNote},
			{Name: "b", Type: domain.KindState, Parent: "ghost"},
		}, Edges: []domain.Edge{
			{Source: "missing", Target: "b"},
			{Source: "b", Target: "b", Label: `when:"((("`},
		}}
		problems := Validate(g)
		require.NotEmpty(t, problems)

		var text string
		for _, p := range problems {
			text += p.Error() + "\n"
		}
		assert.Contains(t, text, "duplicate node name")
		assert.Contains(t, text, "unknown parent")
		assert.Contains(t, text, "unknown source node")
		assert.Contains(t, text, "invalid guard")
	})

	t.Run("empty machine", func(t *testing.T) {
		problems := Validate(&domain.Graph{})
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0].Error(), "no nodes")
	})
}
