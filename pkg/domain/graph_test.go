package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKind(t *testing.T) {
	cases := []struct {
		name string
		node Node
		want string
	}{
		{"state", Node{Name: "a", Type: "state"}, KindState},
		{"case insensitive", Node{Name: "a", Type: "State"}, KindState},
		{"whitespace", Node{Name: "a", Type: "  task "}, KindTask},
		{"untyped", Node{Name: "a"}, KindUntyped},
		{"unknown type", Node{Name: "a", Type: "widget"}, KindUntyped},
		{"untyped with prompt acts as task", Node{
			Name:       "a",
			Attributes: []Attribute{{Name: "prompt", Value: "decide"}},
		}, KindTask},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.node.Kind())
		})
	}
}

func TestEntryNode(t *testing.T) {
	t.Run("init kind wins", func(t *testing.T) {
		g := &Graph{Nodes: []Node{
			{Name: "first", Type: "state"},
			{Name: "boot", Type: "init"},
		}}
		entry, ok := g.EntryNode()
		require.True(t, ok)
		assert.Equal(t, "boot", entry.Name)
	})

	t.Run("falls back to node named init", func(t *testing.T) {
		g := &Graph{Nodes: []Node{
			{Name: "first", Type: "state"},
			{Name: "init", Type: "state"},
		}}
		entry, ok := g.EntryNode()
		require.True(t, ok)
		assert.Equal(t, "init", entry.Name)
	})

	t.Run("falls back to first non-note node", func(t *testing.T) {
		g := &Graph{Nodes: []Node{
			{Name: "memo", Type: "note"},
			{Name: "first", Type: "state"},
		}}
		entry, ok := g.EntryNode()
		require.True(t, ok)
		assert.Equal(t, "first", entry.Name)
	})

	t.Run("empty graph has none", func(t *testing.T) {
		_, ok := (&Graph{}).EntryNode()
		assert.False(t, ok)
	})
}

func TestNodeByNameSkipsNotes(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{Name: "memo", Type: "note"},
		{Name: "work", Type: "state"},
	}}
	_, ok := g.NodeByName("memo")
	assert.False(t, ok, "note nodes are not addressable")
	_, ok = g.NodeByName("work")
	assert.True(t, ok)
}

func TestEdgeText(t *testing.T) {
	assert.Equal(t, "label", Edge{Label: "label", Type: "type"}.Text())
	assert.Equal(t, "type", Edge{Type: "type"}.Text())
	assert.Equal(t, "", Edge{}.Text())
}

func TestAttrAccessors(t *testing.T) {
	n := Node{Name: "n", Attributes: []Attribute{
		{Name: "s", Value: "hello"},
		{Name: "b", Value: true},
		{Name: "bs", Value: "TRUE"},
		{Name: "i", Value: float64(7)},
		{Name: "obj", Value: map[string]any{"k": "v"}},
	}}

	assert.Equal(t, "hello", n.StringAttr("s"))
	assert.Equal(t, `{"k":"v"}`, n.StringAttr("obj"))
	assert.Equal(t, "", n.StringAttr("missing"))

	assert.True(t, n.BoolAttr("b"))
	assert.True(t, n.BoolAttr("bs"))
	assert.False(t, n.BoolAttr("missing"))

	i, ok := n.IntAttr("i")
	require.True(t, ok)
	assert.Equal(t, 7, i)
	_, ok = n.IntAttr("s")
	assert.False(t, ok)
}

func TestGraphCloneDoesNotAlias(t *testing.T) {
	g := &Graph{
		Title: "orig",
		Nodes: []Node{{
			Name: "ctx",
			Type: "context",
			Attributes: []Attribute{
				{Name: "nested", Value: map[string]any{"inner": []any{"a"}}},
			},
		}},
		Edges: []Edge{{Source: "ctx", Target: "ctx"}},
	}

	cp := g.Clone()
	attr, ok := cp.Nodes[0].Attribute("nested")
	require.True(t, ok)
	attr.Value.(map[string]any)["inner"] = "mutated"
	cp.Nodes[0].Name = "renamed"
	cp.Edges[0].Target = "elsewhere"

	assert.Equal(t, "ctx", g.Nodes[0].Name)
	assert.Equal(t, "ctx", g.Edges[0].Target)
	orig, _ := g.Nodes[0].Attribute("nested")
	assert.Equal(t, []any{"a"}, orig.Value.(map[string]any)["inner"])
}

func TestChildrenDeclarationOrder(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{Name: "mod", Type: "state"},
		{Name: "b", Type: "state", Parent: "mod"},
		{Name: "a", Type: "task", Parent: "mod"},
	}}
	kids := g.Children("mod")
	require.Len(t, kids, 2)
	assert.Equal(t, "b", kids[0].Name)
	assert.Equal(t, "a", kids[1].Name)
}
