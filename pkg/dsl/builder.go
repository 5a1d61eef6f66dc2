// Package dsl builds machine definitions fluently in Go, for tests and
// embedded hosts that do not load machines from external documents.
package dsl

import (
	"fmt"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Builder manages the graph construction. Nodes and edges are emitted in
// declaration order, which matters for edge priority.
type Builder struct {
	title string
	names []string
	nodes map[string]*NodeBuilder
	edges []domain.Edge
}

// New creates a graph builder.
func New(title string) *Builder {
	return &Builder{
		title: title,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Node creates (or returns the existing builder for) a named node.
func (b *Builder) Node(name string) *NodeBuilder {
	if nb, ok := b.nodes[name]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{Name: name},
		builder: b,
	}
	b.names = append(b.names, name)
	b.nodes[name] = nb
	return nb
}

// Edge declares a plain edge between two nodes.
func (b *Builder) Edge(source, target string) *Builder {
	return b.LabeledEdge(source, target, "")
}

// LabeledEdge declares an edge carrying guard/annotation/permission text.
func (b *Builder) LabeledEdge(source, target, label string) *Builder {
	b.edges = append(b.edges, domain.Edge{Source: source, Target: target, Label: label})
	return b
}

// Build compiles the graph, checking edge references.
func (b *Builder) Build() (*domain.Graph, error) {
	g := &domain.Graph{Title: b.title}
	for _, name := range b.names {
		g.Nodes = append(g.Nodes, b.nodes[name].node)
	}
	for _, e := range b.edges {
		if _, ok := b.nodes[e.Source]; !ok {
			return nil, fmt.Errorf("edge references undeclared source node %q", e.Source)
		}
		if _, ok := b.nodes[e.Target]; !ok {
			return nil, fmt.Errorf("edge references undeclared target node %q", e.Target)
		}
		g.Edges = append(g.Edges, e)
	}
	if _, ok := g.EntryNode(); !ok {
		return nil, domain.ErrNoEntryNode
	}
	return g, nil
}
