package dsl

import "github.com/switchyard-dev/switchyard/pkg/domain"

// NodeBuilder configures one node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Type sets the node's declared type (state, task, context, tool, init).
func (nb *NodeBuilder) Type(t string) *NodeBuilder {
	nb.node.Type = t
	return nb
}

// Parent nests the node inside a state module.
func (nb *NodeBuilder) Parent(name string) *NodeBuilder {
	nb.node.Parent = name
	return nb
}

// Attr declares a typed attribute.
func (nb *NodeBuilder) Attr(name, typ string, value any) *NodeBuilder {
	nb.node.Attributes = append(nb.node.Attributes, domain.Attribute{Name: name, Type: typ, Value: value})
	return nb
}

// Prompt sets the node's agent prompt.
func (nb *NodeBuilder) Prompt(text string) *NodeBuilder {
	return nb.Attr("prompt", "string", text)
}

// Meta opts the node into the meta-tool surface.
func (nb *NodeBuilder) Meta() *NodeBuilder {
	return nb.Attr("meta", "boolean", true)
}

// Edge declares an outbound edge from this node.
func (nb *NodeBuilder) Edge(target string) *NodeBuilder {
	nb.builder.Edge(nb.node.Name, target)
	return nb
}

// LabeledEdge declares an outbound edge with label text.
func (nb *NodeBuilder) LabeledEdge(target, label string) *NodeBuilder {
	nb.builder.LabeledEdge(nb.node.Name, target, label)
	return nb
}

// Done returns to the graph builder.
func (nb *NodeBuilder) Done() *Builder {
	return nb.builder
}
