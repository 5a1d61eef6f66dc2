package compiler

import (
	"encoding/json"

	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/schema"
)

// AttributeValue unboxes an attribute to its canonical Go value. Declared
// types coerce through the schema layer; untyped string values that look
// like JSON literals are parsed opportunistically. Failures are silent
// fallbacks to the raw value, never errors.
func AttributeValue(attr *domain.Attribute) any {
	if attr == nil {
		return nil
	}
	if attr.Type != "" {
		return schema.Coerce(attr.Type, attr.Value)
	}
	if s, ok := attr.Value.(string); ok && schema.LooksLikeJSON(s) {
		var out any
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return attr.Value
}

// NodeAttributes builds the attribute map for one node with all values
// unboxed.
func NodeAttributes(n *domain.Node) map[string]any {
	if len(n.Attributes) == 0 {
		return nil
	}
	out := make(map[string]any, len(n.Attributes))
	for i := range n.Attributes {
		out[n.Attributes[i].Name] = AttributeValue(&n.Attributes[i])
	}
	return out
}

// GraphAttributes builds the nested attributes[node][attr] map guards and
// templates evaluate against, fresh from the given snapshot. Note nodes
// are excluded.
func GraphAttributes(g *domain.Graph) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind() == domain.KindNote {
			continue
		}
		if attrs := NodeAttributes(n); attrs != nil {
			out[n.Name] = attrs
		}
	}
	return out
}
