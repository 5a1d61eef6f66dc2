package domain

import (
	"encoding/json"
	"strings"
)

// Node kind constants. Kinds drive control-flow behavior: state and init
// nodes transition automatically, task nodes may require an agent decision,
// context nodes hold data, tool nodes persist runtime-constructed tools,
// note nodes are ignored by execution.
const (
	KindState   = "state"
	KindTask    = "task"
	KindContext = "context"
	KindTool    = "tool"
	KindInit    = "init"
	KindNote    = "note"
	KindUntyped = "untyped"
)

// Graph is the machine definition produced by the external parser/linker.
// It is immutable during execution: every mutation produces a new snapshot.
type Graph struct {
	Title string `json:"title"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a named unit in the graph. Names are unique among non-note nodes
// (enforced at ingestion by the external validator, not re-checked here).
type Node struct {
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"`
	Parent      string      `json:"parent,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
	Annotations []string    `json:"annotations,omitempty"`
}

// Attribute is a declared, typed value on a node. Value holds whatever the
// parser produced; callers coerce lazily via pkg/schema.
type Attribute struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// Edge is a directed connection between two nodes. Label (falling back to
// Type) encodes a guard (when:/unless:/if:), annotations (@auto), and
// permission verbs (reads/writes/stores). Parallel edges between the same
// pair with different guards are allowed.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Text returns the label text of the edge, falling back to Type.
func (e Edge) Text() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Type
}

// Kind classifies the node case-insensitively by its declared type. Untyped
// nodes carrying a prompt attribute behave as tasks (legacy inputs).
func (n *Node) Kind() string {
	switch strings.ToLower(strings.TrimSpace(n.Type)) {
	case KindState:
		return KindState
	case KindTask:
		return KindTask
	case KindContext:
		return KindContext
	case KindTool:
		return KindTool
	case KindInit:
		return KindInit
	case KindNote:
		return KindNote
	case "":
		if _, ok := n.Attribute("prompt"); ok {
			return KindTask
		}
		return KindUntyped
	default:
		return KindUntyped
	}
}

// Attribute looks up a declared attribute by name.
func (n *Node) Attribute(name string) (*Attribute, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// StringAttr returns the attribute value as a string, or "" when absent.
func (n *Node) StringAttr(name string) string {
	attr, ok := n.Attribute(name)
	if !ok || attr.Value == nil {
		return ""
	}
	if s, ok := attr.Value.(string); ok {
		return s
	}
	b, err := json.Marshal(attr.Value)
	if err != nil {
		return ""
	}
	return string(b)
}

// BoolAttr returns the attribute value as a bool. Missing or non-boolean
// values report false.
func (n *Node) BoolAttr(name string) bool {
	attr, ok := n.Attribute(name)
	if !ok {
		return false
	}
	switch v := attr.Value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// IntAttr returns the attribute value as an int, with ok reporting whether
// a numeric value was present.
func (n *Node) IntAttr(name string) (int, bool) {
	attr, found := n.Attribute(name)
	if !found {
		return 0, false
	}
	switch v := attr.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// IsMeta reports whether the node opts into the meta-tool surface.
func (n *Node) IsMeta() bool {
	return n.BoolAttr("meta")
}

// NodeByName finds a node by name. Note nodes are not addressable.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name && g.Nodes[i].Kind() != KindNote {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// OutboundEdges returns edges whose source is the named node, in
// declaration order.
func (g *Graph) OutboundEdges(name string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == name {
			out = append(out, e)
		}
	}
	return out
}

// InboundEdges returns edges whose target is the named node.
func (g *Graph) InboundEdges(name string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == name {
			in = append(in, e)
		}
	}
	return in
}

// Children returns nodes declaring the given node as parent, in
// declaration order.
func (g *Graph) Children(parent string) []Node {
	var kids []Node
	for _, n := range g.Nodes {
		if n.Parent == parent {
			kids = append(kids, n)
		}
	}
	return kids
}

// EntryNode locates the execution entry point: the first init-kind node,
// falling back to a node literally named "init", then to the first node.
func (g *Graph) EntryNode() (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Kind() == KindInit {
			return &g.Nodes[i], true
		}
	}
	if n, ok := g.NodeByName("init"); ok {
		return n, true
	}
	for i := range g.Nodes {
		if g.Nodes[i].Kind() != KindNote {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep, independent copy of the graph. Attribute values are
// copied through JSON so nested maps and slices do not alias.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	cp := &Graph{Title: g.Title}
	cp.Nodes = make([]Node, len(g.Nodes))
	for i, n := range g.Nodes {
		cn := n
		cn.Attributes = make([]Attribute, len(n.Attributes))
		for j, a := range n.Attributes {
			ca := a
			ca.Value = cloneValue(a.Value)
			cn.Attributes[j] = ca
		}
		if n.Annotations != nil {
			cn.Annotations = append([]string(nil), n.Annotations...)
		}
		cp.Nodes[i] = cn
	}
	cp.Edges = append([]Edge(nil), g.Edges...)
	return cp
}

// cloneValue deep-copies arbitrary attribute values. Round-tripping through
// JSON is slower than a hand-written walk but guarantees no aliasing for
// every shape the ingestion contract can produce.
func cloneValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, int, int64, json.Number:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
