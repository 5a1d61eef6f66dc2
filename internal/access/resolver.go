// Package access derives context-node permissions for task nodes from
// explicit graph edges. No edge means no access: there is no implicit
// global state, and denial messages carry the exact edge syntax that
// would grant the missing permission.
package access

import (
	"fmt"

	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Access describes what one task may do to one context node. An empty
// Fields slice grants access to every attribute.
type Access struct {
	CanRead  bool
	CanWrite bool
	Fields   []string
}

// AllowsField reports whether the named attribute falls inside the field
// restriction.
func (a Access) AllowsField(name string) bool {
	if len(a.Fields) == 0 {
		return true
	}
	for _, f := range a.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// ContextAccess computes the permission map for a task node. Grants come
// only from edges touching the task:
//
//	task -reads-> ctx   read
//	task -> ctx         read (explicit wiring without a verb)
//	ctx  -> task        read
//	task -writes-> ctx  write
//	task -stores-> ctx  write
//
// A field list on the label (reads[a, b]) restricts access to those
// attributes.
func ContextAccess(g *domain.Graph, task string) map[string]Access {
	out := make(map[string]Access)

	grant := func(ctxName string, read, write bool, fields []string) {
		acc, existed := out[ctxName]
		switch {
		case !existed:
			acc.Fields = append([]string(nil), fields...)
		case len(acc.Fields) == 0:
			// An earlier grant was unrestricted; stays unrestricted.
		case len(fields) == 0:
			// This grant is unrestricted; lifts the restriction.
			acc.Fields = nil
		default:
			acc.Fields = mergeFields(acc.Fields, fields)
		}
		acc.CanRead = acc.CanRead || read
		acc.CanWrite = acc.CanWrite || write
		out[ctxName] = acc
	}

	for _, e := range g.Edges {
		spec := compiler.ParseEdge(e)
		switch {
		case e.Source == task:
			target, ok := g.NodeByName(e.Target)
			if !ok || target.Kind() != domain.KindContext {
				continue
			}
			switch spec.Verb {
			case compiler.VerbWrites, compiler.VerbStores:
				grant(e.Target, false, true, spec.Fields)
			default:
				grant(e.Target, true, false, spec.Fields)
			}
		case e.Target == task:
			source, ok := g.NodeByName(e.Source)
			if !ok || source.Kind() != domain.KindContext {
				continue
			}
			grant(e.Source, true, false, spec.Fields)
		}
	}
	return out
}

// CheckRead returns a PermissionError unless the task may read the named
// attribute of the context node.
func CheckRead(g *domain.Graph, task, ctxName, field string) error {
	acc, ok := ContextAccess(g, task)[ctxName]
	if !ok || !acc.CanRead {
		return &domain.PermissionError{
			Task:      task,
			Context:   ctxName,
			Operation: "read",
			Hint:      fmt.Sprintf("add an edge %q -reads-> %q to the machine definition", task, ctxName),
		}
	}
	if field != "" && !acc.AllowsField(field) {
		return &domain.PermissionError{
			Task:      task,
			Context:   ctxName,
			Operation: "read",
			Hint:      fmt.Sprintf("field %q is outside the granted field list; widen the edge label, e.g. %q -reads[%s]-> %q", field, task, field, ctxName),
		}
	}
	return nil
}

// CheckWrite returns a PermissionError unless the task may write the named
// attribute of the context node.
func CheckWrite(g *domain.Graph, task, ctxName, field string) error {
	acc, ok := ContextAccess(g, task)[ctxName]
	if !ok || !acc.CanWrite {
		return &domain.PermissionError{
			Task:      task,
			Context:   ctxName,
			Operation: "write",
			Hint:      fmt.Sprintf("add an edge %q -writes-> %q to the machine definition", task, ctxName),
		}
	}
	if field != "" && !acc.AllowsField(field) {
		return &domain.PermissionError{
			Task:      task,
			Context:   ctxName,
			Operation: "write",
			Hint:      fmt.Sprintf("field %q is outside the granted field list; widen the edge label, e.g. %q -writes[%s]-> %q", field, task, field, ctxName),
		}
	}
	return nil
}

func mergeFields(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, f := range a {
		seen[f] = true
	}
	for _, f := range b {
		if !seen[f] {
			a = append(a, f)
			seen[f] = true
		}
	}
	return a
}
