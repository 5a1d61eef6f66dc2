// Package registry dispatches tool calls by name: fixed names bound to
// handlers, plus dynamic patterns that bind whole families of names (every
// transition_to_<target>, for example) to one handler parameterized by the
// matched name. This keeps per-node tool families from requiring per-node
// registration churn.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Handler executes a statically named tool.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// DynamicHandler executes any tool whose name matched a pattern; it
// receives the concrete name that matched.
type DynamicHandler func(ctx context.Context, name string, input map[string]any) (any, error)

// MatchFunc decides whether a dynamic registration covers a name.
type MatchFunc func(name string) bool

// Prefix builds a MatchFunc covering every name with the given prefix.
func Prefix(prefix string) MatchFunc {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

type staticEntry struct {
	def     domain.ToolDefinition
	handler Handler
}

type dynamicEntry struct {
	match   MatchFunc
	handler DynamicHandler
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	static  map[string]staticEntry
	dynamic []dynamicEntry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{static: make(map[string]staticEntry)}
}

// RegisterStatic binds a fixed name to a handler. Registering a name twice
// is an error; dynamic tool construction relies on this to reject
// duplicates.
func (r *Registry) RegisterStatic(def domain.ToolDefinition, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.static[def.Name]; exists {
		return fmt.Errorf("tool %q already exists", def.Name)
	}
	r.static[def.Name] = staticEntry{def: def, handler: handler}
	return nil
}

// ReplaceStatic binds a fixed name, overwriting any previous registration.
func (r *Registry) ReplaceStatic(def domain.ToolDefinition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.static[def.Name] = staticEntry{def: def, handler: handler}
}

// RegisterDynamic binds a family of names to one handler. Patterns are
// consulted in registration order after static names.
func (r *Registry) RegisterDynamic(match MatchFunc, handler DynamicHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic = append(r.dynamic, dynamicEntry{match: match, handler: handler})
}

// Execute resolves and runs a tool: static names first, then dynamic
// patterns in registration order.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (any, error) {
	r.mu.RLock()
	entry, isStatic := r.static[name]
	dynamic := r.dynamic
	r.mu.RUnlock()

	if isStatic {
		return entry.handler(ctx, input)
	}
	for _, d := range dynamic {
		if d.match(name) {
			return d.handler(ctx, name, input)
		}
	}
	return nil, &domain.ToolNotFoundError{Name: name}
}

// Has mirrors Execute's resolution without executing.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.static[name]; ok {
		return true
	}
	for _, d := range r.dynamic {
		if d.match(name) {
			return true
		}
	}
	return false
}

// Definition returns the definition of a statically registered tool.
func (r *Registry) Definition(name string) (domain.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.static[name]
	return entry.def, ok
}

// Definitions lists all static tool definitions sorted by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]domain.ToolDefinition, 0, len(r.static))
	for _, entry := range r.static {
		defs = append(defs, entry.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
