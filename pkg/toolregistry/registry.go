// Package toolregistry holds the TOOL-node dispatch table for the
// workflow runtime: a plain map from tool name to handler, populated at
// startup by direct Register calls. Generalizes pkg/agent/adapter.go's
// KernelBridge.Dispatch switch-over-enum into data, per the platform's
// "explicit tool registry" redesign — a TOOL node looks itself up here
// instead of the runtime growing a new switch case per tool.
package toolregistry

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one tool call against the live workflow state
// context and returns the value to merge back into it.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ToolDescriptor is a single registered tool: a name, human-facing
// description, a JSON-Schema-shaped parameter description for
// validation/introspection, and the handler invoked on dispatch.
type ToolDescriptor struct {
	Name             string
	Description      string
	ParametersSchema map[string]any
	Handler          Handler
}

// Registry is a plain, mutex-guarded map of registered tools. Never a
// reflection- or decorator-based dispatch surface: registration is
// always a direct Register call performed once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDescriptor)}
}

// Register adds or replaces a tool descriptor under its own Name.
func (r *Registry) Register(d ToolDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
}

// Lookup returns the descriptor registered for name.
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Dispatch looks up name and invokes its handler. Returns an error if
// no tool is registered under that name — a TOOL node naming an
// unregistered tool is a configuration error, not a silent no-op.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("toolregistry: no tool registered under name %q", name)
	}
	return d.Handler(ctx, args)
}

// Names returns every registered tool name, for introspection/listing.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
