package tool

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/conduit-ai/conduit/internal/provider"
)

// DirectSpec describes a tool executed by the connected client rather than
// in process. The server forwards the call over the realtime channel and
// waits for the posted result.
type DirectSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Binding is the result of resolving a streamed tool call: exactly one of
// Local or Direct is set.
type Binding struct {
	Local  Tool
	Direct *DirectSpec
}

// IsDirect reports whether the call must round-trip through the client.
func (b Binding) IsDirect() bool { return b.Direct != nil }

// Parameters returns the bound tool's JSON Schema.
func (b Binding) Parameters() json.RawMessage {
	if b.Direct != nil {
		return b.Direct.Parameters
	}
	return b.Local.Parameters()
}

// Registry resolves tool names to local tools or direct specs.
type Registry struct {
	mu     sync.RWMutex
	local  map[string]Tool
	direct map[string]DirectSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		local:  make(map[string]Tool),
		direct: make(map[string]DirectSpec),
	}
}

// Register adds a local tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[t.ID()] = t
}

// RegisterDirect adds client-delegated tool specs, replacing any previous
// registration under the same names.
func (r *Registry) RegisterDirect(specs []DirectSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, spec := range specs {
		r.direct[spec.Name] = spec
	}
}

// UnregisterDirect removes client-delegated tool specs by name.
func (r *Registry) UnregisterDirect(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.direct, name)
	}
}

// Lookup resolves a tool name. Direct registrations shadow local tools of
// the same name so a client can override a builtin.
func (r *Registry) Lookup(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if spec, ok := r.direct[name]; ok {
		return Binding{Direct: &spec}, true
	}
	if t, ok := r.local[name]; ok {
		return Binding{Local: t}, true
	}
	return Binding{}, false
}

// IDs returns all registered tool names, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.local)+len(r.direct))
	for id := range r.local {
		ids = append(ids, id)
	}
	for id := range r.direct {
		if _, shadowed := r.local[id]; !shadowed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ToolInfos returns provider-neutral definitions for every registered
// tool, for binding to the chat model.
func (r *Registry) ToolInfos() []provider.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]provider.ToolInfo, 0, len(r.local)+len(r.direct))
	for _, t := range r.local {
		if _, shadowed := r.direct[t.ID()]; shadowed {
			continue
		}
		infos = append(infos, provider.ToolInfo{
			Name:        t.ID(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	for _, spec := range r.direct {
		infos = append(infos, provider.ToolInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// DefaultRegistry creates a registry with the built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewWebFetchTool())
	r.Register(NewTimeTool())
	r.Register(NewCalculatorTool())
	return r
}
