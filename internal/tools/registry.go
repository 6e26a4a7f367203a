// ABOUTME: Thread-safe registry for tool packs and their tools in the gateway.
// ABOUTME: Manages pack registration, tool lookup, and capability-based filtering.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrToolCollision indicates a tool name already exists from another pack.
var ErrToolCollision = errors.New("tool name collision")

// ToolHandler is a function that executes a tool in the gateway process.
// It receives the calling agent's ID and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error)

// Definition describes a tool to callers: its name, what it does, the JSON
// Schema of its input, and the capabilities an agent needs to see it.
type Definition struct {
	Name                 string
	Description          string
	InputSchema          string
	RequiredCapabilities []string
}

// Tool pairs a definition with the handler that executes it.
type Tool struct {
	Definition *Definition
	Handler    ToolHandler
}

// Pack is a collection of tools registered under one pack ID.
type Pack struct {
	ID    string
	Tools []*Tool
}

// entry stores a tool with its pack ID for registry lookup.
type entry struct {
	Tool   *Tool
	PackID string
}

// Registry maintains the registry of tool packs and their tools. Tool names
// are global: two packs cannot both own a name.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry // tool name -> entry
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger.With("component", "tools"),
	}
}

// RegisterPack validates and stores a pack and its tools.
// Returns ErrToolCollision if any tool name already exists from another pack.
func (r *Registry) RegisterPack(pack *Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for tool name collisions before registering anything
	for _, tool := range pack.Tools {
		if existing, exists := r.tools[tool.Definition.Name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
				ErrToolCollision, tool.Definition.Name, existing.PackID)
		}
	}

	for _, tool := range pack.Tools {
		r.tools[tool.Definition.Name] = &entry{
			Tool:   tool,
			PackID: pack.ID,
		}
	}

	r.logger.Info("=== PACK REGISTERED ===",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.tools),
	)

	return nil
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.tools[name]; ok {
		return e.Tool
	}
	return nil
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// AllTools returns every registered tool definition, sorted by name.
func (r *Registry) AllTools() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Definition, 0, len(r.tools))
	for _, e := range r.tools {
		result = append(result, e.Tool.Definition)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// ToolsForCapabilities returns tools where the agent has ALL required
// capabilities. If a tool has no required capabilities, it is always
// included. Results are sorted by tool name for stable listings.
func (r *Registry) ToolsForCapabilities(caps []string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capSet := make(map[string]struct{}, len(caps))
	for _, cap := range caps {
		capSet[cap] = struct{}{}
	}

	var result []*Definition
	for _, e := range r.tools {
		if hasAllCapabilities(e.Tool.Definition.RequiredCapabilities, capSet) {
			result = append(result, e.Tool.Definition)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// hasAllCapabilities checks if the capability set contains all required capabilities.
func hasAllCapabilities(required []string, capSet map[string]struct{}) bool {
	for _, req := range required {
		if _, has := capSet[req]; !has {
			return false
		}
	}
	return true
}

// PackInfo contains public information about a registered pack.
type PackInfo struct {
	ID        string
	ToolNames []string
}

// ListPacks returns information about all registered packs, grouped from the
// tool table on demand.
func (r *Registry) ListPacks() []PackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packTools := make(map[string][]string)
	for name, e := range r.tools {
		packTools[e.PackID] = append(packTools[e.PackID], name)
	}

	result := make([]PackInfo, 0, len(packTools))
	for packID, names := range packTools {
		sort.Strings(names)
		result = append(result, PackInfo{ID: packID, ToolNames: names})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
