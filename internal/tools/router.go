// ABOUTME: Routes tool calls from agents to the registered tool handlers.
// ABOUTME: Applies per-call timeouts and maps handler errors for the caller.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// Router dispatches tool calls to the registry's handlers.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger.With("component", "router"),
		timeout:  timeout,
	}
}

// Dispatch executes a tool call on behalf of an agent. Returns the handler's
// JSON result, ErrToolNotFound for unknown tools, or the handler's error.
// The call runs under a deadline so a stuck handler cannot hold the caller.
func (r *Router) Dispatch(ctx context.Context, toolName, agentID string, input json.RawMessage) (json.RawMessage, error) {
	tool := r.registry.Get(toolName)
	if tool == nil {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"agent_id", agentID,
		)
		return nil, ErrToolNotFound
	}

	// Callers may omit arguments entirely; handlers expect an object.
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Info("→ dispatching tool call",
		"tool_name", toolName,
		"agent_id", agentID,
	)

	result, err := tool.Handler(ctx, agentID, input)
	if err != nil {
		r.logger.Warn("tool error",
			"tool_name", toolName,
			"agent_id", agentID,
			"error", err,
		)
		return nil, err
	}

	r.logger.Info("← tool responded",
		"tool_name", toolName,
		"agent_id", agentID,
	)
	return result, nil
}

// HasTool checks if a tool with the given name exists in the registry.
func (r *Router) HasTool(toolName string) bool {
	return r.registry.Has(toolName)
}

// Definition returns the tool definition for a given tool name.
// Returns nil if the tool is not found.
func (r *Router) Definition(toolName string) *Definition {
	tool := r.registry.Get(toolName)
	if tool == nil {
		return nil
	}
	return tool.Definition
}
