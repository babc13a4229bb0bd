// Package tools holds the tool registry the completion loop draws from.
// Execution never raises: unknown names and tool failures both resolve to
// descriptive text so the loop can always append a tool message.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cottbot/internal/logging"
	"cottbot/internal/types"
)

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Property describes one parameter in a tool's JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema defines the expected arguments for a tool.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// Tool is one callable capability offered to the model.
type Tool struct {
	Name        string
	Description string
	Execute     ExecuteFunc
	Schema      Schema
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Declaration renders the tool as a definition for the completion request.
func (t *Tool) Declaration() types.ToolDefinition {
	props := make(map[string]interface{}, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		props[name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(t.Schema.Required) > 0 {
		schema["required"] = t.Schema.Required
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// Registry holds the available tools. Thread-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered tool: %s", tool.Name)
	return nil
}

// MustRegister registers a tool and panics on error. For static wiring at
// startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not registered.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools, sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Declarations renders every registered tool for the completion request.
func (r *Registry) Declarations() []types.ToolDefinition {
	all := r.All()
	defs := make([]types.ToolDefinition, len(all))
	for i, tool := range all {
		defs[i] = tool.Declaration()
	}
	return defs
}

// Execute runs the named tool and always returns text. Malformed argument
// JSON degrades to an empty argument map; execution failures resolve to an
// error-describing string.
func (r *Registry) Execute(ctx context.Context, call types.ToolCall) string {
	tool := r.Get(call.Name)
	if tool == nil {
		logging.Tools("Execute: unknown tool requested: %s", call.Name)
		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}

	args := ParseArguments(call.RawArguments)

	result, err := tool.Execute(ctx, args)
	if err != nil {
		logging.ToolsError("Execute: %s failed: %v", call.Name, err)
		return fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}
	return result
}

// ParseArguments decodes a tool-call argument payload leniently: anything
// that is not a JSON object becomes an empty map.
func ParseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		logging.ToolsDebug("ParseArguments: malformed payload ignored: %.80s", raw)
		return map[string]any{}
	}
	return args
}
