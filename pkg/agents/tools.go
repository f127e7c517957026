package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Tool is a named function an agent may decide to call. Tools are opaque
// to task and process orchestration.
type Tool interface {
	// Name returns the tool identifier used in prompts
	Name() string

	// Description tells the agent when to use the tool
	Description() string

	// Run executes the tool with the given input
	Run(ctx context.Context, input string) (string, error)
}

// FuncTool wraps a plain function as a Tool
type FuncTool struct {
	name        string
	description string
	run         func(ctx context.Context, input string) (string, error)
}

// NewFuncTool creates a tool from a function
func NewFuncTool(name, description string, run func(ctx context.Context, input string) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, run: run}
}

// Name implements Tool.Name
func (t *FuncTool) Name() string { return t.name }

// Description implements Tool.Description
func (t *FuncTool) Description() string { return t.description }

// Run implements Tool.Run
func (t *FuncTool) Run(ctx context.Context, input string) (string, error) {
	return t.run(ctx, input)
}

// ToolRegistry holds the tools available to an agent
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Len returns the number of registered tools
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Describe renders the tool list for inclusion in a prompt
func (r *ToolRegistry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.tools[name].Description())
	}
	return sb.String()
}
