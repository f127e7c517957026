package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxisai/crewkit/pkg/knowledge"
	"github.com/praxisai/crewkit/pkg/llm"
	"github.com/praxisai/crewkit/pkg/memory"
	"github.com/praxisai/crewkit/pkg/utils"
)

// maxToolRounds bounds the tool-use loop within a single invocation
const maxToolRounds = 5

// Agent is an LLM-backed executor identified by name and role. Memory and
// knowledge handles are injected at construction and shared with the
// orchestration layer; the agent owns no orchestration state.
type Agent struct {
	Name  string
	Role  string
	Goals []string

	provider  llm.Provider
	tools     *ToolRegistry
	memory    *memory.Store
	knowledge *knowledge.Index
	logger    *utils.Logger
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithTools registers tools the agent may call
func WithTools(tools ...Tool) AgentOption {
	return func(a *Agent) {
		for _, tool := range tools {
			a.tools.Register(tool)
		}
	}
}

// WithMemory attaches a shared memory store
func WithMemory(store *memory.Store) AgentOption {
	return func(a *Agent) {
		a.memory = store
	}
}

// WithKnowledge attaches a knowledge index
func WithKnowledge(index *knowledge.Index) AgentOption {
	return func(a *Agent) {
		a.knowledge = index
	}
}

// WithLogger sets the agent logger
func WithLogger(logger *utils.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent creates a new agent instance
func NewAgent(name, role string, goals []string, provider llm.Provider, opts ...AgentOption) *Agent {
	a := &Agent{
		Name:     name,
		Role:     role,
		Goals:    goals,
		provider: provider,
		tools:    NewToolRegistry(),
		logger:   utils.NewLogger(false),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Memory returns the agent's shared memory store, if any
func (a *Agent) Memory() *memory.Store {
	return a.memory
}

// Knowledge returns the agent's knowledge index, if any
func (a *Agent) Knowledge() *knowledge.Index {
	return a.knowledge
}

// Invoke executes a resolved prompt and returns the raw output. Tool
// calls requested by the model are executed and fed back for a bounded
// number of rounds.
func (a *Agent) Invoke(ctx context.Context, prompt string) (string, error) {
	full := a.buildPrompt(prompt)

	for round := 0; round < maxToolRounds; round++ {
		output, err := a.provider.Complete(ctx, full)
		if err != nil {
			return "", fmt.Errorf("agent %s invocation failed: %w", a.Name, err)
		}

		name, input, ok := parseToolCall(output)
		if !ok || a.tools.Len() == 0 {
			return output, nil
		}

		tool, exists := a.tools.Get(name)
		if !exists {
			return output, nil
		}

		a.logger.Debug("agent %s calling tool %s", a.Name, name)
		result, err := tool.Run(ctx, input)
		if err != nil {
			result = fmt.Sprintf("tool error: %v", err)
		}

		full = fmt.Sprintf("%s\n\nTool %s returned:\n%s\n\nContinue with the task using this result.", full, name, result)
	}

	// Tool budget exhausted, ask for a final answer without tools
	output, err := a.provider.Complete(ctx, full+"\n\nProvide your final answer now without calling any tools.")
	if err != nil {
		return "", fmt.Errorf("agent %s invocation failed: %w", a.Name, err)
	}
	return output, nil
}

// buildPrompt prepends the agent identity and tool list to the task prompt
func (a *Agent) buildPrompt(prompt string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, %s.\n", a.Name, a.Role)
	if len(a.Goals) > 0 {
		fmt.Fprintf(&sb, "Your goals: %s.\n", strings.Join(a.Goals, "; "))
	}
	if tools := a.tools.Describe(); tools != "" {
		fmt.Fprintf(&sb, "\nAvailable tools:\n%s", tools)
		sb.WriteString("To use a tool, reply with exactly one line: TOOL: <name>: <input>\n")
	}
	sb.WriteString("\n")
	sb.WriteString(prompt)
	return sb.String()
}

// parseToolCall extracts a TOOL: name: input directive from model output
func parseToolCall(output string) (name, input string, ok bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "TOOL:") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "TOOL:"))
		parts := strings.SplitN(rest, ":", 2)
		name = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			input = strings.TrimSpace(parts[1])
		}
		return name, input, name != ""
	}
	return "", "", false
}
