package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxisai/crewkit/pkg/llm"
	"github.com/praxisai/crewkit/pkg/tasks"
)

// Assignment is a manager's scheduling decision: which ready task runs
// next and, optionally, which registered agent should run it. An empty
// AgentName keeps the task's own assignment.
type Assignment struct {
	TaskID    string
	AgentName string
}

// Manager decides the next task in hierarchical mode. Implementations
// receive the ready tasks in insertion order plus the outputs produced so
// far; returning an unknown task id or an error makes the process fall
// back to insertion order.
type Manager interface {
	ChooseNext(ctx context.Context, ready []*tasks.Task, done map[string]*tasks.Output) (Assignment, error)
}

// LLMManager delegates scheduling to a model. The model sees the ready
// task list with descriptions and the available agents, and answers with
// a task number and optionally an agent name.
type LLMManager struct {
	provider llm.Provider
	agents   []string
}

// NewLLMManager creates a model-backed manager. The agent names are
// offered to the model for reassignment.
func NewLLMManager(provider llm.Provider, agentNames []string) *LLMManager {
	return &LLMManager{provider: provider, agents: agentNames}
}

// ChooseNext implements Manager
func (m *LLMManager) ChooseNext(ctx context.Context, ready []*tasks.Task, done map[string]*tasks.Output) (Assignment, error) {
	if len(ready) == 1 && len(m.agents) == 0 {
		return Assignment{TaskID: ready[0].ID}, nil
	}

	prompt := m.buildPrompt(ready, done)
	answer, err := m.provider.Complete(ctx, prompt)
	if err != nil {
		return Assignment{}, fmt.Errorf("manager scheduling call failed: %w", err)
	}

	choice, agent, ok := parseChoice(answer, len(ready), m.agents)
	if !ok {
		return Assignment{}, fmt.Errorf("manager answer %q names no ready task", strings.TrimSpace(answer))
	}
	return Assignment{TaskID: ready[choice].ID, AgentName: agent}, nil
}

func (m *LLMManager) buildPrompt(ready []*tasks.Task, done map[string]*tasks.Output) string {
	var sb strings.Builder
	sb.WriteString("You are a project manager coordinating a team of agents.\n\n")

	if len(done) > 0 {
		sb.WriteString("Completed so far:\n")
		for id, out := range done {
			summary := out.Raw
			if len(summary) > 120 {
				summary = summary[:120] + "..."
			}
			fmt.Fprintf(&sb, "- task %s: %s\n", id, summary)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Tasks ready to run:\n")
	for i, task := range ready {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, task.Name, task.Description)
	}
	if len(m.agents) > 0 {
		fmt.Fprintf(&sb, "\nAvailable agents: %s\n", strings.Join(m.agents, ", "))
	}
	sb.WriteString("\nWhich task should run next? Answer with the task number, optionally followed by the agent name to assign, e.g. \"2 researcher\".")
	return sb.String()
}

// parseChoice extracts a 1-based task number and optional agent name from
// a manager answer
func parseChoice(answer string, readyCount int, agents []string) (index int, agent string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(answer))
	if len(fields) == 0 {
		return 0, "", false
	}

	n := 0
	digits := strings.TrimFunc(fields[0], func(r rune) bool { return r < '0' || r > '9' })
	for _, r := range digits {
		n = n*10 + int(r-'0')
	}
	if digits == "" || n < 1 || n > readyCount {
		return 0, "", false
	}

	for _, field := range fields[1:] {
		for _, name := range agents {
			if strings.EqualFold(strings.Trim(field, ".,:;"), name) {
				return n - 1, name, true
			}
		}
	}
	return n - 1, "", true
}
