package process

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/praxisai/crewkit/pkg/knowledge"
	"github.com/praxisai/crewkit/pkg/memory"
	"github.com/praxisai/crewkit/pkg/quality"
	"github.com/praxisai/crewkit/pkg/tasks"
	"github.com/praxisai/crewkit/pkg/utils"
)

// Mode selects the scheduling strategy
type Mode string

const (
	// ModeSequential runs tasks strictly in insertion order
	ModeSequential Mode = "sequential"
	// ModeWorkflow runs tasks concurrently as their dependencies complete
	ModeWorkflow Mode = "workflow"
	// ModeHierarchical lets a manager model pick the next task and agent
	ModeHierarchical Mode = "hierarchical"
)

// LoopPolicy controls how a loop task reacts to per-record failures
type LoopPolicy string

const (
	// LoopContinue keeps processing records after a failure; the loop
	// task fails only when every record failed
	LoopContinue LoopPolicy = "continue"
	// LoopFailFast stops at the first record failure
	LoopFailFast LoopPolicy = "fail_fast"
)

// defaultMaxIter bounds workflow scheduling rounds against cycles
const defaultMaxIter = 25

// Process is an ordered collection of tasks executed under a scheduling
// mode. Task insertion order is significant: it is the execution order in
// sequential mode and the tie-break everywhere else.
type Process struct {
	name string
	mode Mode

	tasks []*tasks.Task
	byID  map[string]*tasks.Task

	agents     map[string]tasks.Executor
	agentOrder []string

	manager    Manager
	maxIter    int
	loopPolicy LoopPolicy

	memory    *memory.Store
	know      *knowledge.Index
	evaluator quality.Evaluator
	scope     memory.Scope
	logger    *utils.Logger
}

// ProcessOption configures a Process
type ProcessOption func(*Process)

// WithMode sets the scheduling mode
func WithMode(mode Mode) ProcessOption {
	return func(p *Process) { p.mode = mode }
}

// WithManager sets the hierarchical manager
func WithManager(m Manager) ProcessOption {
	return func(p *Process) { p.manager = m }
}

// WithMaxIter bounds workflow scheduling rounds
func WithMaxIter(n int) ProcessOption {
	return func(p *Process) { p.maxIter = n }
}

// WithLoopPolicy sets the per-record failure policy for loop tasks
func WithLoopPolicy(policy LoopPolicy) ProcessOption {
	return func(p *Process) { p.loopPolicy = policy }
}

// WithMemory attaches the shared memory store
func WithMemory(store *memory.Store) ProcessOption {
	return func(p *Process) { p.memory = store }
}

// WithKnowledge attaches the shared knowledge index
func WithKnowledge(index *knowledge.Index) ProcessOption {
	return func(p *Process) { p.know = index }
}

// WithEvaluator sets the quality evaluator used by quality-checked tasks
func WithEvaluator(e quality.Evaluator) ProcessOption {
	return func(p *Process) { p.evaluator = e }
}

// WithScope attributes memory activity to a user/agent/run
func WithScope(scope memory.Scope) ProcessOption {
	return func(p *Process) { p.scope = scope }
}

// WithLogger sets the process logger
func WithLogger(logger *utils.Logger) ProcessOption {
	return func(p *Process) { p.logger = logger }
}

// NewProcess creates an empty process
func NewProcess(name string, opts ...ProcessOption) *Process {
	p := &Process{
		name:       name,
		mode:       ModeSequential,
		byID:       make(map[string]*tasks.Task),
		agents:     make(map[string]tasks.Executor),
		maxIter:    defaultMaxIter,
		loopPolicy: LoopContinue,
		logger:     utils.NewLogger(false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddTask appends a task. Insertion order is preserved.
func (p *Process) AddTask(task *tasks.Task) error {
	if _, exists := p.byID[task.ID]; exists {
		return configErrf("duplicate task id %s", task.ID)
	}
	p.tasks = append(p.tasks, task)
	p.byID[task.ID] = task
	return nil
}

// RegisterAgent makes an executor addressable by name for task
// assignment. Registration order matters for hierarchical fallback.
func (p *Process) RegisterAgent(name string, executor tasks.Executor) {
	if _, exists := p.agents[name]; !exists {
		p.agentOrder = append(p.agentOrder, name)
	}
	p.agents[name] = executor
}

// Tasks returns the tasks in insertion order
func (p *Process) Tasks() []*tasks.Task {
	out := make([]*tasks.Task, len(p.tasks))
	copy(out, p.tasks)
	return out
}

// Validate checks the process graph before execution. It returns the
// first structural problem found.
func (p *Process) Validate() error {
	if len(p.tasks) == 0 {
		return configErrf("process %q has no tasks", p.name)
	}

	for _, task := range p.tasks {
		if task.Executor == nil {
			if task.AgentName == "" {
				if p.mode != ModeHierarchical {
					return configErrf("task %q has no executor and no agent name", task.Name)
				}
			} else if _, ok := p.agents[task.AgentName]; !ok {
				return configErrf("task %q references unknown agent %q", task.Name, task.AgentName)
			}
		}

		for _, dep := range task.Context {
			if _, ok := p.byID[dep]; !ok {
				return configErrf("task %q depends on unknown task id %s", task.Name, dep)
			}
		}

		for label, target := range task.NextTasks {
			if _, ok := p.byID[target]; !ok {
				return configErrf("task %q routes label %q to unknown task id %s", task.Name, label, target)
			}
		}

		if task.Type == tasks.TypeDecision && len(task.NextTasks) == 0 {
			return configErrf("decision task %q declares no routing labels", task.Name)
		}
	}

	if p.mode == ModeHierarchical && len(p.agents) == 0 {
		hasExecutors := true
		for _, task := range p.tasks {
			if task.Executor == nil {
				hasExecutors = false
				break
			}
		}
		if !hasExecutors {
			return configErrf("hierarchical process %q has unassigned tasks and no registered agents", p.name)
		}
	}

	return nil
}

// TaskResult captures the terminal state of one task
type TaskResult struct {
	TaskID string
	Name   string
	Status tasks.Status
	Output *tasks.Output
	Err    error
}

// RunResult summarizes a process run. Completed is true when the run
// finished without failures and no task was left pending; tasks skipped
// by decision routing do not count against completion.
type RunResult struct {
	Completed     bool
	Order         []string
	Results       map[string]*TaskResult
	FailureReason error
}

// Run executes the process synchronously and returns per-task results.
// The returned error is non-nil only for configuration problems; task
// failures are reported through the result.
func (p *Process) Run(ctx context.Context, params map[string]string) (*RunResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.logger.Info("process %q starting in %s mode with %d tasks", p.name, p.mode, len(p.tasks))

	switch p.mode {
	case ModeSequential:
		return p.runSequential(ctx, params)
	case ModeWorkflow:
		return p.runWorkflow(ctx, params)
	case ModeHierarchical:
		return p.runHierarchical(ctx, params)
	default:
		return nil, configErrf("unknown process mode %q", p.mode)
	}
}

// AsyncResult pairs a run result with its error for channel delivery
type AsyncResult struct {
	Result *RunResult
	Err    error
}

// RunAsync executes the process in a goroutine. The returned channel
// delivers exactly one result and is then closed. Semantics are identical
// to Run.
func (p *Process) RunAsync(ctx context.Context, params map[string]string) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		result, err := p.Run(ctx, params)
		ch <- AsyncResult{Result: result, Err: err}
	}()
	return ch
}

// executeOne runs a single task with the process collaborators, expanding
// loop tasks into per-record executions
func (p *Process) executeOne(ctx context.Context, task *tasks.Task, params map[string]string, upstream map[string]*tasks.Output) *TaskResult {
	if task.Executor == nil && task.AgentName != "" {
		task.Executor = p.agents[task.AgentName]
	}

	result := &TaskResult{TaskID: task.ID, Name: task.Name}

	var output *tasks.Output
	var err error
	if task.Type == tasks.TypeLoop {
		output, err = p.executeLoop(ctx, task, params, upstream)
	} else {
		output, err = task.Execute(ctx, &tasks.ExecuteOptions{
			Params:    params,
			Upstream:  upstream,
			Memory:    p.memory,
			Knowledge: p.know,
			Evaluator: p.evaluator,
			Scope:     p.scope,
			Logger:    p.logger,
		})
	}

	result.Status = task.Status()
	result.Output = output
	result.Err = err
	if err != nil {
		p.logger.Warning("task %q failed: %v", task.Name, err)
	}
	return result
}

// routeGate tracks the control dependencies created by NextTasks. A task
// that appears as a routing target may not run until one of its routing
// tasks completes and selects it; until then it is blocked even when its
// context dependencies are satisfied.
type routeGate struct {
	// owners maps a target task id to the ids of the tasks that route
	// to it
	owners map[string][]string

	// activated holds the targets selected by a completed router
	activated map[string]bool
}

// newRouteGate indexes the routing edges of the task graph
func (p *Process) newRouteGate() *routeGate {
	g := &routeGate{
		owners:    make(map[string][]string),
		activated: make(map[string]bool),
	}
	for _, task := range p.tasks {
		if task.Type != tasks.TypeDecision {
			continue
		}
		for _, target := range task.NextTasks {
			g.owners[target] = append(g.owners[target], task.ID)
		}
	}
	return g
}

// activate releases a routing target for scheduling
func (g *routeGate) activate(id string) {
	g.activated[id] = true
}

// blocked reports whether the task is a routing target still waiting for
// a router's selection
func (g *routeGate) blocked(id string) bool {
	if g == nil || len(g.owners[id]) == 0 {
		return false
	}
	return !g.activated[id]
}

// skipUnselectedTargets skips routing targets that can no longer be
// selected: every task routing to them is terminal and none chose them.
// This covers routers that failed before routing.
func (p *Process) skipUnselectedTargets(g *routeGate, results map[string]*TaskResult) {
	for id, owners := range g.owners {
		if g.activated[id] {
			continue
		}
		target := p.byID[id]
		if target.Status() != tasks.StatusPending {
			continue
		}
		allDone := true
		for _, owner := range owners {
			if !p.byID[owner].Status().IsTerminal() {
				allDone = false
				break
			}
		}
		if allDone {
			p.logger.Debug("skipping task %q: no routing task selected it", target.Name)
			_ = target.Skip()
			results[target.ID] = &TaskResult{TaskID: target.ID, Name: target.Name, Status: target.Status()}
		}
	}
}

// routeDecision resolves a decision task's output against its routing
// labels and skips the unselected successors. The selected task id is
// returned; an output matching no label is a configuration error.
func (p *Process) routeDecision(task *tasks.Task, output *tasks.Output) (string, error) {
	selected, ok := matchLabel(output.Raw, task.NextTasks)
	if !ok {
		return "", configErrf("decision task %q produced output matching no routing label (labels: %s)",
			task.Name, strings.Join(sortedLabels(task.NextTasks), ", "))
	}

	selectedID := task.NextTasks[selected]
	for label, target := range task.NextTasks {
		if label == selected {
			continue
		}
		successor, ok := p.byID[target]
		if !ok || successor.Status().IsTerminal() {
			continue
		}
		p.logger.Debug("decision %q selected %q, skipping %q", task.Name, selected, successor.Name)
		_ = successor.Skip()
	}
	return selectedID, nil
}

// matchLabel finds the routing label selected by a decision output.
// Exact match on the trimmed lowercased output wins; otherwise the first
// label contained in the output (in sorted label order, for determinism)
// is chosen.
func matchLabel(output string, routes map[string]string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(output))
	labels := sortedLabels(routes)

	for _, label := range labels {
		if normalized == strings.ToLower(label) {
			return label, true
		}
	}
	for _, label := range labels {
		if strings.Contains(normalized, strings.ToLower(label)) {
			return label, true
		}
	}
	return "", false
}

func sortedLabels(routes map[string]string) []string {
	labels := make([]string, 0, len(routes))
	for label := range routes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// skipRemaining marks every non-terminal task skipped and records it
func skipRemaining(all []*tasks.Task, results map[string]*TaskResult) {
	for _, task := range all {
		if task.Status().IsTerminal() {
			continue
		}
		_ = task.Skip()
		if _, seen := results[task.ID]; !seen {
			results[task.ID] = &TaskResult{
				TaskID: task.ID,
				Name:   task.Name,
				Status: task.Status(),
			}
		}
	}
}

// summarizeRun folds task results into the final run result
func (p *Process) summarizeRun(order []string, results map[string]*TaskResult, failure error) *RunResult {
	completed := failure == nil
	for _, task := range p.tasks {
		if _, seen := results[task.ID]; !seen {
			results[task.ID] = &TaskResult{TaskID: task.ID, Name: task.Name, Status: task.Status()}
		}
		switch task.Status() {
		case tasks.StatusFailed:
			completed = false
			if failure == nil {
				failure = fmt.Errorf("task %q: %w", task.Name, task.Err())
			}
		case tasks.StatusPending, tasks.StatusInProgress, tasks.StatusRetrying:
			completed = false
		}
	}

	return &RunResult{
		Completed:     completed,
		Order:         order,
		Results:       results,
		FailureReason: failure,
	}
}
