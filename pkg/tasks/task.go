package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxisai/crewkit/pkg/guardrails"
)

// Type distinguishes how a task is scheduled
type Type string

const (
	// TypeStandard tasks run once
	TypeStandard Type = "standard"
	// TypeDecision tasks route to a successor by matching their output
	// against next-task labels
	TypeDecision Type = "decision"
	// TypeLoop tasks run their body once per record of a bound data source
	TypeLoop Type = "loop"
)

// Executor runs a resolved prompt and returns the raw output. Agents
// satisfy this interface; the long-latency LLM call happens here.
type Executor interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Callback receives the task output after successful completion. This is
// the canonical signature; adapters below normalize simpler handlers at
// registration time.
type Callback func(task *Task, output *Output)

// AdaptOutputCallback wraps a handler that only wants the output
func AdaptOutputCallback(fn func(*Output)) Callback {
	return func(_ *Task, output *Output) {
		fn(output)
	}
}

// AdaptNotifyCallback wraps a zero-argument completion handler
func AdaptNotifyCallback(fn func()) Callback {
	return func(*Task, *Output) {
		fn()
	}
}

// Task represents a unit of work to be executed by an agent
type Task struct {
	// Identity and contract
	ID             string
	Name           string
	Description    string
	ExpectedOutput string
	Type           Type

	// Assignment
	AgentName string
	Executor  Executor

	// Context wiring: ids of upstream tasks whose outputs feed this task.
	// RetainFullContext keeps entire upstream outputs; otherwise a
	// deterministic bounded summary is used.
	Context           []string
	RetainFullContext bool

	// Output contract
	Format       Format
	OutputSchema interface{} // pointer prototype for typed/schema output
	OutputFile   string
	MakeDirs     bool

	// Validation and retry
	Guardrails *guardrails.Chain
	MaxRetries int

	// Memory and quality flags
	MemoryEnabled       bool
	QualityCheckEnabled bool

	// Routing: label -> successor task id, used by decision and loop tasks
	NextTasks map[string]string

	// Loop binding: path to a data source (CSV rows or plain lines) or
	// inline items. Exactly one is required for loop tasks.
	LoopSource string
	LoopItems  []string

	// Callbacks invoked with the final output on completion
	callbacks []Callback

	mu         sync.Mutex
	status     Status
	retryCount int
	output     *Output
	lastErr    error
	createdAt  time.Time
	startedAt  *time.Time
	finishedAt *time.Time
}

// Option configures a task at construction
type Option func(*Task)

// WithType sets the task type
func WithType(taskType Type) Option {
	return func(t *Task) { t.Type = taskType }
}

// WithAgent names the agent the task is assigned to
func WithAgent(name string) Option {
	return func(t *Task) { t.AgentName = name }
}

// WithExecutor binds the executor directly
func WithExecutor(executor Executor) Option {
	return func(t *Task) { t.Executor = executor }
}

// WithContext declares upstream task dependencies, in order
func WithContext(taskIDs ...string) Option {
	return func(t *Task) { t.Context = taskIDs }
}

// WithRetainFullContext keeps full upstream outputs instead of summaries
func WithRetainFullContext(retain bool) Option {
	return func(t *Task) { t.RetainFullContext = retain }
}

// WithGuardrails sets the post-execution validation chain
func WithGuardrails(chain *guardrails.Chain) Option {
	return func(t *Task) { t.Guardrails = chain }
}

// WithMaxRetries bounds the retry budget; 0 means a single attempt
func WithMaxRetries(n int) Option {
	return func(t *Task) { t.MaxRetries = n }
}

// WithFormat sets the output format contract
func WithFormat(format Format) Option {
	return func(t *Task) { t.Format = format }
}

// WithOutputSchema declares a pointer prototype the JSON output must
// unmarshal and validate into
func WithOutputSchema(prototype interface{}) Option {
	return func(t *Task) {
		t.Format = FormatJSON
		t.OutputSchema = prototype
	}
}

// WithOutputFile persists the raw output to the given path on completion
func WithOutputFile(path string, makeDirs bool) Option {
	return func(t *Task) {
		t.OutputFile = path
		t.MakeDirs = makeDirs
	}
}

// WithMemory enables memory retrieval and writes for this task
func WithMemory(enabled bool) Option {
	return func(t *Task) { t.MemoryEnabled = enabled }
}

// WithQualityCheck enables output quality scoring
func WithQualityCheck(enabled bool) Option {
	return func(t *Task) { t.QualityCheckEnabled = enabled }
}

// WithNextTasks declares routing labels to successor task ids
func WithNextTasks(routes map[string]string) Option {
	return func(t *Task) { t.NextTasks = routes }
}

// WithLoopSource binds a loop task to a data source file
func WithLoopSource(path string) Option {
	return func(t *Task) {
		t.Type = TypeLoop
		t.LoopSource = path
	}
}

// WithLoopItems binds a loop task to inline records
func WithLoopItems(items ...string) Option {
	return func(t *Task) {
		t.Type = TypeLoop
		t.LoopItems = items
	}
}

// WithCallback registers a completion callback
func WithCallback(cb Callback) Option {
	return func(t *Task) { t.callbacks = append(t.callbacks, cb) }
}

// NewTask creates a new task instance
func NewTask(name, description, expectedOutput string, opts ...Option) (*Task, error) {
	if description == "" {
		return nil, fmt.Errorf("task description cannot be empty")
	}

	t := &Task{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		ExpectedOutput: expectedOutput,
		Type:           TypeStandard,
		Format:         FormatRaw,
		status:         StatusPending,
		createdAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.Type == TypeLoop && t.LoopSource == "" && len(t.LoopItems) == 0 {
		return nil, fmt.Errorf("loop task %s requires a data source", t.Name)
	}

	return t, nil
}

// Status returns the current lifecycle status
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// RetryCount returns how many retries have been consumed
func (t *Task) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

// Output returns the final output if the task completed
func (t *Task) Output() *Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

// Err returns the terminal failure reason, if any
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Skip marks a pending task skipped
func (t *Task) Skip() error {
	return t.transition(StatusSkipped)
}

// Begin marks the task in progress. Used by orchestration layers that
// drive the lifecycle externally, such as loop expansion.
func (t *Task) Begin() error {
	return t.transition(StatusInProgress)
}

// Complete finishes the task with an externally produced output and fires
// its callbacks
func (t *Task) Complete(output *Output) error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}
	t.setOutput(output)
	for _, cb := range t.callbacks {
		cb(t, output)
	}
	return nil
}

// Fail marks the task terminally failed with the given reason, which is
// returned for convenience
func (t *Task) Fail(err error) error {
	t.setErr(err)
	if terr := t.transition(StatusFailed); terr != nil {
		return terr
	}
	return err
}

// Duration returns how long the task ran
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt == nil {
		return 0
	}
	if t.finishedAt == nil {
		return time.Since(*t.startedAt)
	}
	return t.finishedAt.Sub(*t.startedAt)
}

// transition moves the task through its lifecycle, rejecting illegal moves
func (t *Task) transition(to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.status, to) {
		return fmt.Errorf("task %s: illegal status transition %s -> %s", t.ID, t.status, to)
	}

	now := time.Now()
	switch to {
	case StatusInProgress:
		if t.startedAt == nil {
			t.startedAt = &now
		}
	case StatusCompleted, StatusFailed, StatusSkipped:
		t.finishedAt = &now
	}

	t.status = to
	return nil
}

func (t *Task) setOutput(output *Output) {
	t.mu.Lock()
	t.output = output
	t.mu.Unlock()
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

func (t *Task) bumpRetry() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryCount++
	return t.retryCount
}
