package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/praxisai/crewkit/pkg/guardrails"
	"github.com/praxisai/crewkit/pkg/knowledge"
	"github.com/praxisai/crewkit/pkg/memory"
	"github.com/praxisai/crewkit/pkg/quality"
	"github.com/praxisai/crewkit/pkg/utils"
)

// validate checks declared output schemas. A single instance is shared;
// the validator is safe for concurrent use.
var validate = validator.New()

// ExecuteOptions carries the run-level collaborators a task needs during
// execution. All fields are optional except what the task itself requires.
type ExecuteOptions struct {
	// Params are substituted into {placeholder} occurrences in the
	// task description
	Params map[string]string

	// Upstream maps completed task ids to their outputs for context
	// assembly
	Upstream map[string]*Output

	// Memory is the shared tiered store; used only when the task has
	// memory enabled
	Memory *memory.Store

	// Knowledge provides reference snippets for the prompt
	Knowledge *knowledge.Index

	// Evaluator derives quality metrics when quality checking is enabled
	Evaluator quality.Evaluator

	// Scope attributes memory reads and writes to a user/agent/run
	Scope memory.Scope

	// Logger defaults to a quiet logger when nil
	Logger *utils.Logger
}

// Execute runs the task to completion or terminal failure. The executor
// is invoked at most MaxRetries+1 times; validation and execution
// failures consume the retry budget, everything after a validated output
// (quality scoring, memory writes, file persistence, callbacks) does not
// trigger retries.
func (t *Task) Execute(ctx context.Context, opts *ExecuteOptions) (*Output, error) {
	if opts == nil {
		opts = &ExecuteOptions{}
	}
	// Shallow copy so collaborator fallback below never mutates the
	// caller's options
	local := *opts
	opts = &local
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	if t.Executor == nil {
		err := fmt.Errorf("task %s: %w", t.ID, ErrNoExecutor)
		t.setErr(err)
		if terr := t.transition(StatusInProgress); terr == nil {
			_ = t.transition(StatusFailed)
		}
		return nil, err
	}

	if err := t.transition(StatusInProgress); err != nil {
		return nil, err
	}

	// Run-level collaborators win; an executor carrying its own memory or
	// knowledge handle (an agent) fills the gaps
	if opts.Memory == nil {
		if holder, ok := t.Executor.(interface{ Memory() *memory.Store }); ok {
			opts.Memory = holder.Memory()
		}
	}
	if opts.Knowledge == nil {
		if holder, ok := t.Executor.(interface{ Knowledge() *knowledge.Index }); ok {
			opts.Knowledge = holder.Knowledge()
		}
	}

	description := resolveDescription(t.Description, opts.Params)
	contextBlock := buildContext(t, opts.Upstream)
	memoryBlock := t.recallMemory(ctx, opts, logger)
	knowledgeBlock := t.recallKnowledge(ctx, description, opts, logger)

	attempts := t.MaxRetries + 1
	var lastFailure error
	feedback := ""

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := t.transition(StatusRetrying); err != nil {
				return nil, err
			}
			t.bumpRetry()
			logger.Debug("task %s retrying, attempt %d/%d", t.ID, attempt+1, attempts)
			if err := t.transition(StatusInProgress); err != nil {
				return nil, err
			}
		}

		prompt := buildPrompt(t, description, contextBlock, memoryBlock, knowledgeBlock, feedback)

		raw, err := t.Executor.Invoke(ctx, prompt)
		if err != nil {
			lastFailure = &ExecutionFailure{TaskID: t.ID, Err: err}
			feedback = ""
			if ctx.Err() != nil {
				break
			}
			continue
		}

		output := newOutput(t.ID, raw)
		if vErr := t.validateOutput(ctx, output); vErr != nil {
			lastFailure = vErr
			var vf *ValidationFailure
			if errors.As(vErr, &vf) {
				feedback = vf.Feedback
			}
			continue
		}

		t.finalize(ctx, output, description, opts, logger)

		if err := t.transition(StatusCompleted); err != nil {
			return nil, err
		}
		t.setOutput(output)
		for _, cb := range t.callbacks {
			cb(t, output)
		}
		return output, nil
	}

	err := &RetryBudgetExhausted{TaskID: t.ID, Attempts: t.RetryCount() + 1, Cause: lastFailure}
	t.setErr(err)
	_ = t.transition(StatusFailed)
	return nil, err
}

// validateOutput enforces the output contract: format checks first, then
// the guardrail chain in declared order with short-circuit on failure.
func (t *Task) validateOutput(ctx context.Context, output *Output) error {
	if strings.TrimSpace(output.Raw) == "" {
		return &ValidationFailure{TaskID: t.ID, Feedback: "output is empty"}
	}

	if t.Format == FormatJSON {
		payload := stripCodeFence(output.Raw)

		if t.OutputSchema != nil {
			target := reflect.New(reflect.TypeOf(t.OutputSchema).Elem()).Interface()
			if err := json.Unmarshal([]byte(payload), target); err != nil {
				return &ValidationFailure{TaskID: t.ID, Feedback: fmt.Sprintf("output is not valid JSON for the expected schema: %v", err)}
			}
			if err := validate.Struct(target); err != nil {
				return &ValidationFailure{TaskID: t.ID, Feedback: fmt.Sprintf("output JSON failed schema validation: %v", err)}
			}
			output.Parsed = target
		} else {
			var anyValue interface{}
			if err := json.Unmarshal([]byte(payload), &anyValue); err != nil {
				return &ValidationFailure{TaskID: t.ID, Feedback: fmt.Sprintf("output is not valid JSON: %v", err)}
			}
			output.Parsed = anyValue
		}
		output.Raw = payload
	}

	if t.Guardrails.Len() > 0 {
		results, err := t.Guardrails.Evaluate(ctx, output.Raw)
		if err != nil {
			return &ExecutionFailure{TaskID: t.ID, Err: err}
		}
		if !guardrails.Passed(results) {
			last := results[len(results)-1]
			return &ValidationFailure{TaskID: t.ID, Guardrail: last.Guardrail, Feedback: guardrails.LastFeedback(results)}
		}
	}

	return nil
}

// finalize runs the post-validation side effects: quality scoring, memory
// write, file persistence. Failures here are recorded in output metadata
// and never fail the task.
func (t *Task) finalize(ctx context.Context, output *Output, description string, opts *ExecuteOptions, logger *utils.Logger) {
	output.Metadata[MetaRetryCount] = strconv.Itoa(t.RetryCount())
	output.Metadata[MetaDurationMS] = strconv.FormatInt(t.Duration().Milliseconds(), 10)
	if t.AgentName != "" {
		output.Metadata[MetaAgentName] = t.AgentName
	}

	if t.QualityCheckEnabled && opts.Evaluator != nil {
		metrics, err := opts.Evaluator.Evaluate(ctx, description, output.Raw)
		if err != nil {
			logger.Warning("task %s quality evaluation failed: %v", t.ID, err)
		} else {
			score := quality.Score(metrics, nil)
			output.QualityScore = &score
			output.Metadata[MetaQualityScore] = strconv.FormatFloat(score, 'f', 4, 64)
		}
	}

	if t.MemoryEnabled && opts.Memory != nil {
		value := fmt.Sprintf("Task: %s\nResult: %s", description, output.Raw)
		_, err := opts.Memory.Add(ctx, memory.TierLong, value, opts.Scope, &memory.AddOptions{
			QualityScore: output.QualityScore,
			Metadata:     map[string]string{"task_id": t.ID},
		})
		if err != nil {
			logger.Warning("task %s memory write failed: %v", t.ID, err)
			output.Metadata[MetaMemoryError] = err.Error()
		}
	}

	if err := t.persist(output); err != nil {
		logger.Warning("%v", err)
		output.Metadata["output_file_error"] = err.Error()
	} else if t.OutputFile != "" {
		output.Metadata[MetaOutputFile] = t.OutputFile
	}
}

// recallMemory retrieves task-relevant memories for prompt assembly.
// Retrieval failures degrade to an empty block.
func (t *Task) recallMemory(ctx context.Context, opts *ExecuteOptions, logger *utils.Logger) string {
	if !t.MemoryEnabled || opts.Memory == nil {
		return ""
	}

	filter := memory.Filter{
		UserID:  opts.Scope.UserID,
		AgentID: opts.Scope.AgentID,
		RunID:   opts.Scope.RunID,
	}
	results, err := opts.Memory.Search(ctx, t.Description, filter, nil)
	if err != nil {
		logger.Warning("task %s memory recall failed: %v", t.ID, err)
		return ""
	}

	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Record.Value)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// recallKnowledge retrieves reference chunks for prompt assembly
func (t *Task) recallKnowledge(ctx context.Context, query string, opts *ExecuteOptions, logger *utils.Logger) string {
	if opts.Knowledge == nil {
		return ""
	}

	chunks, err := opts.Knowledge.Search(ctx, query, 3, false)
	if err != nil {
		logger.Warning("task %s knowledge recall failed: %v", t.ID, err)
		return ""
	}

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString("- ")
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stripCodeFence removes a surrounding markdown code fence from model
// output, tolerating a language tag on the opening fence
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
