package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Format declares the expected shape of a task's output
type Format string

const (
	// FormatRaw accepts any non-empty text
	FormatRaw Format = "raw"
	// FormatJSON requires the output to be valid JSON; with an output
	// schema it must also unmarshal and validate into the prototype
	FormatJSON Format = "json"
	// FormatFile behaves like raw but requires an output file path
	FormatFile Format = "file"
)

// Metadata keys attached to task outputs
const (
	MetaQualityScore = "quality_score"
	MetaRetryCount   = "retry_count"
	MetaAgentName    = "agent_name"
	MetaMemoryError  = "memory_error"
	MetaDurationMS   = "duration_ms"
	MetaOutputFile   = "output_file"
)

// Output is the immutable result of a completed task execution
type Output struct {
	// TaskID identifies the producing task
	TaskID string

	// Raw is the validated raw text returned by the executor
	Raw string

	// Parsed holds the typed value when an output schema was declared
	Parsed interface{}

	// QualityScore is set when quality checking ran; nil otherwise
	QualityScore *float64

	// Metadata carries auxiliary execution facts. Failures of optional
	// side effects (memory writes) are recorded here, never surfaced as
	// execution errors.
	Metadata map[string]string

	// CreatedAt is the completion timestamp
	CreatedAt time.Time
}

// newOutput builds an output for the given task
func newOutput(taskID, raw string) *Output {
	return &Output{
		TaskID:    taskID,
		Raw:       raw,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
}

// NewAggregateOutput builds an output assembled outside the normal
// execution path, such as the merged result of a loop task
func NewAggregateOutput(taskID, raw string) *Output {
	return newOutput(taskID, raw)
}

// persist writes the raw output to the task's output file. Parent
// directories are created only when the task asked for it.
func (t *Task) persist(output *Output) error {
	if t.OutputFile == "" {
		return nil
	}

	if t.MakeDirs {
		if err := os.MkdirAll(filepath.Dir(t.OutputFile), 0o755); err != nil {
			return fmt.Errorf("creating output directory for task %s: %w", t.ID, err)
		}
	}

	if err := os.WriteFile(t.OutputFile, []byte(output.Raw), 0o644); err != nil {
		return fmt.Errorf("writing output file for task %s: %w", t.ID, err)
	}
	return nil
}
