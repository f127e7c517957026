package process

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/praxisai/crewkit/pkg/tasks"
)

// executeLoop runs a loop task once per record of its bound data source.
// Each record executes as an independent child task carrying {record} and
// {record_index} params; per-record failures are handled per the
// configured loop policy. The aggregate output joins the successful
// record outputs in record order.
func (p *Process) executeLoop(ctx context.Context, task *tasks.Task, params map[string]string, upstream map[string]*tasks.Output) (*tasks.Output, error) {
	records, err := loadRecords(task)
	if err != nil {
		p.logger.Error("loop task %q source: %v", task.Name, err)
		return failLoop(task, err)
	}
	if len(records) == 0 {
		return failLoop(task, fmt.Errorf("loop task %q has an empty data source", task.Name))
	}

	var outputs []string
	var failures []string
	var firstErr error

	for i, record := range records {
		child, err := childForRecord(task, i)
		if err != nil {
			return failLoop(task, err)
		}

		recordParams := make(map[string]string, len(params)+2)
		for k, v := range params {
			recordParams[k] = v
		}
		recordParams["record"] = record
		recordParams["record_index"] = strconv.Itoa(i)

		out, err := child.Execute(ctx, &tasks.ExecuteOptions{
			Params:    recordParams,
			Upstream:  upstream,
			Memory:    p.memory,
			Knowledge: p.know,
			Evaluator: p.evaluator,
			Scope:     p.scope,
			Logger:    p.logger,
		})
		if err != nil {
			p.logger.Warning("loop task %q record %d failed: %v", task.Name, i, err)
			failures = append(failures, fmt.Sprintf("record %d: %v", i, err))
			if firstErr == nil {
				firstErr = err
			}
			if p.loopPolicy == LoopFailFast {
				return failLoop(task, fmt.Errorf("record %d: %w", i, err))
			}
			continue
		}
		outputs = append(outputs, out.Raw)
	}

	if len(outputs) == 0 {
		return failLoop(task, fmt.Errorf("all %d records failed: %w", len(records), firstErr))
	}

	return completeLoop(task, records, outputs, failures)
}

// childForRecord clones the loop task body for a single record execution.
// The child keeps the parent's contract but carries its own lifecycle.
func childForRecord(parent *tasks.Task, index int) (*tasks.Task, error) {
	description := parent.Description
	if !strings.Contains(description, "{record}") {
		description += "\n\nProcess this record: {record}"
	}

	opts := []tasks.Option{
		tasks.WithExecutor(parent.Executor),
		tasks.WithAgent(parent.AgentName),
		tasks.WithContext(parent.Context...),
		tasks.WithRetainFullContext(parent.RetainFullContext),
		tasks.WithMaxRetries(parent.MaxRetries),
		tasks.WithFormat(parent.Format),
		tasks.WithMemory(parent.MemoryEnabled),
		tasks.WithQualityCheck(parent.QualityCheckEnabled),
	}
	if parent.Guardrails != nil {
		opts = append(opts, tasks.WithGuardrails(parent.Guardrails))
	}

	name := fmt.Sprintf("%s[%d]", parent.Name, index)
	return tasks.NewTask(name, description, parent.ExpectedOutput, opts...)
}

// failLoop drives the parent loop task to the failed status
func failLoop(task *tasks.Task, err error) (*tasks.Output, error) {
	if err := task.Begin(); err != nil {
		return nil, err
	}
	return nil, task.Fail(err)
}

// completeLoop drives the parent loop task to completion with the
// aggregated output
func completeLoop(task *tasks.Task, records []string, outputs, failures []string) (*tasks.Output, error) {
	if err := task.Begin(); err != nil {
		return nil, err
	}

	output := tasks.NewAggregateOutput(task.ID, strings.Join(outputs, "\n---\n"))
	output.Metadata["loop_records"] = strconv.Itoa(len(records))
	output.Metadata["loop_succeeded"] = strconv.Itoa(len(outputs))
	output.Metadata["loop_failed"] = strconv.Itoa(len(failures))
	if len(failures) > 0 {
		output.Metadata["loop_failures"] = strings.Join(failures, "; ")
	}

	if err := task.Complete(output); err != nil {
		return nil, err
	}
	return output, nil
}

// loadRecords resolves the loop data source into individual records.
// Inline items win over a source file. CSV files yield one record per data
// row rendered as "header: value" pairs; any other file yields one record
// per non-empty line.
func loadRecords(task *tasks.Task) ([]string, error) {
	if len(task.LoopItems) > 0 {
		return task.LoopItems, nil
	}

	data, err := os.ReadFile(task.LoopSource)
	if err != nil {
		return nil, fmt.Errorf("reading loop source: %w", err)
	}

	if strings.EqualFold(filepath.Ext(task.LoopSource), ".csv") {
		return csvRecords(data)
	}

	var records []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			records = append(records, line)
		}
	}
	return records, nil
}

// csvRecords renders each CSV data row as comma-joined "header: value"
// pairs
func csvRecords(data []byte) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing loop source csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := rows[0]
	records := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		pairs := make([]string, 0, len(row))
		for i, value := range row {
			key := fmt.Sprintf("col%d", i)
			if i < len(header) {
				key = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, key+": "+strings.TrimSpace(value))
		}
		records = append(records, strings.Join(pairs, ", "))
	}
	return records, nil
}
