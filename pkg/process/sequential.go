package process

import (
	"context"

	"github.com/praxisai/crewkit/pkg/tasks"
)

// runSequential executes tasks strictly in insertion order. The first
// failure stops the run and every remaining task is skipped; results for
// tasks that did run are preserved.
func (p *Process) runSequential(ctx context.Context, params map[string]string) (*RunResult, error) {
	results := make(map[string]*TaskResult, len(p.tasks))
	upstream := make(map[string]*tasks.Output, len(p.tasks))
	var order []string

	for _, task := range p.tasks {
		if task.Status().IsTerminal() {
			results[task.ID] = &TaskResult{TaskID: task.ID, Name: task.Name, Status: task.Status()}
			continue
		}
		if err := ctx.Err(); err != nil {
			skipRemaining(p.tasks, results)
			return p.summarizeRun(order, results, err), nil
		}

		result := p.executeOne(ctx, task, params, upstream)
		results[task.ID] = result
		order = append(order, task.ID)

		if result.Err != nil {
			skipRemaining(p.tasks, results)
			return p.summarizeRun(order, results, result.Err), nil
		}
		upstream[task.ID] = result.Output

		if task.Type == tasks.TypeDecision {
			if _, err := p.routeDecision(task, result.Output); err != nil {
				skipRemaining(p.tasks, results)
				return p.summarizeRun(order, results, err), nil
			}
		}
	}

	return p.summarizeRun(order, results, nil), nil
}
