package process

import (
	"context"
	"sync"

	"github.com/praxisai/crewkit/pkg/tasks"
)

// runWorkflow executes tasks concurrently as their dependencies complete.
// Scheduling proceeds in rounds: every ready task runs in parallel, then
// decision routing and dependency skips are applied before the next
// round. Ties inside a round follow insertion order. The round count is
// bounded by maxIter so a miswired graph cannot spin forever.
func (p *Process) runWorkflow(ctx context.Context, params map[string]string) (*RunResult, error) {
	results := make(map[string]*TaskResult, len(p.tasks))
	upstream := make(map[string]*tasks.Output, len(p.tasks))
	gate := p.newRouteGate()
	var order []string

	for iter := 0; iter < p.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			skipRemaining(p.tasks, results)
			return p.summarizeRun(order, results, err), nil
		}

		p.cascadeSkips(results)
		p.skipUnselectedTargets(gate, results)

		ready := p.readyTasks(gate)
		if len(ready) == 0 {
			if pending := p.pendingTasks(); len(pending) > 0 {
				err := configErrf("workflow deadlocked with %d tasks unable to run (first: %q)", len(pending), pending[0].Name)
				skipRemaining(p.tasks, results)
				return p.summarizeRun(order, results, err), nil
			}
			return p.summarizeRun(order, results, nil), nil
		}

		roundResults := make([]*TaskResult, len(ready))
		var wg sync.WaitGroup
		for i, task := range ready {
			wg.Add(1)
			go func(i int, task *tasks.Task) {
				defer wg.Done()
				roundResults[i] = p.executeOne(ctx, task, params, upstream)
			}(i, task)
		}
		wg.Wait()

		for i, task := range ready {
			result := roundResults[i]
			results[task.ID] = result
			order = append(order, task.ID)
			if result.Err == nil {
				upstream[task.ID] = result.Output
			}
		}

		for i, task := range ready {
			if roundResults[i].Err != nil || task.Type != tasks.TypeDecision {
				continue
			}
			selected, err := p.routeDecision(task, roundResults[i].Output)
			if err != nil {
				skipRemaining(p.tasks, results)
				return p.summarizeRun(order, results, err), nil
			}
			gate.activate(selected)
		}
	}

	if pending := p.pendingTasks(); len(pending) > 0 {
		err := configErrf("workflow exceeded %d scheduling rounds with %d tasks unfinished", p.maxIter, len(pending))
		skipRemaining(p.tasks, results)
		return p.summarizeRun(order, results, err), nil
	}
	return p.summarizeRun(order, results, nil), nil
}

// readyTasks returns pending tasks whose every data dependency completed
// and whose routing gate, if any, is open, in insertion order
func (p *Process) readyTasks(gate *routeGate) []*tasks.Task {
	var ready []*tasks.Task
	for _, task := range p.tasks {
		if task.Status() != tasks.StatusPending {
			continue
		}
		if gate.blocked(task.ID) {
			continue
		}
		if p.depsCompleted(task) {
			ready = append(ready, task)
		}
	}
	return ready
}

// depsCompleted reports whether every context dependency reached the
// completed status
func (p *Process) depsCompleted(task *tasks.Task) bool {
	for _, dep := range task.Context {
		if p.byID[dep].Status() != tasks.StatusCompleted {
			return false
		}
	}
	return true
}

// cascadeSkips marks pending tasks skipped when any of their dependencies
// terminated without completing. Runs to a fixed point so skips propagate
// through chains within a single round.
func (p *Process) cascadeSkips(results map[string]*TaskResult) {
	for {
		changed := false
		for _, task := range p.tasks {
			if task.Status() != tasks.StatusPending {
				continue
			}
			for _, dep := range task.Context {
				depStatus := p.byID[dep].Status()
				if depStatus.IsTerminal() && depStatus != tasks.StatusCompleted {
					p.logger.Debug("skipping task %q: dependency %s is %s", task.Name, dep, depStatus)
					_ = task.Skip()
					results[task.ID] = &TaskResult{TaskID: task.ID, Name: task.Name, Status: task.Status()}
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// pendingTasks returns tasks that have not reached a terminal status, in
// insertion order
func (p *Process) pendingTasks() []*tasks.Task {
	var pending []*tasks.Task
	for _, task := range p.tasks {
		if !task.Status().IsTerminal() {
			pending = append(pending, task)
		}
	}
	return pending
}
