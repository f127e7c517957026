package process

import (
	"context"

	"github.com/praxisai/crewkit/pkg/tasks"
)

// runHierarchical executes one task at a time, asking the manager which
// ready task runs next. A manager error or an unknown task id falls back
// to the first ready task in insertion order; the run never fails because
// of the manager. The manager may also reassign the chosen task to any
// registered agent.
func (p *Process) runHierarchical(ctx context.Context, params map[string]string) (*RunResult, error) {
	results := make(map[string]*TaskResult, len(p.tasks))
	upstream := make(map[string]*tasks.Output, len(p.tasks))
	gate := p.newRouteGate()
	var order []string

	for iter := 0; iter < p.maxIter*max(1, len(p.tasks)); iter++ {
		if err := ctx.Err(); err != nil {
			skipRemaining(p.tasks, results)
			return p.summarizeRun(order, results, err), nil
		}

		p.cascadeSkips(results)
		p.skipUnselectedTargets(gate, results)

		ready := p.readyTasks(gate)
		if len(ready) == 0 {
			if pending := p.pendingTasks(); len(pending) > 0 {
				err := configErrf("hierarchical run deadlocked with %d tasks unable to run (first: %q)", len(pending), pending[0].Name)
				skipRemaining(p.tasks, results)
				return p.summarizeRun(order, results, err), nil
			}
			return p.summarizeRun(order, results, nil), nil
		}

		task := p.pickNext(ctx, ready, upstream)

		result := p.executeOne(ctx, task, params, upstream)
		results[task.ID] = result
		order = append(order, task.ID)
		if result.Err == nil {
			upstream[task.ID] = result.Output
		}

		if task.Type == tasks.TypeDecision && result.Err == nil {
			selected, err := p.routeDecision(task, result.Output)
			if err != nil {
				skipRemaining(p.tasks, results)
				return p.summarizeRun(order, results, err), nil
			}
			gate.activate(selected)
		}
	}

	err := configErrf("hierarchical run exceeded its scheduling budget")
	skipRemaining(p.tasks, results)
	return p.summarizeRun(order, results, err), nil
}

// pickNext consults the manager for the next task, falling back to
// insertion order when the manager is absent, errors out or names an
// unknown task
func (p *Process) pickNext(ctx context.Context, ready []*tasks.Task, upstream map[string]*tasks.Output) *tasks.Task {
	chosen := ready[0]

	if p.manager != nil {
		assignment, err := p.manager.ChooseNext(ctx, ready, upstream)
		switch {
		case err != nil:
			p.logger.Warning("manager scheduling failed, falling back to insertion order: %v", err)
		default:
			found := false
			for _, task := range ready {
				if task.ID == assignment.TaskID {
					chosen = task
					found = true
					break
				}
			}
			if !found {
				p.logger.Warning("manager chose unknown task %s, falling back to insertion order", assignment.TaskID)
			} else if assignment.AgentName != "" {
				if executor, ok := p.agents[assignment.AgentName]; ok {
					p.logger.Debug("manager assigned task %q to agent %q", chosen.Name, assignment.AgentName)
					chosen.AgentName = assignment.AgentName
					chosen.Executor = executor
				} else {
					p.logger.Warning("manager assigned unknown agent %q, keeping original assignment", assignment.AgentName)
				}
			}
		}
	}

	// Unassigned tasks fall back to the first registered agent
	if chosen.Executor == nil && chosen.AgentName == "" && len(p.agentOrder) > 0 {
		chosen.AgentName = p.agentOrder[0]
	}

	return chosen
}
