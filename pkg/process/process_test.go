package process

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/praxisai/crewkit/pkg/tasks"
)

// callLog records invocation order across executors, safe for concurrent
// rounds
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *callLog) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.names, ",")
}

// recordingExecutor returns a fixed output and records invocation order
type recordingExecutor struct {
	name   string
	output string
	calls  *callLog
	fail   bool
}

func (e *recordingExecutor) Invoke(ctx context.Context, prompt string) (string, error) {
	if e.calls != nil {
		e.calls.add(e.name)
	}
	if e.fail {
		return "", errors.New("executor failure")
	}
	return e.output, nil
}

func mustTask(t *testing.T, name, description string, opts ...tasks.Option) *tasks.Task {
	t.Helper()
	task, err := tasks.NewTask(name, description, "", opts...)
	if err != nil {
		t.Fatalf("NewTask(%s): %v", name, err)
	}
	return task
}

func TestSequentialRunsInInsertionOrder(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("seq")

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		task := mustTask(t, name, "do "+name,
			tasks.WithExecutor(&recordingExecutor{name: name, output: name + " done", calls: calls}))
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		ids = append(ids, task.ID)
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Errorf("Completed = false, reason: %v", result.FailureReason)
	}
	if calls.joined() != "first,second,third" {
		t.Errorf("execution order = %v", calls.names)
	}
	for i, id := range result.Order {
		if id != ids[i] {
			t.Errorf("order[%d] = %s, want %s", i, id, ids[i])
		}
	}
}

func TestSequentialFailureSkipsSuccessors(t *testing.T) {
	p := NewProcess("pipeline")

	research := mustTask(t, "research", "gather sources",
		tasks.WithExecutor(&recordingExecutor{output: "sources"}))
	analyze := mustTask(t, "analyze", "analyze sources",
		tasks.WithExecutor(&recordingExecutor{fail: true}),
		tasks.WithContext(research.ID))
	report := mustTask(t, "report", "write report",
		tasks.WithExecutor(&recordingExecutor{output: "report"}),
		tasks.WithContext(analyze.ID))

	for _, task := range []*tasks.Task{research, analyze, report} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Completed {
		t.Error("Completed = true after a task failure")
	}
	if result.FailureReason == nil {
		t.Error("FailureReason is nil")
	}
	if got := result.Results[research.ID].Status; got != tasks.StatusCompleted {
		t.Errorf("research status = %s", got)
	}
	if got := result.Results[analyze.ID].Status; got != tasks.StatusFailed {
		t.Errorf("analyze status = %s", got)
	}
	if got := result.Results[report.ID].Status; got != tasks.StatusSkipped {
		t.Errorf("report status = %s, want skipped", got)
	}
}

func TestDecisionRoutingSelectsBranch(t *testing.T) {
	for _, tc := range []struct {
		name    string
		verdict string
		runWant string
	}{
		{"exact label", "approve", "publish"},
		{"label within sentence", "I would approve this draft.", "publish"},
		{"other branch", "reject", "revise"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			calls := &callLog{}
			p := NewProcess("review")

			publish := mustTask(t, "publish", "publish the draft",
				tasks.WithExecutor(&recordingExecutor{name: "publish", output: "published", calls: calls}))
			revise := mustTask(t, "revise", "revise the draft",
				tasks.WithExecutor(&recordingExecutor{name: "revise", output: "revised", calls: calls}))
			review := mustTask(t, "review", "review the draft",
				tasks.WithType(tasks.TypeDecision),
				tasks.WithExecutor(&recordingExecutor{name: "review", output: tc.verdict, calls: calls}),
				tasks.WithNextTasks(map[string]string{
					"approve": publish.ID,
					"reject":  revise.ID,
				}))

			for _, task := range []*tasks.Task{review, publish, revise} {
				if err := p.AddTask(task); err != nil {
					t.Fatalf("AddTask: %v", err)
				}
			}

			result, err := p.Run(context.Background(), nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !result.Completed {
				t.Errorf("Completed = false, reason: %v", result.FailureReason)
			}
			if calls.joined() != "review,"+tc.runWant {
				t.Errorf("execution = %v, want review then %s only", calls.names, tc.runWant)
			}
		})
	}
}

func TestDecisionUnmatchedLabelFailsRun(t *testing.T) {
	p := NewProcess("review")

	publish := mustTask(t, "publish", "publish",
		tasks.WithExecutor(&recordingExecutor{output: "published"}))
	review := mustTask(t, "review", "review",
		tasks.WithType(tasks.TypeDecision),
		tasks.WithExecutor(&recordingExecutor{output: "maybe"}),
		tasks.WithNextTasks(map[string]string{"approve": publish.ID}))

	for _, task := range []*tasks.Task{review, publish} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true with an unroutable decision")
	}
	var confErr *ConfigurationError
	if !errors.As(result.FailureReason, &confErr) {
		t.Errorf("failure type = %T, want *ConfigurationError", result.FailureReason)
	}
	if got := result.Results[publish.ID].Status; got != tasks.StatusSkipped {
		t.Errorf("publish status = %s, want skipped", got)
	}
}

// promptSensitiveExecutor fails when the prompt contains a trigger string
type promptSensitiveExecutor struct {
	trigger string
}

func (e *promptSensitiveExecutor) Invoke(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, e.trigger) {
		return "", errors.New("cannot process this record")
	}
	return "processed: " + lastLine(prompt), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestLoopContinuesPastRecordFailures(t *testing.T) {
	p := NewProcess("batch")

	loop := mustTask(t, "rows", "summarize each customer row",
		tasks.WithLoopItems("name: acme", "name: broken", "name: globex"),
		tasks.WithExecutor(&promptSensitiveExecutor{trigger: "broken"}))
	if err := p.AddTask(loop); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Errorf("Completed = false, reason: %v", result.FailureReason)
	}

	out := result.Results[loop.ID].Output
	if out == nil {
		t.Fatal("loop output is nil")
	}
	if got := out.Metadata["loop_records"]; got != "3" {
		t.Errorf("loop_records = %s", got)
	}
	if got := out.Metadata["loop_succeeded"]; got != "2" {
		t.Errorf("loop_succeeded = %s", got)
	}
	if got := out.Metadata["loop_failed"]; got != "1" {
		t.Errorf("loop_failed = %s", got)
	}
	if !strings.Contains(out.Raw, "acme") || !strings.Contains(out.Raw, "globex") {
		t.Errorf("aggregate output missing successful records:\n%s", out.Raw)
	}
}

func TestLoopFailFastStopsAtFirstFailure(t *testing.T) {
	p := NewProcess("batch", WithLoopPolicy(LoopFailFast))

	loop := mustTask(t, "rows", "summarize each row",
		tasks.WithLoopItems("good", "broken", "never-reached"),
		tasks.WithExecutor(&promptSensitiveExecutor{trigger: "broken"}))
	if err := p.AddTask(loop); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true under fail-fast with a failing record")
	}
	if got := result.Results[loop.ID].Status; got != tasks.StatusFailed {
		t.Errorf("loop status = %s, want failed", got)
	}
}

func TestLoopAllRecordsFailing(t *testing.T) {
	p := NewProcess("batch")

	loop := mustTask(t, "rows", "process rows",
		tasks.WithLoopItems("broken one", "broken two"),
		tasks.WithExecutor(&promptSensitiveExecutor{trigger: "broken"}))
	if err := p.AddTask(loop); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true with every record failing")
	}
	if got := result.Results[loop.ID].Status; got != tasks.StatusFailed {
		t.Errorf("loop status = %s, want failed", got)
	}
}

func TestWorkflowDiamondRespectsDependencies(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("diamond", WithMode(ModeWorkflow))

	a := mustTask(t, "a", "start",
		tasks.WithExecutor(&recordingExecutor{name: "a", output: "a out", calls: calls}))
	b := mustTask(t, "b", "left branch",
		tasks.WithExecutor(&recordingExecutor{name: "b", output: "b out", calls: calls}),
		tasks.WithContext(a.ID))
	c := mustTask(t, "c", "right branch",
		tasks.WithExecutor(&recordingExecutor{name: "c", output: "c out", calls: calls}),
		tasks.WithContext(a.ID))
	d := mustTask(t, "d", "join",
		tasks.WithExecutor(&recordingExecutor{name: "d", output: "d out", calls: calls}),
		tasks.WithContext(b.ID, c.ID))

	for _, task := range []*tasks.Task{a, b, c, d} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}

	if len(result.Order) != 4 {
		t.Fatalf("order = %v", result.Order)
	}
	if result.Order[0] != a.ID {
		t.Errorf("first executed = %s, want a", result.Order[0])
	}
	if result.Order[3] != d.ID {
		t.Errorf("last executed = %s, want d", result.Order[3])
	}
	for _, task := range []*tasks.Task{b, c} {
		if got := result.Results[task.ID].Status; got != tasks.StatusCompleted {
			t.Errorf("%s status = %s", task.Name, got)
		}
	}
}

func TestWorkflowFailureSkipsDependents(t *testing.T) {
	p := NewProcess("wf", WithMode(ModeWorkflow))

	a := mustTask(t, "a", "start", tasks.WithExecutor(&recordingExecutor{fail: true}))
	b := mustTask(t, "b", "dependent",
		tasks.WithExecutor(&recordingExecutor{output: "b out"}),
		tasks.WithContext(a.ID))
	side := mustTask(t, "side", "independent",
		tasks.WithExecutor(&recordingExecutor{output: "side out"}))

	for _, task := range []*tasks.Task{a, b, side} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true after failure")
	}
	if got := result.Results[b.ID].Status; got != tasks.StatusSkipped {
		t.Errorf("b status = %s, want skipped", got)
	}
	if got := result.Results[side.ID].Status; got != tasks.StatusCompleted {
		t.Errorf("side status = %s, want completed (independent of the failure)", got)
	}
}

func TestWorkflowDeadlockDetected(t *testing.T) {
	p := NewProcess("cycle", WithMode(ModeWorkflow))

	a := mustTask(t, "a", "a", tasks.WithExecutor(&recordingExecutor{output: "a"}))
	b := mustTask(t, "b", "b", tasks.WithExecutor(&recordingExecutor{output: "b"}))
	a.Context = []string{b.ID}
	b.Context = []string{a.ID}

	for _, task := range []*tasks.Task{a, b} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true for a cyclic graph")
	}
	var confErr *ConfigurationError
	if !errors.As(result.FailureReason, &confErr) {
		t.Errorf("failure type = %T, want *ConfigurationError", result.FailureReason)
	}
}

// scriptedManager replays canned assignments
type scriptedManager struct {
	assignments []Assignment
	errs        []error
	calls       int
}

func (m *scriptedManager) ChooseNext(ctx context.Context, ready []*tasks.Task, done map[string]*tasks.Output) (Assignment, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return Assignment{}, m.errs[idx]
	}
	if idx < len(m.assignments) {
		return m.assignments[idx], nil
	}
	return Assignment{TaskID: ready[0].ID}, nil
}

func TestHierarchicalManagerPicksOrder(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("team", WithMode(ModeHierarchical))

	first := mustTask(t, "first", "task one",
		tasks.WithExecutor(&recordingExecutor{name: "first", output: "one", calls: calls}))
	second := mustTask(t, "second", "task two",
		tasks.WithExecutor(&recordingExecutor{name: "second", output: "two", calls: calls}))

	for _, task := range []*tasks.Task{first, second} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	// Manager prefers the second task first
	p.manager = &scriptedManager{assignments: []Assignment{
		{TaskID: second.ID},
		{TaskID: first.ID},
	}}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}
	if calls.joined() != "second,first" {
		t.Errorf("execution order = %v, want manager order", calls.names)
	}
}

func TestHierarchicalFallsBackToInsertionOrder(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("team", WithMode(ModeHierarchical))

	first := mustTask(t, "first", "task one",
		tasks.WithExecutor(&recordingExecutor{name: "first", output: "one", calls: calls}))
	second := mustTask(t, "second", "task two",
		tasks.WithExecutor(&recordingExecutor{name: "second", output: "two", calls: calls}))

	for _, task := range []*tasks.Task{first, second} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	p.manager = &scriptedManager{errs: []error{
		errors.New("manager unavailable"),
		errors.New("manager unavailable"),
	}}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}
	if calls.joined() != "first,second" {
		t.Errorf("execution order = %v, want insertion order fallback", calls.names)
	}
}

func TestHierarchicalAgentReassignment(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("team", WithMode(ModeHierarchical))

	task := mustTask(t, "work", "do the work")
	if err := p.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	p.RegisterAgent("writer", &recordingExecutor{name: "writer", output: "done", calls: calls})
	p.RegisterAgent("editor", &recordingExecutor{name: "editor", output: "done", calls: calls})
	p.manager = &scriptedManager{assignments: []Assignment{
		{TaskID: task.ID, AgentName: "editor"},
	}}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}
	if calls.joined() != "editor" {
		t.Errorf("executed by %v, want the manager-assigned agent", calls.names)
	}
}

func TestRunAsyncDeliversOneResult(t *testing.T) {
	p := NewProcess("async")
	task := mustTask(t, "only", "do it", tasks.WithExecutor(&recordingExecutor{output: "done"}))
	if err := p.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	ch := p.RunAsync(context.Background(), nil)
	res := <-ch
	if res.Err != nil {
		t.Fatalf("RunAsync: %v", res.Err)
	}
	if !res.Result.Completed {
		t.Errorf("Completed = false, reason: %v", res.Result.FailureReason)
	}
	if _, open := <-ch; open {
		t.Error("result channel should be closed after delivering one result")
	}
}

func TestValidateRejectsBrokenGraphs(t *testing.T) {
	t.Run("empty process", func(t *testing.T) {
		p := NewProcess("empty")
		if err := p.Validate(); err == nil {
			t.Error("expected error for empty process")
		}
	})

	t.Run("dangling context", func(t *testing.T) {
		p := NewProcess("dangling")
		task := mustTask(t, "a", "a",
			tasks.WithExecutor(&recordingExecutor{output: "x"}),
			tasks.WithContext("no-such-id"))
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		if err := p.Validate(); err == nil {
			t.Error("expected error for dangling context reference")
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		p := NewProcess("agents")
		task := mustTask(t, "a", "a", tasks.WithAgent("ghost"))
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		if err := p.Validate(); err == nil {
			t.Error("expected error for unknown agent")
		}
	})

	t.Run("decision without routes", func(t *testing.T) {
		p := NewProcess("decision")
		task := mustTask(t, "a", "a",
			tasks.WithType(tasks.TypeDecision),
			tasks.WithExecutor(&recordingExecutor{output: "x"}))
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		if err := p.Validate(); err == nil {
			t.Error("expected error for decision task without routing labels")
		}
	})

	t.Run("dangling route target", func(t *testing.T) {
		p := NewProcess("routes")
		task := mustTask(t, "a", "a",
			tasks.WithType(tasks.TypeDecision),
			tasks.WithExecutor(&recordingExecutor{output: "x"}),
			tasks.WithNextTasks(map[string]string{"go": "no-such-id"}))
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		if err := p.Validate(); err == nil {
			t.Error("expected error for route to unknown task")
		}
	})
}

func TestMatchLabel(t *testing.T) {
	routes := map[string]string{"approve": "a", "reject": "b", "escalate": "c"}

	cases := []struct {
		output string
		want   string
		ok     bool
	}{
		{"approve", "approve", true},
		{"  Approve \n", "approve", true},
		{"we should reject this", "reject", true},
		{"nothing matches", "", false},
	}
	for _, tc := range cases {
		got, ok := matchLabel(tc.output, routes)
		if ok != tc.ok || got != tc.want {
			t.Errorf("matchLabel(%q) = (%q, %v), want (%q, %v)", tc.output, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWorkflowDecisionGatesBranches(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("review-flow", WithMode(ModeWorkflow))

	publish := mustTask(t, "publish", "publish the draft",
		tasks.WithExecutor(&recordingExecutor{name: "publish", output: "published", calls: calls}))
	revise := mustTask(t, "revise", "revise the draft",
		tasks.WithExecutor(&recordingExecutor{name: "revise", output: "revised", calls: calls}))
	review := mustTask(t, "review", "review the draft",
		tasks.WithType(tasks.TypeDecision),
		tasks.WithExecutor(&recordingExecutor{name: "review", output: "approve", calls: calls}),
		tasks.WithNextTasks(map[string]string{
			"approve": publish.ID,
			"reject":  revise.ID,
		}))

	// Neither branch declares a context dependency on the decision; the
	// routing edge alone must keep them from running early
	for _, task := range []*tasks.Task{review, publish, revise} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}

	if calls.joined() != "review,publish" {
		t.Errorf("execution = %v, want the decision first and only the selected branch", calls.names)
	}
	if len(result.Order) != 2 || result.Order[0] != review.ID || result.Order[1] != publish.ID {
		t.Errorf("order = %v, want [review, publish]", result.Order)
	}
	if got := result.Results[revise.ID].Status; got != tasks.StatusSkipped {
		t.Errorf("revise status = %s, want skipped (decision chose approve)", got)
	}
	if got := result.Results[publish.ID].Status; got != tasks.StatusCompleted {
		t.Errorf("publish status = %s, want completed", got)
	}
}

func TestWorkflowFailedDecisionSkipsRoutedTargets(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("review-flow", WithMode(ModeWorkflow))

	publish := mustTask(t, "publish", "publish the draft",
		tasks.WithExecutor(&recordingExecutor{name: "publish", output: "published", calls: calls}))
	revise := mustTask(t, "revise", "revise the draft",
		tasks.WithExecutor(&recordingExecutor{name: "revise", output: "revised", calls: calls}))
	review := mustTask(t, "review", "review the draft",
		tasks.WithType(tasks.TypeDecision),
		tasks.WithExecutor(&recordingExecutor{name: "review", fail: true, calls: calls}),
		tasks.WithNextTasks(map[string]string{
			"approve": publish.ID,
			"reject":  revise.ID,
		}))

	for _, task := range []*tasks.Task{review, publish, revise} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Completed {
		t.Error("Completed = true after the routing task failed")
	}
	if calls.joined() != "review" {
		t.Errorf("execution = %v, want the failed decision only", calls.names)
	}
	for _, task := range []*tasks.Task{publish, revise} {
		if got := result.Results[task.ID].Status; got != tasks.StatusSkipped {
			t.Errorf("%s status = %s, want skipped (router never selected it)", task.Name, got)
		}
	}
}

func TestHierarchicalDecisionGatesBranches(t *testing.T) {
	calls := &callLog{}
	p := NewProcess("review-team", WithMode(ModeHierarchical))

	publish := mustTask(t, "publish", "publish the draft",
		tasks.WithExecutor(&recordingExecutor{name: "publish", output: "published", calls: calls}))
	revise := mustTask(t, "revise", "revise the draft",
		tasks.WithExecutor(&recordingExecutor{name: "revise", output: "revised", calls: calls}))
	review := mustTask(t, "review", "review the draft",
		tasks.WithType(tasks.TypeDecision),
		tasks.WithExecutor(&recordingExecutor{name: "review", output: "reject", calls: calls}),
		tasks.WithNextTasks(map[string]string{
			"approve": publish.ID,
			"reject":  revise.ID,
		}))

	for _, task := range []*tasks.Task{review, publish, revise} {
		if err := p.AddTask(task); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Completed {
		t.Fatalf("Completed = false, reason: %v", result.FailureReason)
	}
	if calls.joined() != "review,revise" {
		t.Errorf("execution = %v, want the decision then the selected branch", calls.names)
	}
	if got := result.Results[publish.ID].Status; got != tasks.StatusSkipped {
		t.Errorf("publish status = %s, want skipped (decision chose reject)", got)
	}
}
