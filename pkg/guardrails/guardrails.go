package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxisai/crewkit/pkg/llm"
)

// Result holds the outcome of a single guardrail check
type Result struct {
	// Pass indicates whether the output passed the check
	Pass bool

	// Feedback explains the failure and is fed back into the next
	// execution attempt's prompt
	Feedback string

	// Guardrail is the name of the guardrail that produced this result
	Guardrail string
}

// Guardrail validates a produced output after execution
type Guardrail interface {
	// Name returns the guardrail name used in feedback and metadata
	Name() string

	// Check validates the output, returning pass/fail plus feedback
	Check(ctx context.Context, output string) (Result, error)
}

// CheckFunc is the canonical validation function signature
type CheckFunc func(ctx context.Context, output string) (bool, string)

// FuncGuardrail wraps a plain function as a Guardrail
type FuncGuardrail struct {
	name  string
	check CheckFunc
}

// NewFuncGuardrail creates a guardrail from the canonical function signature
func NewFuncGuardrail(name string, check CheckFunc) *FuncGuardrail {
	return &FuncGuardrail{name: name, check: check}
}

// NewSimpleGuardrail adapts a context-free pass/fail function. The adapter
// is resolved here at registration time, not per call.
func NewSimpleGuardrail(name string, check func(output string) bool) *FuncGuardrail {
	return &FuncGuardrail{
		name: name,
		check: func(ctx context.Context, output string) (bool, string) {
			if check(output) {
				return true, ""
			}
			return false, fmt.Sprintf("output rejected by guardrail %q", name)
		},
	}
}

// Name implements Guardrail.Name
func (g *FuncGuardrail) Name() string { return g.name }

// Check implements Guardrail.Check
func (g *FuncGuardrail) Check(ctx context.Context, output string) (Result, error) {
	pass, feedback := g.check(ctx, output)
	return Result{Pass: pass, Feedback: feedback, Guardrail: g.name}, nil
}

// LLMGuardrail validates output using a judge model. The model is asked
// for a PASS/FAIL verdict followed by an explanation.
type LLMGuardrail struct {
	name     string
	criteria string
	provider llm.Provider
}

// NewLLMGuardrail creates a model-backed guardrail with free-text criteria
func NewLLMGuardrail(name, criteria string, provider llm.Provider) *LLMGuardrail {
	return &LLMGuardrail{name: name, criteria: criteria, provider: provider}
}

// Name implements Guardrail.Name
func (g *LLMGuardrail) Name() string { return g.name }

// Check implements Guardrail.Check
func (g *LLMGuardrail) Check(ctx context.Context, output string) (Result, error) {
	prompt := fmt.Sprintf(`You are a strict output validator.

Validation criteria: %s

Output to validate:
%s

Reply with a single line starting with PASS or FAIL, followed by a brief explanation.`, g.criteria, output)

	verdict, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("guardrail %q judge call failed: %w", g.name, err)
	}

	trimmed := strings.TrimSpace(verdict)
	pass := strings.HasPrefix(strings.ToUpper(trimmed), "PASS")

	feedback := ""
	if !pass {
		feedback = trimmed
	}

	return Result{Pass: pass, Feedback: feedback, Guardrail: g.name}, nil
}

// Chain evaluates guardrails in declared order
type Chain struct {
	guardrails []Guardrail
}

// NewChain creates a guardrail chain
func NewChain(guardrails ...Guardrail) *Chain {
	return &Chain{guardrails: guardrails}
}

// Add appends a guardrail to the chain
func (c *Chain) Add(g Guardrail) {
	c.guardrails = append(c.guardrails, g)
}

// Len returns the number of guardrails in the chain
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.guardrails)
}

// Evaluate runs the chain against the output, stopping at the first
// failure. An empty chain always passes. The returned slice contains one
// result per guardrail that actually ran.
func (c *Chain) Evaluate(ctx context.Context, output string) ([]Result, error) {
	if c == nil {
		return nil, nil
	}

	var results []Result
	for _, g := range c.guardrails {
		result, err := g.Check(ctx, output)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if !result.Pass {
			break
		}
	}
	return results, nil
}

// Passed reports whether every result in the slice passed
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// LastFeedback returns the feedback of the last (failing) result
func LastFeedback(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	last := results[len(results)-1]
	if last.Pass {
		return ""
	}
	if last.Feedback == "" {
		return fmt.Sprintf("guardrail %q failed", last.Guardrail)
	}
	return last.Feedback
}
