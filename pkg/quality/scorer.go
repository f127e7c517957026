package quality

import (
	"context"
	"fmt"
)

// Metrics holds the individual quality dimensions of a produced output.
// Each value is expected to be in [0,1]; out-of-range values are clamped
// during scoring.
type Metrics struct {
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Clarity      float64 `json:"clarity"`
	Accuracy     float64 `json:"accuracy"`
}

// Weights controls the relative importance of each metric
type Weights struct {
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Clarity      float64 `json:"clarity"`
	Accuracy     float64 `json:"accuracy"`
}

// DefaultWeights returns evenly distributed weights summing to 1.0
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.25,
		Relevance:    0.25,
		Clarity:      0.25,
		Accuracy:     0.25,
	}
}

// Score combines already-computed metrics into a single quality score in
// [0,1]. When weights is nil the default even weighting is used. Weights
// that do not sum to 1 are normalized so the result stays bounded.
func Score(m Metrics, weights *Weights) float64 {
	w := DefaultWeights()
	if weights != nil {
		w = *weights
	}

	total := w.Completeness + w.Relevance + w.Clarity + w.Accuracy
	if total <= 0 {
		return 0
	}

	score := clamp(m.Completeness)*w.Completeness +
		clamp(m.Relevance)*w.Relevance +
		clamp(m.Clarity)*w.Clarity +
		clamp(m.Accuracy)*w.Accuracy
	score /= total

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Evaluator derives quality metrics for a produced output. Metric
// derivation is typically LLM-assisted and lives behind this interface;
// combining the metrics into a score is always done by Score.
type Evaluator interface {
	Evaluate(ctx context.Context, task string, output string) (Metrics, error)
}

// HeuristicEvaluator derives metrics from simple textual signals. It is
// deterministic, which makes it suitable for tests and offline runs.
type HeuristicEvaluator struct {
	// MinLength is the output length considered fully complete
	MinLength int
}

// NewHeuristicEvaluator creates a heuristic evaluator
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{MinLength: 200}
}

// Evaluate implements Evaluator
func (e *HeuristicEvaluator) Evaluate(ctx context.Context, task string, output string) (Metrics, error) {
	if output == "" {
		return Metrics{}, fmt.Errorf("cannot evaluate empty output")
	}

	completeness := float64(len(output)) / float64(e.MinLength)
	if completeness > 1 {
		completeness = 1
	}

	relevance := overlapRatio(task, output)

	// Clarity approximated by sentence structure: outputs made of a single
	// unbroken run of text score lower than structured ones.
	clarity := 0.5
	for _, c := range output {
		if c == '.' || c == '\n' {
			clarity = 1.0
			break
		}
	}

	// Accuracy cannot be derived heuristically; assume neutral
	accuracy := 0.5

	return Metrics{
		Completeness: completeness,
		Relevance:    relevance,
		Clarity:      clarity,
		Accuracy:     accuracy,
	}, nil
}

// overlapRatio returns the fraction of words in a that also appear in b
func overlapRatio(a, b string) float64 {
	wordsA := fields(a)
	if len(wordsA) == 0 {
		return 0
	}

	wordsB := make(map[string]struct{})
	for _, w := range fields(b) {
		wordsB[w] = struct{}{}
	}

	matched := 0
	for _, w := range wordsA {
		if _, ok := wordsB[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(wordsA))
}

func fields(s string) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			cur = append(cur, r)
		case r >= 'A' && r <= 'Z':
			cur = append(cur, r+('a'-'A'))
		default:
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
