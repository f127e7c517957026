package tasks

import (
	"fmt"
	"strings"
	"unicode"
)

// summaryLimit bounds the context carried from each upstream task when
// full context retention is off
const summaryLimit = 400

// resolveDescription substitutes {placeholder} occurrences in the task
// description with values from params. Unknown placeholders are left
// untouched so missing params are visible in the prompt.
func resolveDescription(description string, params map[string]string) string {
	if len(params) == 0 {
		return description
	}
	resolved := description
	for key, value := range params {
		resolved = strings.ReplaceAll(resolved, "{"+key+"}", value)
	}
	return resolved
}

// buildContext assembles the upstream context block for a task prompt.
// Upstream outputs are included in the task's declared dependency order;
// tasks without output (skipped or failed upstream) are omitted.
func buildContext(task *Task, upstream map[string]*Output) string {
	if len(task.Context) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, id := range task.Context {
		out, ok := upstream[id]
		if !ok || out == nil {
			continue
		}
		text := out.Raw
		if !task.RetainFullContext {
			text = summarize(text, summaryLimit)
		}
		fmt.Fprintf(&sb, "[from task %s]\n%s\n\n", id, text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// summarize truncates text to at most limit runes, cutting at the last
// word boundary before the limit and marking the cut. Deterministic: the
// same input always yields the same summary.
func summarize(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}

	return strings.TrimRight(string(runes[:cut]), " \t\n") + " [...]"
}

// buildPrompt composes the full executor prompt from the resolved
// description, upstream context, retrieved memory, knowledge snippets and
// accumulated validation feedback.
func buildPrompt(task *Task, description, contextBlock, memoryBlock, knowledgeBlock, feedback string) string {
	var sb strings.Builder
	sb.WriteString(description)

	if task.ExpectedOutput != "" {
		fmt.Fprintf(&sb, "\n\nExpected output: %s", task.ExpectedOutput)
	}
	if task.Format == FormatJSON {
		sb.WriteString("\n\nRespond with valid JSON only.")
	}
	if contextBlock != "" {
		fmt.Fprintf(&sb, "\n\nContext from previous tasks:\n%s", contextBlock)
	}
	if memoryBlock != "" {
		fmt.Fprintf(&sb, "\n\nRelevant memory:\n%s", memoryBlock)
	}
	if knowledgeBlock != "" {
		fmt.Fprintf(&sb, "\n\nReference material:\n%s", knowledgeBlock)
	}
	if feedback != "" {
		fmt.Fprintf(&sb, "\n\nYour previous attempt was rejected: %s\nAddress this feedback in your answer.", feedback)
	}

	return sb.String()
}
