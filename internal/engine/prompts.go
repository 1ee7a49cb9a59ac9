// SPDX-License-Identifier: AGPL-3.0-only
package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jolks/pipetask/internal/model"
)

// outputExcerptLen caps per-step excerpts embedded in the summary request
const outputExcerptLen = 200

// planPrompt builds the planning request: the task description plus the
// response shape the backend is asked to produce.
func planPrompt(description string) string {
	return fmt.Sprintf(`Break the following task into ordered steps.

Task: %s

Respond with a JSON object of this exact shape (it may be embedded in prose):
{
  "analysis": "<one-paragraph analysis of the task>",
  "complexity": "LOW" | "MEDIUM" | "HIGH",
  "estimatedTime": "<human-readable estimate>",
  "steps": [
    {
      "id": <integer, 1-based>,
      "description": "<what this step does>",
      "type": "file" | "analysis" | "creation" | "web" | "system" | "execution",
      "complexity": "LOW" | "MEDIUM" | "HIGH",
      "optional": <boolean>,
      "dependencies": [<ids of prior steps>]
    }
  ]
}`, description)
}

// stepPrompt builds the request for executing one step.
func stepPrompt(task *model.Task, step model.Step, completed int) string {
	return fmt.Sprintf(`You are executing one step of a larger task.

Overall task: %s
Working directory: %s
Steps completed so far: %d

Current step (%s): %s

Carry out this step and reply with its outcome.`,
		task.Description, task.WorkDir, completed, step.Type, step.Description)
}

// summaryPrompt builds the finalize request: step outcomes with truncated
// excerpts and the overall success ratio.
func summaryPrompt(task *model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the execution of this task.\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	fmt.Fprintf(&b, "Steps: %d, success ratio: %.2f\n\n", len(task.Steps), task.SuccessRatio())

	for i, r := range task.Results {
		desc := ""
		if i < len(task.Steps) {
			desc = task.Steps[i].Description
		}
		fmt.Fprintf(&b, "Step %d (%s): %s\n", r.StepID, r.Status, desc)
		if r.Output != "" {
			fmt.Fprintf(&b, "  output: %s\n", truncate(r.Output, outputExcerptLen))
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", truncate(r.Error, outputExcerptLen))
		}
	}

	b.WriteString("\nReply with a short report of what was accomplished.")
	return b.String()
}

// truncate limits s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
