// SPDX-License-Identifier: AGPL-3.0-only
package engine

import (
	"fmt"

	"github.com/jolks/pipetask/internal/model"
	"github.com/tidwall/gjson"
)

// extractJSON returns the first balanced brace-delimited substring of s.
// Braces inside JSON strings do not count toward the balance.
func extractJSON(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// parsePlan interprets the planning reply. It pulls the first balanced
// JSON object out of the (possibly prose-wrapped) reply and walks it
// tolerantly: unknown fields are ignored, missing tags get defaults.
func parsePlan(reply string) (*model.Plan, error) {
	raw, ok := extractJSON(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON object in planning reply")
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON in planning reply")
	}

	doc := gjson.Parse(raw)
	stepsVal := doc.Get("steps")
	if !stepsVal.IsArray() || len(stepsVal.Array()) == 0 {
		return nil, fmt.Errorf("planning reply has no steps")
	}

	plan := &model.Plan{
		Analysis:      doc.Get("analysis").String(),
		Complexity:    complexityOrDefault(doc.Get("complexity").String()),
		EstimatedTime: doc.Get("estimatedTime").String(),
	}

	for i, sv := range stepsVal.Array() {
		desc := sv.Get("description").String()
		if desc == "" {
			return nil, fmt.Errorf("step %d has no description", i+1)
		}
		id := int(sv.Get("id").Int())
		if id <= 0 {
			id = i + 1
		}
		step := model.Step{
			ID:          id,
			Description: desc,
			Type:        stepTypeOrDefault(sv.Get("type").String()),
			Complexity:  complexityOrDefault(sv.Get("complexity").String()),
			Optional:    sv.Get("optional").Bool(),
		}
		for _, dep := range sv.Get("dependencies").Array() {
			step.Dependencies = append(step.Dependencies, int(dep.Int()))
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

// fallbackPlan is used when the planning reply yields nothing parseable:
// a fixed 2-step plan that analyzes the task and then executes it verbatim.
func fallbackPlan(description string) []model.Step {
	return []model.Step{
		{
			ID:          1,
			Description: "Analyze the task requirements",
			Type:        model.StepTypeAnalysis,
			Complexity:  model.ComplexityLow,
			Optional:    false,
		},
		{
			ID:           2,
			Description:  description,
			Type:         model.StepTypeExecution,
			Complexity:   model.ComplexityMedium,
			Optional:     false,
			Dependencies: []int{1},
		},
	}
}

func complexityOrDefault(s string) model.Complexity {
	switch model.Complexity(s) {
	case model.ComplexityLow, model.ComplexityMedium, model.ComplexityHigh:
		return model.Complexity(s)
	default:
		return model.ComplexityMedium
	}
}

func stepTypeOrDefault(s string) model.StepType {
	switch model.StepType(s) {
	case model.StepTypeFile, model.StepTypeAnalysis, model.StepTypeCreation,
		model.StepTypeWeb, model.StepTypeSystem, model.StepTypeExecution:
		return model.StepType(s)
	default:
		return model.StepTypeExecution
	}
}
