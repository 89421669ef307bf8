package engine

import (
	"fmt"
	"sort"
)

// Validate runs the static validation pass over a definition. It checks,
// without invoking any agent:
//
//   - every step type is registered,
//   - every agent name resolves,
//   - require_review implies a registered review type,
//   - every ${key} reference is produced by an earlier step's outputs or
//     declared in the definition's inputs.
//
// All issues are collected into one ValidationError so the caller gets a
// complete report.
func Validate(def *WorkflowDefinition, agents AgentResolver, gate ReviewGate, types StepTypes) error {
	var issues []error

	produced := make(map[string]bool, len(def.Inputs))
	for _, key := range def.Inputs {
		produced[key] = true
	}

	for i, step := range def.Steps {
		if !types.Known(step.Type) {
			issues = append(issues, fmt.Errorf("step %d: %w: %q", i, ErrUnknownStepType, step.Type))
		}
		if _, ok := agents.Resolve(step.Agent); !ok {
			issues = append(issues, fmt.Errorf("step %d: %w: %q", i, ErrUnknownAgent, step.Agent))
		}
		if step.RequireReview {
			if step.ReviewType == "" {
				issues = append(issues, fmt.Errorf("step %d: review_type is required when require_review is set", i))
			} else if !gate.Has(step.ReviewType) {
				issues = append(issues, fmt.Errorf("step %d: %w: %q", i, ErrUnknownReviewType, step.ReviewType))
			}
		}

		refs := References(step.Params)
		sort.Strings(refs)
		reported := make(map[string]bool)
		for _, key := range refs {
			if produced[key] || reported[key] {
				continue
			}
			reported[key] = true
			issues = append(issues, fmt.Errorf("step %d: %w: %q is not produced by an earlier step or declared as an input", i, ErrUnresolvedReference, key))
		}

		// Outputs become visible to later steps only.
		for _, key := range step.Outputs {
			produced[key] = true
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Definition: def.Name, Issues: issues}
	}
	return nil
}
