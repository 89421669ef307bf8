package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Definition errors, detected by static validation before any step runs.
var (
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrUnknownStepType     = errors.New("unknown step type")
	ErrUnknownReviewType   = errors.New("unknown review type")
	ErrUnresolvedReference = errors.New("unresolved context reference")
)

// ErrTerminalState signals a transition attempted on a terminal run state.
// This is an engine defect, never a user-facing failure.
var ErrTerminalState = errors.New("workflow state is terminal")

// ErrRunNotFound is returned by stores when no state exists for a run ID.
var ErrRunNotFound = errors.New("run not found")

// ValidationError aggregates all definition errors found by the static
// validation pass, so a caller sees the full report at once.
type ValidationError struct {
	Definition string
	Issues     []error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Error())
	}
	return fmt.Sprintf("workflow %q failed validation: %s", e.Definition, strings.Join(msgs, "; "))
}

// Unwrap exposes the underlying issues to errors.Is.
func (e *ValidationError) Unwrap() []error {
	return e.Issues
}
