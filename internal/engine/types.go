// Package engine implements the workflow orchestration state machine: it
// sequences heterogeneous steps, delegates each to the correct agent,
// persists intermediate results, enforces review gates and recovers from
// partial failure without losing completed work.
//
// The engine never inspects what an agent does. Agents, review checkers and
// the state store are collaborators behind narrow interfaces; the engine
// only drives the per-run state machine across them.
package engine

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/review"
)

// WorkflowDefinition is an ordered list of step specifications. Immutable
// once loaded; safe to share by reference across concurrent runs.
type WorkflowDefinition struct {
	Name string `json:"name"`

	// Inputs are the context keys the caller must supply at run start.
	// Static validation treats them as produced before step 0.
	Inputs []string `json:"inputs,omitempty"`

	Steps []StepSpec `json:"steps"`
}

// StepSpec declares one workflow step.
type StepSpec struct {
	// Type identifies the step's behavior tag. Must be registered in the
	// engine's step type table.
	Type string `json:"type"`

	// Agent names the agent that executes this step.
	Agent string `json:"agent"`

	// Params is the step-specific request payload. String values may
	// reference run context keys with ${key} placeholders.
	Params map[string]any `json:"params,omitempty"`

	// RequireReview gates the step's output behind a review checker.
	RequireReview bool `json:"require_review,omitempty"`

	// ReviewType names the checker; required iff RequireReview is set.
	ReviewType string `json:"review_type,omitempty"`

	// Optional marks the step as skippable in recovery options.
	Optional bool `json:"optional,omitempty"`

	// Outputs are the response keys this step contributes to the run
	// context. Undeclared keys are dropped.
	Outputs []string `json:"outputs,omitempty"`
}

// StepStatus is the outcome of one step attempt.
type StepStatus string

const (
	StepSucceeded    StepStatus = "succeeded"
	StepFailed       StepStatus = "failed"
	StepReviewFailed StepStatus = "review_failed"
)

// RunStatus is the overall status of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunAborted
}

// RecoveryOption describes an action the caller can take after a failed run.
type RecoveryOption string

const (
	RecoveryRetryStep RecoveryOption = "retry-step"
	RecoverySkipStep  RecoveryOption = "skip-step-if-optional"
	RecoveryAbortRun  RecoveryOption = "abort-run"
)

// StepResult captures one step attempt. Retries and remediation rounds
// append new results; earlier entries are never overwritten, so the Steps
// list of a WorkflowState is a full audit trail.
type StepResult struct {
	Index   int        `json:"index"`
	Type    string     `json:"type"`
	Agent   string     `json:"agent"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`

	// Request is the resolved request sent to the agent, with all ${key}
	// references substituted.
	Request map[string]any `json:"request,omitempty"`

	// Output is the agent response filtered to the step's declared outputs.
	Output map[string]any `json:"output,omitempty"`

	// Error is present iff the attempt failed.
	Error *agent.Error `json:"error,omitempty"`

	// ReviewFeedback is present iff the step was reviewed.
	ReviewFeedback *review.Outcome `json:"review_feedback,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// WorkflowState is the durable record of one run. It is owned exclusively
// by one orchestrator invocation and never shared across concurrent runs.
type WorkflowState struct {
	RunID            string    `json:"run_id"`
	DefinitionName   string    `json:"definition_name"`
	CurrentStepIndex int       `json:"current_step_index"`
	Status           RunStatus `json:"status"`

	// Steps is append-only; the current result for a step index is the
	// last entry carrying that index.
	Steps []StepResult `json:"steps"`

	// Context is the accumulated run context snapshot.
	Context map[string]any `json:"context,omitempty"`

	// RecoveryOptions is populated when the run fails.
	RecoveryOptions []RecoveryOption `json:"recovery_options,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowState creates a running state for a fresh run.
func NewWorkflowState(runID, definitionName string) *WorkflowState {
	return &WorkflowState{
		RunID:          runID,
		DefinitionName: definitionName,
		Status:         RunRunning,
		Steps:          []StepResult{},
		StartedAt:      time.Now().UTC(),
	}
}

// Transition moves the run to a new status. Transitions out of a terminal
// status are an engine defect and return ErrTerminalState.
func (s *WorkflowState) Transition(to RunStatus) error {
	if s.Status.Terminal() {
		return ErrTerminalState
	}
	s.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	return nil
}

// Append records one step attempt.
func (s *WorkflowState) Append(res StepResult) {
	s.Steps = append(s.Steps, res)
}

// Last returns the most recent step result, nil if none.
func (s *WorkflowState) Last() *StepResult {
	if len(s.Steps) == 0 {
		return nil
	}
	return &s.Steps[len(s.Steps)-1]
}

// Report builds the caller-facing run report.
func (s *WorkflowState) Report() *RunReport {
	return &RunReport{
		RunID:           s.RunID,
		DefinitionName:  s.DefinitionName,
		Status:          s.Status,
		Steps:           s.Steps,
		Context:         s.Context,
		RecoveryOptions: s.RecoveryOptions,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}
}

// RunReport is the engine's output to its caller. Formatting for humans is
// the caller's concern; the report is plain data.
type RunReport struct {
	RunID           string           `json:"run_id"`
	DefinitionName  string           `json:"definition_name"`
	Status          RunStatus        `json:"status"`
	Steps           []StepResult     `json:"steps"`
	Context         map[string]any   `json:"context,omitempty"`
	RecoveryOptions []RecoveryOption `json:"recovery_options,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// AgentResolver resolves agent names to live instances. Satisfied by
// *agent.Registry.
type AgentResolver interface {
	Resolve(name string) (agent.Agent, bool)
}

// ReviewGate dispatches review requests by type. Satisfied by *review.Gate.
type ReviewGate interface {
	// Has reports whether a checker is registered for the review type.
	Has(reviewType string) bool

	// Review runs the named checker over the candidate output.
	Review(ctx context.Context, reviewType string, output map[string]any) (*review.Outcome, error)
}

// Store persists workflow run state. Implementations must support at most
// one concurrent writer per run ID.
type Store interface {
	// Save persists the state, overwriting any previous snapshot for the
	// same run ID.
	Save(ctx context.Context, state *WorkflowState) error

	// Load returns the state for a run ID, ErrRunNotFound if absent.
	Load(ctx context.Context, runID string) (*WorkflowState, error)

	// List returns all known run states.
	List(ctx context.Context) ([]*WorkflowState, error)
}

// StepTypePolicy carries the per-step-type knobs of the recovery policy.
type StepTypePolicy struct {
	// MaxRetries is the number of re-attempts after a transient failure.
	// A step is attempted at most MaxRetries+1 times.
	MaxRetries int

	// Remediable marks the type as eligible for review remediation.
	Remediable bool
}

// StepTypes is the closed set of known step type tags. Unknown tags are
// definition errors caught by static validation.
type StepTypes map[string]StepTypePolicy

// Built-in step type tags.
const (
	TypeCreateComponent = "create_component"
	TypeFixIssue        = "fix_issue"
	TypeReviewCode      = "review_code"
	TypeVerifyFix       = "verify_fix"
)

// StepTypesFromConfig builds the step type table: built-in tags first, then
// configured overrides and additions. Implementation step types are
// remediable by default; review step types are not.
func StepTypesFromConfig(cfg config.EngineConfig) StepTypes {
	types := StepTypes{
		TypeCreateComponent: {MaxRetries: cfg.MaxRetries, Remediable: true},
		TypeFixIssue:        {MaxRetries: cfg.MaxRetries, Remediable: true},
		TypeReviewCode:      {MaxRetries: cfg.MaxRetries},
		TypeVerifyFix:       {MaxRetries: cfg.MaxRetries},
	}
	for tag, st := range cfg.StepTypes {
		policy := StepTypePolicy{MaxRetries: cfg.MaxRetries, Remediable: st.Remediable}
		if st.MaxRetries != nil {
			policy.MaxRetries = *st.MaxRetries
		}
		types[tag] = policy
	}
	return types
}

// Known reports whether the tag is a registered step type.
func (t StepTypes) Known(tag string) bool {
	_, ok := t[tag]
	return ok
}

// Policy returns the policy for a tag; the zero policy for unknown tags.
func (t StepTypes) Policy(tag string) StepTypePolicy {
	return t[tag]
}

// DefinitionsFromConfig translates configured workflows into immutable
// definitions.
func DefinitionsFromConfig(workflows map[string]config.WorkflowConfig) map[string]*WorkflowDefinition {
	defs := make(map[string]*WorkflowDefinition, len(workflows))
	for name, wf := range workflows {
		def := &WorkflowDefinition{
			Name:   name,
			Inputs: append([]string(nil), wf.Inputs...),
			Steps:  make([]StepSpec, 0, len(wf.Steps)),
		}
		for _, step := range wf.Steps {
			def.Steps = append(def.Steps, StepSpec{
				Type:          step.Type,
				Agent:         step.Agent,
				Params:        step.Params,
				RequireReview: step.RequireReview,
				ReviewType:    step.ReviewType,
				Optional:      step.Optional,
				Outputs:       append([]string(nil), step.Outputs...),
			})
		}
		defs[name] = def
	}
	return defs
}
