package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/review"
)

// Orchestrator drives the per-run state machine: sequential step execution,
// retry policy for transient failures, review gates with bounded
// remediation, cancellation at step boundaries and state persistence after
// every attempt.
type Orchestrator struct {
	types           StepTypes
	maxReviewCycles int
	reviewTimeout   time.Duration
	executor        *StepExecutor
	gate            ReviewGate
	store           Store
	logger          *zap.Logger
}

// New creates an orchestrator from engine configuration and its
// collaborators.
func New(cfg config.EngineConfig, agents AgentResolver, gate ReviewGate, store Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine")
	return &Orchestrator{
		types:           StepTypesFromConfig(cfg),
		maxReviewCycles: cfg.MaxReviewCycles,
		reviewTimeout:   cfg.ReviewTimeout.Duration(),
		executor:        NewStepExecutor(agents, cfg.StepTimeout.Duration(), logger),
		gate:            gate,
		store:           store,
		logger:          logger,
	}
}

// Validate runs the static validation pass for a definition without
// starting a run.
func (o *Orchestrator) Validate(def *WorkflowDefinition) error {
	return Validate(def, o.executor.agents, o.gate, o.types)
}

// Run executes a workflow definition to a terminal state under a fresh
// run ID.
//
// A definition failing static validation returns a nil state and a
// *ValidationError; no agent is invoked and nothing is persisted. Every
// other outcome, failure included, is reported through the returned state;
// the error is reserved for engine defects.
func (o *Orchestrator) Run(ctx context.Context, def *WorkflowDefinition, initialInput map[string]any) (*WorkflowState, error) {
	return o.RunWithID(ctx, uuid.NewString(), def, initialInput)
}

// RunWithID executes a workflow under a caller-supplied run ID, letting
// callers hand out the ID before the run reaches a terminal state.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, def *WorkflowDefinition, initialInput map[string]any) (*WorkflowState, error) {
	if err := o.Validate(def); err != nil {
		return nil, err
	}

	state := NewWorkflowState(runID, def.Name)
	rc := NewRunContext(initialInput)
	state.Context = rc.Snapshot()
	o.save(ctx, state)

	log := o.logger.With(
		zap.String("run_id", state.RunID),
		zap.String("workflow", def.Name))
	log.Info("run started", zap.Int("steps", len(def.Steps)))

	for i, step := range def.Steps {
		// Cancellation is honored at step boundaries only; a step in
		// flight is treated as atomic.
		if ctx.Err() != nil {
			log.Warn("run aborted", zap.Int("step", i))
			return o.finish(ctx, state, RunAborted)
		}

		res, ok := o.runStep(ctx, state, rc, step, i, log)
		if !ok {
			// A step failing because the run context was canceled is an
			// abort, not a failure.
			if ctx.Err() != nil {
				log.Warn("run aborted", zap.Int("step", i))
				return o.finish(ctx, state, RunAborted)
			}
			return o.failRun(ctx, state, step, log)
		}

		if step.RequireReview {
			res, ok = o.runReviewCycle(ctx, state, rc, step, i, res, log)
			if !ok {
				if ctx.Err() != nil {
					log.Warn("run aborted", zap.Int("step", i))
					return o.finish(ctx, state, RunAborted)
				}
				return o.failRun(ctx, state, step, log)
			}
		}

		rc.Merge(res.Output)
		state.Context = rc.Snapshot()
		state.CurrentStepIndex = i + 1
		o.save(ctx, state)
	}

	log.Info("run succeeded", zap.Int("results", len(state.Steps)))
	return o.finish(ctx, state, RunSucceeded)
}

// runStep executes one step with the retry policy: transient failures are
// re-attempted immediately up to the step type's MaxRetries bound. Returns
// the successful result, or ok=false when the step exhausted its attempts
// or failed non-retryably.
func (o *Orchestrator) runStep(ctx context.Context, state *WorkflowState, rc *RunContext, step StepSpec, index int, log *zap.Logger) (StepResult, bool) {
	policy := o.types.Policy(step.Type)

	for attempt := 1; ; attempt++ {
		res := o.executor.Execute(ctx, ExecRequest{
			Step:    step,
			Index:   index,
			Attempt: attempt,
			Context: rc,
		})
		state.Append(res)
		o.save(ctx, state)
		stepAttemptCounter.Add(ctx, 1, metric.WithAttributes(stepStatusAttr(res.Status)))

		if res.Status == StepSucceeded {
			return res, true
		}

		if res.Error != nil && res.Error.Retryable && attempt <= policy.MaxRetries {
			stepRetryCounter.Add(ctx, 1)
			log.Warn("retrying step after transient failure",
				zap.Int("step", index),
				zap.Int("attempt", attempt),
				zap.String("kind", res.Error.Kind))
			continue
		}

		log.Error("step failed",
			zap.Int("step", index),
			zap.Int("attempts", attempt),
			zap.String("type", step.Type),
			zap.Error(res.Error))
		return res, false
	}
}

// runReviewCycle gates a succeeded step behind its review type. A rejected
// review fails the run unless the step type is remediable, in which case
// the agent is re-invoked with the required fixes and the new output is
// re-reviewed, bounded by MaxReviewCycles.
func (o *Orchestrator) runReviewCycle(ctx context.Context, state *WorkflowState, rc *RunContext, step StepSpec, index int, res StepResult, log *zap.Logger) (StepResult, bool) {
	policy := o.types.Policy(step.Type)

	for cycle := 0; ; cycle++ {
		outcome, err := o.reviewWithRetry(ctx, step.ReviewType, res.Output, policy.MaxRetries)
		if err != nil {
			last := state.Last()
			last.Status = StepFailed
			if errors.Is(err, context.DeadlineExceeded) {
				last.Error = agent.RetryableError(agent.KindTimeout, "review %q timed out after %s", step.ReviewType, o.reviewTimeout)
			} else {
				last.Error = agent.AsError(err)
			}
			o.save(ctx, state)
			log.Error("review dispatch failed",
				zap.Int("step", index),
				zap.String("review_type", step.ReviewType),
				zap.Error(err))
			return res, false
		}

		last := state.Last()
		last.ReviewFeedback = outcome

		if outcome.Approved {
			o.save(ctx, state)
			return res, true
		}

		reviewRejectCounter.Add(ctx, 1)
		last.Status = StepReviewFailed
		o.save(ctx, state)

		if !policy.Remediable || cycle >= o.maxReviewCycles {
			log.Error("review rejected",
				zap.Int("step", index),
				zap.String("review_type", step.ReviewType),
				zap.Bool("remediable", policy.Remediable),
				zap.Int("cycles", cycle))
			return res, false
		}

		reviewCycleCounter.Add(ctx, 1)
		log.Info("remediating after rejected review",
			zap.Int("step", index),
			zap.Int("cycle", cycle+1),
			zap.Int("required_fixes", len(outcome.RequiredFixes)))

		res = o.executor.Execute(ctx, ExecRequest{
			Step:          step,
			Index:         index,
			Attempt:       res.Attempt + 1,
			Context:       rc,
			RequiredFixes: outcome.RequiredFixes,
		})
		state.Append(res)
		o.save(ctx, state)
		stepAttemptCounter.Add(ctx, 1, metric.WithAttributes(stepStatusAttr(res.Status)))

		if res.Status != StepSucceeded {
			log.Error("remediation attempt failed",
				zap.Int("step", index),
				zap.Error(res.Error))
			return res, false
		}
	}
}

// reviewWithRetry invokes the gate under its own timeout. Timed-out
// reviews are transient and re-attempted up to the step's retry bound.
func (o *Orchestrator) reviewWithRetry(ctx context.Context, reviewType string, output map[string]any, maxRetries int) (*review.Outcome, error) {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var outcome *review.Outcome
		outcome, err = o.reviewOnce(ctx, reviewType, output)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return nil, err
}

func (o *Orchestrator) reviewOnce(ctx context.Context, reviewType string, output map[string]any) (*review.Outcome, error) {
	if o.reviewTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.reviewTimeout)
		defer cancel()
	}
	return o.gate.Review(ctx, reviewType, output)
}

// failRun transitions the run to failed, recording the recovery options the
// caller can act on.
func (o *Orchestrator) failRun(ctx context.Context, state *WorkflowState, step StepSpec, log *zap.Logger) (*WorkflowState, error) {
	state.RecoveryOptions = recoveryOptions(step)
	log.Error("run failed",
		zap.Int("step", state.CurrentStepIndex),
		zap.Int("results", len(state.Steps)))
	return o.finish(ctx, state, RunFailed)
}

// finish moves the run to a terminal status and persists the final state.
// A transition on an already-terminal state is an engine defect surfaced as
// an error.
func (o *Orchestrator) finish(ctx context.Context, state *WorkflowState, status RunStatus) (*WorkflowState, error) {
	if err := state.Transition(status); err != nil {
		return state, err
	}
	o.save(ctx, state)

	runCounter.Add(ctx, 1, metric.WithAttributes(statusAttr(state.Status)))
	if state.CompletedAt != nil {
		runDuration.Record(ctx, state.CompletedAt.Sub(state.StartedAt).Seconds())
	}
	return state, nil
}

// save persists the state snapshot. Persistence failures are logged, not
// fatal: the run itself is the source of truth while it is in flight.
func (o *Orchestrator) save(ctx context.Context, state *WorkflowState) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, state); err != nil {
		o.logger.Warn("failed to persist run state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}
}

// recoveryOptions lists the actions available after a failed step.
func recoveryOptions(step StepSpec) []RecoveryOption {
	opts := []RecoveryOption{RecoveryRetryStep}
	if step.Optional {
		opts = append(opts, RecoverySkipStep)
	}
	return append(opts, RecoveryAbortRun)
}
