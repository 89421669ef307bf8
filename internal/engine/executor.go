package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/review"
)

// ExecRequest carries everything the executor needs for one step attempt.
type ExecRequest struct {
	Step    StepSpec
	Index   int
	Attempt int
	Context *RunContext

	// RequiredFixes, when non-empty, is appended to the agent request as a
	// required_fixes param. Set by the orchestrator on remediation rounds.
	RequiredFixes []review.Issue
}

// StepExecutor runs one step: resolves the agent, builds its request from
// the run context, invokes it under a timeout and classifies the result.
//
// The executor is stateless and safely reentrant; re-running the same
// (step, context) pair against a pure agent produces an identical result.
type StepExecutor struct {
	agents  AgentResolver
	timeout time.Duration
	logger  *zap.Logger
}

// NewStepExecutor creates an executor. Timeout bounds one agent invocation.
func NewStepExecutor(agents AgentResolver, timeout time.Duration, logger *zap.Logger) *StepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepExecutor{agents: agents, timeout: timeout, logger: logger.Named("executor")}
}

// Execute runs one step attempt. Agent faults never escape: every failure
// mode, panics included, is converted into the returned StepResult.
func (e *StepExecutor) Execute(ctx context.Context, req ExecRequest) StepResult {
	res := StepResult{
		Index:     req.Index,
		Type:      req.Step.Type,
		Agent:     req.Step.Agent,
		Attempt:   req.Attempt,
		StartedAt: time.Now().UTC(),
	}

	a, ok := e.agents.Resolve(req.Step.Agent)
	if !ok {
		// Statically prevented; kept as a guard for callers bypassing
		// validation.
		return e.fail(res, agent.FatalError(agent.KindBadRequest, "unknown agent: %q", req.Step.Agent))
	}

	params, err := req.Context.ResolveParams(req.Step.Params)
	if err != nil {
		return e.fail(res, agent.FatalError(agent.KindBadRequest, "unresolved reference: %v", err))
	}

	request := agent.Request{"action": req.Step.Type}
	for k, v := range params {
		request[k] = v
	}
	if len(req.RequiredFixes) > 0 {
		request["required_fixes"] = fixesParam(req.RequiredFixes)
	}
	res.Request = request

	callCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.invoke(callCtx, a, request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = agent.RetryableError(agent.KindTimeout, "agent %q timed out after %s", req.Step.Agent, e.timeout)
		}
		return e.fail(res, err)
	}

	res.Status = StepSucceeded
	res.Output = filterOutputs(resp, req.Step.Outputs)
	res.CompletedAt = time.Now().UTC()

	e.logger.Debug("step attempt succeeded",
		zap.Int("index", req.Index),
		zap.Int("attempt", req.Attempt),
		zap.String("type", req.Step.Type),
		zap.String("agent", req.Step.Agent))

	return res
}

// invoke calls the agent with panic recovery. A panicking agent is reported
// as a non-retryable structured error, never an uncaught fault.
func (e *StepExecutor) invoke(ctx context.Context, a agent.Agent, req agent.Request) (resp agent.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent panicked",
				zap.String("agent", a.Name()),
				zap.Any("panic", r))
			resp = nil
			err = agent.FatalError(agent.KindPanic, "agent %q panicked: %v", a.Name(), r)
		}
	}()
	return a.Process(ctx, req)
}

func (e *StepExecutor) fail(res StepResult, err error) StepResult {
	ae := agent.AsError(err)
	res.Error = ae
	res.Status = StepFailed
	if ae.Kind == agent.KindReviewFailed {
		res.Status = StepReviewFailed
	}
	res.CompletedAt = time.Now().UTC()

	e.logger.Debug("step attempt failed",
		zap.Int("index", res.Index),
		zap.Int("attempt", res.Attempt),
		zap.String("kind", ae.Kind),
		zap.Bool("retryable", ae.Retryable))

	return res
}

// filterOutputs drops response keys the step did not declare, keeping the
// run context free of pollution.
func filterOutputs(resp agent.Response, outputs []string) map[string]any {
	filtered := make(map[string]any, len(outputs))
	for _, key := range outputs {
		if v, ok := resp[key]; ok {
			filtered[key] = v
		}
	}
	return filtered
}

// fixesParam flattens review issues into the plain maps agents consume.
func fixesParam(fixes []review.Issue) []any {
	out := make([]any, 0, len(fixes))
	for _, f := range fixes {
		m := map[string]any{
			"location": f.Location,
			"severity": string(f.Severity),
			"message":  f.Message,
		}
		if f.SuggestedFix != "" {
			m["suggested_fix"] = f.SuggestedFix
		}
		out = append(out, m)
	}
	return out
}
