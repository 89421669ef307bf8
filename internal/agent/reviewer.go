// internal/agent/reviewer.go
package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/review"
)

// Reviewer runs review checkers as an ordinary workflow step, so workflows
// can verify fixes or review code without a gated step. It shares the same
// checker set as the review gate.
type Reviewer struct {
	cfg    config.AgentConfig
	gate   *review.Gate
	logger *zap.Logger
}

// NewReviewer creates the reviewer agent.
func NewReviewer(cfg config.AgentConfig, gate *review.Gate, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{cfg: cfg, gate: gate, logger: logger.Named("reviewer")}
}

// Name implements Agent.
func (r *Reviewer) Name() string { return "reviewer" }

// Process implements Agent.
//
// Supported actions: review_code and verify_fix. A rejected review is
// reported as a non-retryable review_failed error, failing the step.
func (r *Reviewer) Process(ctx context.Context, req Request) (Response, error) {
	action, _ := req["action"].(string)
	if !r.allowed(action) {
		return nil, FatalError(KindBadRequest, "action not allowed: %s", action)
	}

	switch action {
	case "review_code", "verify_fix":
	default:
		return nil, FatalError(KindBadRequest, "unknown action: %s", action)
	}

	reviewType, _ := req["review_type"].(string)
	if reviewType == "" {
		reviewType = "domain_validation"
	}

	candidate := candidateOutput(req)
	outcome, err := r.gate.Review(ctx, reviewType, candidate)
	if err != nil {
		return nil, FatalError(KindBadRequest, "review dispatch failed: %v", err)
	}

	r.logger.Info("review step completed",
		zap.String("action", action),
		zap.String("review_type", reviewType),
		zap.Bool("approved", outcome.Approved))

	if !outcome.Approved {
		return nil, FatalError(KindReviewFailed, "%s rejected: %s", action, summarize(outcome.RequiredFixes))
	}

	return Response{
		"approved": true,
		"feedback": outcome.Feedback,
	}, nil
}

func (r *Reviewer) allowed(action string) bool {
	for _, a := range r.cfg.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// candidateOutput lifts the files under review out of the request. Accepts
// either a nested code/fix object or top-level file keys.
func candidateOutput(req Request) map[string]any {
	for _, key := range []string{"code", "fix"} {
		if nested, ok := req[key].(map[string]any); ok {
			if files, ok := nested["files"]; ok {
				return map[string]any{"files": files}
			}
		}
	}
	out := map[string]any{}
	for _, key := range []string{"files", "created_files", "updated_files"} {
		if v, ok := req[key]; ok {
			out[key] = v
		}
	}
	return out
}

func summarize(issues []review.Issue) string {
	if len(issues) == 0 {
		return "no details"
	}
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Location+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}
