// Package review implements the review gate: named checkers that inspect a
// step's candidate output against the domain rule set and decide whether the
// workflow may advance.
//
// Checkers are deterministic: given identical output and rules they always
// produce the same outcome. They must not consult the clock, the filesystem
// or any other mutable state.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/rules"
)

// Severity grades a review issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// rank orders severities for threshold comparison. Unknown severities rank
// lowest so a malformed issue never blocks approval by accident.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Blocks reports whether an issue at this severity blocks approval under the
// given threshold.
func (s Severity) Blocks(threshold Severity) bool {
	return s.rank() >= threshold.rank()
}

// Issue is a single review finding.
type Issue struct {
	Location     string   `json:"location"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Outcome is the result of one review gate invocation.
//
// Approved is true iff no required fixes remain. Issues below the blocking
// threshold do not block approval but are still surfaced in Feedback.
type Outcome struct {
	Approved      bool    `json:"approved"`
	Feedback      []Issue `json:"feedback"`
	RequiredFixes []Issue `json:"required_fixes"`
}

// CheckerFunc inspects a candidate output and returns findings.
type CheckerFunc func(output map[string]any, rs *rules.RuleSet) []Issue

// ErrUnknownReviewType is returned when no checker is registered under the
// requested review type.
var ErrUnknownReviewType = errors.New("unknown review type")

// Gate dispatches review requests to registered checkers.
type Gate struct {
	rules    *rules.RuleSet
	checkers map[string]CheckerFunc
	logger   *zap.Logger
}

// NewGate creates a gate with the built-in checkers registered
// (domain_validation, security, coverage).
func NewGate(rs *rules.RuleSet, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		rules:    rs,
		checkers: make(map[string]CheckerFunc),
		logger:   logger,
	}
	g.Register("domain_validation", CheckDomainValidation)
	g.Register("security", CheckSecurity)
	g.Register("coverage", CheckCoverage)
	return g
}

// Register adds a checker under a review type name. Registering over an
// existing name replaces it; registration happens once at startup.
func (g *Gate) Register(name string, fn CheckerFunc) {
	g.checkers[name] = fn
}

// Has reports whether a checker is registered for the review type. Used by
// static validation before a run starts.
func (g *Gate) Has(name string) bool {
	_, ok := g.checkers[name]
	return ok
}

// Review runs the named checker over the candidate output.
//
// Returns ErrUnknownReviewType for unregistered names. The outcome's
// RequiredFixes are the findings at or above the configured blocking
// severity; approval requires that set to be empty.
func (g *Gate) Review(ctx context.Context, reviewType string, output map[string]any) (*Outcome, error) {
	checker, ok := g.checkers[reviewType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReviewType, reviewType)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues := checker(output, g.rules)
	sortIssues(issues)

	threshold := Severity(g.rules.Review.BlockingSeverity)
	var required []Issue
	for _, issue := range issues {
		if issue.Severity.Blocks(threshold) {
			required = append(required, issue)
		}
	}

	outcome := &Outcome{
		Approved:      len(required) == 0,
		Feedback:      issues,
		RequiredFixes: required,
	}

	g.logger.Debug("review completed",
		zap.String("review_type", reviewType),
		zap.Bool("approved", outcome.Approved),
		zap.Int("feedback", len(issues)),
		zap.Int("required_fixes", len(required)))

	return outcome, nil
}

// sortIssues orders findings by severity (highest first) then location, so
// repeated reviews of the same output produce identical outcomes.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity.rank() != issues[j].Severity.rank() {
			return issues[i].Severity.rank() > issues[j].Severity.rank()
		}
		return issues[i].Location < issues[j].Location
	})
}
