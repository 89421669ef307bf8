package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/review"
)

// fakeAgent records requests and answers with a configurable function.
type fakeAgent struct {
	name string
	fn   func(ctx context.Context, req agent.Request) (agent.Response, error)

	mu    sync.Mutex
	calls []agent.Request
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return agent.Response{}, nil
}

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAgent) call(i int) agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeResolver is a static agent table.
type fakeResolver map[string]agent.Agent

func (r fakeResolver) Resolve(name string) (agent.Agent, bool) {
	a, ok := r[name]
	return a, ok
}

// fakeGate replays a scripted sequence of outcomes.
type fakeGate struct {
	known    map[string]bool
	outcomes []*review.Outcome
	err      error

	mu    sync.Mutex
	calls int
}

func (g *fakeGate) Has(reviewType string) bool {
	if g.known == nil {
		return true
	}
	return g.known[reviewType]
}

func (g *fakeGate) Review(ctx context.Context, reviewType string, output map[string]any) (*review.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(g.outcomes) == 0 {
		return &review.Outcome{Approved: true}, nil
	}
	outcome := g.outcomes[0]
	if len(g.outcomes) > 1 {
		g.outcomes = g.outcomes[1:]
	}
	return outcome, nil
}

func (g *fakeGate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// countingStore records every snapshot it is asked to persist.
type countingStore struct {
	mu    sync.Mutex
	saves int
	last  *WorkflowState
}

func (s *countingStore) Save(ctx context.Context, state *WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = state
	return nil
}

func (s *countingStore) Load(ctx context.Context, runID string) (*WorkflowState, error) {
	return nil, ErrRunNotFound
}

func (s *countingStore) List(ctx context.Context) ([]*WorkflowState, error) {
	return nil, nil
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxRetries:      2,
		MaxReviewCycles: 2,
		StepTimeout:     config.Duration(time.Second),
		ReviewTimeout:   config.Duration(time.Second),
	}
}

func rejectedOutcome() *review.Outcome {
	issue := review.Issue{
		Location: "src/components/Widget",
		Severity: review.SeverityHigh,
		Message:  "naming violation",
	}
	return &review.Outcome{
		Approved:      false,
		Feedback:      []review.Issue{issue},
		RequiredFixes: []review.Issue{issue},
	}
}
