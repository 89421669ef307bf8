// Package agent defines the agent boundary of the orchestration engine.
//
// An agent is an opaque capability that transforms a structured request into
// a structured response. The engine never inspects what an agent does; it
// only relies on the structured error contract to decide whether a failure
// is retryable.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Request is the structured input passed to an agent.
type Request map[string]any

// Response is the structured output returned by an agent.
type Response map[string]any

// Agent processes requests. Implementations are opaque to the engine and
// must be safe for use by concurrent runs.
type Agent interface {
	// Name returns the registry name of the agent.
	Name() string

	// Process handles one request. Failures are reported as *Error so the
	// engine can classify them; any other error is treated as non-retryable.
	Process(ctx context.Context, req Request) (Response, error)
}

// Error kinds used by built-in agents and the engine.
const (
	KindTimeout       = "timeout"
	KindUnavailable   = "unavailable"
	KindBadRequest    = "bad_request"
	KindRuleViolation = "rule_violation"
	KindReviewFailed  = "review_failed"
	KindPanic         = "panic"
)

// Error is the structured failure an agent reports.
//
// Retryable drives the engine's recovery policy: transient failures are
// re-attempted up to the configured bound, anything else fails the run
// immediately.
type Error struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RetryableError creates a transient agent error.
func RetryableError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// FatalError creates a non-retryable agent error.
func FatalError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// AsError extracts a structured agent error. Errors that do not carry the
// structured form are wrapped as non-retryable with kind "unclassified".
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: "unclassified", Message: err.Error(), Retryable: false}
}

// IsRetryable reports whether the error is a transient agent failure.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// ErrDuplicateAgent is returned when registering a name twice.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry maps agent names to live instances. It is populated once at
// process start; the engine performs no lookups beyond this table.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent under its name.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAgent, a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// Resolve returns the agent registered under name.
func (r *Registry) Resolve(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns all registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
