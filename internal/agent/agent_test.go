package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent is a minimal agent for registry tests.
type stubAgent struct {
	name    string
	process func(ctx context.Context, req Request) (Response, error)
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Process(ctx context.Context, req Request) (Response, error) {
	if s.process != nil {
		return s.process(ctx, req)
	}
	return Response{}, nil
}

func TestError(t *testing.T) {
	err := RetryableError(KindTimeout, "agent timed out after %ds", 30)
	assert.Equal(t, "timeout: agent timed out after 30s", err.Error())
	assert.True(t, err.Retryable)

	fatal := FatalError(KindBadRequest, "missing field")
	assert.False(t, fatal.Retryable)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(RetryableError(KindTimeout, "slow")))
	assert.False(t, IsRetryable(FatalError(KindBadRequest, "bad")))
	assert.False(t, IsRetryable(errors.New("plain error")))

	// Wrapped structured errors are still classified.
	wrapped := fmt.Errorf("step failed: %w", RetryableError(KindUnavailable, "down"))
	assert.True(t, IsRetryable(wrapped))
}

func TestAsError(t *testing.T) {
	ae := AsError(FatalError(KindRuleViolation, "bad name"))
	assert.Equal(t, KindRuleViolation, ae.Kind)

	plain := AsError(errors.New("something broke"))
	assert.Equal(t, "unclassified", plain.Kind)
	assert.False(t, plain.Retryable)
	assert.Equal(t, "something broke", plain.Message)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(&stubAgent{name: "developer"}))
	require.NoError(t, reg.Register(&stubAgent{name: "architect"}))

	err := reg.Register(&stubAgent{name: "developer"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	a, ok := reg.Resolve("developer")
	require.True(t, ok)
	assert.Equal(t, "developer", a.Name())

	_, ok = reg.Resolve("ghost")
	assert.False(t, ok)

	assert.Equal(t, []string{"architect", "developer"}, reg.Names())
}
