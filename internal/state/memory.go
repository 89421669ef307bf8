// Package state provides the run-state persistence backends: an in-memory
// store for tests and single-process use, and a file store writing one JSON
// document per run with a lock file guaranteeing at most one writer per
// run ID.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/conductor/internal/engine"
)

// MemoryStore keeps run state in process memory. Snapshots are deep copies,
// so a caller mutating its state after Save cannot corrupt the stored
// version.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

// Save implements engine.Store.
func (s *MemoryStore) Save(ctx context.Context, state *engine.WorkflowState) error {
	if state.RunID == "" {
		return fmt.Errorf("state has no run ID")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[state.RunID] = data
	return nil
}

// Load implements engine.Store.
func (s *MemoryStore) Load(ctx context.Context, runID string) (*engine.WorkflowState, error) {
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrRunNotFound, runID)
	}

	var state engine.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode run state: %w", err)
	}
	return &state, nil
}

// List implements engine.Store. Results are ordered by run ID for
// deterministic output.
func (s *MemoryStore) List(ctx context.Context) ([]*engine.WorkflowState, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	states := make([]*engine.WorkflowState, 0, len(ids))
	for _, id := range ids {
		state, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
