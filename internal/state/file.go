package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/fyrsmithlabs/conductor/internal/engine"
)

// ErrRunLocked is returned when another writer holds the run's lock.
var ErrRunLocked = errors.New("run state is locked by another writer")

// FileStore persists each run as one JSON document under the state
// directory. A flock lock file per run enforces at most one concurrent
// writer per run ID, even across processes.
type FileStore struct {
	dir string
}

// NewFileStore creates the store, creating the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save implements engine.Store. The snapshot is written to a temporary file
// and renamed into place, so readers never observe a torn write.
func (s *FileStore) Save(ctx context.Context, state *engine.WorkflowState) error {
	if err := validRunID(state.RunID); err != nil {
		return err
	}

	lock := flock.New(s.lockPath(state.RunID))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %q", ErrRunLocked, state.RunID)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}

	path := s.runPath(state.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit run state: %w", err)
	}
	return nil
}

// Load implements engine.Store.
func (s *FileStore) Load(ctx context.Context, runID string) (*engine.WorkflowState, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", engine.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}

	var state engine.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode run state %q: %w", runID, err)
	}
	return &state, nil
}

// List implements engine.Store. Results are ordered by run ID.
func (s *FileStore) List(ctx context.Context) ([]*engine.WorkflowState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
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

func (s *FileStore) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *FileStore) lockPath(runID string) string {
	return filepath.Join(s.dir, runID+".lock")
}

// validRunID rejects IDs that could escape the state directory.
func validRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	if strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return fmt.Errorf("invalid run ID: %q", runID)
	}
	return nil
}
