package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownWorkflow is returned when no definition exists under a name.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// ErrRunNotActive is returned when aborting a run that is not in flight.
var ErrRunNotActive = errors.New("run is not active")

// Runner starts workflow runs asynchronously and tracks their cancel
// functions so in-flight runs can be aborted by run ID. Each run owns its
// own state and context; the runner shares only the read-only definitions.
type Runner struct {
	orch   *Orchestrator
	defs   map[string]*WorkflowDefinition
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner over the given definitions.
func NewRunner(orch *Orchestrator, defs map[string]*WorkflowDefinition, store Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		orch:    orch,
		defs:    defs,
		store:   store,
		logger:  logger.Named("runner"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Workflows returns the known workflow names.
func (r *Runner) Workflows() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// Definition returns the named definition.
func (r *Runner) Definition(name string) (*WorkflowDefinition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Start validates the workflow and launches it in the background, returning
// the run ID immediately. Definition errors are reported synchronously and
// no run starts.
func (r *Runner) Start(workflow string, input map[string]any) (string, error) {
	def, ok := r.defs[workflow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownWorkflow, workflow)
	}
	if err := r.orch.Validate(def); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[runID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.cancels, runID)
			r.mu.Unlock()
		}()

		state, err := r.orch.RunWithID(ctx, runID, def, input)
		if err != nil {
			r.logger.Error("run finished with engine defect",
				zap.String("run_id", runID),
				zap.Error(err))
			return
		}
		r.logger.Info("run finished",
			zap.String("run_id", runID),
			zap.String("workflow", workflow),
			zap.String("status", string(state.Status)))
	}()

	return runID, nil
}

// Abort cancels an in-flight run. The engine observes the cancellation at
// the next step boundary and transitions the run to aborted. Returns
// ErrRunNotActive when the run is unknown or already terminal.
func (r *Runner) Abort(runID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrRunNotActive, runID)
	}
	cancel()
	return nil
}

// Active reports whether the run is still in flight.
func (r *Runner) Active(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[runID]
	return ok
}

// Report loads the persisted report for a run.
func (r *Runner) Report(ctx context.Context, runID string) (*RunReport, error) {
	state, err := r.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return state.Report(), nil
}

// Reports loads the reports of all known runs.
func (r *Runner) Reports(ctx context.Context) ([]*RunReport, error) {
	states, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*RunReport, 0, len(states))
	for _, state := range states {
		reports = append(reports, state.Report())
	}
	return reports, nil
}

// Wait blocks until all in-flight runs finish. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
