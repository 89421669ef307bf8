package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/engine"
	"github.com/fyrsmithlabs/conductor/internal/review"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

// blockingAgent holds every request until release is closed, so tests can
// observe runs while they are in flight.
type blockingAgent struct {
	name    string
	release chan struct{}
	started chan struct{}
}

func (a *blockingAgent) Name() string { return a.name }

func (a *blockingAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	select {
	case a.started <- struct{}{}:
	default:
	}
	select {
	case <-a.release:
		return agent.Response{"component": "Widget"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type instantAgent struct{ name string }

func (a *instantAgent) Name() string { return a.name }

func (a *instantAgent) Process(ctx context.Context, req agent.Request) (agent.Response, error) {
	return agent.Response{"component": "Widget"}, nil
}

type approveGate struct{}

func (approveGate) Has(string) bool { return true }

func (approveGate) Review(ctx context.Context, reviewType string, output map[string]any) (*review.Outcome, error) {
	return &review.Outcome{Approved: true}, nil
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxRetries:      1,
		MaxReviewCycles: 1,
		StepTimeout:     config.Duration(time.Second),
		ReviewTimeout:   config.Duration(time.Second),
	}
}

func newTestServer(t *testing.T, agents map[string]agent.Agent, defs map[string]*engine.WorkflowDefinition) (*Server, *engine.Runner, engine.Store) {
	t.Helper()

	registry := agent.NewRegistry()
	for _, a := range agents {
		require.NoError(t, registry.Register(a))
	}

	store := state.NewMemoryStore()
	orch := engine.New(engineConfig(), registry, approveGate{}, store, zap.NewNop())
	runner := engine.NewRunner(orch, defs, store, zap.NewNop())

	server, err := NewServer(runner, zap.NewNop(), config.ServerConfig{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return server, runner, store
}

func singleStepDefs() map[string]*engine.WorkflowDefinition {
	return map[string]*engine.WorkflowDefinition{
		"create_feature": {
			Name: "create_feature",
			Steps: []engine.StepSpec{{
				Type:    engine.TypeCreateComponent,
				Agent:   "developer",
				Outputs: []string{"component"},
			}},
		},
	}
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when runner is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), config.ServerConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runner cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, runner, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())
		_, err := NewServer(runner, nil, config.ServerConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHealth(t *testing.T) {
	server, _, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListWorkflows(t *testing.T) {
	server, _, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	rec := doJSON(t, server, http.MethodGet, "/api/v1/workflows", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp WorkflowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"create_feature"}, resp.Workflows)
}

func TestStartRun(t *testing.T) {
	server, runner, store := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "create_feature"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "create_feature", resp.Workflow)

	runner.Wait()

	loaded, err := store.Load(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunSucceeded, loaded.Status)
}

func TestStartRun_Errors(t *testing.T) {
	server, _, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, map[string]*engine.WorkflowDefinition{
		"create_feature": singleStepDefs()["create_feature"],
		"broken": {
			Name: "broken",
			Steps: []engine.StepSpec{{
				Type:  engine.TypeCreateComponent,
				Agent: "ghost",
			}},
		},
	})

	t.Run("missing workflow field", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "nope"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("definition failing validation never starts", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "broken"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown agent")
	})
}

func TestGetRun(t *testing.T) {
	server, runner, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "create_feature"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	runner.Wait()

	rec = doJSON(t, server, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report engine.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, started.RunID, report.RunID)
	assert.Equal(t, engine.RunSucceeded, report.Status)
	require.Len(t, report.Steps, 1)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/runs/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	server, runner, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	for i := 0; i < 2; i++ {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "create_feature"})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	runner.Wait()

	rec := doJSON(t, server, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reports []engine.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	assert.Len(t, reports, 2)
}

func TestAbortRun(t *testing.T) {
	blocking := &blockingAgent{
		name:    "developer",
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	defs := map[string]*engine.WorkflowDefinition{
		"slow": {
			Name: "slow",
			Steps: []engine.StepSpec{
				{Type: engine.TypeCreateComponent, Agent: "developer", Outputs: []string{"component"}},
				{Type: engine.TypeFixIssue, Agent: "developer"},
			},
		},
	}
	server, runner, store := newTestServer(t, map[string]agent.Agent{"developer": blocking}, defs)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/runs", StartRunRequest{Workflow: "slow"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	// Wait for step 1 to be in flight, then abort.
	select {
	case <-blocking.started:
	case <-time.After(time.Second):
		t.Fatal("run never started")
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/runs/"+started.RunID+"/abort", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	runner.Wait()

	loaded, err := store.Load(context.Background(), started.RunID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunAborted, loaded.Status)

	// Aborting a finished run conflicts.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/runs/"+started.RunID+"/abort", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, map[string]agent.Agent{"developer": &instantAgent{name: "developer"}}, singleStepDefs())

	rec := doJSON(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
