// Package http provides the run API for conductord: starting workflow
// runs, fetching run reports and aborting in-flight runs.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/engine"
)

// Server exposes the engine over HTTP.
type Server struct {
	echo   *echo.Echo
	runner *engine.Runner
	logger *zap.Logger
	config config.ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(runner *engine.Runner, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/workflows", s.handleListWorkflows)
	v1.POST("/runs", s.handleStartRun)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/abort", s.handleAbortRun)
}

// StartRunRequest is the request body for POST /api/v1/runs.
type StartRunRequest struct {
	Workflow string         `json:"workflow"`
	Input    map[string]any `json:"input,omitempty"`
}

// StartRunResponse is the response body for POST /api/v1/runs.
type StartRunResponse struct {
	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
}

// AbortRunResponse is the response body for POST /api/v1/runs/:id/abort.
type AbortRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// WorkflowsResponse is the response body for GET /api/v1/workflows.
type WorkflowsResponse struct {
	Workflows []string `json:"workflows"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleListWorkflows returns the names of the loaded workflows.
func (s *Server) handleListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, WorkflowsResponse{Workflows: s.runner.Workflows()})
}

// handleStartRun validates the workflow and starts it in the background.
// Definition errors are reported synchronously; the run ID is handed out
// before the run finishes.
func (s *Server) handleStartRun(c echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Workflow == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow field is required")
	}

	runID, err := s.runner.Start(req.Workflow, req.Input)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownWorkflow) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		s.logger.Error("failed to start run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return c.JSON(http.StatusAccepted, StartRunResponse{
		RunID:    runID,
		Workflow: req.Workflow,
		Status:   string(engine.RunRunning),
	})
}

// handleListRuns returns the reports of all known runs.
func (s *Server) handleListRuns(c echo.Context) error {
	reports, err := s.runner.Reports(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	return c.JSON(http.StatusOK, reports)
}

// handleGetRun returns the report for one run.
func (s *Server) handleGetRun(c echo.Context) error {
	report, err := s.runner.Report(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, engine.ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		s.logger.Error("failed to load run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	return c.JSON(http.StatusOK, report)
}

// handleAbortRun cancels an in-flight run. The engine honors the abort at
// the next step boundary.
func (s *Server) handleAbortRun(c echo.Context) error {
	runID := c.Param("id")
	if err := s.runner.Abort(runID); err != nil {
		if errors.Is(err, engine.ErrRunNotActive) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		s.logger.Error("failed to abort run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to abort run")
	}
	return c.JSON(http.StatusAccepted, AbortRunResponse{
		RunID:  runID,
		Status: "aborting",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
