package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	conductorhttp "github.com/fyrsmithlabs/conductor/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conductord HTTP API server",
	Long: `Start the HTTP API server exposing the run endpoints:

  POST /api/v1/runs            start a workflow run
  GET  /api/v1/runs            list run reports
  GET  /api/v1/runs/:id        fetch one run report
  POST /api/v1/runs/:id/abort  abort an in-flight run
  GET  /api/v1/workflows       list workflow names
  GET  /health                 health check
  GET  /metrics                Prometheus metrics`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := conductorhttp.NewServer(a.runner, a.logger, a.cfg.Server)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight runs reach their next step boundary and persist.
	a.runner.Wait()
	a.logger.Info("shutdown complete")
	return nil
}
