package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	incidenthttp "github.com/fyrsmithlabs/incidentd/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the incidentd HTTP daemon",
	Long: `Start the HTTP daemon serving the analysis API.

Examples:
  # Start with defaults (port 8080, in-memory index, SQLite at ./incidents.db)
  incidentd serve

  # Start with a config file
  incidentd serve --config /etc/incidentd/config.yaml

  # Override single settings via environment
  INCIDENTD_SERVER_PORT=9000 incidentd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	server, err := incidenthttp.NewServer(a.engine, a.store, a.logger, &incidenthttp.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info("incidentd ready",
		zap.Int("port", a.cfg.Server.Port),
		zap.Int("records", a.engine.RecordCount()),
		zap.Float64("threshold", a.engine.Threshold()),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
