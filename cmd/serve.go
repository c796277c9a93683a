package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/distscore/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring HTTP API",
	Long: `Serve starts an HTTP server exposing:

  POST /v1/score                     score posted documents with inline params
  POST /v1/scripts/{name}/score      score posted or stored documents with a script
  GET  /v1/documents/{id}/score      score one stored document (?script=name)
  GET  /healthz                      liveness
  GET  /metrics                      Prometheus metrics

The server runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	c, err := initComponents(cfg, logger, 0)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	srv, err := server.New(server.Deps{
		Config:    cfg,
		Pipeline:  c.Pipeline,
		Documents: c.Store,
		Gatherer:  c.Registry,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("serving", "addr", cfg.Server.Addr, "scripts", cfg.ScriptNames())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
