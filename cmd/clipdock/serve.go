package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/veldtkamp/clipdock/internal/api"
	"github.com/veldtkamp/clipdock/internal/config"
	"github.com/veldtkamp/clipdock/internal/dedupe"
	"github.com/veldtkamp/clipdock/internal/export"
	"github.com/veldtkamp/clipdock/internal/pending"
	"github.com/veldtkamp/clipdock/internal/queue"
	"github.com/veldtkamp/clipdock/internal/storage"
	"github.com/veldtkamp/clipdock/internal/sweep"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clipdock server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clipdock version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("CLIPDOCK_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the export pipeline.
	guard := dedupe.NewGuard(store)
	jobs := queue.NewProcessor(store, cfg.Export.MaxAttempts, cfg.Export.Retention)
	registry := pending.NewRegistry(store, cfg.Export.PendingTTL)
	orchestrator := export.New(
		cfg.Export,
		cfg.Rules,
		cfg.SensitiveDomains,
		guard,
		jobs,
		registry,
		store,
	)

	handler := api.NewHandler(api.Deps{
		Orchestrator: orchestrator,
		Jobs:         jobs,
		Token:        cfg.Server.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orchestrator,
		Jobs:         jobs,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	sweeper := sweep.New(jobs, registry, 30*time.Second)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "clipdock listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
