package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mymindmirror/mindmirror/internal/api"
	"github.com/mymindmirror/mindmirror/internal/config"
	"github.com/mymindmirror/mindmirror/internal/crypto"
	"github.com/mymindmirror/mindmirror/internal/journal"
	"github.com/mymindmirror/mindmirror/internal/oracle"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mindmirror",
	Short: "MindMirror - Encrypted Journaling Service",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// Initialize the analysis oracle client
	orc := oracle.NewClient(cfg.Oracle.BaseURL, time.Duration(cfg.Oracle.Timeout))
	slog.Info("oracle client initialized", "base_url", cfg.Oracle.BaseURL)

	// Analysis retry worker doubles as the service's retry queue
	retryWorker := worker.NewAnalysisRetryWorker(
		db,
		orc,
		time.Duration(cfg.Worker.AnalysisRetryInterval),
		cfg.Worker.AnalysisRetryMaxAttempts,
	)

	// Journaling core
	codec := crypto.NewCodec(cfg.Crypto.Iterations)
	svc := journal.NewService(db, codec, orc, retryWorker, time.Duration(cfg.Clustering.Timeout))

	// HTTP router
	handler := api.NewHandler(svc, db, cfg.Auth.APIKey, Version, cfg.Clustering.DefaultClusterCount)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// Worker lifecycle
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "analysis-retry", retryWorker.Run)

	// Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully; anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// Graceful shutdown: drain requests, stop workers, close store
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
