package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sentra-ai/sentra-gateway/internal/config"
	"github.com/sentra-ai/sentra-gateway/internal/engine"
	"github.com/sentra-ai/sentra-gateway/internal/ingest"
	"github.com/sentra-ai/sentra-gateway/internal/lifecycle"
	"github.com/sentra-ai/sentra-gateway/internal/mcp"
	"github.com/sentra-ai/sentra-gateway/internal/metrics"
	"github.com/sentra-ai/sentra-gateway/internal/preflight"
	"github.com/sentra-ai/sentra-gateway/internal/server"
	"github.com/sentra-ai/sentra-gateway/internal/telemetry"
	"github.com/sentra-ai/sentra-gateway/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Start the HTTP server fronting the Sentra engine.

Serves the query, documents, ingest, health and stats endpoints plus
Prometheus metrics. With server.mcp enabled the same operations are
also exposed as MCP tools over stdio.`,
		Example: `  # Serve with defaults (port 8000)
  sentra-gateway serve

  # Serve with an explicit config
  sentra-gateway serve --config /etc/sentra/sentra.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, skipCheck)
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

func runServe(cmd *cobra.Command, skipCheck bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	if !skipCheck {
		checker := preflight.New(cfg, preflight.WithOutput(cmd.ErrOrStderr()))
		results := checker.RunAll(ctx)
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return errors.New("pre-flight checks failed, fix the errors above or pass --skip-check")
		}
		for _, r := range results {
			if r.Status != preflight.StatusPass {
				logger.Warn("pre-flight warning", "check", r.Name, "message", r.Message)
			}
		}
	}

	manager := lifecycle.NewManager(
		cfg.Paths.IndexPath(), cfg.Paths.MetadataPath(),
		cfg.Paths.DataDir, cfg.Paths.ArtifactsDir)

	eng, engCleanup := buildEngine(cfg, logger)
	defer engCleanup()

	coordinator := ingest.NewCoordinator(
		buildRunner(cfg, logger), manager,
		cfg.Paths.ArtifactsDir, cfg.Ingest.Timeout, logger)

	m := metrics.New(func() (int, int64) {
		state := manager.Status()
		return state.ChunkCount, state.SizeBytes
	})

	recorder := buildRecorder(cfg, logger)
	if recorder != nil {
		defer func() { _ = recorder.Close() }()
	}

	srv := server.New(server.Options{
		Config:      cfg,
		Engine:      eng,
		Manager:     manager,
		Coordinator: coordinator,
		Metrics:     m,
		Recorder:    recorder,
		Logger:      logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if w, err := watcher.New(cfg.Paths.ArtifactsDir, logger); err == nil {
		g.Go(func() error {
			err := w.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		// The watcher logs transitions itself; keep its channel drained
		go func() {
			for range w.Events() {
			}
		}()
	} else {
		logger.Warn("artifacts watcher disabled", "error", err)
	}

	if cfg.Server.MCP {
		mcpServer, err := mcp.NewServer(eng, manager, cfg, logger)
		if err != nil {
			return fmt.Errorf("setup MCP server: %w", err)
		}
		g.Go(func() error {
			return mcpServer.Serve(ctx, "stdio")
		})
	}

	logger.Info("gateway started",
		"addr", cfg.ListenAddr(),
		"engine", cfg.Engine.Binary,
		"pool_size", cfg.Engine.PoolSize)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// buildEngine returns the configured dispatch strategy: a worker pool when
// pool_size is set, one process per query otherwise.
func buildEngine(cfg *config.Config, logger *slog.Logger) (server.Engine, func()) {
	engineCfg := engine.Config{
		Binary:    cfg.Engine.Binary,
		WorkDir:   cfg.Engine.WorkDir,
		Sentinel:  cfg.Engine.Sentinel,
		ExitToken: cfg.Engine.ExitToken,
		Timeout:   cfg.Engine.Timeout,
	}
	if cfg.Engine.PoolSize > 0 {
		pool := engine.NewPool(engineCfg, cfg.Engine.PoolSize, logger)
		return pool, func() { _ = pool.Close() }
	}
	return engine.NewDispatcher(engineCfg), func() {}
}

// buildRunner picks the ingestion pipeline: the configured external command
// or the built-in extractor.
func buildRunner(cfg *config.Config, logger *slog.Logger) ingest.Runner {
	if len(cfg.Ingest.Command) > 0 {
		return ingest.NewExternalPipeline(cfg.Ingest.Command, cfg.Engine.WorkDir)
	}
	return ingest.NewNativePipeline(cfg.Paths.RawDir, cfg.Paths.DataDir, logger)
}

// buildRecorder sets up query telemetry when enabled. Telemetry is
// best-effort: a store failure downgrades to in-memory only.
func buildRecorder(cfg *config.Config, logger *slog.Logger) *telemetry.Recorder {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	store, err := telemetry.OpenSQLiteStore(cfg.Telemetry.DBPath)
	if err != nil {
		logger.Warn("telemetry store unavailable, keeping metrics in memory", "error", err)
		return telemetry.NewRecorder(nil, logger)
	}
	return telemetry.NewRecorder(store, logger)
}
