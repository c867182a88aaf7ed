package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/embed"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/logging"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/search"
	"github.com/temoa-dev/temoa/internal/server"
	"github.com/temoa-dev/temoa/internal/telemetry"
	"github.com/temoa-dev/temoa/internal/watcher"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	host       string
	port       int
	watch      bool
	configPath string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP search service",
		Long: `Start the Temoa HTTP service.

Serves /search, /stats, /reindex and /extract for every configured
vault. Indexes load lazily on first use and stay cached across
requests. With --watch, vaults are reindexed incrementally whenever
notes change on disk.

Examples:
  temoa serve
  temoa serve --port 9000
  temoa serve --host 0.0.0.0 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Bind address (default from config: 127.0.0.1)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Listen port (default from config: 8765)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch configured vaults and reindex on change")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if opts.watch {
		cfg.Watch.Enabled = true
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if cfg.Logging.MaxSizeMB > 0 {
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxFiles > 0 {
		logCfg.MaxFiles = cfg.Logging.MaxFiles
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCleanup()
	slog.SetDefault(logger)

	embedder, err := embed.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	metrics, metricsCleanup := setupTelemetry(cfg, logger)
	defer metricsCleanup()

	var regOpts []registry.Option
	if cfg.Reranker.Enabled {
		regOpts = append(regOpts, registry.WithReranker(search.NewHTTPReranker(cfg.Reranker, logger)))
	}
	if metrics != nil {
		regOpts = append(regOpts, registry.WithTraceHook(func(t search.QueryTrace) {
			metrics.Record(telemetry.Event{
				Query:   t.Query,
				Mode:    string(t.Mode),
				Profile: t.Profile,
				Results: t.Results,
				Latency: t.Latency,
			})
		}))
	}

	reg, err := registry.New(cfg, embedder, logger, regOpts...)
	if err != nil {
		return err
	}
	defer reg.Close()

	srv, err := server.New(server.Deps{
		Config:   cfg,
		Registry: reg,
		Resolver: profile.NewResolver(cfg.Profiles, logger),
		Embedder: embedder,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if cfg.Watch.Enabled {
		for _, name := range cfg.VaultNames() {
			vaultPath, err := cfg.VaultPath(name)
			if err != nil {
				logger.Warn("watch_vault_skipped",
					slog.String("vault", name),
					slog.Any("error", err))
				continue
			}
			g.Go(func() error {
				return watchVault(ctx, reg, vaultPath, cfg, logger)
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setupTelemetry opens the metrics store and starts the collector. A
// store that cannot be opened degrades to in-memory metrics; disabled
// telemetry returns nil so nothing gets wired.
func setupTelemetry(cfg *config.Config, logger *slog.Logger) (*telemetry.Metrics, func()) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}
	}

	dbPath := cfg.Telemetry.Path
	if dbPath == "" {
		dbPath = telemetry.DefaultDBPath()
	}
	store, err := telemetry.OpenStore(dbPath)
	if err != nil {
		logger.Warn("telemetry_store_unavailable",
			slog.String("path", dbPath),
			slog.Any("error", err))
		store = nil
	} else if cfg.Telemetry.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Telemetry.RetentionDays)
		if err := store.Prune(cutoff); err != nil {
			logger.Warn("telemetry_prune_failed", slog.Any("error", err))
		}
	}

	metrics := telemetry.New(store, telemetry.Options{FlushInterval: time.Minute}, logger)
	cleanup := func() {
		_ = metrics.Close()
		if store != nil {
			_ = store.Close()
		}
	}
	return metrics, cleanup
}

// watchVault runs one vault watcher and triggers an incremental reindex
// for every change batch. A failed reindex is logged and watching
// continues; the next batch retries.
func watchVault(ctx context.Context, reg *registry.Registry, vaultPath string, cfg *config.Config, logger *slog.Logger) error {
	w, err := watcher.New(watcher.Options{
		Debounce: cfg.Watch.DebounceDuration(),
		Excludes: cfg.Excludes,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher for %s: %w", vaultPath, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				logger.Info("watch_reindex",
					slog.String("vault", vaultPath),
					slog.Int("changes", len(batch)))
				if _, err := reg.Reindex(ctx, vaultPath, false, nil); err != nil {
					logger.Warn("watch_reindex_failed",
						slog.String("vault", vaultPath),
						slog.String("code", terrors.GetCode(err)),
						slog.Any("error", err))
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Warn("watch_error",
					slog.String("vault", vaultPath),
					slog.Any("error", err))
			}
		}
	}()

	logger.Info("watch_started",
		slog.String("vault", vaultPath),
		slog.String("backend", w.Backend()))
	return w.Start(ctx, vaultPath)
}
