package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	"github.com/temoa-dev/temoa/internal/indexer"
	"github.com/temoa-dev/temoa/internal/preflight"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	vault      string
	force      bool
	quiet      bool
	configPath string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update a vault index",
		Long: `Index a vault for search.

Reads every Markdown note under the vault, chunks it along headings,
embeds the chunks, and writes the index to .temoa/ inside the vault.
Unchanged notes are skipped on repeat runs; --force rebuilds from
scratch.

Examples:
  temoa index
  temoa index --vault notes
  temoa index --vault ~/other-notes --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.vault, "vault", "", "Vault name or path (default from config)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Rebuild the index from scratch")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Plain text output without the progress display")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runIndex(cmd *cobra.Command, opts indexOptions) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	cleanup := setupFileLogging(cfg.Logging.Level)
	defer cleanup()

	vaultPath, err := resolveVault(cfg, opts.vault)
	if err != nil {
		return err
	}

	if err := silentPreflight(ctx, cfg, vaultPath); err != nil {
		return err
	}

	slog.Info("index_started",
		slog.String("vault", vaultPath),
		slog.Bool("force", opts.force))

	embedder, err := embed.New(ctx, cfg.Embedding, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	reg, err := registry.New(cfg, embedder, slog.Default())
	if err != nil {
		return err
	}
	defer reg.Close()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.quiet),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithVaultDir(vaultPath),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	res, err := reg.Reindex(ctx, vaultPath, opts.force, func(p indexer.Progress) {
		renderer.UpdateProgress(ui.EventFor(p))
	})
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Notes:    res.Files,
		Chunks:   res.Rows,
		New:      res.New,
		Modified: res.Modified,
		Deleted:  res.Deleted,
		Duration: res.Duration,
		Embedder: embedderInfo(embedder),
	})
	if err := renderer.Stop(); err != nil {
		return err
	}

	slog.Info("index_complete",
		slog.String("vault", vaultPath),
		slog.Int("files", res.Files),
		slog.Int("rows", res.Rows),
		slog.Duration("duration", res.Duration))
	return nil
}

// embedderInfo describes the active embedding backend for the summary.
func embedderInfo(e embed.Embedder) ui.EmbedderInfo {
	backend := "ollama"
	if e.ModelID() == "static" {
		backend = "static"
	}
	return ui.EmbedderInfo{
		Backend:    backend,
		Model:      e.ModelID(),
		Dimensions: e.Dimensions(),
	}
}

// silentPreflight runs system checks once per vault before the first
// index build. Results go to the log, not stdout; a critical failure
// aborts with a pointer to 'temoa doctor'.
func silentPreflight(ctx context.Context, cfg *config.Config, vaultPath string) error {
	indexDir := filepath.Join(vaultPath, dense.StoreDirName)
	if !preflight.NeedsCheck(indexDir) {
		return nil
	}

	checker := preflight.New(
		preflight.WithOutput(io.Discard),
		preflight.WithEmbedder(cfg.Embedding.OllamaHost, cfg.Embedding.Model),
	)
	results := checker.RunAll(ctx, vaultPath)

	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_check",
				slog.String("check", r.Name),
				slog.String("status", r.Status.String()),
				slog.String("message", r.Message))
		}
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system checks failed for %s, run 'temoa doctor --vault %s' for details", vaultPath, vaultPath)
	}

	if err := preflight.MarkPassed(indexDir); err != nil {
		slog.Debug("preflight_marker_write_failed", slog.Any("error", err))
	}
	return nil
}
