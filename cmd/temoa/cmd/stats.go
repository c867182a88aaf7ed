package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
	"github.com/temoa-dev/temoa/internal/embed"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/ui"
)

// statsOptions holds CLI flags for stats.
type statsOptions struct {
	vault      string
	jsonOut    bool
	configPath string
}

func newStatsCmd() *cobra.Command {
	var opts statsOptions

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vault index statistics",
		Long: `Show index statistics for a vault.

Reports note, embedding, tag and directory counts, the embedding model
behind the index, and whether the embedder is currently reachable.

Examples:
  temoa stats
  temoa stats --vault notes
  temoa stats --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.vault, "vault", "", "Vault name or path (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output statistics as JSON")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runStats(cmd *cobra.Command, opts statsOptions) error {
	ctx := cmd.Context()

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

	stats, err := reg.Stats(ctx, vaultPath)
	if err != nil {
		return err
	}

	embedderStatus := "offline"
	if embedder.Available(ctx) {
		embedderStatus = "ready"
	}

	info := ui.StatusInfo{
		Vault:          vaultPath,
		Notes:          stats.FileCount,
		Embeddings:     stats.EmbeddingCount,
		Tags:           stats.TagCount,
		Directories:    stats.DirectoryCount,
		LastIndexed:    stats.CreatedAt,
		IndexSize:      indexSize(vaultPath, stats.ModelID),
		Model:          stats.ModelID,
		Dimensions:     stats.Dimension,
		EmbedderStatus: embedderStatus,
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if opts.jsonOut {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// indexSize sums the store files for one (vault, model) index. Zero
// when the store does not exist yet.
func indexSize(vaultPath, modelID string) int64 {
	entries, err := os.ReadDir(dense.StoreDir(vaultPath, modelID))
	if err != nil {
		return 0
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
