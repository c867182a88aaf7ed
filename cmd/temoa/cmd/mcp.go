package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/embed"
	"github.com/temoa-dev/temoa/internal/logging"
	"github.com/temoa-dev/temoa/internal/mcpserver"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/search"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Run the Model Context Protocol server on stdin/stdout.

Exposes three tools to MCP clients such as Claude Code:
  search_vault   hybrid search over a configured vault
  reindex_vault  build or update a vault index
  vault_stats    index statistics for a vault

Register with Claude Code:
  claude mcp add temoa -- temoa mcp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runMCP(cmd *cobra.Command, configPath string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Stdout belongs to the protocol; logs go to the file only.
	logger, logCleanup, err := logging.SetupStdio(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logCleanup()
	slog.SetDefault(logger)

	embedder, err := embed.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	var regOpts []registry.Option
	if cfg.Reranker.Enabled {
		regOpts = append(regOpts, registry.WithReranker(search.NewHTTPReranker(cfg.Reranker, logger)))
	}
	reg, err := registry.New(cfg, embedder, logger, regOpts...)
	if err != nil {
		return err
	}
	defer reg.Close()

	srv, err := mcpserver.New(mcpserver.Deps{
		Config:   cfg,
		Registry: reg,
		Resolver: profile.NewResolver(cfg.Profiles, logger),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
