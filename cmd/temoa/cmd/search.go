package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/embed"
	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/output"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	vault        string
	profileID    string
	limit        int
	jsonOut      bool
	tags         []string
	excludeTags  []string
	types        []string
	statuses     []string
	paths        []string
	excludePaths []string
	configPath   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a vault",
		Long: `Search a vault with hybrid semantic and keyword retrieval.

Results combine vector similarity with BM25 keyword matching. Profiles
tune the pipeline for different intents; filters narrow by tag, type,
status, or path.

Examples:
  temoa search "ollama embedding setup"
  temoa search --vault notes --profile recent "standup"
  temoa search --tag project --type note "quarterly goals"
  temoa search --json "meeting notes" | jq '.[0].path'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.vault, "vault", "", "Vault name or path (default from config)")
	cmd.Flags().StringVar(&opts.profileID, "profile", "", "Search profile: default, repos, recent, deep, keywords")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from profile)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Require a tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.excludeTags, "exclude-tag", nil, "Exclude a tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.types, "type", nil, "Require a note type (repeatable)")
	cmd.Flags().StringSliceVar(&opts.statuses, "status", nil, "Allow a status (repeatable; default excludes archived)")
	cmd.Flags().StringSliceVar(&opts.paths, "path", nil, "Require a path substring (repeatable)")
	cmd.Flags().StringSliceVar(&opts.excludePaths, "exclude-path", nil, "Exclude a path substring (repeatable)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (merged over the user config)")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
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

	var regOpts []registry.Option
	if cfg.Reranker.Enabled {
		regOpts = append(regOpts, registry.WithReranker(search.NewHTTPReranker(cfg.Reranker, slog.Default())))
	}
	reg, err := registry.New(cfg, embedder, slog.Default(), regOpts...)
	if err != nil {
		return err
	}
	defer reg.Close()

	resolver := profile.NewResolver(cfg.Profiles, slog.Default())
	searchOpts := search.OptionsFromProfile(resolver.Resolve(opts.profileID))
	if opts.limit > 0 {
		searchOpts.Limit = opts.limit
	}
	searchOpts.Filters = filter.Filters{
		Statuses:     opts.statuses,
		IncludeTypes: opts.types,
		IncludeTags:  opts.tags,
		ExcludeTags:  opts.excludeTags,
		IncludePaths: opts.paths,
		ExcludePaths: opts.excludePaths,
	}

	results, err := reg.Search(ctx, vaultPath, query, searchOpts)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printResults(cmd, query, results)
	return nil
}

// printResults renders results as numbered text.
func printResults(cmd *cobra.Command, query string, results []search.Result) {
	out := output.New(cmd.OutOrStdout())

	if len(results) == 0 {
		out.Statusf("🔍", "No results for %q", query)
		return
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (score: %.2f)\n", i+1, title, r.CombinedScore)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", r.Path)
		for _, line := range excerptLines(r.Excerpt, 3) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", line)
		}
		if len(r.Tags) > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "   #%s\n", strings.Join(r.Tags, " #"))
		}
		out.Newline()
	}
}

// excerptLines trims an excerpt to at most max non-empty lines.
func excerptLines(excerpt string, max int) []string {
	var lines []string
	for _, line := range strings.Split(excerpt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == max {
			break
		}
	}
	return lines
}
