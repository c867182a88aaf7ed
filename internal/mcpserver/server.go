// Package mcpserver exposes the search engine to MCP clients over
// stdio. Tools are a thin schema and dispatch layer; all semantics
// live in the registry and the search pipeline.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/temoa-dev/temoa/internal/config"
	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/registry"
	"github.com/temoa-dev/temoa/internal/search"
	"github.com/temoa-dev/temoa/pkg/version"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry
	Resolver *profile.Resolver
	Logger   *slog.Logger
}

// Server bridges MCP clients (Claude Code, editors) to the vault
// search engine.
type Server struct {
	mcp      *mcp.Server
	cfg      *config.Config
	registry *registry.Registry
	resolver *profile.Resolver
	logger   *slog.Logger
}

// SearchVaultInput is the schema of the search_vault tool.
type SearchVaultInput struct {
	Query        string   `json:"query" jsonschema:"the search query"`
	Vault        string   `json:"vault,omitempty" jsonschema:"vault name, defaults to the configured default vault"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum results, default 10, capped at 50"`
	Profile      string   `json:"profile,omitempty" jsonschema:"search profile: default, recent, deep, keywords, repos"`
	IncludeTags  []string `json:"include_tags,omitempty" jsonschema:"only notes carrying all of these tags"`
	ExcludeTags  []string `json:"exclude_tags,omitempty" jsonschema:"drop notes carrying any of these tags"`
	Types        []string `json:"types,omitempty" jsonschema:"only notes whose frontmatter type is one of these"`
	Status       []string `json:"status,omitempty" jsonschema:"status allow-list, e.g. active, archived"`
	PathPrefixes []string `json:"path_prefixes,omitempty" jsonschema:"only notes whose vault-relative path contains one of these"`
}

// SearchVaultOutput is the structured result list of search_vault.
type SearchVaultOutput struct {
	Results []NoteResult `json:"results" jsonschema:"ranked search results"`
}

// NoteResult is one hit, trimmed to what an MCP client needs to decide
// whether to pull the full note.
type NoteResult struct {
	Path    string   `json:"path" jsonschema:"vault-relative note path"`
	Title   string   `json:"title" jsonschema:"note title"`
	Excerpt string   `json:"excerpt" jsonschema:"matched content excerpt"`
	Score   float64  `json:"score" jsonschema:"final ranking score"`
	Tags    []string `json:"tags,omitempty" jsonschema:"note tags"`
}

// ReindexVaultInput is the schema of the reindex_vault tool.
type ReindexVaultInput struct {
	Vault string `json:"vault,omitempty" jsonschema:"vault name, defaults to the configured default vault"`
	Force bool   `json:"force,omitempty" jsonschema:"rebuild everything instead of only changed notes"`
}

// ReindexVaultOutput reports what an index pass changed.
type ReindexVaultOutput struct {
	New        int   `json:"new" jsonschema:"notes indexed for the first time"`
	Modified   int   `json:"modified" jsonschema:"notes re-embedded because they changed"`
	Deleted    int   `json:"deleted" jsonschema:"notes removed from the index"`
	Total      int   `json:"total" jsonschema:"notes in the vault after the pass"`
	DurationMS int64 `json:"duration_ms" jsonschema:"wall-clock duration in milliseconds"`
}

// VaultStatsInput is the schema of the vault_stats tool.
type VaultStatsInput struct {
	Vault string `json:"vault,omitempty" jsonschema:"vault name, defaults to the configured default vault"`
}

// VaultStatsOutput describes the indexed corpus.
type VaultStatsOutput struct {
	Vault          string `json:"vault" jsonschema:"resolved vault name or path"`
	FileCount      int    `json:"file_count" jsonschema:"indexed notes"`
	EmbeddingCount int    `json:"embedding_count" jsonschema:"embedded chunks"`
	TagCount       int    `json:"tag_count" jsonschema:"distinct tags"`
	DirectoryCount int    `json:"directory_count" jsonschema:"distinct directories"`
	Model          string `json:"model" jsonschema:"embedding model backing the index"`
	Dimensions     int    `json:"dimensions" jsonschema:"embedding vector width"`
	BuiltAt        string `json:"built_at,omitempty" jsonschema:"RFC 3339 time of the last full build"`
}

// New creates an MCP server wired to the registry. It registers the
// tools but does not start serving; call Run.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("profile resolver is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      deps.Config,
		registry: deps.Registry,
		resolver: deps.Resolver,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "Temoa",
		Version: version.Short(),
	}, nil)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_vault",
		Description: "Semantic search over the notes vault. Finds notes by meaning, not exact words, so it works when you only remember what a note was about. Supports tag, type, status and path filters.",
	}, s.handleSearchVault)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex_vault",
		Description: "Pick up vault changes. Runs an incremental index pass that embeds new and modified notes and drops deleted ones; set force to rebuild from scratch.",
	}, s.handleReindexVault)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vault_stats",
		Description: "Describe the vault index: note and embedding counts, tags, the active embedding model, and when the index was built.",
	}, s.handleVaultStats)

	s.logger.Info("mcp_tools_registered", slog.Int("count", 3))
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) handleSearchVault(ctx context.Context, _ *mcp.CallToolRequest, input SearchVaultInput) (
	*mcp.CallToolResult,
	SearchVaultOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchVaultOutput{}, invalidParams("query is required and must be non-empty")
	}

	vaultPath, err := s.vaultPath(input.Vault)
	if err != nil {
		return nil, SearchVaultOutput{}, mapError(err)
	}

	opts := search.OptionsFromProfile(s.resolver.Resolve(input.Profile))
	opts.Limit = clampLimit(input.Limit, opts.Limit)
	opts.Filters = filter.Filters{
		Statuses:     input.Status,
		IncludeTypes: input.Types,
		IncludeTags:  input.IncludeTags,
		ExcludeTags:  input.ExcludeTags,
		IncludePaths: input.PathPrefixes,
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Search.QueryTimeoutDuration())
	defer cancel()

	start := time.Now()
	results, err := s.registry.Search(ctx, vaultPath, input.Query, opts)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchVaultOutput{}, mapError(err)
	}
	s.logger.Info("mcp_search_completed",
		slog.String("query", input.Query),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	out := SearchVaultOutput{Results: make([]NoteResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, NoteResult{
			Path:    r.Path,
			Title:   r.Title,
			Excerpt: r.Excerpt,
			Score:   r.CombinedScore,
			Tags:    r.Tags,
		})
	}
	return nil, out, nil
}

func (s *Server) handleReindexVault(ctx context.Context, _ *mcp.CallToolRequest, input ReindexVaultInput) (
	*mcp.CallToolResult,
	ReindexVaultOutput,
	error,
) {
	vaultPath, err := s.vaultPath(input.Vault)
	if err != nil {
		return nil, ReindexVaultOutput{}, mapError(err)
	}

	res, err := s.registry.Reindex(ctx, vaultPath, input.Force, nil)
	if err != nil {
		s.logger.Error("mcp_reindex_failed",
			slog.String("vault", vaultPath),
			slog.String("error", err.Error()))
		return nil, ReindexVaultOutput{}, mapError(err)
	}

	return nil, ReindexVaultOutput{
		New:        res.New,
		Modified:   res.Modified,
		Deleted:    res.Deleted,
		Total:      res.Files,
		DurationMS: res.Duration.Milliseconds(),
	}, nil
}

func (s *Server) handleVaultStats(ctx context.Context, _ *mcp.CallToolRequest, input VaultStatsInput) (
	*mcp.CallToolResult,
	VaultStatsOutput,
	error,
) {
	vaultPath, err := s.vaultPath(input.Vault)
	if err != nil {
		return nil, VaultStatsOutput{}, mapError(err)
	}

	stats, err := s.registry.Stats(ctx, vaultPath)
	if err != nil {
		return nil, VaultStatsOutput{}, mapError(err)
	}

	out := VaultStatsOutput{
		Vault:          vaultPath,
		FileCount:      stats.FileCount,
		EmbeddingCount: stats.EmbeddingCount,
		TagCount:       stats.TagCount,
		DirectoryCount: stats.DirectoryCount,
		Model:          stats.ModelID,
		Dimensions:     stats.Dimension,
	}
	if !stats.CreatedAt.IsZero() {
		out.BuiltAt = stats.CreatedAt.UTC().Format(time.RFC3339)
	}
	return nil, out, nil
}

// vaultPath resolves a vault name to its root, falling back to the
// configured default for an empty name.
func (s *Server) vaultPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	path, err := s.cfg.VaultPath(name)
	if err == nil {
		return path, nil
	}
	if name == "" {
		return "", terrors.New(terrors.ErrCodeInvalidParam,
			"no vault given and no default vault is configured", err).
			WithSuggestion("pass a vault name or set default_vault in the config")
	}
	return "", terrors.New(terrors.ErrCodeUnknownVault,
		fmt.Sprintf("unknown vault %q", name), err).
		WithSuggestion("list configured vaults with the vaults endpoint or temoa config show")
}

func clampLimit(requested, fallback int) int {
	switch {
	case requested <= 0:
		if fallback > 0 && fallback <= maxLimit {
			return fallback
		}
		return defaultLimit
	case requested > maxLimit:
		return maxLimit
	default:
		return requested
	}
}
