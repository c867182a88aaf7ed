package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	terrors "github.com/temoa-dev/temoa/internal/errors"
	"github.com/temoa-dev/temoa/internal/filter"
	"github.com/temoa-dev/temoa/internal/profile"
	"github.com/temoa-dev/temoa/internal/search"
	"github.com/temoa-dev/temoa/internal/telemetry"
	"github.com/temoa-dev/temoa/internal/vault"
)

// maxLimit caps the per-request result count.
const maxLimit = 100

// modelCheckTimeout bounds the embedder probe in GET /models.
const modelCheckTimeout = 2 * time.Second

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	vaultPath, err := s.vaultPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.searchOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Search.QueryTimeoutDuration())
	defer cancel()

	results, err := s.registry.Search(ctx, vaultPath, r.URL.Query().Get("q"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

// searchOptions derives pipeline options from the requested profile,
// then applies explicit query-parameter overrides.
func (s *Server) searchOptions(r *http.Request) (search.Options, error) {
	q := r.URL.Query()
	opts := search.OptionsFromProfile(s.resolver.Resolve(q.Get("profile")))

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			return opts, terrors.New(terrors.ErrCodeInvalidParam,
				fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit), err)
		}
		opts.Limit = n
	}

	if v, ok, err := boolParam(q, "hybrid"); err != nil {
		return opts, err
	} else if ok {
		if v {
			opts.Mode = profile.ModeHybrid
		} else {
			opts.Mode = profile.ModeDense
		}
	}
	if v, ok, err := boolParam(q, "rerank"); err != nil {
		return opts, err
	} else if ok {
		opts.Rerank = v
	}
	if v, ok, err := boolParam(q, "expand"); err != nil {
		return opts, err
	} else if ok {
		if v {
			opts.Expand = profile.ExpandOn
		} else {
			opts.Expand = profile.ExpandOff
		}
	}
	if v, ok, err := boolParam(q, "time_boost"); err != nil {
		return opts, err
	} else if ok {
		opts.TimeBoost = v
		if v && opts.HalfLifeDays <= 0 {
			opts.HalfLifeDays = s.cfg.Search.TimeBoost.HalfLifeDays
		}
	}

	f := filter.Filters{
		Statuses:     listParam(q, "status"),
		IncludeTypes: listParam(q, "include_types"),
		ExcludeTypes: listParam(q, "exclude_types"),
		IncludeTags:  listParam(q, "include_tags"),
		ExcludeTags:  listParam(q, "exclude_tags"),
		IncludePaths: listParam(q, "include_paths"),
		ExcludePaths: listParam(q, "exclude_paths"),
	}
	for _, raw := range listParam(q, "include_props") {
		pm, err := filter.ParseProperty(raw)
		if err != nil {
			return opts, terrors.New(terrors.ErrCodeInvalidParam, err.Error(), err)
		}
		f.IncludeProps = append(f.IncludeProps, pm)
	}
	for _, raw := range listParam(q, "exclude_props") {
		pm, err := filter.ParseProperty(raw)
		if err != nil {
			return opts, terrors.New(terrors.ErrCodeInvalidParam, err.Error(), err)
		}
		f.ExcludeProps = append(f.ExcludeProps, pm)
	}
	opts.Filters = f

	return opts, nil
}

// reindexResponse is the POST /reindex body.
type reindexResponse struct {
	New        int   `json:"new"`
	Modified   int   `json:"modified"`
	Deleted    int   `json:"deleted"`
	Total      int   `json:"total"`
	DurationMS int64 `json:"duration_ms"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	vaultPath, err := s.vaultPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	force, _, err := boolParam(r.URL.Query(), "force")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.registry.Reindex(r.Context(), vaultPath, force, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reindexResponse{
		New:        res.New,
		Modified:   res.Modified,
		Deleted:    res.Deleted,
		Total:      res.Files,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// statsResponse extends index statistics with the live query metrics
// when telemetry is enabled.
type statsResponse struct {
	search.Stats
	QueryMetrics *telemetry.Snapshot `json:"query_metrics,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	vaultPath, err := s.vaultPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.registry.Stats(r.Context(), vaultPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := statsResponse{Stats: st}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp.QueryMetrics = &snap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status       string `json:"status"`
	Model        string `json:"model"`
	FilesIndexed int    `json:"files_indexed"`
	UptimeS      int64  `json:"uptime_s"`
}

// handleHealth reports liveness. FilesIndexed sums the vaults currently
// cached in the registry; a fresh process reports zero until the first
// search or reindex loads one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Model:   s.embedder.ModelID(),
		UptimeS: int64(time.Since(s.started).Seconds()),
	}
	for _, path := range s.registry.CachedVaults() {
		st, err := s.registry.Stats(r.Context(), path)
		if err != nil {
			continue
		}
		resp.FilesIndexed += st.FileCount
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type vaultInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

func (s *Server) handleVaults(w http.ResponseWriter, r *http.Request) {
	out := make([]vaultInfo, 0, len(s.cfg.Vaults))
	for _, name := range s.cfg.VaultNames() {
		out = append(out, vaultInfo{
			Name:    name,
			Path:    s.cfg.Vaults[name],
			Default: name == s.cfg.Default,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.resolver.List())
}

type modelInfo struct {
	ID         string `json:"id"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), modelCheckTimeout)
	defer cancel()
	s.writeJSON(w, http.StatusOK, []modelInfo{{
		ID:         s.embedder.ModelID(),
		Dimensions: s.embedder.Dimensions(),
		Available:  s.embedder.Available(ctx),
	}})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg)
}

// extractResponse is one full note as returned by GET /extract.
type extractResponse struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Type        string         `json:"type,omitempty"`
	Status      string         `json:"status"`
	Created     time.Time      `json:"created"`
	Modified    time.Time      `json:"modified"`
}

// handleExtract returns the full content of one note. The requested
// path must stay inside the vault root.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	vaultPath, err := s.vaultPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rel := strings.TrimSpace(r.URL.Query().Get("path"))
	if rel == "" {
		s.writeError(w, r, terrors.New(terrors.ErrCodeInvalidParam, "path parameter is required", nil))
		return
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		s.writeError(w, r, terrors.New(terrors.ErrCodeInvalidParam,
			fmt.Sprintf("path %q escapes the vault", rel), nil))
		return
	}
	if !strings.EqualFold(filepath.Ext(rel), ".md") {
		s.writeError(w, r, terrors.New(terrors.ErrCodeInvalidParam, "only Markdown notes can be extracted", nil))
		return
	}

	doc := vault.NewReader(vaultPath, s.cfg.Excludes, s.logger).ReadFile(rel)
	if doc.Tombstone {
		s.writeError(w, r, terrors.New(terrors.ErrCodeFileUnreadable,
			fmt.Sprintf("note %s not found or unreadable", rel), nil))
		return
	}

	s.writeJSON(w, http.StatusOK, extractResponse{
		Path:        doc.Path,
		Title:       doc.Title,
		Content:     doc.Body,
		Frontmatter: doc.Frontmatter,
		Tags:        doc.Tags,
		Type:        doc.Type,
		Status:      string(doc.Status),
		Created:     doc.Created,
		Modified:    doc.Modified,
	})
}

// vaultPath resolves the vault query parameter through the config. A
// missing parameter falls back to default_vault.
func (s *Server) vaultPath(r *http.Request) (string, error) {
	name := strings.TrimSpace(r.URL.Query().Get("vault"))
	path, err := s.cfg.VaultPath(name)
	if err != nil {
		if name == "" {
			return "", terrors.New(terrors.ErrCodeInvalidParam, err.Error(), err).
				WithSuggestion("pass ?vault=<name> or set default_vault in the config")
		}
		return "", terrors.New(terrors.ErrCodeUnknownVault, err.Error(), err).
			WithDetail("vault", name).
			WithSuggestion("list configured vaults with GET /vaults")
	}
	return path, nil
}

// boolParam parses an optional boolean query parameter. The second
// return reports presence.
func boolParam(q url.Values, name string) (bool, bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, terrors.New(terrors.ErrCodeInvalidParam,
			fmt.Sprintf("%s must be a boolean", name), err)
	}
	return v, true, nil
}

// listParam gathers a comma-separated (and repeatable) parameter into a
// trimmed list.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
