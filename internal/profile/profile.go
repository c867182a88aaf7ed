// Package profile resolves named search-parameter bundles. Five built-ins
// cover the common retrieval postures; the config file can add custom
// profiles or override built-ins, inheriting any unset field.
package profile

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/temoa-dev/temoa/internal/config"
)

// Mode selects which retrievers feed the fusion stage.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeDense  Mode = "dense"
	ModeBM25   Mode = "bm25"
)

// Expand controls query expansion: always, never, or only for short
// queries.
type Expand string

const (
	ExpandAuto Expand = "auto"
	ExpandOn   Expand = "on"
	ExpandOff  Expand = "off"
)

// DefaultID is the profile used when none is requested or the requested
// one is unknown.
const DefaultID = "default"

// Profile is an immutable bundle of pipeline parameters.
type Profile struct {
	ID           string `json:"id"`
	Mode         Mode   `json:"mode"`
	Rerank       bool   `json:"rerank"`
	Chunking     bool   `json:"chunking"`
	HalfLifeDays int    `json:"half_life_days"` // 0 disables the time boost
	Expand       Expand `json:"expand"`
	Limit        int    `json:"limit"`
}

// BuiltIns returns the required built-in profiles.
func BuiltIns() []Profile {
	return []Profile{
		{ID: "default", Mode: ModeHybrid, Rerank: true, Chunking: true, HalfLifeDays: 90, Expand: ExpandAuto, Limit: 10},
		{ID: "repos", Mode: ModeDense, Rerank: true, Chunking: false, HalfLifeDays: 0, Expand: ExpandOff, Limit: 10},
		{ID: "recent", Mode: ModeHybrid, Rerank: false, Chunking: true, HalfLifeDays: 14, Expand: ExpandAuto, Limit: 20},
		{ID: "deep", Mode: ModeHybrid, Rerank: true, Chunking: true, HalfLifeDays: 180, Expand: ExpandOn, Limit: 25},
		{ID: "keywords", Mode: ModeBM25, Rerank: false, Chunking: false, HalfLifeDays: 0, Expand: ExpandOff, Limit: 10},
	}
}

// Resolver maps profile ids to profiles.
type Resolver struct {
	profiles map[string]Profile
	logger   *slog.Logger
}

// NewResolver builds a resolver from the built-ins plus custom profiles
// from the config file. A custom profile with a built-in's name overrides
// it; unset fields inherit from the profile being overridden, or from
// "default" for new names.
func NewResolver(custom map[string]config.ProfileConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		profiles: make(map[string]Profile),
		logger:   logger,
	}
	for _, p := range BuiltIns() {
		r.profiles[p.ID] = p
	}
	for name, pc := range custom {
		id := strings.ToLower(strings.TrimSpace(name))
		if id == "" {
			continue
		}
		base, ok := r.profiles[id]
		if !ok {
			base = r.profiles[DefaultID]
		}
		r.profiles[id] = applyOverrides(id, base, pc)
	}
	return r
}

func applyOverrides(id string, base Profile, pc config.ProfileConfig) Profile {
	p := base
	p.ID = id
	if pc.Mode != "" {
		p.Mode = Mode(strings.ToLower(pc.Mode))
	}
	if pc.Rerank != nil {
		p.Rerank = *pc.Rerank
	}
	if pc.Chunking != nil {
		p.Chunking = *pc.Chunking
	}
	if pc.HalfLifeDays != nil {
		p.HalfLifeDays = *pc.HalfLifeDays
	}
	if pc.Expand != "" {
		p.Expand = Expand(strings.ToLower(pc.Expand))
	}
	if pc.Limit > 0 {
		p.Limit = pc.Limit
	}
	return p
}

// Resolve returns the profile for id, falling back to the default profile
// for unknown ids. Lookup is case-insensitive.
func (r *Resolver) Resolve(id string) Profile {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return r.profiles[DefaultID]
	}
	if p, ok := r.profiles[key]; ok {
		return p
	}
	r.logger.Warn("unknown_profile",
		slog.String("profile", id),
		slog.String("fallback", DefaultID))
	return r.profiles[DefaultID]
}

// Known reports whether id resolves without falling back.
func (r *Resolver) Known(id string) bool {
	_, ok := r.profiles[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// List returns all profiles sorted by id.
func (r *Resolver) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
