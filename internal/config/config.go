package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Temoa configuration.
type Config struct {
	Version int               `yaml:"version" json:"version"`
	Vaults  map[string]string `yaml:"vaults" json:"vaults"`
	Default string            `yaml:"default_vault" json:"default_vault"`
	// Excludes are file or directory base names skipped during vault
	// enumeration and watching, in addition to dot-prefixed ones.
	// Simple glob patterns ("*.tmp") are honored.
	Excludes  []string                 `yaml:"exclude" json:"exclude"`
	Embedding EmbeddingConfig          `yaml:"embedding" json:"embedding"`
	Reranker  RerankerConfig           `yaml:"reranker" json:"reranker"`
	Chunking  ChunkingConfig           `yaml:"chunking" json:"chunking"`
	Search    SearchConfig             `yaml:"search" json:"search"`
	Profiles  map[string]ProfileConfig `yaml:"profiles" json:"profiles"`
	Registry  RegistryConfig           `yaml:"registry" json:"registry"`
	Server    ServerConfig             `yaml:"server" json:"server"`
	Logging   LoggingConfig            `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig          `yaml:"telemetry" json:"telemetry"`
	Watch     WatchConfig              `yaml:"watch" json:"watch"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection (Ollama if reachable, static fallback otherwise).
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model identifier. It also names the on-disk
	// index directory, so changing it triggers a full rebuild.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector width. 0 means auto-detect from the model.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request during indexing.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint. Empty uses http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the LRU capacity of the query-embedding cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxRetries is attempts per embedding request before failing.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RequestTimeout bounds a single embedding HTTP call (e.g. "30s").
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// RerankerConfig configures the cross-encoder re-ranking service.
type RerankerConfig struct {
	// Enabled is the master switch; profiles refine it per query.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL is the rerank service endpoint. Empty uses http://localhost:9659.
	URL string `yaml:"url" json:"url"`
	// Model is the cross-encoder model identifier. Empty uses the service default.
	Model string `yaml:"model" json:"model"`
}

// ChunkingConfig configures document splitting at index time.
type ChunkingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Threshold is the body length in characters above which a document
	// is split into chunks.
	Threshold int `yaml:"threshold" json:"threshold"`
	// Size is the nominal chunk length in characters.
	Size int `yaml:"size" json:"size"`
	// Overlap is the number of characters shared between adjacent chunks.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// SearchConfig configures the query pipeline.
type SearchConfig struct {
	// Mode is the default retrieval mode: "hybrid", "dense", or "bm25".
	Mode string `yaml:"mode" json:"mode"`
	// RRFConstant is the reciprocal rank fusion smoothing parameter (k).
	// 60 is the standard value; higher flattens rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// MinCandidates floors the per-retriever candidate count; the effective
	// depth is max(MinCandidates, requested limit).
	MinCandidates int `yaml:"min_candidates" json:"min_candidates"`
	// RerankDepth caps how many candidates are sent to the cross-encoder.
	RerankDepth int `yaml:"rerank_depth" json:"rerank_depth"`
	// DefaultLimit is the result count when the client does not pass one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// Expand controls query expansion: "on", "off", or "auto" (short
	// queries only).
	Expand string `yaml:"expand" json:"expand"`

	// BM25 scoring parameters.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`
	// TagBoost scales the idf bonus added when query terms match tags.
	TagBoost float64 `yaml:"tag_boost" json:"tag_boost"`

	// Stage timeouts. Expansion and rerank degrade to skipping the stage;
	// the query timeout aborts the request.
	ExpansionTimeout string `yaml:"expansion_timeout" json:"expansion_timeout"`
	RerankTimeout    string `yaml:"rerank_timeout" json:"rerank_timeout"`
	QueryTimeout     string `yaml:"query_timeout" json:"query_timeout"`

	TimeBoost TimeBoostConfig `yaml:"time_boost" json:"time_boost"`
	ANN       ANNConfig       `yaml:"ann" json:"ann"`
}

// TimeBoostConfig configures the recency boost applied after re-ranking.
type TimeBoostConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// HalfLifeDays is the age at which the boost halves.
	HalfLifeDays int `yaml:"half_life_days" json:"half_life_days"`
	// MaxBoost is the multiplier ceiling for a zero-age file.
	MaxBoost float64 `yaml:"max_boost" json:"max_boost"`
}

// ANNConfig configures the optional approximate-nearest-neighbor index.
// Disabled by default; exact scan is the reference behavior.
type ANNConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// M is the HNSW graph degree.
	M int `yaml:"m" json:"m"`
	// EfSearch is the HNSW search beam width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// ProfileConfig declares a custom search profile in the config file.
// Unset fields inherit from the built-in default profile.
type ProfileConfig struct {
	Mode         string `yaml:"mode" json:"mode"`
	Rerank       *bool  `yaml:"rerank" json:"rerank"`
	Chunking     *bool  `yaml:"chunking" json:"chunking"`
	HalfLifeDays *int   `yaml:"half_life_days" json:"half_life_days"`
	Expand       string `yaml:"expand" json:"expand"`
	Limit        int    `yaml:"limit" json:"limit"`
}

// RegistryConfig configures the per-vault pipeline cache.
type RegistryConfig struct {
	// Capacity is the number of vault pipelines kept in memory.
	Capacity int `yaml:"capacity" json:"capacity"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host to bind. Use 0.0.0.0 to reach the service from other devices
	// on the local network.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// AllowedOrigins is the CORS allow-list. Empty means no cross-origin
	// access; "*" allows any origin and should stay opt-in.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// RateLimit holds per-endpoint-class sliding windows.
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig holds sliding-window limits per endpoint class.
type RateLimitConfig struct {
	Enabled bool       `yaml:"enabled" json:"enabled"`
	Search  RateWindow `yaml:"search" json:"search"`
	Reindex RateWindow `yaml:"reindex" json:"reindex"`
	Extract RateWindow `yaml:"extract" json:"extract"`
}

// RateWindow is a request budget over a time window.
type RateWindow struct {
	Requests int    `yaml:"requests" json:"requests"`
	Window   string `yaml:"window" json:"window"`
}

// LoggingConfig configures the structured log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File overrides the default log path under the state directory.
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TelemetryConfig configures local query metrics collection.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path overrides the default telemetry.db location under the state dir.
	Path string `yaml:"path" json:"path"`
	// RetentionDays prunes query records older than this.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// WatchConfig configures filesystem watching for automatic reindex.
type WatchConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Debounce coalesces bursts of file events (e.g. "500ms").
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version:  1,
		Vaults:   map[string]string{},
		Default:  "",
		Excludes: []string{},
		Embedding: EmbeddingConfig{
			Provider:       "", // Empty triggers auto-detection: Ollama -> static
			Model:          "nomic-embed-text",
			Dimensions:     0, // Auto-detect from embedder
			BatchSize:      32,
			OllamaHost:     "", // Empty uses default http://localhost:11434
			CacheSize:      4096,
			MaxRetries:     3,
			RequestTimeout: "30s",
		},
		Reranker: RerankerConfig{
			Enabled: true,
			URL:     "", // Empty uses default http://localhost:9659
			Model:   "",
		},
		Chunking: ChunkingConfig{
			Enabled:   true,
			Threshold: 4000,
			Size:      1000,
			Overlap:   200,
		},
		Search: SearchConfig{
			Mode:             "hybrid",
			RRFConstant:      60,
			MinCandidates:    100,
			RerankDepth:      100,
			DefaultLimit:     10,
			Expand:           "auto",
			BM25K1:           1.5,
			BM25B:            0.75,
			TagBoost:         0.5,
			ExpansionTimeout: "500ms",
			RerankTimeout:    "1s",
			QueryTimeout:     "2s",
			TimeBoost: TimeBoostConfig{
				Enabled:      true,
				HalfLifeDays: 90,
				MaxBoost:     0.2,
			},
			ANN: ANNConfig{
				Enabled:  false,
				M:        16,
				EfSearch: 64,
			},
		},
		Profiles: map[string]ProfileConfig{},
		Registry: RegistryConfig{
			Capacity: 3,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8765,
			AllowedOrigins:  []string{},
			ShutdownTimeout: "10s",
			RateLimit: RateLimitConfig{
				Enabled: true,
				Search:  RateWindow{Requests: 120, Window: "1m"},
				Reindex: RateWindow{Requests: 6, Window: "1m"},
				Extract: RateWindow{Requests: 30, Window: "1m"},
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			Path:          "",
			RetentionDays: 30,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "2s",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/temoa/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/temoa/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "temoa", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "temoa", "config.yaml")
	}
	return filepath.Join(home, ".config", "temoa", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/temoa/config.yaml)
//  3. Explicit config file (--config flag), which must exist when given
//  4. Environment variables (TEMOA_*)
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, fmt.Errorf("config file not found: %s", explicitPath)
		}
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Vaults
	if len(other.Vaults) > 0 {
		for name, path := range other.Vaults {
			c.Vaults[name] = path
		}
	}
	if other.Default != "" {
		c.Default = other.Default
	}
	if len(other.Excludes) > 0 {
		c.Excludes = other.Excludes
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.MaxRetries != 0 {
		c.Embedding.MaxRetries = other.Embedding.MaxRetries
	}
	if other.Embedding.RequestTimeout != "" {
		c.Embedding.RequestTimeout = other.Embedding.RequestTimeout
	}

	// Reranker. URL or model set implies the section was written, so the
	// enabled flag is honored even when false.
	if other.Reranker.URL != "" || other.Reranker.Model != "" || other.Reranker.Enabled {
		c.Reranker.Enabled = other.Reranker.Enabled
	}
	if other.Reranker.URL != "" {
		c.Reranker.URL = other.Reranker.URL
	}
	if other.Reranker.Model != "" {
		c.Reranker.Model = other.Reranker.Model
	}

	// Chunking
	if other.Chunking.Threshold != 0 || other.Chunking.Size != 0 || other.Chunking.Overlap != 0 || other.Chunking.Enabled {
		c.Chunking.Enabled = other.Chunking.Enabled
	}
	if other.Chunking.Threshold != 0 {
		c.Chunking.Threshold = other.Chunking.Threshold
	}
	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	// Search
	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MinCandidates != 0 {
		c.Search.MinCandidates = other.Search.MinCandidates
	}
	if other.Search.RerankDepth != 0 {
		c.Search.RerankDepth = other.Search.RerankDepth
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.Expand != "" {
		c.Search.Expand = other.Search.Expand
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.TagBoost != 0 {
		c.Search.TagBoost = other.Search.TagBoost
	}
	if other.Search.ExpansionTimeout != "" {
		c.Search.ExpansionTimeout = other.Search.ExpansionTimeout
	}
	if other.Search.RerankTimeout != "" {
		c.Search.RerankTimeout = other.Search.RerankTimeout
	}
	if other.Search.QueryTimeout != "" {
		c.Search.QueryTimeout = other.Search.QueryTimeout
	}

	// Time boost
	if other.Search.TimeBoost.HalfLifeDays != 0 || other.Search.TimeBoost.MaxBoost != 0 || other.Search.TimeBoost.Enabled {
		c.Search.TimeBoost.Enabled = other.Search.TimeBoost.Enabled
	}
	if other.Search.TimeBoost.HalfLifeDays != 0 {
		c.Search.TimeBoost.HalfLifeDays = other.Search.TimeBoost.HalfLifeDays
	}
	if other.Search.TimeBoost.MaxBoost != 0 {
		c.Search.TimeBoost.MaxBoost = other.Search.TimeBoost.MaxBoost
	}

	// ANN
	if other.Search.ANN.Enabled {
		c.Search.ANN.Enabled = true
	}
	if other.Search.ANN.M != 0 {
		c.Search.ANN.M = other.Search.ANN.M
	}
	if other.Search.ANN.EfSearch != 0 {
		c.Search.ANN.EfSearch = other.Search.ANN.EfSearch
	}

	// Profiles are taken as declared; resolution against built-ins happens
	// in the profile package.
	if len(other.Profiles) > 0 {
		for name, p := range other.Profiles {
			c.Profiles[name] = p
		}
	}

	// Registry
	if other.Registry.Capacity != 0 {
		c.Registry.Capacity = other.Registry.Capacity
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}
	if other.Server.ShutdownTimeout != "" {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if other.Server.RateLimit.Search.Requests != 0 || other.Server.RateLimit.Reindex.Requests != 0 ||
		other.Server.RateLimit.Extract.Requests != 0 || other.Server.RateLimit.Enabled {
		c.Server.RateLimit.Enabled = other.Server.RateLimit.Enabled
	}
	mergeRateWindow(&c.Server.RateLimit.Search, other.Server.RateLimit.Search)
	mergeRateWindow(&c.Server.RateLimit.Reindex, other.Server.RateLimit.Reindex)
	mergeRateWindow(&c.Server.RateLimit.Extract, other.Server.RateLimit.Extract)

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	// Telemetry
	if other.Telemetry.Path != "" || other.Telemetry.RetentionDays != 0 || other.Telemetry.Enabled {
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}
	if other.Telemetry.Path != "" {
		c.Telemetry.Path = other.Telemetry.Path
	}
	if other.Telemetry.RetentionDays != 0 {
		c.Telemetry.RetentionDays = other.Telemetry.RetentionDays
	}

	// Watch
	if other.Watch.Debounce != "" || other.Watch.Enabled {
		c.Watch.Enabled = other.Watch.Enabled
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

func mergeRateWindow(dst *RateWindow, src RateWindow) {
	if src.Requests != 0 {
		dst.Requests = src.Requests
	}
	if src.Window != "" {
		dst.Window = src.Window
	}
}

// applyEnvOverrides applies TEMOA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TEMOA_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("TEMOA_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("TEMOA_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("TEMOA_RERANKER_URL"); v != "" {
		c.Reranker.URL = v
	}
	if v := os.Getenv("TEMOA_DEFAULT_VAULT"); v != "" {
		c.Default = v
	}
	if v := os.Getenv("TEMOA_EXCLUDE"); v != "" {
		var excludes []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				excludes = append(excludes, part)
			}
		}
		c.Excludes = excludes
	}
	if v := os.Getenv("TEMOA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("TEMOA_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("TEMOA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TEMOA_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("TEMOA_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TEMOA_WATCH"); v != "" {
		c.Watch.Enabled = parseBool(v)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	for name, path := range c.Vaults {
		if name == "" {
			return fmt.Errorf("vaults: empty vault name")
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("vaults.%s: path must not be empty", name)
		}
	}
	if c.Default != "" {
		if _, ok := c.Vaults[c.Default]; !ok {
			return fmt.Errorf("default_vault %q is not declared under vaults", c.Default)
		}
	}

	validModes := map[string]bool{"hybrid": true, "dense": true, "bm25": true}
	if !validModes[strings.ToLower(c.Search.Mode)] {
		return fmt.Errorf("search.mode must be 'hybrid', 'dense', or 'bm25', got %s", c.Search.Mode)
	}
	validExpand := map[string]bool{"on": true, "off": true, "auto": true}
	if !validExpand[strings.ToLower(c.Search.Expand)] {
		return fmt.Errorf("search.expand must be 'on', 'off', or 'auto', got %s", c.Search.Expand)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.MinCandidates <= 0 {
		return fmt.Errorf("search.min_candidates must be positive, got %d", c.Search.MinCandidates)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.BM25K1 < 0 {
		return fmt.Errorf("search.bm25_k1 must be non-negative, got %f", c.Search.BM25K1)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return fmt.Errorf("search.bm25_b must be between 0 and 1, got %f", c.Search.BM25B)
	}
	if c.Search.TagBoost < 0 {
		return fmt.Errorf("search.tag_boost must be non-negative, got %f", c.Search.TagBoost)
	}
	for field, value := range map[string]string{
		"search.expansion_timeout":  c.Search.ExpansionTimeout,
		"search.rerank_timeout":     c.Search.RerankTimeout,
		"search.query_timeout":      c.Search.QueryTimeout,
		"server.shutdown_timeout":   c.Server.ShutdownTimeout,
		"watch.debounce":            c.Watch.Debounce,
		"embedding.request_timeout": c.Embedding.RequestTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, value)
		}
	}

	if c.Search.TimeBoost.Enabled {
		if c.Search.TimeBoost.HalfLifeDays <= 0 {
			return fmt.Errorf("search.time_boost.half_life_days must be positive, got %d", c.Search.TimeBoost.HalfLifeDays)
		}
		if c.Search.TimeBoost.MaxBoost < 0 {
			return fmt.Errorf("search.time_boost.max_boost must be non-negative, got %f", c.Search.TimeBoost.MaxBoost)
		}
	}

	if c.Chunking.Enabled {
		if c.Chunking.Size <= 0 {
			return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
		}
		if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
			return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
		}
		if c.Chunking.Threshold < c.Chunking.Size {
			return fmt.Errorf("chunking.threshold must be >= chunking.size, got %d", c.Chunking.Threshold)
		}
	}

	if c.Embedding.Provider != "" {
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'ollama', 'static', or empty (auto-detect), got %s", c.Embedding.Provider)
		}
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must not be empty")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}

	if c.Registry.Capacity <= 0 {
		return fmt.Errorf("registry.capacity must be positive, got %d", c.Registry.Capacity)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	for field, rw := range map[string]RateWindow{
		"server.rate_limit.search":  c.Server.RateLimit.Search,
		"server.rate_limit.reindex": c.Server.RateLimit.Reindex,
		"server.rate_limit.extract": c.Server.RateLimit.Extract,
	} {
		if rw.Requests < 0 {
			return fmt.Errorf("%s.requests must be non-negative, got %d", field, rw.Requests)
		}
		if rw.Window != "" {
			if _, err := time.ParseDuration(rw.Window); err != nil {
				return fmt.Errorf("%s.window: invalid duration %q", field, rw.Window)
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	for name, p := range c.Profiles {
		if p.Mode != "" && !validModes[strings.ToLower(p.Mode)] {
			return fmt.Errorf("profiles.%s.mode must be 'hybrid', 'dense', or 'bm25', got %s", name, p.Mode)
		}
		if p.Expand != "" && !validExpand[strings.ToLower(p.Expand)] {
			return fmt.Errorf("profiles.%s.expand must be 'on', 'off', or 'auto', got %s", name, p.Expand)
		}
		if p.Limit < 0 {
			return fmt.Errorf("profiles.%s.limit must be non-negative, got %d", name, p.Limit)
		}
		if p.HalfLifeDays != nil && *p.HalfLifeDays < 0 {
			return fmt.Errorf("profiles.%s.half_life_days must be non-negative, got %d", name, *p.HalfLifeDays)
		}
	}

	return nil
}

// VaultPath resolves a vault name to its absolute path. An empty name
// resolves through default_vault.
func (c *Config) VaultPath(name string) (string, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" {
		return "", fmt.Errorf("no vault specified and no default_vault configured")
	}
	path, ok := c.Vaults[name]
	if !ok {
		return "", fmt.Errorf("unknown vault: %s", name)
	}
	return ExpandPath(path)
}

// VaultNames returns the configured vault names in sorted order.
func (c *Config) VaultNames() []string {
	names := make([]string, 0, len(c.Vaults))
	for name := range c.Vaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return abs, nil
}

// Duration accessors parse the string fields, falling back to defaults when
// unset or malformed. Validate catches malformed values at load time; the
// fallbacks keep hand-built Configs in tests safe.

// ExpansionTimeoutDuration returns the expansion stage timeout.
func (s SearchConfig) ExpansionTimeoutDuration() time.Duration {
	return parseDurationOr(s.ExpansionTimeout, 500*time.Millisecond)
}

// RerankTimeoutDuration returns the rerank stage timeout.
func (s SearchConfig) RerankTimeoutDuration() time.Duration {
	return parseDurationOr(s.RerankTimeout, time.Second)
}

// QueryTimeoutDuration returns the whole-query deadline.
func (s SearchConfig) QueryTimeoutDuration() time.Duration {
	return parseDurationOr(s.QueryTimeout, 2*time.Second)
}

// RequestTimeoutDuration returns the per-call embedding timeout.
func (e EmbeddingConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(e.RequestTimeout, 30*time.Second)
}

// ShutdownTimeoutDuration returns the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(s.ShutdownTimeout, 10*time.Second)
}

// DebounceDuration returns the watcher debounce interval.
func (w WatchConfig) DebounceDuration() time.Duration {
	return parseDurationOr(w.Debounce, 2*time.Second)
}

// WindowDuration returns the rate window length.
func (r RateWindow) WindowDuration() time.Duration {
	return parseDurationOr(r.Window, time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
