package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/temoa-dev/temoa/internal/config"
	terrors "github.com/temoa-dev/temoa/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
	ProviderAuto   = "auto"
)

// New builds the configured embedder and wraps it with retries and an
// LRU cache. Provider "auto" (or empty) tries Ollama first and falls
// back to the static embedder with a logged warning, so search stays
// usable without a model server.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOllama:
		ollama, err := newOllamaFromConfig(ctx, cfg)
		if err != nil {
			return nil, terrors.New(terrors.ErrCodeModelUnavailable, "embedding model unavailable", err).
				WithDetail("provider", ProviderOllama).
				WithDetail("model", cfg.Model).
				WithSuggestion("start ollama and pull the model, or set embedding.provider to \"static\"")
		}
		inner = wrapRetry(ollama, cfg)

	case ProviderAuto, "":
		ollama, err := newOllamaFromConfig(ctx, cfg)
		if err != nil {
			logger.Warn("embedder_fallback",
				slog.String("provider", ProviderStatic),
				slog.String("reason", err.Error()))
			inner = NewStaticEmbedder(cfg.Dimensions)
		} else {
			inner = wrapRetry(ollama, cfg)
		}

	default:
		return nil, terrors.New(terrors.ErrCodeConfigInvalid, "unknown embedding provider: "+cfg.Provider, nil).
			WithSuggestion("use \"ollama\", \"static\", or \"auto\"")
	}

	if cfg.CacheSize >= 0 {
		inner = NewCachedEmbedder(inner, cfg.CacheSize)
	}

	logger.Info("embedder_ready",
		slog.String("model", inner.ModelID()),
		slog.Int("dimensions", inner.Dimensions()))
	return inner, nil
}

func newOllamaFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (*OllamaEmbedder, error) {
	ocfg := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		ocfg.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		ocfg.Model = cfg.Model
	}
	ocfg.Dimensions = cfg.Dimensions
	if cfg.BatchSize > 0 {
		ocfg.BatchSize = cfg.BatchSize
	}
	ocfg.RequestTimeout = cfg.RequestTimeoutDuration()
	return NewOllamaEmbedder(ctx, ocfg)
}

func wrapRetry(inner Embedder, cfg config.EmbeddingConfig) Embedder {
	if cfg.MaxRetries <= 0 {
		return inner
	}
	rcfg := DefaultRetryConfig()
	rcfg.MaxRetries = cfg.MaxRetries
	return NewRetryEmbedder(inner, rcfg)
}
