package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/temoa-dev/temoa/internal/embed"
)

// embedderProbeTimeout bounds the Ollama reachability probe. A doctor run
// should not hang on a stopped daemon.
const embedderProbeTimeout = 2 * time.Second

// CheckEmbedder probes the Ollama endpoint and reports whether the
// configured embedding model is installed. The check is non-critical:
// when Ollama is unreachable, indexing falls back to static embeddings.
func (c *Checker) CheckEmbedder(ctx context.Context) Result {
	result := Result{
		Name:     "embedder",
		Required: false,
	}

	host := c.ollamaHost
	if host == "" {
		host = embed.DefaultOllamaHost
	}
	model := c.ollamaModel
	if model == "" {
		model = embed.DefaultOllamaModel
	}

	models, err := listInstalledModels(ctx, host)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Ollama not reachable at %s (static fallback will be used)", host)
		result.Details = err.Error()
		return result
	}

	for _, m := range models {
		if m.name == model || strings.SplitN(m.name, ":", 2)[0] == model {
			result.Status = StatusPass
			result.Message = fmt.Sprintf("%s installed (%s)", m.name, formatBytes(uint64(m.size)))
			result.Details = fmt.Sprintf("Endpoint: %s", host)
			return result
		}
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("model %s not installed (run 'ollama pull %s')", model, model)
	result.Details = fmt.Sprintf("Endpoint: %s, %d model(s) installed", host, len(models))
	return result
}

type installedModel struct {
	name string
	size int64
}

// listInstalledModels queries the Ollama /api/tags endpoint.
func listInstalledModels(ctx context.Context, host string) ([]installedModel, error) {
	ctx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	url := strings.TrimRight(host, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}

	models := make([]installedModel, 0, len(body.Models))
	for _, m := range body.Models {
		models = append(models, installedModel{name: m.Name, size: m.Size})
	}
	return models, nil
}
