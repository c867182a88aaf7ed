package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/config"
)

// isolateEnv points XDG config and state at temp directories so tests
// never touch the real user config or service log.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(t.TempDir(), "state"))
}

// runCommand executes the CLI with captured stdout and stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// newTestConfig builds an in-memory config for helper-level tests.
func newTestConfig(t *testing.T, vaults map[string]string, defaultVault string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	if vaults != nil {
		cfg.Vaults = vaults
	}
	cfg.Default = defaultVault
	return cfg
}

// writeVault creates a vault directory with the given notes.
func writeVault(t *testing.T, notes map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range notes {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// seedNotes returns a small vault covering tags, frontmatter, and plain
// prose, enough for the search pipeline to rank something.
func seedNotes() map[string]string {
	return map[string]string{
		"journal/2024-03-12.md": `---
tags: [journal, health]
---

# Tuesday

Felt pretty good yesterday. I went for a walk in the evening and the
workout in the morning helped. Sleep was solid for once.
`,
		"projects/garden.md": `---
type: project
tags: [garden]
status: active
---

# Garden plan

Raised beds along the south fence. Tomatoes and basil go in after the
last frost; garlic is already planted from October.
`,
		"recipes/soup.md": `# Lentil soup

Red lentils, cumin, a tin of tomatoes, and whatever vegetables need
using up. Simmer 25 minutes, blend half, season hard.
`,
	}
}

// writeOfflineConfig writes a config that runs without Ollama or a
// reranker service: static embeddings, reranking and telemetry off.
func writeOfflineConfig(t *testing.T, vaultDir string) string {
	t.Helper()
	content := fmt.Sprintf(`vaults:
  notes: %q
default_vault: notes
embedding:
  provider: static
  dimensions: 128
reranker:
  enabled: false
  url: "http://127.0.0.1:9"
telemetry:
  enabled: false
  retention_days: 1
`, vaultDir)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
