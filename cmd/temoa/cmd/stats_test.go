package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/ui"
)

func TestStatsCmd_JSONOutput(t *testing.T) {
	// Given: an indexed vault
	cfgPath := indexedVault(t)

	// When: requesting stats as JSON
	stdout, _, err := runCommand(t, "stats", "--json", "--config", cfgPath)

	// Then: counts, model, and embedder status are reported
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info), "Output should be valid JSON")

	assert.Equal(t, 3, info.Notes)
	assert.Equal(t, 3, info.Embeddings)
	assert.Equal(t, 3, info.Tags, "journal, health, and garden tags")
	assert.Equal(t, 3, info.Directories)
	assert.Equal(t, "static", info.Model)
	assert.Equal(t, 128, info.Dimensions)
	assert.Equal(t, "ready", info.EmbedderStatus, "Static embedder is always available")
	assert.False(t, info.LastIndexed.IsZero(), "Indexing should stamp the manifest")
	assert.Positive(t, info.IndexSize, "Store files should have a size")
}

func TestStatsCmd_TextOutput(t *testing.T) {
	// Given: an indexed vault
	cfgPath := indexedVault(t)

	// When: requesting stats as text
	stdout, _, err := runCommand(t, "stats", "--config", cfgPath)

	// Then: the block lists the vault and its counts
	require.NoError(t, err)
	assert.Contains(t, stdout, "Vault:")
	assert.Contains(t, stdout, "Notes:")
	assert.Contains(t, stdout, "static")
	assert.Contains(t, stdout, "ready")
}

func TestStatsCmd_UnindexedVault(t *testing.T) {
	// Given: a configured vault that was never indexed
	isolateEnv(t)
	vaultDir := writeVault(t, seedNotes())
	cfgPath := writeOfflineConfig(t, vaultDir)

	// When: requesting stats
	stdout, _, err := runCommand(t, "stats", "--json", "--config", cfgPath)

	// Then: counts are zero rather than an error
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Zero(t, info.Notes)
	assert.Zero(t, info.Embeddings)
}

func TestStatsCmd_BadConfigPath(t *testing.T) {
	// Given: a config path that does not exist
	isolateEnv(t)

	// When: requesting stats with it
	_, _, err := runCommand(t, "stats", "--config", "/nonexistent/config.yaml")

	// Then: the error names the missing file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
