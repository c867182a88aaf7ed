package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/indexer"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageScanning, "Scanning"},
		{StageChunking, "Chunking"},
		{StageEmbedding, "Embedding"},
		{StageSaving, "Saving"},
		{StageComplete, "Complete"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.String())
		})
	}
}

func TestStage_Icon(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageScanning, "SCAN"},
		{StageChunking, "CHUNK"},
		{StageEmbedding, "EMBED"},
		{StageSaving, "SAVE"},
		{StageComplete, "DONE"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Icon())
		})
	}
}

func TestEventFor_MapsIndexerStages(t *testing.T) {
	tests := []struct {
		in   indexer.Stage
		want Stage
	}{
		{indexer.StageScan, StageScanning},
		{indexer.StageChunk, StageChunking},
		{indexer.StageEmbed, StageEmbedding},
		{indexer.StageSave, StageSaving},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got := EventFor(indexer.Progress{Stage: tt.in})
			assert.Equal(t, tt.want, got.Stage)
		})
	}
}

func TestEventFor_CarriesCountsAndPath(t *testing.T) {
	// Given: an indexer progress report mid-embedding
	p := indexer.Progress{
		Stage:   indexer.StageEmbed,
		Current: 12,
		Total:   40,
		Path:    "daily/2026-01-03.md",
		Message: "embedding",
	}

	// When: translating for display
	got := EventFor(p)

	// Then: counts, path, and message carry over
	assert.Equal(t, 12, got.Current)
	assert.Equal(t, 40, got.Total)
	assert.Equal(t, "daily/2026-01-03.md", got.CurrentFile)
	assert.Equal(t, "embedding", got.Message)
}

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	// Given: a bytes.Buffer (not a TTY)
	buf := &bytes.Buffer{}

	// When: checking if it's a TTY
	result := IsTTY(buf)

	// Then: returns false
	assert.False(t, result)
}

func TestIsTTY_WithNil_ReturnsFalse(t *testing.T) {
	assert.False(t, IsTTY(nil))
}

func TestNewConfig_Defaults(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	assert.NotNil(t, cfg.Output)
	assert.False(t, cfg.ForcePlain)
	assert.False(t, cfg.NoColor)
	assert.Empty(t, cfg.VaultDir)
}

func TestNewConfig_WithOptions(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithVaultDir("/home/sam/notes"))

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/home/sam/notes", cfg.VaultDir)
}

func TestNewRenderer_ForcePlain_ReturnsPlainRenderer(t *testing.T) {
	// Given: config with ForcePlain
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf, WithForcePlain(true))

	// When: creating renderer
	r := NewRenderer(cfg)

	// Then: returns PlainRenderer
	_, ok := r.(*PlainRenderer)
	require.True(t, ok, "expected PlainRenderer")
}

func TestNewRenderer_NonTTY_ReturnsPlainRenderer(t *testing.T) {
	// Given: non-TTY output (buffer)
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	// When: creating renderer
	r := NewRenderer(cfg)

	// Then: returns PlainRenderer since a buffer is not a TTY
	_, ok := r.(*PlainRenderer)
	require.True(t, ok, "expected PlainRenderer for non-TTY")
}

func TestDetectNoColor_WithEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.True(t, DetectNoColor())
}

func TestDetectNoColor_WithoutEnv(t *testing.T) {
	_ = os.Unsetenv("NO_COLOR")

	assert.False(t, DetectNoColor())
}

func TestDetectCI_WithEnv(t *testing.T) {
	t.Setenv("CI", "true")

	assert.True(t, DetectCI())
}

func TestDetectCI_WithoutEnv(t *testing.T) {
	_ = os.Unsetenv("CI")
	_ = os.Unsetenv("GITHUB_ACTIONS")
	_ = os.Unsetenv("GITLAB_CI")

	assert.False(t, DetectCI())
}
