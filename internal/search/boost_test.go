package search

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoa-dev/temoa/internal/config"
	"github.com/temoa-dev/temoa/internal/dense"
)

func TestApplyTimeBoost_DecaysWithAge(t *testing.T) {
	// Given: no files on disk, so indexed timestamps drive the factor
	now := time.Now()
	fresh := testMeta("fresh.md", "Fresh", "body")
	fresh.Modified = now
	halved := testMeta("halved.md", "Halved", "body")
	halved.Modified = now.Add(-90 * 24 * time.Hour)

	p := newCorpusPipeline(t, nil, []dense.Meta{fresh, halved}, nil)

	entries := []*candidate{
		{row: 0, rrfScore: 0.5},
		{row: 1, rrfScore: 0.5},
	}

	// When: max boost 0.2, half-life 90 days
	p.applyTimeBoost(entries, 90, now)

	// Then: zero age gets the full 1.2x, one half-life exactly half of it
	assert.InDelta(t, 0.5*1.2, entries[0].finalScore, 1e-6)
	assert.InDelta(t, 0.5*1.1, entries[1].finalScore, 1e-6)
}

func TestApplyTimeBoost_UsesCrossEncoderScoreWhenReranked(t *testing.T) {
	now := time.Now()
	m := testMeta("note.md", "Note", "body")
	m.Modified = now
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	entries := []*candidate{
		{row: 0, rrfScore: 0.3, ceScore: 0.9, reranked: true},
	}

	p.applyTimeBoost(entries, 30, now)

	assert.InDelta(t, 0.9*1.2, entries[0].finalScore, 1e-6)
}

func TestApplyTimeBoost_DisabledMaxBoostKeepsOrderingScore(t *testing.T) {
	m := testMeta("note.md", "Note", "body")
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, func(cfg *config.SearchConfig) {
		cfg.TimeBoost.MaxBoost = 0
	})

	entries := []*candidate{{row: 0, rrfScore: 0.7}}

	p.applyTimeBoost(entries, 30, time.Now())

	assert.InDelta(t, 0.7, entries[0].finalScore, 1e-12)
}

func TestApplyTimeBoost_FutureTimestampClampsToZeroAge(t *testing.T) {
	// Given: a clock-skewed file dated tomorrow
	now := time.Now()
	m := testMeta("skewed.md", "Skewed", "body")
	m.Modified = now.Add(24 * time.Hour)
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	entries := []*candidate{{row: 0, rrfScore: 1.0}}

	// When
	p.applyTimeBoost(entries, 30, now)

	// Then: capped at the zero-age factor, never above
	assert.InDelta(t, 1.2, entries[0].finalScore, 1e-6)
}

func TestApplyTimeBoost_OutOfRangeRowKeepsBase(t *testing.T) {
	m := testMeta("note.md", "Note", "body")
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	entries := []*candidate{{row: 42, rrfScore: 0.4}}

	p.applyTimeBoost(entries, 30, time.Now())

	assert.InDelta(t, 0.4, entries[0].finalScore, 1e-12)
}

func TestFreshModTime_ReadsDiskMtime(t *testing.T) {
	// Given: an indexed note whose file was touched after indexing
	m := testMeta("notes/touched.md", "Touched", "body")
	indexed := time.Now().AddDate(0, -6, 0)
	m.Modified = indexed
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	full := filepath.Join(p.VaultPath(), "notes", "touched.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("body"), 0o644))
	want := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(full, want, want))

	// When
	got, ok := p.freshModTime("notes/touched.md", indexed)

	// Then
	require.True(t, ok)
	assert.WithinDuration(t, want, got, time.Second)
}

func TestFreshModTime_MissingFileFallsBackToIndexed(t *testing.T) {
	m := testMeta("ghost.md", "Ghost", "body")
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	indexed := time.Now().AddDate(0, 0, -10)
	got, ok := p.freshModTime("ghost.md", indexed)

	require.True(t, ok)
	assert.Equal(t, indexed, got)
}

func TestFreshModTime_RejectsPathEscapingVault(t *testing.T) {
	m := testMeta("note.md", "Note", "body")
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	_, ok := p.freshModTime("../outside.md", time.Now())

	assert.False(t, ok)
}

func TestFreshModTime_RejectsSymlinkEscapingVault(t *testing.T) {
	// Given: a symlink inside the vault pointing at a foreign file
	m := testMeta("link.md", "Link", "body")
	p := newCorpusPipeline(t, nil, []dense.Meta{m}, nil)

	outside := filepath.Join(t.TempDir(), "target.md")
	require.NoError(t, os.WriteFile(outside, []byte("elsewhere"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(p.VaultPath(), "link.md")))

	// When
	_, ok := p.freshModTime("link.md", time.Now())

	// Then: the resolved target is outside, so no boost applies
	assert.False(t, ok)
}

func TestPathWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := filepath.Join(sep, "vaults", "main")

	tests := []struct {
		name  string
		child string
		want  bool
	}{
		{"root itself", root, true},
		{"direct child", filepath.Join(root, "note.md"), true},
		{"nested child", filepath.Join(root, "sub", "deep.md"), true},
		{"sibling with shared prefix", root + "-backup", false},
		{"parent", filepath.Join(sep, "vaults"), false},
		{"unrelated", filepath.Join(sep, "tmp", "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pathWithin(root, tt.child))
		})
	}
}
