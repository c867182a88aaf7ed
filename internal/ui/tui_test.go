package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	// When: creating a TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: it refuses so NewRenderer falls back to plain
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexModel_InitialView(t *testing.T) {
	// Given: a fresh model
	tracker := NewProgressTracker()
	model := newIndexModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: the pipeline header shows
	assert.Contains(t, view, "Scan")
}

func TestIndexModel_ShowsAllPipelineStages(t *testing.T) {
	// Given: a model at the scan stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageScanning, 100)
	model := newIndexModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: all four stages appear
	assert.Contains(t, view, "Scan")
	assert.Contains(t, view, "Chunk")
	assert.Contains(t, view, "Embed")
	assert.Contains(t, view, "Save")
}

func TestIndexModel_HeaderNamesVault(t *testing.T) {
	// Given: a model built with a vault path
	tracker := NewProgressTracker()
	model := newIndexModel(tracker, "/home/sam/notes")

	// When: rendering
	view := model.View()

	// Then: the header carries the path
	assert.Contains(t, view, "Temoa")
	assert.Contains(t, view, "/home/sam/notes")
}

func TestIndexModel_ProgressCounts(t *testing.T) {
	// Given: a model mid-embedding
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)
	tracker.Update(50, "daily/today.md")
	model := newIndexModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: counts and unit show
	assert.Contains(t, view, "50 / 100 chunks")
}

func TestIndexModel_CurrentNoteShows(t *testing.T) {
	// Given: a model with a current note
	tracker := NewProgressTracker()
	tracker.SetStage(StageScanning, 100)
	tracker.Update(1, "areas/reading-list.md")
	model := newIndexModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: the note path shows, possibly truncated
	assert.Contains(t, view, "reading-list.md")
}

func TestIndexModel_StatusBarCountsErrors(t *testing.T) {
	// Given: a model with one error and one warning
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{File: "broken.md", Err: assert.AnError})
	tracker.AddError(ErrorEvent{File: "odd.md", Err: assert.AnError, IsWarn: true})
	model := newIndexModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: both counters appear
	assert.Contains(t, view, "1 errors")
	assert.Contains(t, view, "1 warnings")
}

func TestIndexModel_QuitKeyStops(t *testing.T) {
	// Given: a model
	tracker := NewProgressTracker()
	model := newIndexModel(tracker, "")

	// When: pressing q
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	// Then: the model quits
	m := updated.(*indexModel)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Cancelled")
}

func TestIndexModel_CompleteMessageEndsRun(t *testing.T) {
	// Given: a model receiving completion
	tracker := NewProgressTracker()
	model := newIndexModel(tracker, "")

	// When: the completion message arrives
	updated, cmd := model.Update(completeMsg(CompletionStats{Notes: 42, Chunks: 130, Duration: time.Second}))

	// Then: the summary panel renders and the program quits
	m := updated.(*indexModel)
	assert.True(t, m.complete)
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Indexing Complete")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "130")
}

func TestIndexModel_ResizeClampsProgressBar(t *testing.T) {
	// Given: a model
	tracker := NewProgressTracker()
	model := newIndexModel(tracker, "")

	// When: the terminal shrinks hard
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 10, Height: 5})

	// Then: the bar keeps a readable minimum width
	m := updated.(*indexModel)
	assert.Equal(t, 20, m.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{2 * time.Minute, "2m"},
		{61 * time.Minute, "1h 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestTruncatePath_Short(t *testing.T) {
	assert.Equal(t, "daily/today.md", truncatePath("daily/today.md", 50))
}

func TestTruncatePath_LongKeepsFilename(t *testing.T) {
	// Given: a deeply nested note
	path := "projects/archive/2023/q4/retrospectives/december-review.md"

	// When: truncating to 30 chars
	result := truncatePath(path, 30)

	// Then: shortened with the filename intact
	assert.LessOrEqual(t, len(result), 30)
	assert.Contains(t, result, "...")
	assert.Contains(t, result, "december-review.md")
}

func TestTruncatePath_Empty(t *testing.T) {
	assert.Equal(t, "", truncatePath("", 50))
}
