package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts at StageScanning with zero progress
	stats := tracker.Stats()
	assert.Equal(t, StageScanning, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 0, stats.Total)
}

func TestProgressTracker_SetStage(t *testing.T) {
	// Given: a new tracker
	tracker := NewProgressTracker()

	// When: setting stage with total
	tracker.SetStage(StageChunking, 100)

	// Then: stage and total are updated, current resets
	stats := tracker.Stats()
	assert.Equal(t, StageChunking, stats.Stage)
	assert.Equal(t, 100, stats.Total)
	assert.Equal(t, 0, stats.Current)
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker in the chunking stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageChunking, 100)

	// When: updating progress
	tracker.Update(50, "areas/health.md")

	// Then: current and file are updated
	stats := tracker.Stats()
	assert.Equal(t, 50, stats.Current)
	assert.Equal(t, "areas/health.md", stats.CurrentFile)
}

func TestProgressTracker_Update_KeepsLastFile(t *testing.T) {
	// Given: a tracker that has seen a file
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 10)
	tracker.Update(1, "inbox/todo.md")

	// When: a later update carries no file
	tracker.Update(2, "")

	// Then: the previous file sticks
	assert.Equal(t, "inbox/todo.md", tracker.Stats().CurrentFile)
}

func TestProgressTracker_Progress(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		want    float64
	}{
		{"zero total", 5, 0, 0.0},
		{"halfway", 50, 100, 0.5},
		{"complete", 100, 100, 1.0},
		{"overshoot clamps", 120, 100, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewProgressTracker()
			tracker.SetStage(StageEmbedding, tt.total)
			tracker.Update(tt.current, "")

			assert.InDelta(t, tt.want, tracker.Progress(), 0.001)
		})
	}
}

func TestProgressTracker_AddError(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: recording one error and two warnings
	tracker.AddError(ErrorEvent{File: "a.md", Err: errors.New("bad")})
	tracker.AddError(ErrorEvent{File: "b.md", Err: errors.New("odd"), IsWarn: true})
	tracker.AddError(ErrorEvent{File: "c.md", Err: errors.New("odd"), IsWarn: true})

	// Then: they land in separate buckets
	assert.Len(t, tracker.Errors(), 1)
	assert.Len(t, tracker.Warnings(), 2)

	stats := tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
}

func TestProgressTracker_ETA_ZeroWithoutProgress(t *testing.T) {
	// Given: a tracker with no progress yet
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)

	// Then: ETA is unknown
	assert.Zero(t, tracker.ETA())
}

func TestProgressTracker_ETA_PartialProgress(t *testing.T) {
	// Given: a tracker part way through a stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)
	time.Sleep(20 * time.Millisecond)
	tracker.Update(50, "")

	// When: estimating
	eta := tracker.ETA()

	// Then: a positive estimate comes back
	assert.Greater(t, eta, time.Duration(0))
}

func TestProgressTracker_StageTransitionResetsCounters(t *testing.T) {
	// Given: a tracker with progress in one stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageChunking, 50)
	tracker.Update(25, "x.md")

	// When: moving to the next stage
	tracker.SetStage(StageEmbedding, 200)

	// Then: per-stage state resets
	stats := tracker.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 200, stats.Total)
	assert.Empty(t, stats.CurrentFile)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_Elapsed(t *testing.T) {
	tracker := NewProgressTracker()
	time.Sleep(10 * time.Millisecond)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}

func TestProgressTracker_ConcurrentAccess(t *testing.T) {
	// Given: a tracker hammered from several goroutines
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tracker.Update(n*50+j, "note.md")
				_ = tracker.Stats()
				_ = tracker.Progress()
				_ = tracker.RenderSparkline(20)
			}
		}(i)
	}
	wg.Wait()

	// Then: state is consistent afterwards (race detector covers the rest)
	assert.Equal(t, StageEmbedding, tracker.Stats().Stage)
}

func TestProgressTracker_RenderSparkline(t *testing.T) {
	// Given: a fresh tracker
	tracker := NewProgressTracker()

	// When: rendering at a fixed width
	spark := tracker.RenderSparkline(20)

	// Then: the line is exactly that wide
	assert.Len(t, []rune(spark), 20)
}
