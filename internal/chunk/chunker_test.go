package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paragraphs builds a body of count paragraphs, each exactly width runes
// including its trailing blank line.
func paragraphs(count, width int) string {
	para := strings.Repeat("a", width-2) + "\n\n"
	return strings.Repeat(para, count)
}

func TestSplitShortBodyStaysWhole(t *testing.T) {
	c := New(DefaultOptions())

	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "short", body: "a quick note"},
		{name: "exactly threshold", body: strings.Repeat("x", DefaultThreshold)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces := c.Split(tt.body)
			require.Len(t, pieces, 1)
			assert.True(t, pieces[0].Whole)
			assert.Equal(t, 0, pieces[0].Ordinal)
			assert.Equal(t, 0, pieces[0].Start)
			assert.Equal(t, utf8.RuneCountInString(tt.body), pieces[0].End)
			assert.Equal(t, tt.body, pieces[0].Text)
		})
	}
}

func TestSplitDisabledStaysWhole(t *testing.T) {
	opts := DefaultOptions()
	opts.Enabled = false
	c := New(opts)

	body := paragraphs(60, 100) // 6000 runes, well past the threshold
	pieces := c.Split(body)

	require.Len(t, pieces, 1)
	assert.True(t, pieces[0].Whole)
	assert.Equal(t, body, pieces[0].Text)
}

func TestSplitCutsAtParagraphBoundaries(t *testing.T) {
	c := New(DefaultOptions())

	// Paragraph breaks land exactly on the nominal cut points.
	body := paragraphs(50, 100) // 5000 runes, breaks at every multiple of 100
	pieces := c.Split(body)

	require.Len(t, pieces, 6)
	wantStarts := []int{0, 800, 1600, 2400, 3200, 4000}
	for i, p := range pieces {
		assert.Equal(t, i, p.Ordinal)
		assert.Equal(t, wantStarts[i], p.Start, "piece %d start", i)
		assert.False(t, p.Whole)
	}
	assert.Equal(t, 5000, pieces[len(pieces)-1].End)

	for i, p := range pieces[:len(pieces)-1] {
		assert.True(t, strings.HasSuffix(p.Text, "\n\n"), "piece %d should end on a blank line", i)
	}
}

func TestSplitSnapsToNearestParagraphBreak(t *testing.T) {
	c := New(DefaultOptions())

	// Breaks at multiples of 130 never align with the nominal cut, but one
	// always falls inside the snap window.
	body := paragraphs(40, 130) // 5200 runes
	pieces := c.Split(body)

	require.Greater(t, len(pieces), 1)
	for i, p := range pieces[:len(pieces)-1] {
		assert.True(t, strings.HasSuffix(p.Text, "\n\n"), "piece %d should end on a blank line", i)
		assert.Zero(t, p.End%130, "piece %d should end on a paragraph edge", i)
	}
	assert.Equal(t, 5200, pieces[len(pieces)-1].End)
}

func TestSplitFallsBackToSentenceBoundary(t *testing.T) {
	c := New(DefaultOptions())

	// No blank lines anywhere, so only sentence breaks are available.
	body := strings.Repeat("This is a sentence. ", 250) // 5000 runes
	require.NotContains(t, body, "\n\n")

	pieces := c.Split(body)
	require.Greater(t, len(pieces), 1)
	for i, p := range pieces[:len(pieces)-1] {
		assert.True(t, strings.HasSuffix(p.Text, ". "), "piece %d should end after a sentence", i)
	}
}

func TestSplitHardCutWithoutBoundaries(t *testing.T) {
	c := New(DefaultOptions())

	body := strings.Repeat("a", 4500)
	pieces := c.Split(body)

	require.Len(t, pieces, 6)
	wantStarts := []int{0, 800, 1600, 2400, 3200, 4000}
	for i, p := range pieces {
		assert.Equal(t, wantStarts[i], p.Start)
		if i < len(pieces)-1 {
			assert.Equal(t, 1000, p.End-p.Start)
		}
	}
	assert.Equal(t, 4500, pieces[5].End)
	assert.Equal(t, 500, pieces[5].End-pieces[5].Start)
}

func TestSplitCoversEntireBody(t *testing.T) {
	c := New(DefaultOptions())

	bodies := []string{
		paragraphs(41, 100),                        // 4100 runes, just past threshold
		strings.Repeat("word word. ", 500),         // 5500 runes, sentences only
		strings.Repeat("b", 4001),                  // minimal overflow, no boundaries
		strings.Repeat("é", 4100),                  // multi-byte runes
		paragraphs(10, 700) + paragraphs(30, 90),   // uneven paragraph sizes
	}

	for _, body := range bodies {
		n := utf8.RuneCountInString(body)
		pieces := c.Split(body)

		require.NotEmpty(t, pieces)
		assert.Equal(t, 0, pieces[0].Start)
		assert.Equal(t, n, pieces[len(pieces)-1].End)
		for i := 1; i < len(pieces); i++ {
			assert.Equal(t, i, pieces[i].Ordinal)
			assert.LessOrEqual(t, pieces[i].Start, pieces[i-1].End, "piece %d must not leave a gap", i)
			assert.Greater(t, pieces[i].End, pieces[i-1].End, "piece %d must advance", i)
		}
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c := New(DefaultOptions())

	body := strings.Repeat("é", 4100)
	pieces := c.Split(body)

	require.Greater(t, len(pieces), 1)
	assert.Equal(t, 1000, utf8.RuneCountInString(pieces[0].Text))
	assert.Equal(t, 1000, pieces[0].End)
}

func TestNewClampsOptions(t *testing.T) {
	tests := []struct {
		name string
		in   Options
		want Options
	}{
		{
			name: "zero values get defaults",
			in:   Options{Enabled: true},
			want: Options{Enabled: true, Threshold: DefaultThreshold, Size: DefaultSize, Overlap: 0},
		},
		{
			name: "overlap at size is shrunk",
			in:   Options{Enabled: true, Threshold: 100, Size: 400, Overlap: 400},
			want: Options{Enabled: true, Threshold: 100, Size: 400, Overlap: 100},
		},
		{
			name: "negative overlap becomes zero",
			in:   Options{Enabled: true, Threshold: 100, Size: 400, Overlap: -5},
			want: Options{Enabled: true, Threshold: 100, Size: 400, Overlap: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.in)
			assert.Equal(t, tt.want, c.Options())
		})
	}
}

func TestShouldSplit(t *testing.T) {
	c := New(DefaultOptions())
	assert.False(t, c.ShouldSplit(0))
	assert.False(t, c.ShouldSplit(DefaultThreshold))
	assert.True(t, c.ShouldSplit(DefaultThreshold+1))

	off := DefaultOptions()
	off.Enabled = false
	assert.False(t, New(off).ShouldSplit(DefaultThreshold+1))
}
