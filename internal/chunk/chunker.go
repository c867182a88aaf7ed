// Package chunk splits long note bodies into overlapping windows for
// indexing. Short documents pass through whole; long ones are cut into
// fixed-size windows whose edges snap to paragraph or sentence boundaries
// when one falls close enough to the nominal cut point.
package chunk

import "unicode"

// Defaults for the character-window policy. Lengths are in runes.
const (
	DefaultThreshold = 4000
	DefaultSize      = 1000
	DefaultOverlap   = 200
)

// Options configures a Chunker.
type Options struct {
	Enabled   bool // when false, Split always returns a single whole piece
	Threshold int  // bodies at or under this length are never split
	Size      int  // nominal window length
	Overlap   int  // shared runes between consecutive windows
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		Enabled:   true,
		Threshold: DefaultThreshold,
		Size:      DefaultSize,
		Overlap:   DefaultOverlap,
	}
}

// Piece is one indexable window of a document body. Offsets are rune
// positions into the parent body. A whole (unsplit) document yields a
// single Piece with Whole set.
type Piece struct {
	Ordinal int    // zero-based position among the document's pieces
	Start   int    // inclusive rune offset
	End     int    // exclusive rune offset
	Text    string
	Whole   bool // true when the piece spans the entire body
}

// Chunker splits text according to a fixed Options.
type Chunker struct {
	opts Options
}

// New creates a Chunker, clamping out-of-range options to sane values.
func New(opts Options) *Chunker {
	if opts.Size < 1 {
		opts.Size = DefaultSize
	}
	if opts.Threshold < 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 4
	}
	return &Chunker{opts: opts}
}

// Options returns the effective configuration after clamping.
func (c *Chunker) Options() Options {
	return c.opts
}

// ShouldSplit reports whether a body of the given rune length would be
// split into multiple pieces.
func (c *Chunker) ShouldSplit(length int) bool {
	return c.opts.Enabled && length > c.opts.Threshold
}

// Split cuts body into pieces. Bodies at or under the threshold (or when
// chunking is disabled) come back as one whole piece. Pieces always cover
// the full body: the first starts at 0, the last ends at len(body) in
// runes, and consecutive pieces share Overlap runes (less when a boundary
// snap shortens a window).
func (c *Chunker) Split(body string) []Piece {
	runes := []rune(body)
	n := len(runes)

	if !c.ShouldSplit(n) {
		return []Piece{{Ordinal: 0, Start: 0, End: n, Text: body, Whole: true}}
	}

	var pieces []Piece
	start := 0
	ordinal := 0
	for start < n {
		end := start + c.opts.Size
		if end >= n {
			end = n
		} else {
			end = c.cutPoint(runes, start, end)
		}

		pieces = append(pieces, Piece{
			Ordinal: ordinal,
			Start:   start,
			End:     end,
			Text:    string(runes[start:end]),
		})
		if end >= n {
			break
		}

		next := end - c.opts.Overlap
		if next <= start {
			next = end
		}
		start = next
		ordinal++
	}
	return pieces
}

// cutPoint picks the actual end of a window whose nominal end is
// `nominal`. It prefers the paragraph boundary nearest the nominal cut
// within the overlap distance, then the nearest sentence boundary, and
// falls back to the nominal offset itself.
func (c *Chunker) cutPoint(runes []rune, start, nominal int) int {
	slack := c.opts.Overlap
	if slack == 0 {
		return nominal
	}

	lo := nominal - slack
	if lo <= start {
		lo = start + 1
	}
	hi := nominal + slack
	if hi > len(runes) {
		hi = len(runes)
	}

	if p := nearestBoundary(runes, nominal, lo, hi, paragraphBreakAt); p > 0 {
		return p
	}
	if p := nearestBoundary(runes, nominal, lo, hi, sentenceBreakAt); p > 0 {
		return p
	}
	return nominal
}

// nearestBoundary returns the cut position in [lo, hi] closest to nominal
// for which at(runes, p) holds, or -1 when none exists. Ties prefer the
// later position so windows lean toward their nominal size.
func nearestBoundary(runes []rune, nominal, lo, hi int, at func([]rune, int) bool) int {
	best := -1
	bestDist := 0
	for p := lo; p <= hi; p++ {
		if !at(runes, p) {
			continue
		}
		d := p - nominal
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist || (d == bestDist && p > best) {
			best = p
			bestDist = d
		}
	}
	return best
}

// paragraphBreakAt reports whether cutting at p leaves the previous piece
// ending on a blank line. Windows cut here start at the next paragraph.
func paragraphBreakAt(runes []rune, p int) bool {
	return p >= 2 && p <= len(runes) && runes[p-1] == '\n' && runes[p-2] == '\n'
}

// sentenceBreakAt reports whether p sits just after sentence-final
// punctuation followed by whitespace.
func sentenceBreakAt(runes []rune, p int) bool {
	if p < 2 || p > len(runes) {
		return false
	}
	if !unicode.IsSpace(runes[p-1]) {
		return false
	}
	switch runes[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}
