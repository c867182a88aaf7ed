package ui

import "strings"

// sparkGlyphs are the block characters used for sparkline bars, from
// lowest to highest.
var sparkGlyphs = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a ring buffer of throughput samples rendered as a row of
// block characters. Not safe for concurrent use; callers lock.
type Sparkline struct {
	samples []float64
	head    int
	count   int
	max     float64
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add records a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}
	// Once the buffer has wrapped, the max may belong to an evicted
	// sample. Rescan on each full revolution.
	if s.count%len(s.samples) == 0 {
		s.rescanMax()
	}
}

func (s *Sparkline) rescanMax() {
	s.max = 1
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render draws the most recent samples as width glyphs, newest on the
// right. Missing samples render as spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 || width > len(s.samples) {
		width = len(s.samples)
	}

	have := s.count
	if have > len(s.samples) {
		have = len(s.samples)
	}
	if have > width {
		have = width
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-have))

	for i := have; i > 0; i-- {
		idx := (s.head - i + len(s.samples)) % len(s.samples)
		sb.WriteRune(s.glyph(s.samples[idx]))
	}

	return sb.String()
}

func (s *Sparkline) glyph(value float64) rune {
	if s.max <= 0 {
		return sparkGlyphs[0]
	}
	level := int(value / s.max * float64(len(sparkGlyphs)-1))
	if level < 0 {
		level = 0
	}
	if level >= len(sparkGlyphs) {
		level = len(sparkGlyphs) - 1
	}
	return sparkGlyphs[level]
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns how many samples have been added since the last Clear.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the largest sample currently tracked.
func (s *Sparkline) Max() float64 {
	return s.max
}
