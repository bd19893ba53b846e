package subtitle

import (
	"strings"
	"time"
)

// Source records where a segment's text came from.
type Source string

const (
	SourceAuthored   Source = "authored"
	SourceRecognized Source = "recognized"
)

// Segment is one timed line of subtitle text. A bilingual segment carries the
// aligned secondary-language text alongside the primary text.
type Segment struct {
	Start             time.Duration
	End               time.Duration
	Text              string
	SecondaryText     string
	Language          string
	SecondaryLanguage string
	Source            Source
	// Confidence is nil for authored segments.
	Confidence *float64
}

// SingleLine joins the lines of text with single spaces, dropping blank
// lines. Text without line breaks is returned unchanged.
func SingleLine(text string) string {
	if !strings.ContainsAny(text, "\r\n") {
		return text
	}
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	parts := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// Bilingual reports whether the segment carries aligned secondary text.
func (s Segment) Bilingual() bool {
	return s.SecondaryText != ""
}

// VideoRef identifies one remote video. It is immutable once resolved.
type VideoRef struct {
	ID       string
	Title    string
	URL      string
	Duration time.Duration
	Width    int
	Height   int
}

// Stats counts segments by origin.
type Stats struct {
	Authored   int `json:"authored"`
	Recognized int `json:"recognized"`
}

// Total returns the combined segment count.
func (s Stats) Total() int {
	return s.Authored + s.Recognized
}

// Add returns the element-wise sum of two stats.
func (s Stats) Add(other Stats) Stats {
	return Stats{Authored: s.Authored + other.Authored, Recognized: s.Recognized + other.Recognized}
}

// Count tallies segments by source.
func Count(segments []Segment) Stats {
	var stats Stats
	for _, seg := range segments {
		switch seg.Source {
		case SourceRecognized:
			stats.Recognized++
		default:
			stats.Authored++
		}
	}
	return stats
}

// Float returns a pointer to v, for populating Confidence.
func Float(v float64) *float64 {
	return &v
}
