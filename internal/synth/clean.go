package synth

import (
	"fmt"
	"regexp"
	"strings"

	"bilisub/internal/subtitle"
)

// Denylist is a compiled set of promotional or boilerplate patterns.
type Denylist []*regexp.Regexp

// CompileDenylist compiles each pattern; blank patterns are skipped.
func CompileDenylist(patterns []string) (Denylist, error) {
	list := make(Denylist, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile denylist pattern %q: %w", pattern, err)
		}
		list = append(list, re)
	}
	return list, nil
}

// Strip removes every denylisted match from text and collapses whitespace.
func (d Denylist) Strip(text string) string {
	for _, re := range d {
		text = re.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}

// Clean strips denylisted text from each segment and drops segments left
// empty. The input slice is not modified.
func Clean(segments []subtitle.Segment, deny Denylist) []subtitle.Segment {
	out := make([]subtitle.Segment, 0, len(segments))
	for _, seg := range segments {
		seg.Text = deny.Strip(seg.Text)
		if seg.Text == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}
