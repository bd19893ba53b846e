package synth

import (
	"sort"
	"time"

	"bilisub/internal/subtitle"
)

// DefaultMergeGap is the largest gap between two segments that still merges them.
const DefaultMergeGap = 500 * time.Millisecond

// Merge joins adjacent same-language segments whose gap is below threshold.
// Overlapping segments count as a zero gap. A merged segment keeps the
// earliest start, the latest end, and the lower of the two confidences.
// Passes repeat until nothing qualifies, so Merge(Merge(x)) == Merge(x).
func Merge(segments []subtitle.Segment, threshold time.Duration) []subtitle.Segment {
	out := append([]subtitle.Segment(nil), segments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for {
		merged, changed := mergePass(out, threshold)
		out = merged
		if !changed {
			return out
		}
	}
}

func mergePass(segments []subtitle.Segment, threshold time.Duration) ([]subtitle.Segment, bool) {
	if len(segments) < 2 {
		return segments, false
	}
	out := make([]subtitle.Segment, 0, len(segments))
	changed := false
	current := segments[0]
	for _, next := range segments[1:] {
		if mergeable(current, next, threshold) {
			current = join(current, next)
			changed = true
			continue
		}
		out = append(out, current)
		current = next
	}
	out = append(out, current)
	return out, changed
}

func mergeable(a, b subtitle.Segment, threshold time.Duration) bool {
	if a.Language != b.Language || a.Source != b.Source {
		return false
	}
	if a.SecondaryText != "" || b.SecondaryText != "" {
		return false
	}
	return b.Start-a.End < threshold
}

func join(a, b subtitle.Segment) subtitle.Segment {
	merged := a
	if b.End > merged.End {
		merged.End = b.End
	}
	merged.Text = a.Text + " " + b.Text
	switch {
	case a.Confidence == nil:
		merged.Confidence = b.Confidence
	case b.Confidence != nil && *b.Confidence < *a.Confidence:
		merged.Confidence = subtitle.Float(*b.Confidence)
	}
	return merged
}
