package synth

import (
	"sort"
	"time"

	"bilisub/internal/subtitle"
)

// Track is one language's labeled segments before synthesis.
type Track struct {
	Language string
	Segments []subtitle.Segment
}

// Result is the synthesized output for one work item.
type Result struct {
	Segments []subtitle.Segment
	// Stats counts segments per source after cleaning and merging, before
	// bilingual pairing folds secondary segments into primary ones.
	Stats subtitle.Stats
	// Languages lists the tracks that contributed at least one segment.
	Languages []string
}

// Synthesizer applies cleaning, merging, and alignment with fixed settings.
type Synthesizer struct {
	Denylist Denylist
	MergeGap time.Duration
}

// New builds a synthesizer from denylist patterns and a merge gap.
func New(patterns []string, mergeGap time.Duration) (*Synthesizer, error) {
	deny, err := CompileDenylist(patterns)
	if err != nil {
		return nil, err
	}
	if mergeGap < 0 {
		mergeGap = 0
	}
	return &Synthesizer{Denylist: deny, MergeGap: mergeGap}, nil
}

// Synthesize cleans and merges every track, then aligns the first two
// non-empty tracks as primary and secondary. Further tracks are appended
// unpaired in start order.
func (s *Synthesizer) Synthesize(tracks []Track) Result {
	var result Result
	var prepared [][]subtitle.Segment
	for _, track := range tracks {
		segments := Merge(Clean(track.Segments, s.Denylist), s.MergeGap)
		if len(segments) == 0 {
			continue
		}
		result.Stats = result.Stats.Add(subtitle.Count(segments))
		result.Languages = append(result.Languages, track.Language)
		prepared = append(prepared, segments)
	}
	switch len(prepared) {
	case 0:
		result.Segments = []subtitle.Segment{}
	case 1:
		result.Segments = prepared[0]
	default:
		combined := Align(prepared[0], prepared[1])
		for _, extra := range prepared[2:] {
			combined = append(combined, extra...)
		}
		sort.SliceStable(combined, func(i, j int) bool { return combined[i].Start < combined[j].Start })
		result.Segments = combined
	}
	return result
}
