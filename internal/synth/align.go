package synth

import (
	"sort"
	"time"

	"bilisub/internal/subtitle"
)

type overlapPair struct {
	primary   int
	secondary int
	overlap   time.Duration
}

// Align pairs primary and secondary segments by temporal overlap. Candidate
// pairs are taken greedily in order of overlap (largest first), then primary
// start, then secondary start, then position within each track; each segment
// joins at most one pair. Paired segments become one bilingual segment on the
// primary's timing. Unpaired segments from either track are kept as they are.
// The result is ordered by start, primary track first on ties.
func Align(primary, secondary []subtitle.Segment) []subtitle.Segment {
	if len(secondary) == 0 {
		return append([]subtitle.Segment(nil), primary...)
	}
	if len(primary) == 0 {
		return append([]subtitle.Segment(nil), secondary...)
	}

	var pairs []overlapPair
	for i, p := range primary {
		for j, s := range secondary {
			if ov := overlap(p, s); ov > 0 {
				pairs = append(pairs, overlapPair{primary: i, secondary: j, overlap: ov})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.overlap != pb.overlap {
			return pa.overlap > pb.overlap
		}
		if ps, qs := primary[pa.primary].Start, primary[pb.primary].Start; ps != qs {
			return ps < qs
		}
		if ps, qs := secondary[pa.secondary].Start, secondary[pb.secondary].Start; ps != qs {
			return ps < qs
		}
		if pa.primary != pb.primary {
			return pa.primary < pb.primary
		}
		return pa.secondary < pb.secondary
	})

	matchedPrimary := make(map[int]int, len(primary))
	matchedSecondary := make(map[int]bool, len(secondary))
	for _, pair := range pairs {
		if _, taken := matchedPrimary[pair.primary]; taken || matchedSecondary[pair.secondary] {
			continue
		}
		matchedPrimary[pair.primary] = pair.secondary
		matchedSecondary[pair.secondary] = true
	}

	type ranked struct {
		seg   subtitle.Segment
		track int
		index int
	}
	out := make([]ranked, 0, len(primary)+len(secondary))
	for i, p := range primary {
		if j, ok := matchedPrimary[i]; ok {
			p.SecondaryText = secondary[j].Text
			p.SecondaryLanguage = secondary[j].Language
		}
		out = append(out, ranked{seg: p, track: 0, index: i})
	}
	for j, s := range secondary {
		if !matchedSecondary[j] {
			out = append(out, ranked{seg: s, track: 1, index: j})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].seg.Start != out[b].seg.Start {
			return out[a].seg.Start < out[b].seg.Start
		}
		if out[a].track != out[b].track {
			return out[a].track < out[b].track
		}
		return out[a].index < out[b].index
	})
	result := make([]subtitle.Segment, len(out))
	for i, r := range out {
		result[i] = r.seg
	}
	return result
}

func overlap(a, b subtitle.Segment) time.Duration {
	start := max(a.Start, b.Start)
	end := min(a.End, b.End)
	if end <= start {
		return 0
	}
	return end - start
}
