package synth

import (
	"math"
	"time"

	"bilisub/internal/subtitle"
)

// Cue is one raw timed line as delivered by a platform track or the
// recognition engine.
type Cue struct {
	Start      float64
	End        float64
	Text       string
	Confidence *float64
}

// LabelAuthored wraps platform cues as authored segments. Cues that do not
// end after they start are discarded and multi-line text is folded onto one
// line. Confidence is always cleared for authored text.
func LabelAuthored(cues []Cue, lang string) []subtitle.Segment {
	return label(cues, lang, subtitle.SourceAuthored)
}

// LabelRecognized wraps recognition output as recognized segments, passing
// confidence through unmodified.
func LabelRecognized(cues []Cue, lang string) []subtitle.Segment {
	return label(cues, lang, subtitle.SourceRecognized)
}

func label(cues []Cue, lang string, source subtitle.Source) []subtitle.Segment {
	out := make([]subtitle.Segment, 0, len(cues))
	for _, cue := range cues {
		start, end := secondsToDuration(cue.Start), secondsToDuration(cue.End)
		if end <= start {
			continue
		}
		seg := subtitle.Segment{
			Start:    start,
			End:      end,
			Text:     subtitle.SingleLine(cue.Text),
			Language: lang,
			Source:   source,
		}
		if source == subtitle.SourceRecognized && cue.Confidence != nil {
			seg.Confidence = subtitle.Float(*cue.Confidence)
		}
		out = append(out, seg)
	}
	return out
}

func secondsToDuration(v float64) time.Duration {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return time.Duration(math.Round(v*1000)) * time.Millisecond
}
