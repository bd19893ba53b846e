package synth

import (
	"reflect"
	"testing"
	"time"

	"bilisub/internal/config"
	"bilisub/internal/subtitle"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func seg(start, end int, text string) subtitle.Segment {
	return subtitle.Segment{Start: ms(start), End: ms(end), Text: text, Language: "en", Source: subtitle.SourceAuthored}
}

func TestMergeGapThreshold(t *testing.T) {
	merged := Merge([]subtitle.Segment{seg(0, 2000, "Hello"), seg(2300, 4000, "world")}, DefaultMergeGap)
	if len(merged) != 1 {
		t.Fatalf("expected one merged segment, got %d", len(merged))
	}
	if merged[0].Start != 0 || merged[0].End != ms(4000) || merged[0].Text != "Hello world" {
		t.Fatalf("unexpected merge result: %+v", merged[0])
	}

	apart := Merge([]subtitle.Segment{seg(0, 2000, "Hello"), seg(2800, 4000, "world")}, DefaultMergeGap)
	if len(apart) != 2 {
		t.Fatalf("gap of 0.8s should not merge, got %d segments", len(apart))
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	input := []subtitle.Segment{
		seg(0, 1000, "a"), seg(1200, 1500, "b"), seg(1900, 2500, "c"),
		seg(4000, 5000, "d"), seg(4500, 4800, "e"), seg(9000, 9100, "f"),
	}
	once := Merge(input, DefaultMergeGap)
	twice := Merge(once, DefaultMergeGap)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\n%+v\n%+v", once, twice)
	}
	if len(once) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(once), once)
	}
	if once[1].End != ms(5000) {
		t.Fatalf("overlap merge should keep the latest end, got %s", once[1].End)
	}
}

func TestMergeKeepsLanguagesApart(t *testing.T) {
	zh := seg(2100, 3000, "你好")
	zh.Language = "zh-CN"
	merged := Merge([]subtitle.Segment{seg(0, 2000, "hi"), zh}, DefaultMergeGap)
	if len(merged) != 2 {
		t.Fatalf("different languages must not merge: %+v", merged)
	}
}

func TestMergeConfidenceTakesMinimum(t *testing.T) {
	a := seg(0, 1000, "a")
	a.Source, a.Confidence = subtitle.SourceRecognized, subtitle.Float(0.9)
	b := seg(1100, 2000, "b")
	b.Source, b.Confidence = subtitle.SourceRecognized, subtitle.Float(0.6)
	merged := Merge([]subtitle.Segment{a, b}, DefaultMergeGap)
	if len(merged) != 1 || *merged[0].Confidence != 0.6 {
		t.Fatalf("expected min confidence 0.6, got %+v", merged)
	}
	if *a.Confidence != 0.9 {
		t.Fatal("input confidence mutated")
	}
}

func TestCleanStripsDenylistAndDropsEmpty(t *testing.T) {
	deny, err := CompileDenylist(config.DefaultDenylist)
	if err != nil {
		t.Fatalf("CompileDenylist: %v", err)
	}
	input := []subtitle.Segment{
		seg(0, 1000, "关注我获取更多精彩内容"),
		seg(1000, 2000, "大家好 #话题# 欢迎"),
		seg(2000, 3000, "see https://example.com now"),
		seg(3000, 4000, "——"),
	}
	out := Clean(input, deny)
	if len(out) != 2 {
		t.Fatalf("expected 2 segments after cleaning, got %d: %+v", len(out), out)
	}
	if out[0].Text != "大家好 欢迎" || out[1].Text != "see now" {
		t.Fatalf("unexpected cleaned text: %q, %q", out[0].Text, out[1].Text)
	}
	if input[1].Text != "大家好 #话题# 欢迎" {
		t.Fatal("input mutated")
	}
}

func TestCompileDenylistRejectsBadPattern(t *testing.T) {
	if _, err := CompileDenylist([]string{"(oops"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestAlignPairsByOverlapNotIndex(t *testing.T) {
	primary := []subtitle.Segment{seg(0, 1000, "p0"), seg(1000, 3000, "p1")}
	secondary := []subtitle.Segment{
		{Start: ms(900), End: ms(2900), Text: "s0", Language: "zh-CN"},
		{Start: ms(5000), End: ms(6000), Text: "s1", Language: "zh-CN"},
	}
	out := Align(primary, secondary)
	if len(out) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(out), out)
	}
	if out[0].Text != "p0" || out[0].SecondaryText != "" {
		t.Fatalf("p0 should stay unpaired: %+v", out[0])
	}
	if out[1].Text != "p1" || out[1].SecondaryText != "s0" || out[1].SecondaryLanguage != "zh-CN" {
		t.Fatalf("p1 should pair with s0: %+v", out[1])
	}
	if out[2].Text != "s1" || out[2].Language != "zh-CN" {
		t.Fatalf("unpaired secondary should be retained: %+v", out[2])
	}
}

func TestAlignTieBreaksDeterministically(t *testing.T) {
	// Both primaries overlap the single secondary by exactly 500ms; the
	// earlier primary wins.
	primary := []subtitle.Segment{seg(0, 1000, "early"), seg(1500, 2500, "late")}
	secondary := []subtitle.Segment{{Start: ms(500), End: ms(2000), Text: "shared", Language: "zh"}}
	for i := 0; i < 10; i++ {
		out := Align(primary, secondary)
		if out[0].SecondaryText != "shared" || out[1].SecondaryText != "" {
			t.Fatalf("expected earliest primary to win the tie: %+v", out)
		}
	}

	// Equal overlap and equal primary start: the earlier secondary wins.
	primary = []subtitle.Segment{seg(1000, 2000, "p")}
	secondary = []subtitle.Segment{
		{Start: ms(1500), End: ms(2500), Text: "s-late", Language: "zh"},
		{Start: ms(500), End: ms(1500), Text: "s-early", Language: "zh"},
	}
	out := Align(primary, secondary)
	if out[0].SecondaryText != "s-early" || out[1].Text != "s-late" {
		t.Fatalf("expected earlier secondary to pair, got %+v", out)
	}
}

func TestAlignOrdersPrimaryFirstOnEqualStart(t *testing.T) {
	primary := []subtitle.Segment{seg(0, 1000, "p0"), seg(2000, 3000, "p1")}
	secondary := []subtitle.Segment{
		{Start: ms(0), End: ms(1000), Text: "s0", Language: "zh"},
		{Start: ms(2000), End: ms(2000), Text: "blink", Language: "zh"},
	}
	out := Align(primary, secondary)
	if len(out) != 3 || out[1].Text != "p1" || out[2].Text != "blink" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestLabeling(t *testing.T) {
	conf := 0.42
	cues := []Cue{
		{Start: 0, End: 1.5, Text: "a", Confidence: &conf},
		{Start: 3, End: 2, Text: "inverted"},
		{Start: 1, End: 1, Text: "blip"},
		{Start: 4, End: 5, Text: "two\nlines"},
	}

	authored := LabelAuthored(cues, "en")
	if len(authored) != 2 || authored[0].Source != subtitle.SourceAuthored || authored[0].Confidence != nil {
		t.Fatalf("authored labeling wrong: %+v", authored)
	}
	recognized := LabelRecognized(cues, "zh")
	if recognized[0].Source != subtitle.SourceRecognized || recognized[0].Confidence == nil || *recognized[0].Confidence != 0.42 {
		t.Fatalf("recognized labeling wrong: %+v", recognized)
	}
	if recognized[0].End != ms(1500) || recognized[0].Language != "zh" {
		t.Fatalf("unexpected timing or language: %+v", recognized[0])
	}
	for _, seg := range authored {
		if seg.End <= seg.Start {
			t.Fatalf("zero-length cue kept: %+v", seg)
		}
	}
	if authored[1].Text != "two lines" {
		t.Fatalf("expected folded text, got %q", authored[1].Text)
	}
}

func TestSynthesizeBilingual(t *testing.T) {
	s, err := New([]string{`#.*?#`}, DefaultMergeGap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	zh := LabelAuthored([]Cue{{Start: 0, End: 2, Text: "你好"}, {Start: 2.2, End: 4, Text: "世界"}, {Start: 10, End: 11, Text: "#tag#"}}, "zh-CN")
	en := LabelRecognized([]Cue{{Start: 0.1, End: 3.9, Text: "Hello world"}}, "en")
	result := s.Synthesize([]Track{{Language: "zh-CN", Segments: zh}, {Language: "en", Segments: en}})
	if len(result.Segments) != 1 {
		t.Fatalf("expected one bilingual segment, got %+v", result.Segments)
	}
	got := result.Segments[0]
	if got.Text != "你好 世界" || got.SecondaryText != "Hello world" {
		t.Fatalf("unexpected synthesized segment: %+v", got)
	}
	if result.Stats.Authored != 1 || result.Stats.Recognized != 1 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	if !reflect.DeepEqual(result.Languages, []string{"zh-CN", "en"}) {
		t.Fatalf("unexpected languages: %v", result.Languages)
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	s, _ := New(nil, DefaultMergeGap)
	result := s.Synthesize([]Track{{Language: "zh-CN"}})
	if result.Segments == nil || len(result.Segments) != 0 || result.Stats.Total() != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
