package subtitle_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func sampleSegments() []subtitle.Segment {
	return []subtitle.Segment{
		{Start: ms(2300), End: ms(4000), Text: "world", Language: "en", Source: subtitle.SourceRecognized, Confidence: subtitle.Float(0.9)},
		{Start: 0, End: ms(2000), Text: "Hello", Language: "en", Source: subtitle.SourceAuthored},
		{Start: ms(61_250), End: ms(3_723_040), Text: "long tail", Language: "en", Source: subtitle.SourceAuthored},
	}
}

func TestRenderSRTExact(t *testing.T) {
	out, err := subtitle.Render(sampleSegments(), subtitle.FormatSRT, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,000\nHello\n\n" +
		"2\n00:00:02,300 --> 00:00:04,000\nworld\n\n" +
		"3\n00:01:01,250 --> 01:02:03,040\nlong tail\n\n"
	if string(out) != want {
		t.Fatalf("unexpected srt:\n%q\nwant\n%q", out, want)
	}
}

func TestRenderVTTExact(t *testing.T) {
	out, err := subtitle.Render(sampleSegments()[:2], subtitle.FormatVTT, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "WEBVTT\n\n1\n00:00:00.000 --> 00:00:02.000\nHello\n\n2\n00:00:02.300 --> 00:00:04.000\nworld\n"
	if string(out) != want {
		t.Fatalf("unexpected vtt:\n%q", out)
	}
}

func TestRoundTripPreservesTriples(t *testing.T) {
	segments := []subtitle.Segment{
		{Start: 0, End: ms(1500), Text: "第一句"},
		{Start: ms(1500), End: ms(3210), Text: "second line"},
		{Start: ms(3600_000), End: ms(3601_990), Text: "an hour in"},
		{Start: ms(3602_000), End: ms(3603_000), Text: "line one\nline two"},
	}
	for _, format := range []subtitle.Format{subtitle.FormatSRT, subtitle.FormatVTT, subtitle.FormatASS, subtitle.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			out, err := subtitle.Render(segments, format, subtitle.Options{})
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			parsed, err := subtitle.Parse(format, out)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(parsed) != len(segments) {
				t.Fatalf("expected %d segments, got %d", len(segments), len(parsed))
			}
			for i := range segments {
				want := subtitle.SingleLine(segments[i].Text)
				if parsed[i].Start != segments[i].Start || parsed[i].End != segments[i].End || parsed[i].Text != want || parsed[i].SecondaryText != "" {
					t.Fatalf("segment %d mismatch: got %+v want %+v", i, parsed[i], segments[i])
				}
			}
		})
	}
}

func TestRenderTXTKeepsOneLinePerSegment(t *testing.T) {
	segments := []subtitle.Segment{
		{Start: 0, End: ms(1000), Text: "first\r\n  second"},
		{Start: ms(1000), End: ms(2000), Text: "third"},
	}
	out, err := subtitle.Render(segments, subtitle.FormatTXT, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(out) != "first second\nthird\n" {
		t.Fatalf("unexpected txt: %q", out)
	}
}

func TestParseSkipsByteOrderMark(t *testing.T) {
	data := []byte("\uFEFF1\r\n00:00:01,000 --> 00:00:02,000\r\nhello\r\n")
	parsed, err := subtitle.ParseSRT(data)
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Start != ms(1000) || parsed[0].Text != "hello" {
		t.Fatalf("unexpected segments: %+v", parsed)
	}
}

func TestRoundTripLRCKeepsStartsAtCentiseconds(t *testing.T) {
	segments := []subtitle.Segment{
		{Start: ms(1234), End: ms(2000), Text: "a"},
		{Start: ms(65_019), End: ms(70_000), Text: "b"},
	}
	out, err := subtitle.Render(segments, subtitle.FormatLRC, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(out), "[00:01.23]a\n") || !strings.Contains(string(out), "[01:05.01]b\n") {
		t.Fatalf("expected truncated centiseconds:\n%s", out)
	}
	parsed, err := subtitle.ParseLRC(out)
	if err != nil {
		t.Fatalf("ParseLRC: %v", err)
	}
	if len(parsed) != 2 || parsed[0].Start != ms(1230) || parsed[1].Start != ms(65_010) {
		t.Fatalf("unexpected parsed starts: %+v", parsed)
	}
}

func TestRenderLRCMarkersStrictlyIncrease(t *testing.T) {
	segments := []subtitle.Segment{
		{Start: ms(1001), End: ms(1500), Text: "one"},
		{Start: ms(1009), End: ms(1800), Text: "two"},
		{Start: ms(2000), End: ms(2500), Text: "three"},
	}
	out, err := subtitle.Render(segments, subtitle.FormatLRC, subtitle.Options{
		Video: subtitle.VideoRef{Title: "Demo", Duration: ms(90_500)},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "[ti:Demo]\n[length:01:30.50]\n[00:01.00]one two\n[00:02.00]three\n"
	if string(out) != want {
		t.Fatalf("unexpected lrc:\n%q", out)
	}
}

func TestRenderEmptyDocuments(t *testing.T) {
	cases := map[subtitle.Format]string{
		subtitle.FormatSRT: "",
		subtitle.FormatVTT: "WEBVTT\n",
		subtitle.FormatTXT: "",
		subtitle.FormatLRC: "",
	}
	for format, want := range cases {
		out, err := subtitle.Render(nil, format, subtitle.Options{})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", format, err)
		}
		if string(out) != want {
			t.Fatalf("%s: got %q want %q", format, out, want)
		}
	}

	out, err := subtitle.Render(nil, subtitle.FormatASS, subtitle.Options{})
	if err != nil {
		t.Fatalf("ass: %v", err)
	}
	if !strings.Contains(string(out), "[Events]") || strings.Contains(string(out), "Dialogue:") {
		t.Fatalf("expected header-only ass document:\n%s", out)
	}

	out, err = subtitle.Render(nil, subtitle.FormatJSON, subtitle.Options{Language: "zh-CN"})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(string(out), `"segments": []`) || !strings.Contains(string(out), `"total": 0`) {
		t.Fatalf("expected empty json document:\n%s", out)
	}
}

func TestRenderDropsZeroLengthCuesForTimedFormats(t *testing.T) {
	segments := []subtitle.Segment{
		{Start: ms(500), End: ms(500), Text: "blink"},
		{Start: ms(600), End: ms(900), Text: "kept"},
	}
	out, err := subtitle.Render(segments, subtitle.FormatSRT, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(out), "blink") || !strings.HasPrefix(string(out), "1\n") {
		t.Fatalf("expected zero-length cue dropped and indices renumbered:\n%s", out)
	}

	out, err = subtitle.Render(segments, subtitle.FormatTXT, subtitle.Options{})
	if err != nil {
		t.Fatalf("Render txt: %v", err)
	}
	if string(out) != "blink\nkept\n" {
		t.Fatalf("txt should keep every segment: %q", out)
	}
}

func TestRenderRejectsInvertedTiming(t *testing.T) {
	_, err := subtitle.Render([]subtitle.Segment{{Start: ms(2000), End: ms(1000), Text: "x"}}, subtitle.FormatSRT, subtitle.Options{})
	if err == nil {
		t.Fatal("expected render error")
	}
	if services.KindOf(err) != services.KindRenderError {
		t.Fatalf("expected render_error kind, got %s", services.KindOf(err))
	}

	_, err = subtitle.Render(nil, subtitle.Format("sub"), subtitle.Options{})
	var ke *services.KindError
	if !errors.As(err, &ke) || ke.Kind != services.KindRenderError {
		t.Fatalf("expected render error for unknown format, got %v", err)
	}
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	segments := sampleSegments()
	before := append([]subtitle.Segment(nil), segments...)
	for _, format := range subtitle.Formats {
		if _, err := subtitle.Render(segments, format, subtitle.Options{}); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
	}
	for i := range segments {
		if segments[i].Start != before[i].Start || segments[i].Text != before[i].Text {
			t.Fatalf("input reordered or modified at %d", i)
		}
	}
}

func TestRenderASSBilingual(t *testing.T) {
	segments := []subtitle.Segment{{
		Start: ms(1000), End: ms(2500),
		Text: "你好", Language: "zh-CN",
		SecondaryText: "Hello", SecondaryLanguage: "en",
	}}
	out, err := subtitle.Render(segments, subtitle.FormatASS, subtitle.Options{
		Video: subtitle.VideoRef{Title: "Demo", Width: 1280, Height: 720},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"PlayResX: 1280\nPlayResY: 720\n",
		"Dialogue: 0,0:00:01.00,0:00:02.50,ZH,,0,0,0,,你好\n",
		"Dialogue: 0,0:00:01.00,0:00:02.50,EN,,0,0,0,,Hello\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}

	parsed, err := subtitle.ParseASS(out)
	if err != nil {
		t.Fatalf("ParseASS: %v", err)
	}
	if len(parsed) != 1 || parsed[0].SecondaryText != "Hello" {
		t.Fatalf("expected folded bilingual segment, got %+v", parsed)
	}
}

func TestRenderJSONCarriesSourceAndConfidence(t *testing.T) {
	out, err := subtitle.Render(sampleSegments()[:2], subtitle.FormatJSON, subtitle.Options{
		Video:    subtitle.VideoRef{ID: "BV1xx411c7mD", Title: "Demo", Duration: ms(4000)},
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	parsed, err := subtitle.ParseJSON(out)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if parsed[0].Source != subtitle.SourceAuthored || parsed[0].Confidence != nil {
		t.Fatalf("authored segment should have no confidence: %+v", parsed[0])
	}
	if parsed[1].Source != subtitle.SourceRecognized || parsed[1].Confidence == nil || *parsed[1].Confidence != 0.9 {
		t.Fatalf("recognized confidence lost: %+v", parsed[1])
	}
	text := string(out)
	if !strings.Contains(text, `"authored": 1`) || !strings.Contains(text, `"recognized": 1`) || !strings.Contains(text, `"total": 2`) {
		t.Fatalf("unexpected stats block:\n%s", text)
	}
}

func TestParseFormats(t *testing.T) {
	formats, err := subtitle.ParseFormats([]string{"SRT", ".vtt", "srt"})
	if err != nil {
		t.Fatalf("ParseFormats: %v", err)
	}
	if len(formats) != 2 || formats[0] != subtitle.FormatSRT || formats[1] != subtitle.FormatVTT {
		t.Fatalf("unexpected formats: %v", formats)
	}
	if _, err := subtitle.ParseFormats([]string{"sub"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if got := subtitle.ContentTypeForFile("demo.srt"); got != "application/x-subrip" {
		t.Fatalf("unexpected content type %q", got)
	}
}
