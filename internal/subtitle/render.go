package subtitle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bilisub/internal/language"
	"bilisub/internal/services"
)

// Options carries document-level metadata for a render.
type Options struct {
	Video    VideoRef
	Language string
	// Stats overrides the counts reported by JSON output. When nil the
	// counts are taken from the rendered segments.
	Stats *Stats
}

// Render encodes segments in the requested format. It never mutates segments.
// An empty sequence yields a well-formed empty document.
func Render(segments []Segment, format Format, opts Options) ([]byte, error) {
	ordered, err := prepare(segments, format)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatSRT:
		return renderSRT(ordered), nil
	case FormatVTT:
		return renderVTT(ordered), nil
	case FormatASS:
		return renderASS(ordered, opts), nil
	case FormatJSON:
		return renderJSON(ordered, opts)
	case FormatTXT:
		return renderTXT(ordered), nil
	case FormatLRC:
		return renderLRC(ordered, opts), nil
	default:
		return nil, renderError(format, fmt.Errorf("unsupported format"))
	}
}

func renderError(format Format, err error) error {
	return services.Classify(services.KindRenderError, "render "+string(format), err)
}

// prepare copies and orders segments, rejecting inverted timings. Zero-length
// cues are dropped for cue-based formats. Text is folded onto one line since
// a second line in a cue is the secondary language.
func prepare(segments []Segment, format Format) ([]Segment, error) {
	out := make([]Segment, 0, len(segments))
	for i, seg := range segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return nil, renderError(format, fmt.Errorf("segment %d has invalid timing %s-%s", i, seg.Start, seg.End))
		}
		if format.timed() && seg.Start == seg.End {
			continue
		}
		seg.Text = SingleLine(seg.Text)
		seg.SecondaryText = SingleLine(seg.SecondaryText)
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func cueText(seg Segment) string {
	if seg.SecondaryText == "" {
		return seg.Text
	}
	return seg.Text + "\n" + seg.SecondaryText
}

func renderSRT(segments []Segment) []byte {
	var buf bytes.Buffer
	for i, seg := range segments {
		fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1, formatClock(seg.Start, ','), formatClock(seg.End, ','), cueText(seg))
	}
	return buf.Bytes()
}

func renderVTT(segments []Segment) []byte {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n")
	for i, seg := range segments {
		fmt.Fprintf(&buf, "\n%d\n%s --> %s\n%s\n", i+1, formatClock(seg.Start, '.'), formatClock(seg.End, '.'), cueText(seg))
	}
	return buf.Bytes()
}

const (
	defaultPlayResX = 1920
	defaultPlayResY = 1080
)

func renderASS(segments []Segment, opts Options) []byte {
	resX, resY := opts.Video.Width, opts.Video.Height
	if resX <= 0 || resY <= 0 {
		resX, resY = defaultPlayResX, defaultPlayResY
	}
	primarySize := resY / 20
	secondarySize := resY * 3 / 80
	var buf bytes.Buffer
	buf.WriteString("[Script Info]\n")
	if opts.Video.Title != "" {
		fmt.Fprintf(&buf, "Title: %s\n", assEscape(opts.Video.Title))
	}
	buf.WriteString("ScriptType: v4.00+\nWrapStyle: 0\nScaledBorderAndShadow: yes\n")
	fmt.Fprintf(&buf, "PlayResX: %d\nPlayResY: %d\n\n", resX, resY)

	buf.WriteString("[V4+ Styles]\n")
	buf.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&buf, "Style: Default,Arial,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,1,2,20,20,%d,1\n", primarySize, resY/27)
	fmt.Fprintf(&buf, "Style: ZH,Microsoft YaHei,%d,&H00FFFFFF,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,1,2,20,20,%d,1\n", primarySize, resY/18)
	fmt.Fprintf(&buf, "Style: EN,Arial,%d,&H00E0E0E0,&H000000FF,&H00000000,&H80000000,0,0,0,0,100,100,0,0,1,2,1,2,20,20,%d,1\n\n", secondarySize, resY/54)

	buf.WriteString("[Events]\n")
	buf.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, seg := range segments {
		start, end := formatASSClock(seg.Start), formatASSClock(seg.End)
		fmt.Fprintf(&buf, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n", start, end, assStyle(seg.Language), assEscape(seg.Text))
		if seg.SecondaryText != "" {
			fmt.Fprintf(&buf, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n", start, end, assStyle(seg.SecondaryLanguage), assEscape(seg.SecondaryText))
		}
	}
	return buf.Bytes()
}

func assStyle(lang string) string {
	switch language.Base(lang) {
	case "zh":
		return "ZH"
	case "en":
		return "EN"
	default:
		return "Default"
	}
}

func assEscape(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", `\N`)
}

type jsonDocument struct {
	Video    jsonVideo     `json:"video"`
	Language string        `json:"language"`
	Stats    jsonStats     `json:"stats"`
	Segments []jsonSegment `json:"segments"`
}

type jsonVideo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type jsonStats struct {
	Authored   int `json:"authored"`
	Recognized int `json:"recognized"`
	Total      int `json:"total"`
}

type jsonSegment struct {
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
	Text          string   `json:"text"`
	SecondaryText string   `json:"secondary_text,omitempty"`
	Language      string   `json:"language"`
	Source        Source   `json:"source"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

func renderJSON(segments []Segment, opts Options) ([]byte, error) {
	stats := Count(segments)
	if opts.Stats != nil {
		stats = *opts.Stats
	}
	doc := jsonDocument{
		Video: jsonVideo{
			ID:       opts.Video.ID,
			Title:    opts.Video.Title,
			Duration: seconds(opts.Video.Duration),
		},
		Language: opts.Language,
		Stats:    jsonStats{Authored: stats.Authored, Recognized: stats.Recognized, Total: stats.Total()},
		Segments: make([]jsonSegment, 0, len(segments)),
	}
	for _, seg := range segments {
		entry := jsonSegment{
			Start:         seconds(seg.Start),
			End:           seconds(seg.End),
			Text:          seg.Text,
			SecondaryText: seg.SecondaryText,
			Language:      seg.Language,
			Source:        seg.Source,
		}
		if seg.Confidence != nil {
			c := *seg.Confidence
			entry.Confidence = &c
		}
		doc.Segments = append(doc.Segments, entry)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, renderError(FormatJSON, err)
	}
	return append(data, '\n'), nil
}

func renderTXT(segments []Segment) []byte {
	var buf bytes.Buffer
	for _, seg := range segments {
		buf.WriteString(seg.Text)
		buf.WriteByte('\n')
		if seg.SecondaryText != "" {
			buf.WriteString(seg.SecondaryText)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// renderLRC writes one marker per distinct centisecond. Segments that collapse
// onto the same marker are joined so markers stay strictly increasing.
func renderLRC(segments []Segment, opts Options) []byte {
	var buf bytes.Buffer
	if opts.Video.Title != "" {
		fmt.Fprintf(&buf, "[ti:%s]\n", lrcEscape(opts.Video.Title))
	}
	if opts.Video.Duration > 0 {
		fmt.Fprintf(&buf, "[length:%s]\n", formatLRCClock(opts.Video.Duration))
	}
	lastMarker := ""
	var line strings.Builder
	flush := func() {
		if lastMarker != "" {
			fmt.Fprintf(&buf, "[%s]%s\n", lastMarker, line.String())
		}
		line.Reset()
	}
	for _, seg := range segments {
		marker := formatLRCClock(seg.Start)
		text := lrcEscape(seg.Text)
		if seg.SecondaryText != "" {
			text += " / " + lrcEscape(seg.SecondaryText)
		}
		if marker == lastMarker {
			line.WriteByte(' ')
			line.WriteString(text)
			continue
		}
		flush()
		lastMarker = marker
		line.WriteString(text)
	}
	flush()
	return buf.Bytes()
}

func lrcEscape(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// quote is used by error messages that echo user-visible text.
func quote(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return strconv.Quote(s)
}
