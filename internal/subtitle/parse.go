package subtitle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse decodes a rendered document back into segments. TXT output carries no
// timing and cannot be parsed.
func Parse(format Format, data []byte) ([]Segment, error) {
	switch format {
	case FormatSRT:
		return ParseSRT(data)
	case FormatVTT:
		return ParseVTT(data)
	case FormatASS:
		return ParseASS(data)
	case FormatJSON:
		return ParseJSON(data)
	case FormatLRC:
		return ParseLRC(data)
	default:
		return nil, fmt.Errorf("parse %s: format carries no timing", format)
	}
}

func normalizeNewlines(data []byte) string {
	return strings.ReplaceAll(strings.TrimPrefix(string(data), "\uFEFF"), "\r\n", "\n")
}

// parseCueBlocks handles the shared SRT/VTT block structure: an optional
// identifier line, a timing line, then text lines.
func parseCueBlocks(content string) ([]Segment, error) {
	var segments []Segment
	for _, block := range strings.Split(strings.TrimSpace(content), "\n\n") {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}
		startText, endText, _ := strings.Cut(lines[timing], "-->")
		// VTT cue settings follow the end timestamp.
		if fields := strings.Fields(endText); len(fields) > 0 {
			endText = fields[0]
		}
		start, err := parseClock(startText)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(endText)
		if err != nil {
			return nil, err
		}
		seg := Segment{Start: start, End: end}
		text := lines[timing+1:]
		if len(text) > 0 {
			seg.Text = text[0]
		}
		if len(text) > 1 {
			seg.SecondaryText = strings.Join(text[1:], "\n")
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// ParseSRT decodes SubRip text.
func ParseSRT(data []byte) ([]Segment, error) {
	segments, err := parseCueBlocks(normalizeNewlines(data))
	if err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	return segments, nil
}

// ParseVTT decodes WebVTT text.
func ParseVTT(data []byte) ([]Segment, error) {
	content := normalizeNewlines(data)
	if !strings.HasPrefix(content, "WEBVTT") {
		return nil, fmt.Errorf("parse vtt: missing WEBVTT header")
	}
	_, body, _ := strings.Cut(content, "\n")
	segments, err := parseCueBlocks(body)
	if err != nil {
		return nil, fmt.Errorf("parse vtt: %w", err)
	}
	return segments, nil
}

// ParseASS decodes the Dialogue lines of an ASS script. Consecutive dialogue
// lines sharing a time range are folded into one bilingual segment.
func ParseASS(data []byte) ([]Segment, error) {
	var segments []Segment
	for _, line := range strings.Split(normalizeNewlines(data), "\n") {
		rest, ok := strings.CutPrefix(line, "Dialogue:")
		if !ok {
			continue
		}
		fields := strings.SplitN(strings.TrimSpace(rest), ",", 10)
		if len(fields) != 10 {
			return nil, fmt.Errorf("parse ass: malformed dialogue %s", quote(line))
		}
		start, err := parseClock(fields[1])
		if err != nil {
			return nil, fmt.Errorf("parse ass: %w", err)
		}
		end, err := parseClock(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parse ass: %w", err)
		}
		text := strings.ReplaceAll(fields[9], `\N`, "\n")
		if n := len(segments); n > 0 && segments[n-1].Start == start && segments[n-1].End == end && segments[n-1].SecondaryText == "" {
			segments[n-1].SecondaryText = text
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}
	return segments, nil
}

// ParseJSON decodes the JSON document written by Render.
func ParseJSON(data []byte) ([]Segment, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	segments := make([]Segment, 0, len(doc.Segments))
	for _, entry := range doc.Segments {
		segments = append(segments, Segment{
			Start:         fromSeconds(entry.Start),
			End:           fromSeconds(entry.End),
			Text:          entry.Text,
			SecondaryText: entry.SecondaryText,
			Language:      entry.Language,
			Source:        entry.Source,
			Confidence:    entry.Confidence,
		})
	}
	return segments, nil
}

// ParseLRC decodes timestamped lyric lines. LRC has no end times, so each
// segment ends where the next begins and the last one is zero length.
func ParseLRC(data []byte) ([]Segment, error) {
	var segments []Segment
	for _, line := range strings.Split(normalizeNewlines(data), "\n") {
		if !strings.HasPrefix(line, "[") {
			continue
		}
		tag, text, ok := strings.Cut(line[1:], "]")
		if !ok {
			continue
		}
		if len(tag) == 0 || tag[0] < '0' || tag[0] > '9' {
			continue
		}
		start, err := parseClock(tag)
		if err != nil {
			return nil, fmt.Errorf("parse lrc: %w", err)
		}
		segments = append(segments, Segment{Start: start, End: start, Text: text})
	}
	for i := 0; i+1 < len(segments); i++ {
		segments[i].End = segments[i+1].Start
	}
	return segments, nil
}
