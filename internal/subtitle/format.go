package subtitle

import (
	"fmt"
	"strings"
)

// Format names an output encoding.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatASS  Format = "ass"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatLRC  Format = "lrc"
)

// Formats lists every supported encoding in a stable order.
var Formats = []Format{FormatSRT, FormatASS, FormatVTT, FormatJSON, FormatTXT, FormatLRC}

// ParseFormat accepts a format name or file extension such as ".SRT".
func ParseFormat(value string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "."))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported subtitle format %q", value)
}

// ParseFormats parses a list, dropping duplicates while keeping order.
func ParseFormats(values []string) ([]Format, error) {
	out := make([]Format, 0, len(values))
	seen := make(map[Format]struct{}, len(values))
	for _, value := range values {
		f, err := ParseFormat(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the media type used when serving the rendered file.
func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	case FormatASS:
		return "text/x-ssa"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// timed reports whether the format is cue based with explicit end times.
func (f Format) timed() bool {
	return f == FormatSRT || f == FormatVTT || f == FormatASS
}

// ContentTypeForFile maps a rendered file name to its media type.
func ContentTypeForFile(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "application/octet-stream"
	}
	f, err := ParseFormat(name[idx+1:])
	if err != nil {
		return "application/octet-stream"
	}
	return f.ContentType()
}
