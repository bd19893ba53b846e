package subtitle

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFilenameRunes = 150

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// SanitizeFilename turns a video title into a safe file stem. Reserved
// characters become underscores and the result is capped at 150 runes.
// An empty result falls back to fallback.
func SanitizeFilename(name, fallback string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "_")
	cleaned = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, ".")
	if utf8.RuneCountInString(cleaned) > maxFilenameRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxFilenameRunes]))
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

// FileName returns the artifact name for a rendered format.
func FileName(stem string, format Format) string {
	return stem + "." + format.Extension()
}
