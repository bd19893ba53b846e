package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// autoPrefix marks platform-generated (machine) subtitle tracks, e.g. "ai-zh".
const autoPrefix = "ai-"

var wordForms = map[string]string{
	"chinese":  "zh",
	"english":  "en",
	"japanese": "ja",
	"korean":   "ko",
	"spanish":  "es",
	"french":   "fr",
	"german":   "de",
	"russian":  "ru",
}

// Normalize returns the canonical BCP 47 spelling of code. Unparseable input
// is returned lowercased so it still compares stably.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	lower := strings.ToLower(code)
	lower = strings.TrimPrefix(lower, autoPrefix)
	if mapped, ok := wordForms[lower]; ok {
		lower = mapped
	}
	tag, err := language.Parse(strings.ReplaceAll(lower, "_", "-"))
	if err != nil {
		return lower
	}
	return tag.String()
}

// IsAutoGenerated reports whether a platform track code denotes a machine track.
func IsAutoGenerated(code string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(code)), autoPrefix)
}

// Base returns the primary language subtag ("zh" for "zh-CN").
func Base(code string) string {
	normalized := Normalize(code)
	tag, err := language.Parse(normalized)
	if err != nil {
		if i := strings.IndexByte(normalized, '-'); i > 0 {
			return normalized[:i]
		}
		return normalized
	}
	base, _ := tag.Base()
	return base.String()
}

// Best picks the available track code that best serves the requested
// language. Returns -1 when nothing matches with at least high confidence.
func Best(requested string, available []string) int {
	if len(available) == 0 {
		return -1
	}
	want, err := language.Parse(Normalize(requested))
	if err != nil {
		for i, code := range available {
			if strings.EqualFold(Normalize(code), Normalize(requested)) {
				return i
			}
		}
		return -1
	}
	tags := make([]language.Tag, 0, len(available))
	index := make([]int, 0, len(available))
	for i, code := range available {
		tag, err := language.Parse(Normalize(code))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		index = append(index, i)
	}
	if len(tags) == 0 {
		return -1
	}
	_, pos, conf := language.NewMatcher(tags).Match(want)
	if conf < language.High {
		return -1
	}
	return index[pos]
}

// DisplayName returns an English display name for code.
func DisplayName(code string) string {
	normalized := Normalize(code)
	if normalized == "" {
		return "Unknown"
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return strings.ToUpper(normalized)
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(normalized)
}

// NormalizeList deduplicates and normalizes a list of language codes,
// preserving order.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		normalized := Normalize(code)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
