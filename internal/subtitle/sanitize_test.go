package subtitle

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"  标题  ", "标题"},
		{"...", "fallback"},
		{"", "fallback"},
	}
	for _, tc := range tests {
		if got := SanitizeFilename(tc.in, "fallback"); got != tc.want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := strings.Repeat("字", 200)
	if got := SanitizeFilename(long, "x"); utf8.RuneCountInString(got) != maxFilenameRunes {
		t.Fatalf("expected %d runes, got %d", maxFilenameRunes, utf8.RuneCountInString(got))
	}
}

func TestParseClock(t *testing.T) {
	tests := map[string]int64{
		"00:00:01,500": 1500,
		"0:01:02.25":   62_250,
		"01:05.01":     65_010,
		"1:00:00.000":  3_600_000,
	}
	for in, wantMS := range tests {
		got, err := parseClock(in)
		if err != nil {
			t.Fatalf("parseClock(%q): %v", in, err)
		}
		if got.Milliseconds() != wantMS {
			t.Fatalf("parseClock(%q) = %dms, want %dms", in, got.Milliseconds(), wantMS)
		}
	}
	if _, err := parseClock("nope"); err == nil {
		t.Fatal("expected error")
	}
}
