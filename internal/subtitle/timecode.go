package subtitle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatClock renders d as HH:MM:SS<sep>mmm, truncating to milliseconds.
func formatClock(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}

// formatASSClock renders d as H:MM:SS.cc.
func formatASSClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	h := cs / 360_000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

// formatLRCClock renders d as mm:ss.cc; minutes are not wrapped at the hour.
func formatLRCClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}

// parseClock accepts [H:]MM:SS with a '.' or ',' fraction of any precision.
func parseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")
	whole, frac, _ := strings.Cut(value, ".")
	parts := strings.Split(whole, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	var total time.Duration
	units := []time.Duration{time.Second, time.Minute, time.Hour}
	for i := range parts {
		n, err := strconv.Atoi(parts[len(parts)-1-i])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		total += time.Duration(n) * units[i]
	}
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		total += time.Duration(n)
	}
	return total, nil
}

// seconds converts d to float seconds at millisecond precision.
func seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

// fromSeconds converts float seconds back to a duration, rounding to the millisecond.
func fromSeconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v*1000+0.5) * time.Millisecond
}
