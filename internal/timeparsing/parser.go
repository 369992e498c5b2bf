// Package timeparsing parses compact duration spans used for cooldown
// periods and staleness thresholds, and formats remaining time for
// human-facing output.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactSpanRe matches compact span patterns: (\d+)([smhdw])
// Examples: 45s, 30m, 2h, 1d, 2w
var compactSpanRe = regexp.MustCompile(`^(\d+)([smhdw])$`)

// ParseSpan parses compact span syntax into a duration.
//
// Format: (\d+)([smhdw])
//
// Units:
//   - s = seconds
//   - m = minutes
//   - h = hours
//   - d = days
//   - w = weeks
//
// Examples:
//   - "30m" -> 30 minutes
//   - "90m" -> 90 minutes
//   - "2h"  -> 2 hours
//   - "1d"  -> 24 hours
//
// Returns error if input doesn't match the compact span pattern.
func ParseSpan(s string) (time.Duration, error) {
	matches := compactSpanRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("not a compact span: %q", s)
	}

	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		// Should not happen given regex ensures digits, but handle gracefully
		return 0, fmt.Errorf("invalid span amount: %q", matches[1])
	}

	return spanUnit(matches[2]) * time.Duration(amount), nil
}

// spanUnit returns the duration of one unit.
func spanUnit(unit string) time.Duration {
	switch unit {
	case "s":
		return time.Second
	case "m":
		return time.Minute
	case "h":
		return time.Hour
	case "d":
		return 24 * time.Hour
	case "w":
		return 7 * 24 * time.Hour
	default:
		// Should not happen given regex
		return 0
	}
}

// IsSpan returns true if the string matches compact span syntax.
func IsSpan(s string) bool {
	return compactSpanRe.MatchString(s)
}

// FormatRemaining renders a duration as a compact human string for
// countdown-style output: "2h30m", "45m", "<1m". Negative and zero
// durations render as "0m".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	if d < time.Minute {
		return "<1m"
	}
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	h := mins / 60
	m := mins % 60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}
