package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ParseTimeframe converts a horizon label such as "30 minutes", "45min", "1 hour" or "90m"
// into a duration.
func ParseTimeframe(label string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("timeframe %q must be positive", label)
		}
		return d, nil
	}

	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
	if i <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", label)
	}
	n, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", label)
	}

	var unit time.Duration
	switch strings.TrimSpace(s[i:]) {
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "s", "sec", "secs", "second", "seconds":
		unit = time.Second
	default:
		return 0, fmt.Errorf("invalid timeframe unit in %q", label)
	}
	return time.Duration(n * float64(unit)), nil
}

// FormatTimeframe renders d the way forecast labels are stored ("30 minutes", "2 hours")
func FormatTimeframe(d time.Duration) string {
	if d%time.Hour == 0 && d >= time.Hour {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
