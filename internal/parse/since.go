// Package parse provides parsing, validation, and normalization utilities for the soclog CLI.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"soclog/internal/fault"
)

// DefaultWindow is the look-back used when no window flag is given.
const DefaultWindow = 24 * time.Hour

// PowerShellTimeLayout is the layout handed to [datetime] casts in remote scripts.
const PowerShellTimeLayout = "2006-01-02T15:04:05"

var weekDayUnit = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([wd])`)

// NormalizeWindow resolves the collection start time from the window flags.
// since takes precedence and accepts RFC3339 or a duration like 7d, 72h,
// 15m, 30s, 2w. Otherwise hours and days are summed; nil means the flag was
// not given, and with neither given the window is the last 24 hours. An
// explicit zero yields an empty window starting at now. The result is in UTC.
func NormalizeWindow(hours, days *int, since string, now time.Time) (time.Time, error) {
	if (hours != nil && *hours < 0) || (days != nil && *days < 0) {
		return time.Time{}, fault.New(fault.KindValidation, "invalid window: --hours and --days must be >= 0")
	}

	if since != "" {
		start, err := NormalizeSince(since, now)
		if err != nil {
			return time.Time{}, err
		}
		return start, nil
	}

	window := DefaultWindow
	if hours != nil || days != nil {
		window = 0
		if hours != nil {
			window += time.Duration(*hours) * time.Hour
		}
		if days != nil {
			window += time.Duration(*days) * 24 * time.Hour
		}
	}

	return now.UTC().Add(-window).Truncate(time.Second), nil
}

// NormalizeSince parses a --since flag value into a UTC start time.
// For durations, it returns nowUTC - duration truncated to the second.
func NormalizeSince(input string, now time.Time) (time.Time, error) {
	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}

	duration, err := parseDurationWithWeeksAndDays(input)
	if err != nil || duration < 0 {
		return time.Time{}, fault.New(fault.KindValidation, "invalid --since: must be RFC3339 or a duration like 7d, 72h, 15m, 30s, 2w")
	}

	return now.UTC().Add(-duration).Truncate(time.Second), nil
}

// PowerShellStart formats start the way remote [datetime] casts expect it.
func PowerShellStart(start time.Time) string {
	return start.UTC().Format(PowerShellTimeLayout)
}

// parseDurationWithWeeksAndDays extends time.ParseDuration with weeks (w) and days (d).
func parseDurationWithWeeksAndDays(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	converted := weekDayUnit.ReplaceAllStringFunc(s, func(match string) string {
		parts := weekDayUnit.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}

		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return match
		}

		switch parts[2] {
		case "w":
			return fmt.Sprintf("%.0fh", value*168)
		case "d":
			return fmt.Sprintf("%.0fh", value*24)
		default:
			return match
		}
	})

	return time.ParseDuration(converted)
}
