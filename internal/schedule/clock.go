package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseClock converts a clock-time string ("9:30", "09:30", or "09:30:00")
// to minutes past midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time: %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return h*60 + m, nil
}

// FormatClock converts minutes past midnight back to "HH:MM".
func FormatClock(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

// FormatRange renders a start/end minute pair for display, e.g. "09:00–09:30".
// With no end it renders the start alone.
func FormatRange(startMin int, endMin *int) string {
	if endMin == nil {
		return FormatClock(startMin)
	}
	return FormatClock(startMin) + "–" + FormatClock(*endMin)
}

// DateKey formats a date as the canonical "2006-01-02" key.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a "2006-01-02" key into a midnight UTC time.
func ParseDate(key string) (time.Time, error) {
	t, err := time.Parse(dateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", key, err)
	}
	return t, nil
}

// WeekStart returns the Monday of the week containing t, at midnight.
// Weeks are Monday-based for aggregation; this is independent of the fixed
// Sunday=0 day-of-week mapping used by recurrence rules.
func WeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
