package domain

import (
	"fmt"
	"time"
)

// JustNow is the label for anything under a minute old, or in the future.
const JustNow = "Just now"

// FormatRelativeTime renders the age of created as seen at now.
func FormatRelativeTime(created, now time.Time) string {
	seconds := int64(now.Sub(created) / time.Second)

	switch {
	case seconds < 60:
		return JustNow
	case seconds < 3600:
		return pluralAgo(seconds/60, "minute")
	case seconds < 86400:
		return pluralAgo(seconds/3600, "hour")
	default:
		return pluralAgo(seconds/86400, "day")
	}
}

// FormatRelativeTimestamp is FormatRelativeTime for a wire timestamp. An
// unparseable timestamp is treated as brand new.
func FormatRelativeTimestamp(timestamp string, now time.Time) string {
	created, ok := ParseTimestamp(timestamp)
	if !ok {
		return JustNow
	}
	return FormatRelativeTime(created, now)
}

func pluralAgo(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// ParseTimestamp accepts the ISO-8601 forms the backend emits.
func ParseTimestamp(timestamp string) (time.Time, bool) {
	if timestamp == "" {
		return time.Time{}, false
	}
	// RFC3339 parsing also accepts fractional seconds.
	if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", timestamp, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way the backend does (UTC, milliseconds).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
