package domain

import "time"

// TimeLayout is the ISO-8601 UTC format used for every stored timestamp
// and for the canonical audit payload. Microsecond precision is fixed so
// that the same instant always renders to the same bytes.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. Falls back to RFC3339 for rows
// written by external tooling.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
