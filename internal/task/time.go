package task

import (
	"fmt"
	"strings"
	"time"
)

// WireFormat is the single canonical timestamp format: RFC 3339, UTC,
// whole seconds, explicit zone suffix. Everything downstream of the
// normalizer consumes only this shape.
const WireFormat = "2006-01-02T15:04:05Z07:00"

// sourceLayouts are the timestamp shapes observed in the source feeds.
// The feeds are inconsistent: some endpoints emit RFC 3339, some use a
// space separator, some carry fractional seconds, and zone offsets appear
// both as "+00:00" and the bare "+0000"/"+00" forms.
var sourceLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a source timestamp into UTC at second precision.
// Returns an error naming no layout rather than guessing: malformed
// timestamps are a per-record condition the caller skips and logs.
func ParseTimestamp(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Two-digit zone offsets ("+00") appear in the upload feed. Widen
	// them so the standard layouts apply.
	raw = widenShortOffset(raw)

	for _, layout := range sourceLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders a timestamp in the canonical wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(WireFormat)
}

// FormatOptional renders a nillable timestamp, or "" for nil.
// A missing source deadline stays missing on the wire - never a sentinel.
func FormatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTimestamp(*t)
}

// widenShortOffset rewrites a trailing two-digit zone offset ("+00", "-05")
// into the four-digit form the time package accepts.
func widenShortOffset(s string) string {
	if len(s) < 3 {
		return s
	}
	sign := s[len(s)-3]
	if sign != '+' && sign != '-' {
		return s
	}
	tail := s[len(s)-2:]
	for _, c := range tail {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s + "00"
}
