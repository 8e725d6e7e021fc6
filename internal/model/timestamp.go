package model

import (
	"fmt"
	"strings"
	"time"
)

// ReportLayout is the human-readable layout used by reports and tracking views.
const ReportLayout = "2006-01-02 15:04:05"

// Layouts accepted when reading stored timestamps. Rows written by older
// deployments carry zoneless strings, which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	ReportLayout,
}

// FormatTimestamp renders t the way derived timestamps are persisted.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses a persisted timestamp in any accepted layout.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// TimestampPtr is FormatTimestamp for nullable columns.
func TimestampPtr(t time.Time) *string {
	s := FormatTimestamp(t)
	return &s
}
