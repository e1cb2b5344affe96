package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts seen across exchange CSV exports. All are interpreted as
// UTC unless the value itself carries an offset.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"02-01-2006",
}

// ParseTimestampMillis converts a source timestamp into a UTC epoch in
// milliseconds. Accepts the known CSV layouts plus raw epoch seconds or
// milliseconds.
func ParseTimestampMillis(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		// 13-digit values are already milliseconds, 10-digit values are seconds.
		if n >= 1e12 {
			return n, nil
		}
		if n >= 1e9 {
			return n * 1000, nil
		}
		return 0, fmt.Errorf("numeric timestamp %q out of range", value)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp format: %q", value)
}
