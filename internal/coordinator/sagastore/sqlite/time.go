package sqlite

import (
	"fmt"
	"time"
)

// SQLite has no native datetime type; timestamps are stored as RFC 3339 TEXT
// in UTC so they sort lexically.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
