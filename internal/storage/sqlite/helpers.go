package sqlite

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sqliteTimestampLayout matches SQLite's CURRENT_TIMESTAMP default
// ("YYYY-MM-DD HH:MM:SS", always UTC).
const sqliteTimestampLayout = "2006-01-02 15:04:05"

func parseUUID(s string, out *uuid.UUID) error {
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("sqlite: parse uuid %q: %w", s, err)
	}
	*out = id
	return nil
}

func parseTimestamp(s string, out *time.Time) error {
	if s == "" {
		return nil
	}
	t, err := time.Parse(sqliteTimestampLayout, s)
	if err != nil {
		// Accept RFC3339 too: callers may write timestamps with
		// time.Time.Format(time.RFC3339) rather than relying on the
		// column default.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("sqlite: parse timestamp %q: %w", s, err)
		}
	}
	*out = t
	return nil
}

func parseNullableTimestamp(s *string, out **time.Time) error {
	if s == nil || *s == "" {
		*out = nil
		return nil
	}
	var t time.Time
	if err := parseTimestamp(*s, &t); err != nil {
		return err
	}
	*out = &t
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(sqliteTimestampLayout)
}

func formatNullableTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTimestamp(*t)
	return &s
}
