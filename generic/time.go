/*
time.go - Timestamp parsing and normalization

PURPOSE:
  Lots are ordered by when their points were earned. Every timestamp that
  reaches the engine is converted to UTC so ordering never depends on the
  zone a client happened to send.

ACCEPTED FORMATS:
  - RFC 3339, with or without fractional seconds ("2020-11-02T14:00:00Z")
  - Zone-less ISO 8601 ("2020-11-02T14:00:00", "2020-11-02 14:00:00",
    "2020-11-02T14:00", "2020-11-02"), read as UTC

SEE ALSO:
  - types.go: Lot.Before uses EarnedAt
  - api/dto.go: Parses request timestamps
*/
package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIMESTAMPS - Lot ordering keys
// =============================================================================

// naiveLayouts are accepted when a timestamp carries no zone information.
// Such timestamps are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Normalize converts t to UTC. Lots are always stored normalized.
func Normalize(t time.Time) time.Time { return t.UTC() }

// ParseTimestamp parses an RFC 3339 timestamp, or a timezone-naive ISO 8601
// timestamp which is taken to be UTC. The result is normalized.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Normalize(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (use RFC 3339, e.g. 2020-11-02T14:00:00Z)", s)
}

// FormatTimestamp renders a lot timestamp for API responses.
func FormatTimestamp(t time.Time) string { return Normalize(t).Format(time.RFC3339Nano) }
