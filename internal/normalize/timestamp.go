package normalize

import "time"

// ParseTimestamp parses an ISO-8601 timestamp, preferring fractional seconds.
// Strings that match neither layout resolve to fallback.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}
