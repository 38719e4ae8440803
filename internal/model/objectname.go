package model

import "time"

// ObjectName derives the metric record's storage key from its capture time:
// an ISO-8601 timestamp in UTC at nanosecond resolution. Two captures at the
// exact same instant map to the same key and the second write wins; the
// resolution makes that window vanishingly small but does not eliminate it
// (see the collision property test).
func ObjectName(capturedAt time.Time) string {
	return capturedAt.UTC().Format(time.RFC3339Nano)
}
