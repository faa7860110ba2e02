package sqlutil

import "time"

// Timestamps are stored as unix milliseconds so the same statements run on
// Postgres and SQLite.

// ToMillis converts a time to unix milliseconds (UTC).
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
