package core

import (
	"errors"
	"time"
)

// CanonicalLayout is the only timestamp representation accepted on the wire
// and written to storage. The fixed-width, zero-padded, UTC-anchored form
// guarantees that lexicographic comparison of two timestamps equals their
// chronological comparison, so ordering never needs timezone arithmetic.
const CanonicalLayout = "2006-01-02T15:04:05.000Z"

var ErrInvalidDateFormat = errors.New("invalid date format")

// Timestamp is a canonical UTC timestamp string (YYYY-MM-DDTHH:mm:ss.sssZ).
// The zero value is "no timestamp".
type Timestamp string

// ParseTimestamp validates that s is in the canonical form and returns it as
// a Timestamp. Anything that does not round-trip through the fixed layout,
// including non-UTC offsets and missing millisecond padding, is rejected.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(CanonicalLayout, s)
	if err != nil {
		return "", ErrInvalidDateFormat
	}
	// time.Parse is lenient about zero-padding; require the exact form back.
	if t.UTC().Format(CanonicalLayout) != s {
		return "", ErrInvalidDateFormat
	}
	return Timestamp(s), nil
}

// Canonicalize converts any time.Time to the canonical UTC form, truncating
// to millisecond precision.
func Canonicalize(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(CanonicalLayout))
}

// Now returns the current instant as a canonical timestamp.
func Now() Timestamp {
	return Canonicalize(time.Now())
}

// Time converts the timestamp back to a time.Time in UTC. Calling Time on a
// value that did not come from ParseTimestamp/Canonicalize returns the zero
// time.
func (ts Timestamp) Time() time.Time {
	t, err := time.Parse(CanonicalLayout, string(ts))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts == ""
}

// Before reports whether ts is chronologically before other. Because the
// canonical form string-compares correctly this is a plain string compare.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts < other
}

// MonthRange returns the first and last instant of the given month in UTC,
// used to bound month and year queries.
func MonthRange(year, month int) (Timestamp, Timestamp) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return Canonicalize(start), Canonicalize(end)
}
