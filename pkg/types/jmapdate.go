package types

import (
	"fmt"
	"time"
)

// JMAPDate parses and formats the UTCDate shape RFC 8620 §1.4 mandates:
// "YYYY-MM-DDThh:mm:ssZ" with an optional ".sss" fraction, always in UTC.
// Grounded on original_source/components/jmap/src/types/date.rs, which this
// type reproduces in Go idiom (time.Time underneath instead of a field
// struct) rather than translating field-by-field.
type JMAPDate struct {
	t time.Time
}

// ParseJMAPDate parses s into a JMAPDate, rejecting any value that is not
// RFC3339 in UTC (a non-"Z" offset is a format error, matching the strict
// wire contract RFC 8621 relies on for EmailSubmission/VacationResponse
// date comparisons).
func ParseJMAPDate(s string) (JMAPDate, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return JMAPDate{}, fmt.Errorf("invalid JMAP date %q: %w", s, err)
	}
	if t.Location() != time.UTC {
		return JMAPDate{}, fmt.Errorf("invalid JMAP date %q: must be UTC", s)
	}
	return JMAPDate{t: t.UTC()}, nil
}

// NewJMAPDate wraps a time.Time in UTC, keeping its full precision;
// String drops any fractional seconds on output.
func NewJMAPDate(t time.Time) JMAPDate { return JMAPDate{t: t.UTC()} }

// Time returns the underlying time.Time in UTC.
func (d JMAPDate) Time() time.Time { return d.t }

// String re-serializes the date as "YYYY-MM-DDThh:mm:ssZ", dropping any
// fractional-second component present on parse — matching S6's round-trip
// requirement ("2004-06-28T23:43:45.000Z" -> "2004-06-28T23:43:45Z").
func (d JMAPDate) String() string {
	return d.t.Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// Year, Month, Day, Hour, Minute, Second expose the broken-down fields S6
// checks individually.
func (d JMAPDate) Year() int   { return d.t.Year() }
func (d JMAPDate) Month() int  { return int(d.t.Month()) }
func (d JMAPDate) Day() int    { return d.t.Day() }
func (d JMAPDate) Hour() int   { return d.t.Hour() }
func (d JMAPDate) Minute() int { return d.t.Minute() }
func (d JMAPDate) Second() int { return d.t.Second() }

// TZOffset always returns "+00:00": the core only stores UTC timestamps.
func (d JMAPDate) TZOffset() string { return "+00:00" }
