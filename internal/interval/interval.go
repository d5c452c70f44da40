// Package interval provides the calendar primitives of the reservation
// domain: dates, minute-granular times of day, and half-open time spans with
// the overlap predicate every conflict decision is built on.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
type TimeOfDay int

// MinutesPerDay bounds valid TimeOfDay values. 24*60 is permitted as an
// exclusive span end meaning "end of day".
const MinutesPerDay = 24 * 60

// ErrInvalidTimeOfDay indicates a value outside [0, 24:00] or an unparsable string.
var ErrInvalidTimeOfDay = errors.New("interval: invalid time of day")

// ParseTimeOfDay parses an "HH:MM" clock string.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	if hour < 0 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	t := TimeOfDay(hour*60 + minute)
	if t > MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return t, nil
}

// TimeOfDayOf extracts the clock time of an instant, truncated to the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Valid reports whether the value lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Span is a half-open time window [Start, End) within one calendar day.
type Span struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ErrInvalidSpan indicates a zero-length or inverted window.
var ErrInvalidSpan = errors.New("interval: span end must be after start")

// NewSpan validates and constructs a span. Zero-length spans are rejected.
func NewSpan(start, end TimeOfDay) (Span, error) {
	if !start.Valid() || !end.Valid() {
		return Span{}, ErrInvalidTimeOfDay
	}
	if end <= start {
		return Span{}, ErrInvalidSpan
	}
	return Span{Start: start, End: end}, nil
}

// Overlaps reports whether two half-open spans intersect. Back-to-back spans
// sharing a boundary do not overlap.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether the instant falls inside the span, start inclusive,
// end exclusive.
func (s Span) Contains(t TimeOfDay) bool {
	return s.Start <= t && t < s.End
}

// Minutes returns the span length in whole minutes.
func (s Span) Minutes() int {
	return int(s.End - s.Start)
}

// String renders the span as "HH:MM-HH:MM".
func (s Span) String() string {
	return s.Start.String() + "-" + s.End.String()
}
