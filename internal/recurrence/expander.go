// Package recurrence expands recurring reservation patterns into the ordered
// list of calendar dates they occupy.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/room-reservation/internal/interval"
)

// Frequency represents supported recurrence intervals.
type Frequency string

const (
	// FrequencyDaily steps one calendar day at a time.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly steps seven calendar days at a time.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiweekly steps fourteen calendar days at a time.
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencyMonthly steps one calendar month, clamping short months.
	FrequencyMonthly Frequency = "monthly"
)

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ParseFrequency validates a caller-supplied frequency string.
func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(value) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return Frequency(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// Expand generates every occurrence date of the pattern, inclusive of both
// endpoints, strictly increasing. A start after the end yields an empty
// result rather than an error.
//
// Monthly patterns anchor to the start date's day of month; months with
// fewer days clamp to their last day, and the anchor is restored in
// subsequent months that are long enough (Jan 31 -> Feb 28 -> Mar 31).
func Expand(freq Frequency, start, end interval.Date) ([]interval.Date, error) {
	if _, err := ParseFrequency(string(freq)); err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, nil
	}

	dates := make([]interval.Date, 0, Count(freq, start, end))
	current := start
	step := 0
	for !current.After(end) {
		dates = append(dates, current)
		step++
		switch freq {
		case FrequencyDaily:
			current = current.AddDays(1)
		case FrequencyWeekly:
			current = current.AddDays(7)
		case FrequencyBiweekly:
			current = current.AddDays(14)
		case FrequencyMonthly:
			current = addMonths(start, step)
		}
	}

	return dates, nil
}

// Count computes how many occurrences Expand would produce without
// materializing them, so callers can enforce an occurrence cap up front.
func Count(freq Frequency, start, end interval.Date) int {
	if start.After(end) {
		return 0
	}

	switch freq {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly:
		days := int(end.Time(time.UTC).Sub(start.Time(time.UTC)).Hours() / 24)
		step := 1
		if freq == FrequencyWeekly {
			step = 7
		} else if freq == FrequencyBiweekly {
			step = 14
		}
		return days/step + 1
	case FrequencyMonthly:
		count := 0
		for step := 0; ; step++ {
			if addMonths(start, step).After(end) {
				return count
			}
			count++
		}
	default:
		return 0
	}
}

// addMonths advances the anchor date by n calendar months, clamping the day
// of month when the target month is too short.
func addMonths(anchor interval.Date, n int) interval.Date {
	monthIndex := int(anchor.Month) - 1 + n
	year := anchor.Year + monthIndex/12
	month := time.Month(monthIndex%12 + 1)

	day := anchor.Day
	if max := interval.DaysInMonth(year, month); day > max {
		day = max
	}

	return interval.Date{Year: year, Month: month, Day: day}
}
