package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

var (
	roomCounter        uint64
	reservationCounter uint64
	patternCounter     uint64
)

var referenceTime = time.Date(2025, time.October, 8, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the calendar date of ReferenceTime.
func ReferenceDate() interval.Date {
	return interval.DateOf(referenceTime)
}

// MustDate parses a "YYYY-MM-DD" string, panicking on malformed fixture data.
func MustDate(value string) interval.Date {
	d, err := interval.ParseDate(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: bad date %q: %v", value, err))
	}
	return d
}

// Span builds a span from whole hours for readable fixtures.
func Span(startHour, endHour int) interval.Span {
	return interval.Span{
		Start: interval.TimeOfDay(startHour * 60),
		End:   interval.TimeOfDay(endHour * 60),
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures the generated room fixture.
type RoomOption func(*persistence.Room)

// NewRoom returns a deterministic room record with optional overrides.
func NewRoom(opts ...RoomOption) persistence.Room {
	idx := atomic.AddUint64(&roomCounter, 1)
	room := persistence.Room{
		ID:        fmt.Sprintf("room-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		Building:  "HQ",
		Floor:     int(1 + idx%5),
		Capacity:  int(4 + idx%8),
		IsActive:  true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&room)
	}
	return room
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(r *persistence.Room) { r.ID = id }
}

// WithRoomCapacity overrides the generated capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(r *persistence.Room) { r.Capacity = capacity }
}

// WithRoomInactive marks the room deactivated.
func WithRoomInactive() RoomOption {
	return func(r *persistence.Room) { r.IsActive = false }
}

// -------------------------- Reservation fixtures -------------------------

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*persistence.Reservation)

// NewReservation returns a deterministic reservation record with optional
// overrides. The default is a confirmed one-hour booking on the reference
// date.
func NewReservation(opts ...ReservationOption) persistence.Reservation {
	idx := atomic.AddUint64(&reservationCounter, 1)
	reservation := persistence.Reservation{
		ID:           fmt.Sprintf("res-%03d", idx),
		RoomID:       "room-001",
		UserID:       "user-001",
		Date:         ReferenceDate(),
		Span:         Span(10, 11),
		Purpose:      fmt.Sprintf("Meeting %03d", idx),
		Attendees:    4,
		ContactEmail: "user-001@example.com",
		Status:       persistence.StatusConfirmed,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&reservation)
	}
	return reservation
}

// WithReservationID overrides the reservation ID.
func WithReservationID(id string) ReservationOption {
	return func(r *persistence.Reservation) { r.ID = id }
}

// WithReservationRoom sets the target room.
func WithReservationRoom(roomID string) ReservationOption {
	return func(r *persistence.Reservation) { r.RoomID = roomID }
}

// WithReservationUser sets the reservation holder.
func WithReservationUser(userID string) ReservationOption {
	return func(r *persistence.Reservation) { r.UserID = userID }
}

// WithReservationDate sets the reservation date.
func WithReservationDate(date interval.Date) ReservationOption {
	return func(r *persistence.Reservation) { r.Date = date }
}

// WithReservationSpan sets the reserved time window.
func WithReservationSpan(span interval.Span) ReservationOption {
	return func(r *persistence.Reservation) { r.Span = span }
}

// WithReservationStatus sets the lifecycle status.
func WithReservationStatus(status persistence.ReservationStatus) ReservationOption {
	return func(r *persistence.Reservation) { r.Status = status }
}

// WithReservationCreatedAt sets the created timestamp.
func WithReservationCreatedAt(t time.Time) ReservationOption {
	return func(r *persistence.Reservation) { r.CreatedAt = t }
}

// ---------------------------- Pattern fixtures ---------------------------

// PatternOption configures the generated pattern fixture.
type PatternOption func(*persistence.RecurringPattern)

// NewPattern returns a deterministic recurring pattern with optional overrides.
func NewPattern(opts ...PatternOption) persistence.RecurringPattern {
	idx := atomic.AddUint64(&patternCounter, 1)
	pattern := persistence.RecurringPattern{
		ID:           fmt.Sprintf("pattern-%03d", idx),
		RoomID:       "room-001",
		UserID:       "user-001",
		Frequency:    "weekly",
		StartDate:    ReferenceDate(),
		EndDate:      ReferenceDate().AddDays(21),
		Span:         Span(10, 11),
		Purpose:      fmt.Sprintf("Recurring %03d", idx),
		Attendees:    4,
		ContactEmail: "user-001@example.com",
		IsActive:     true,
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&pattern)
	}
	return pattern
}

// WithPatternFrequency sets the repetition frequency.
func WithPatternFrequency(frequency string) PatternOption {
	return func(p *persistence.RecurringPattern) { p.Frequency = frequency }
}

// WithPatternDates sets the inclusive date range.
func WithPatternDates(start, end interval.Date) PatternOption {
	return func(p *persistence.RecurringPattern) {
		p.StartDate = start
		p.EndDate = end
	}
}
