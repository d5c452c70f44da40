package application

import (
	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// Principal represents the authenticated user invoking a service method.
// Authentication happens upstream; the gateway forwards the identity.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name      string
	Building  string
	Floor     int
	Capacity  int
	Amenities *string
	IsActive  *bool
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	Principal Principal
	RoomID    string
	Input     RoomInput
}

// ReservationInput captures caller provided reservation fields.
type ReservationInput struct {
	RoomID       string
	Date         interval.Date
	Span         interval.Span
	Purpose      string
	Attendees    int
	ContactEmail string
	ContactPhone *string
}

// CreateReservationParams wraps the data required to create a reservation.
type CreateReservationParams struct {
	Principal Principal
	Input     ReservationInput
}

// CreateReservationResult pairs the persisted reservation with the one-time
// confirmation token. The token is returned exactly once; only its hash is
// stored.
type CreateReservationResult struct {
	Reservation       persistence.Reservation
	ConfirmationToken string
}

// ConflictDetail identifies one existing reservation blocking a requested slot.
type ConflictDetail struct {
	ReservationID string
	Span          interval.Span
	Status        persistence.ReservationStatus
}

// RecurringInput captures caller provided recurring pattern fields.
type RecurringInput struct {
	RoomID       string
	Frequency    string
	StartDate    interval.Date
	EndDate      interval.Date
	Span         interval.Span
	Purpose      string
	Attendees    int
	ContactEmail string
	ContactPhone *string
}

// CreateRecurringParams wraps the data required to materialize a recurring pattern.
type CreateRecurringParams struct {
	Principal Principal
	Input     RecurringInput
}

// DateConflict reports that one expanded occurrence date could not be booked.
type DateConflict struct {
	Date   interval.Date
	Reason string
}

// RecurringResult summarizes the outcome of materializing a pattern. Dates
// that conflicted are skipped, not failed; CreatedDates and Conflicts
// partition the expansion.
type RecurringResult struct {
	PatternID           string
	ReservationsCreated int
	CreatedDates        []interval.Date
	Conflicts           []DateConflict
}

// PreviewDate describes one expanded occurrence in a recurring preview.
type PreviewDate struct {
	Date        interval.Date
	DayOfWeek   string
	HasConflict bool
}

// PreviewResult summarizes a dry-run expansion of a recurring pattern.
type PreviewResult struct {
	TotalDates int
	Conflicts  int
	Available  int
	Dates      []PreviewDate
}

// RoomStatusKind enumerates the momentary occupancy states of a room.
type RoomStatusKind string

const (
	// StatusFree means no active reservation covers the probe instant.
	StatusFree RoomStatusKind = "free"
	// StatusOccupied means an active reservation covers the probe instant.
	StatusOccupied RoomStatusKind = "occupied"
	// StatusEndingSoon means the covering reservation ends within the
	// ending-soon threshold.
	StatusEndingSoon RoomStatusKind = "ending_soon"
)

// RoomStatus is the momentary occupancy answer for one room.
type RoomStatus struct {
	RoomID   string
	RoomName string
	Status   RoomStatusKind
	// Current is the reservation covering the probe instant, if any.
	Current *persistence.Reservation
	// MinutesUntilFree is the whole minutes remaining in the current
	// reservation, truncated. Zero when the room is free.
	MinutesUntilFree int
	// NextAvailable is the "HH:MM" the room frees up when occupied, or the
	// start of the next booking when free. Empty when nothing else is
	// scheduled today.
	NextAvailable string
	// Upcoming lists the rest of today's reservations starting after the
	// probe instant, ordered by start time.
	Upcoming []persistence.Reservation
	// ReservationsToday counts the date's active reservations, already
	// finished ones included.
	ReservationsToday int
}

// DashboardStats aggregates reservation figures for the overview dashboard.
type DashboardStats struct {
	TotalRooms        int
	ActiveRooms       int
	ReservationsToday int
	// NextSevenDays counts active reservations dated within the coming week,
	// today included.
	NextSevenDays    int
	PendingCount     int
	ConfirmedCount   int
	AverageAttendees float64
	PopularRooms     []persistence.RoomReservationCount
}
