package persistence

import (
	"context"
	"time"

	"github.com/example/room-reservation/internal/interval"
)

// RoomRepository exposes catalog operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context, activeOnly bool) ([]Room, error)
}

// ReservationFilter narrows reservation queries. Zero fields are ignored.
type ReservationFilter struct {
	RoomID   string
	UserID   string
	Statuses []ReservationStatus
	FromDate *interval.Date
	ToDate   *interval.Date
}

// ReservationRepository stores reservations and answers the day-level
// queries the scheduling core is built on.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus, updatedAt time.Time) error
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)

	// ListForRoomDate returns a room's reservations in the given states on
	// one date, ordered by start time ascending. This is the overlap-query
	// primitive: cardinality is tens of rows per room per day, so a linear
	// scan over the result is acceptable; the (room, date, start) index
	// keeps retrieval at O(log n + k).
	ListForRoomDate(ctx context.Context, roomID string, date interval.Date, statuses []ReservationStatus) ([]Reservation, error)

	// ListPendingCreatedBefore returns pending reservations created at or
	// before the cutoff, for the auto-cancel job.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]Reservation, error)

	CountReservations(ctx context.Context, filter ReservationFilter) (int, error)
	PopularRooms(ctx context.Context, limit int) ([]RoomReservationCount, error)
	AverageAttendees(ctx context.Context, status ReservationStatus) (float64, error)
}

// PatternRepository stores recurring reservation patterns.
type PatternRepository interface {
	CreatePattern(ctx context.Context, pattern RecurringPattern) error
	GetPattern(ctx context.Context, id string) (RecurringPattern, error)
	ListPatternsForUser(ctx context.Context, userID string) ([]RecurringPattern, error)
}

// ActivityRepository stores the append-only activity feed.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListRecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
	DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
