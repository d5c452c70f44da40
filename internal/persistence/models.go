package persistence

import (
	"time"

	"github.com/example/room-reservation/internal/interval"
)

// Room represents a bookable room catalog entry.
type Room struct {
	ID        string
	Name      string
	Building  string
	Floor     int
	Capacity  int
	Amenities *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReservationStatus enumerates the reservation lifecycle states.
type ReservationStatus string

const (
	// StatusPending marks a freshly created, unconfirmed reservation.
	StatusPending ReservationStatus = "pending"
	// StatusConfirmed marks a reservation confirmed by its holder.
	StatusConfirmed ReservationStatus = "confirmed"
	// StatusCancelled marks a reservation that no longer occupies its slot.
	// Cancelled rows are retained for history and excluded from conflicts.
	StatusCancelled ReservationStatus = "cancelled"
)

// ActiveStatuses are the states that occupy a room's time slot.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

// Reservation represents one booking of a room for a dated time window.
type Reservation struct {
	ID               string
	RoomID           string
	UserID           string
	Date             interval.Date
	Span             interval.Span
	Purpose          string
	Attendees        int
	ContactEmail     string
	ContactPhone     *string
	Status           ReservationStatus
	PatternID        *string
	ConfirmationHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RecurringPattern represents a repeating booking template owning the
// reservations generated from it.
type RecurringPattern struct {
	ID           string
	RoomID       string
	UserID       string
	Frequency    string
	StartDate    interval.Date
	EndDate      interval.Date
	Span         interval.Span
	Purpose      string
	Attendees    int
	ContactEmail string
	ContactPhone *string
	IsActive     bool
	CreatedAt    time.Time
}

// ActivityEntry is one append-only audit record of a reservation or room event.
type ActivityEntry struct {
	ID            string
	UserID        string
	Action        string
	RoomID        *string
	ReservationID *string
	Description   string
	CreatedAt     time.Time
}

// RoomReservationCount pairs a room with its confirmed reservation count,
// used for popularity rankings.
type RoomReservationCount struct {
	RoomID   string
	Name     string
	Building string
	Capacity int
	Count    int
}
