package application

import (
	"time"

	"github.com/example/room-reservation/internal/interval"
)

// EventType labels a reservation change published to subscribers.
type EventType string

const (
	// EventReservationCreated fires when a reservation is created.
	EventReservationCreated EventType = "reservation_created"
	// EventReservationConfirmed fires when a pending reservation is confirmed.
	EventReservationConfirmed EventType = "reservation_confirmed"
	// EventReservationCancelled fires when a reservation is cancelled.
	EventReservationCancelled EventType = "reservation_cancelled"
	// EventRoomUpdated fires when a room's catalog entry changes.
	EventRoomUpdated EventType = "room_updated"
)

// Event describes one change to broadcast. Events for the same room are
// published in the order the mutations committed.
type Event struct {
	Type          EventType
	RoomID        string
	ReservationID string
	Date          interval.Date
	OccurredAt    time.Time
}

// EventSink receives reservation change events. Publish must not block the
// calling mutation; implementations buffer and deliver asynchronously.
type EventSink interface {
	Publish(event Event)
}
