// Package fanout delivers reservation change events to websocket
// subscribers. A single dispatch goroutine drains the publish queue, so
// events for the same room reach every subscriber in publish order.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/room-reservation/internal/application"
)

const (
	defaultQueueSize      = 256
	defaultSubscriberSize = 16
)

// Subscriber is one registered event consumer. Events arrive on Events until
// the subscriber is unsubscribed, the hub shuts down, or the subscriber falls
// too far behind and is dropped.
type Subscriber struct {
	roomID   string
	overview bool
	ch       chan application.Event

	closeOnce sync.Once
}

// Events returns the subscriber's delivery channel. The channel closes when
// the subscription ends; a closed channel is the signal to disconnect.
func (s *Subscriber) Events() <-chan application.Event {
	return s.ch
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub fans reservation events out to room and overview subscribers.
type Hub struct {
	queue      chan application.Event
	bufferSize int
	logger     *slog.Logger

	mu       sync.Mutex
	rooms    map[string]map[*Subscriber]struct{}
	overview map[*Subscriber]struct{}
	closed   bool
}

// HubConfig tunes hub buffering.
type HubConfig struct {
	// QueueSize bounds the publish queue shared by all producers.
	QueueSize int
	// SubscriberBuffer bounds each subscriber's delivery channel. A
	// subscriber whose buffer fills is dropped rather than allowed to
	// stall delivery to everyone else.
	SubscriberBuffer int
	Logger           *slog.Logger
}

// NewHub constructs a hub. Run must be started for events to flow.
func NewHub(cfg HubConfig) *Hub {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	bufferSize := cfg.SubscriberBuffer
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queue:      make(chan application.Event, queueSize),
		bufferSize: bufferSize,
		logger:     logger,
		rooms:      make(map[string]map[*Subscriber]struct{}),
		overview:   make(map[*Subscriber]struct{}),
	}
}

// Publish enqueues an event for delivery. It never blocks the caller; when
// the queue is full the event is dropped and logged, and clients resync from
// their next snapshot.
func (h *Hub) Publish(event application.Event) {
	select {
	case h.queue <- event:
	default:
		h.logger.Warn("fanout queue full, dropping event",
			"event_type", string(event.Type),
			"room_id", event.RoomID,
		)
	}
}

// Run dispatches events until ctx is cancelled, then closes all subscribers.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case event := <-h.queue:
			h.dispatch(event)
		}
	}
}

// SubscribeRoom registers a consumer for one room's events.
func (h *Hub) SubscribeRoom(roomID string) *Subscriber {
	sub := &Subscriber{roomID: roomID, ch: make(chan application.Event, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.rooms[roomID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// SubscribeOverview registers a consumer for every room's events.
func (h *Hub) SubscribeOverview() *Subscriber {
	sub := &Subscriber{overview: true, ch: make(chan application.Event, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.overview[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) dispatch(event application.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[event.RoomID] {
		h.deliverLocked(sub, event)
	}
	for sub := range h.overview {
		h.deliverLocked(sub, event)
	}
}

// deliverLocked sends without blocking. A subscriber that cannot keep up is
// removed and closed so one slow websocket cannot back up the hub.
func (h *Hub) deliverLocked(sub *Subscriber, event application.Event) {
	select {
	case sub.ch <- event:
	default:
		h.logger.Warn("subscriber too slow, dropping",
			"room_id", sub.roomID,
			"overview", sub.overview,
		)
		h.removeLocked(sub)
		sub.close()
	}
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if sub.overview {
		delete(h.overview, sub)
		return
	}
	if set, ok := h.rooms[sub.roomID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for roomID, set := range h.rooms {
		for sub := range set {
			sub.close()
		}
		delete(h.rooms, roomID)
	}
	for sub := range h.overview {
		sub.close()
		delete(h.overview, sub)
	}
}
