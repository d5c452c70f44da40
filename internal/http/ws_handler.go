package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/room-reservation/internal/fanout"
)

const wsWriteTimeout = 5 * time.Second

// WSHandler streams live room status updates over websocket connections.
// Every connection starts with a snapshot; subsequent frames carry the
// recomputed status of whichever room changed. Periodic heartbeats restate
// the current status, so a client that missed an update converges within one
// heartbeat interval.
type WSHandler struct {
	hub               *fanout.Hub
	occupancy         occupancyService
	roomHeartbeat     time.Duration
	overviewHeartbeat time.Duration
	upgrader          websocket.Upgrader
	logger            *slog.Logger
}

type WSConfig struct {
	Hub       *fanout.Hub
	Occupancy occupancyService
	// RoomHeartbeat is the keepalive interval for single room streams.
	RoomHeartbeat time.Duration
	// OverviewHeartbeat is the keepalive interval for the overview stream.
	OverviewHeartbeat time.Duration
	Logger            *slog.Logger
}

func NewWSHandler(cfg WSConfig) *WSHandler {
	roomHeartbeat := cfg.RoomHeartbeat
	if roomHeartbeat <= 0 {
		roomHeartbeat = 30 * time.Second
	}
	overviewHeartbeat := cfg.OverviewHeartbeat
	if overviewHeartbeat <= 0 {
		overviewHeartbeat = 60 * time.Second
	}
	return &WSHandler{
		hub:               cfg.Hub,
		occupancy:         cfg.Occupancy,
		roomHeartbeat:     roomHeartbeat,
		overviewHeartbeat: overviewHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the gateway in front of this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: defaultLogger(cfg.Logger),
	}
}

func (h *WSHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "WSHandler", operation, attrs...)
}

type wsMessage struct {
	Type  string          `json:"type"`
	Time  string          `json:"time,omitempty"`
	Room  *roomStatusDTO  `json:"room,omitempty"`
	Rooms []roomStatusDTO `json:"rooms,omitempty"`
}

// Room streams status updates for a single room.
func (h *WSHandler) Room(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil || h.occupancy == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		http.Error(w, errInvalidRoomID.Error(), http.StatusBadRequest)
		return
	}

	logger := h.log(r.Context(), "Room", "room_id", roomID)

	// Reject unknown rooms before committing to the upgrade.
	status, err := h.occupancy.RoomStatus(r.Context(), roomID)
	if err != nil {
		newResponder(h.logger).handleServiceError(r.Context(), w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.SubscribeRoom(roomID)
	defer h.hub.Unsubscribe(sub)

	snapshot := toRoomStatusDTO(status)
	if err := h.write(conn, wsMessage{Type: "snapshot", Room: &snapshot}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardReads(conn, cancel)

	ticker := time.NewTicker(h.roomHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok {
				logger.InfoContext(ctx, "subscriber dropped, closing connection")
				return
			}
			status, err := h.occupancy.RoomStatus(ctx, roomID)
			if err != nil {
				logger.ErrorContext(ctx, "status refresh failed", "error", err)
				continue
			}
			dto := toRoomStatusDTO(status)
			if err := h.write(conn, wsMessage{Type: "update", Room: &dto}); err != nil {
				return
			}
		case now := <-ticker.C:
			status, err := h.occupancy.RoomStatus(ctx, roomID)
			if err != nil {
				logger.ErrorContext(ctx, "heartbeat status refresh failed", "error", err)
				continue
			}
			dto := toRoomStatusDTO(status)
			if err := h.write(conn, wsMessage{Type: "heartbeat", Time: now.UTC().Format(time.RFC3339), Room: &dto}); err != nil {
				return
			}
		}
	}
}

// Overview streams status updates for every active room.
func (h *WSHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil || h.occupancy == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Overview")

	statuses, err := h.occupancy.OverviewStatus(r.Context())
	if err != nil {
		newResponder(h.logger).handleServiceError(r.Context(), w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.SubscribeOverview()
	defer h.hub.Unsubscribe(sub)

	snapshot := make([]roomStatusDTO, 0, len(statuses))
	for _, status := range statuses {
		snapshot = append(snapshot, toRoomStatusDTO(status))
	}
	if err := h.write(conn, wsMessage{Type: "snapshot", Rooms: snapshot}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardReads(conn, cancel)

	ticker := time.NewTicker(h.overviewHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				logger.InfoContext(ctx, "subscriber dropped, closing connection")
				return
			}
			status, err := h.occupancy.RoomStatus(ctx, event.RoomID)
			if err != nil {
				logger.ErrorContext(ctx, "status refresh failed", "room_id", event.RoomID, "error", err)
				continue
			}
			dto := toRoomStatusDTO(status)
			if err := h.write(conn, wsMessage{Type: "update", Room: &dto}); err != nil {
				return
			}
		case now := <-ticker.C:
			statuses, err := h.occupancy.OverviewStatus(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "heartbeat status refresh failed", "error", err)
				continue
			}
			rooms := make([]roomStatusDTO, 0, len(statuses))
			for _, status := range statuses {
				rooms = append(rooms, toRoomStatusDTO(status))
			}
			if err := h.write(conn, wsMessage{Type: "heartbeat", Time: now.UTC().Format(time.RFC3339), Rooms: rooms}); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, message wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(message)
}

// discardReads drains client frames so control messages are processed and
// cancels the stream once the peer goes away.
func discardReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
