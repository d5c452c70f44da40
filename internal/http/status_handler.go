package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/room-reservation/internal/application"
)

type occupancyService interface {
	RoomStatus(ctx context.Context, roomID string) (application.RoomStatus, error)
	OverviewStatus(ctx context.Context) ([]application.RoomStatus, error)
}

// StatusHandler serves the momentary occupancy answers for single rooms and
// the whole catalog.
type StatusHandler struct {
	service   occupancyService
	responder responder
	logger    *slog.Logger
}

func NewStatusHandler(service occupancyService, logger *slog.Logger) *StatusHandler {
	base := defaultLogger(logger)
	return &StatusHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StatusHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StatusHandler", operation, attrs...)
}

func (h *StatusHandler) Room(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}

	logger := h.log(r.Context(), "Room", "room_id", roomID)

	status, err := h.service.RoomStatus(r.Context(), roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "room status failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRoomStatusDTO(status))
}

func (h *StatusHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Overview")

	statuses, err := h.service.OverviewStatus(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "overview status failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]roomStatusDTO, 0, len(statuses))
	for _, status := range statuses {
		dtos = append(dtos, toRoomStatusDTO(status))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, overviewResponse{Rooms: dtos})
}

type overviewResponse struct {
	Rooms []roomStatusDTO `json:"rooms"`
}

type roomStatusDTO struct {
	RoomID            string           `json:"room_id"`
	RoomName          string           `json:"room_name"`
	Status            string           `json:"status"`
	Current           *reservationDTO  `json:"current,omitempty"`
	MinutesUntilFree  int              `json:"minutes_until_free"`
	NextAvailable     string           `json:"next_available,omitempty"`
	Upcoming          []reservationDTO `json:"upcoming,omitempty"`
	ReservationsToday int              `json:"reservations_today"`
}

func toRoomStatusDTO(status application.RoomStatus) roomStatusDTO {
	dto := roomStatusDTO{
		RoomID:            status.RoomID,
		RoomName:          status.RoomName,
		Status:            string(status.Status),
		MinutesUntilFree:  status.MinutesUntilFree,
		NextAvailable:     status.NextAvailable,
		Upcoming:          toReservationDTOs(status.Upcoming),
		ReservationsToday: status.ReservationsToday,
	}
	if status.Current != nil {
		current := toReservationDTO(*status.Current)
		dto.Current = &current
	}
	return dto
}
