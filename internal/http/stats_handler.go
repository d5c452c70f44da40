package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

type statsService interface {
	Dashboard(ctx context.Context) (application.DashboardStats, error)
	RecentActivity(ctx context.Context, limit int) ([]persistence.ActivityEntry, error)
}

type StatsHandler struct {
	service   statsService
	responder responder
	logger    *slog.Logger
}

func NewStatsHandler(service statsService, logger *slog.Logger) *StatsHandler {
	base := defaultLogger(logger)
	return &StatsHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StatsHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StatsHandler", operation, attrs...)
}

func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Dashboard")

	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "dashboard stats failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDashboardDTO(stats))
}

func (h *StatsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"limit": "must be an integer"},
			})
			return
		}
		limit = parsed
	}

	logger := h.log(r.Context(), "Activity", "limit", limit)

	entries, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "activity list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]activityDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, toActivityDTO(entry))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, activityResponse{Activity: dtos})
}

type dashboardDTO struct {
	TotalRooms        int              `json:"total_rooms"`
	ActiveRooms       int              `json:"active_rooms"`
	ReservationsToday int              `json:"reservations_today"`
	NextSevenDays     int              `json:"next_seven_days"`
	PendingCount      int              `json:"pending_count"`
	ConfirmedCount    int              `json:"confirmed_count"`
	AverageAttendees  float64          `json:"average_attendees"`
	PopularRooms      []popularRoomDTO `json:"popular_rooms"`
}

type popularRoomDTO struct {
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Building string `json:"building"`
	Capacity int    `json:"capacity"`
	Count    int    `json:"reservation_count"`
}

func toDashboardDTO(stats application.DashboardStats) dashboardDTO {
	popular := make([]popularRoomDTO, 0, len(stats.PopularRooms))
	for _, room := range stats.PopularRooms {
		popular = append(popular, popularRoomDTO{
			RoomID:   room.RoomID,
			Name:     room.Name,
			Building: room.Building,
			Capacity: room.Capacity,
			Count:    room.Count,
		})
	}
	return dashboardDTO{
		TotalRooms:        stats.TotalRooms,
		ActiveRooms:       stats.ActiveRooms,
		ReservationsToday: stats.ReservationsToday,
		NextSevenDays:     stats.NextSevenDays,
		PendingCount:      stats.PendingCount,
		ConfirmedCount:    stats.ConfirmedCount,
		AverageAttendees:  stats.AverageAttendees,
		PopularRooms:      popular,
	}
}

type activityResponse struct {
	Activity []activityDTO `json:"activity"`
}

type activityDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Action        string  `json:"action"`
	RoomID        *string `json:"room_id,omitempty"`
	ReservationID *string `json:"reservation_id,omitempty"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

func toActivityDTO(entry persistence.ActivityEntry) activityDTO {
	return activityDTO{
		ID:            entry.ID,
		UserID:        entry.UserID,
		Action:        entry.Action,
		RoomID:        entry.RoomID,
		ReservationID: entry.ReservationID,
		Description:   entry.Description,
		CreatedAt:     entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
