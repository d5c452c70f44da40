package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

type reservationService interface {
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (application.CreateReservationResult, error)
	ConfirmReservation(ctx context.Context, principal application.Principal, reservationID, token string) (persistence.Reservation, error)
	CancelReservation(ctx context.Context, principal application.Principal, reservationID string) (persistence.Reservation, error)
	GetReservation(ctx context.Context, principal application.Principal, reservationID string) (persistence.Reservation, error)
	ListUserReservations(ctx context.Context, principal application.Principal, userID string, from, to *interval.Date) ([]persistence.Reservation, error)
	DaySchedule(ctx context.Context, roomID string, date interval.Date) ([]persistence.Reservation, error)
	CheckSlot(ctx context.Context, roomID string, date interval.Date, span interval.Span) ([]application.ConflictDetail, error)
}

type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if vErr := validateRequest(req); vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}
	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "room_id", input.RoomID)

	result, err := h.service.CreateReservation(r.Context(), application.CreateReservationParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("reservation_id", result.Reservation.ID).InfoContext(r.Context(), "reservation created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createReservationResponse{
		Reservation:       toReservationDTO(result.Reservation),
		ConfirmationToken: result.ConfirmationToken,
	})
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID, ok := ReservationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(reservationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Get", "principal_id", principal.UserID, "reservation_id", reservationID)

	reservation, err := h.service.GetReservation(r.Context(), principal, reservationID)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	userID := strings.TrimSpace(query.Get("user_id"))
	if userID == "" {
		userID = principal.UserID
	}
	from, err := optionalDate(query, "from")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	to, err := optionalDate(query, "to")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "List", "principal_id", principal.UserID, "user_id", userID)

	reservations, svcErr := h.service.ListUserReservations(r.Context(), principal, userID, from, to)
	if svcErr != nil {
		logger.ErrorContext(r.Context(), "reservation list failed", "error", svcErr, "error_kind", application.ErrorKind(svcErr))
		h.responder.handleServiceError(r.Context(), w, svcErr)
		return
	}

	logger.With("result_count", len(reservations)).InfoContext(r.Context(), "reservations listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listReservationsResponse{Reservations: toReservationDTOs(reservations)})
}

func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID, ok := ReservationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(reservationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResID)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if vErr := validateRequest(req); vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Confirm", "principal_id", principal.UserID, "reservation_id", reservationID)

	reservation, err := h.service.ConfirmReservation(r.Context(), principal, reservationID, req.Token)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation confirmation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation confirmed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	reservationID, ok := ReservationIDFromContext(r.Context())
	if !ok || strings.TrimSpace(reservationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "reservation_id", reservationID)

	reservation, err := h.service.CancelReservation(r.Context(), principal, reservationID)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(reservation)})
}

// Schedule serves a room's reservations for one date, defaulting to today.
func (h *ReservationHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := RoomIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return
	}

	date, err := requiredDate(r.URL.Query(), "date")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Schedule", "room_id", roomID, "date", date.String())

	reservations, svcErr := h.service.DaySchedule(r.Context(), roomID, date)
	if svcErr != nil {
		logger.ErrorContext(r.Context(), "day schedule failed", "error", svcErr, "error_kind", application.ErrorKind(svcErr))
		h.responder.handleServiceError(r.Context(), w, svcErr)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{
		Date:         date.String(),
		Reservations: toReservationDTOs(reservations),
	})
}

// CheckAvailability answers whether a slot is free and lists any blockers.
func (h *ReservationHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	roomID := strings.TrimSpace(query.Get("room_id"))
	if roomID == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"room_id": "is required"},
		})
		return
	}
	date, err := requiredDate(query, "date")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	span, spanErr := parseSpan(query.Get("start_time"), query.Get("end_time"))
	if spanErr != nil {
		h.responder.handleServiceError(r.Context(), w, spanErr)
		return
	}

	logger := h.log(r.Context(), "CheckAvailability", "room_id", roomID, "date", date.String())

	conflicts, svcErr := h.service.CheckSlot(r.Context(), roomID, date, span)
	if svcErr != nil {
		logger.ErrorContext(r.Context(), "availability check failed", "error", svcErr, "error_kind", application.ErrorKind(svcErr))
		h.responder.handleServiceError(r.Context(), w, svcErr)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{
		Available: len(conflicts) == 0,
		Conflicts: toConflictDTOs(conflicts),
	})
}

func optionalDate(query url.Values, name string) (*interval.Date, error) {
	value := strings.TrimSpace(query.Get(name))
	if value == "" {
		return nil, nil
	}
	date, err := interval.ParseDate(value)
	if err != nil {
		return nil, &application.ValidationError{
			FieldErrors: map[string]string{name: "must be a valid YYYY-MM-DD date"},
		}
	}
	return &date, nil
}

func requiredDate(query url.Values, name string) (interval.Date, error) {
	date, err := optionalDate(query, name)
	if err != nil {
		return interval.Date{}, err
	}
	if date == nil {
		return interval.Date{}, &application.ValidationError{
			FieldErrors: map[string]string{name: "is required"},
		}
	}
	return *date, nil
}

func parseSpan(startValue, endValue string) (interval.Span, *application.ValidationError) {
	fields := make(map[string]string)
	start, err := interval.ParseTimeOfDay(strings.TrimSpace(startValue))
	if err != nil {
		fields["start_time"] = "must be a valid HH:MM time"
	}
	end, err := interval.ParseTimeOfDay(strings.TrimSpace(endValue))
	if err != nil {
		fields["end_time"] = "must be a valid HH:MM time"
	}
	if len(fields) > 0 {
		return interval.Span{}, &application.ValidationError{FieldErrors: fields}
	}
	span, err := interval.NewSpan(start, end)
	if err != nil {
		return interval.Span{}, &application.ValidationError{
			FieldErrors: map[string]string{"end_time": "must be after start_time"},
		}
	}
	return span, nil
}

type reservationRequest struct {
	RoomID       string  `json:"room_id" validate:"required"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	Purpose      string  `json:"purpose" validate:"required"`
	Attendees    int     `json:"attendees" validate:"gt=0"`
	ContactEmail string  `json:"contact_email" validate:"required,email"`
	ContactPhone *string `json:"contact_phone"`
}

func (r reservationRequest) toInput() (application.ReservationInput, *application.ValidationError) {
	date, err := interval.ParseDate(r.Date)
	if err != nil {
		return application.ReservationInput{}, &application.ValidationError{
			FieldErrors: map[string]string{"date": "must be a valid YYYY-MM-DD date"},
		}
	}
	span, vErr := parseSpan(r.StartTime, r.EndTime)
	if vErr != nil {
		return application.ReservationInput{}, vErr
	}

	var phone *string
	if r.ContactPhone != nil {
		trimmed := strings.TrimSpace(*r.ContactPhone)
		phone = &trimmed
	}
	return application.ReservationInput{
		RoomID:       strings.TrimSpace(r.RoomID),
		Date:         date,
		Span:         span,
		Purpose:      strings.TrimSpace(r.Purpose),
		Attendees:    r.Attendees,
		ContactEmail: strings.TrimSpace(r.ContactEmail),
		ContactPhone: phone,
	}, nil
}

type confirmRequest struct {
	Token string `json:"token" validate:"required"`
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}

type createReservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
	// ConfirmationToken is surfaced exactly once; only its hash is stored.
	ConfirmationToken string `json:"confirmation_token"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type scheduleResponse struct {
	Date         string           `json:"date"`
	Reservations []reservationDTO `json:"reservations"`
}

type availabilityResponse struct {
	Available bool          `json:"available"`
	Conflicts []conflictDTO `json:"conflicts,omitempty"`
}

type reservationDTO struct {
	ID           string  `json:"id"`
	RoomID       string  `json:"room_id"`
	UserID       string  `json:"user_id"`
	Date         string  `json:"date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Purpose      string  `json:"purpose"`
	Attendees    int     `json:"attendees"`
	ContactEmail string  `json:"contact_email"`
	ContactPhone *string `json:"contact_phone,omitempty"`
	Status       string  `json:"status"`
	PatternID    *string `json:"pattern_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toReservationDTO(reservation persistence.Reservation) reservationDTO {
	return reservationDTO{
		ID:           reservation.ID,
		RoomID:       reservation.RoomID,
		UserID:       reservation.UserID,
		Date:         reservation.Date.String(),
		StartTime:    reservation.Span.Start.String(),
		EndTime:      reservation.Span.End.String(),
		Purpose:      reservation.Purpose,
		Attendees:    reservation.Attendees,
		ContactEmail: reservation.ContactEmail,
		ContactPhone: reservation.ContactPhone,
		Status:       string(reservation.Status),
		PatternID:    reservation.PatternID,
		CreatedAt:    reservation.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    reservation.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toReservationDTOs(reservations []persistence.Reservation) []reservationDTO {
	dtos := make([]reservationDTO, 0, len(reservations))
	for _, reservation := range reservations {
		dtos = append(dtos, toReservationDTO(reservation))
	}
	return dtos
}
