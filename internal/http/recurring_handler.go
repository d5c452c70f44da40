package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

type recurringService interface {
	CreateRecurring(ctx context.Context, params application.CreateRecurringParams) (application.RecurringResult, error)
	PreviewRecurring(ctx context.Context, params application.CreateRecurringParams) (application.PreviewResult, error)
	GetPattern(ctx context.Context, principal application.Principal, patternID string) (persistence.RecurringPattern, error)
	ListPatterns(ctx context.Context, principal application.Principal) ([]persistence.RecurringPattern, error)
}

type RecurringHandler struct {
	service   recurringService
	responder responder
	logger    *slog.Logger
}

func NewRecurringHandler(service recurringService, logger *slog.Logger) *RecurringHandler {
	base := defaultLogger(logger)
	return &RecurringHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RecurringHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RecurringHandler", operation, attrs...)
}

func (h *RecurringHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params, ok := h.decodeParams(w, r, principal, "Create")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "room_id", params.Input.RoomID)

	result, err := h.service.CreateRecurring(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "recurring creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("pattern_id", result.PatternID, "created", result.ReservationsCreated).InfoContext(r.Context(), "recurring pattern created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRecurringResultDTO(result))
}

func (h *RecurringHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params, ok := h.decodeParams(w, r, principal, "Preview")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Preview", "principal_id", principal.UserID, "room_id", params.Input.RoomID)

	result, err := h.service.PreviewRecurring(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "recurring preview failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPreviewDTO(result))
}

func (h *RecurringHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	patternID, ok := PatternIDFromContext(r.Context())
	if !ok || strings.TrimSpace(patternID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPatternID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Get", "principal_id", principal.UserID, "pattern_id", patternID)

	pattern, err := h.service.GetPattern(r.Context(), principal, patternID)
	if err != nil {
		logger.ErrorContext(r.Context(), "pattern lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, patternResponse{Pattern: toPatternDTO(pattern)})
}

func (h *RecurringHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID)

	patterns, err := h.service.ListPatterns(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "pattern list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(patterns)).InfoContext(r.Context(), "patterns listed")
	dtos := make([]patternDTO, 0, len(patterns))
	for _, pattern := range patterns {
		dtos = append(dtos, toPatternDTO(pattern))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPatternsResponse{Patterns: dtos})
}

func (h *RecurringHandler) decodeParams(w http.ResponseWriter, r *http.Request, principal application.Principal, operation string) (application.CreateRecurringParams, bool) {
	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode recurring request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.CreateRecurringParams{}, false
	}
	if vErr := validateRequest(req); vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return application.CreateRecurringParams{}, false
	}
	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return application.CreateRecurringParams{}, false
	}
	return application.CreateRecurringParams{Principal: principal, Input: input}, true
}

type recurringRequest struct {
	RoomID       string  `json:"room_id" validate:"required"`
	Frequency    string  `json:"frequency" validate:"required"`
	StartDate    string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	Purpose      string  `json:"purpose" validate:"required"`
	Attendees    int     `json:"attendees" validate:"gt=0"`
	ContactEmail string  `json:"contact_email" validate:"required,email"`
	ContactPhone *string `json:"contact_phone"`
}

func (r recurringRequest) toInput() (application.RecurringInput, *application.ValidationError) {
	fields := make(map[string]string)
	startDate, err := interval.ParseDate(r.StartDate)
	if err != nil {
		fields["start_date"] = "must be a valid YYYY-MM-DD date"
	}
	endDate, err := interval.ParseDate(r.EndDate)
	if err != nil {
		fields["end_date"] = "must be a valid YYYY-MM-DD date"
	}
	if len(fields) > 0 {
		return application.RecurringInput{}, &application.ValidationError{FieldErrors: fields}
	}
	span, vErr := parseSpan(r.StartTime, r.EndTime)
	if vErr != nil {
		return application.RecurringInput{}, vErr
	}

	var phone *string
	if r.ContactPhone != nil {
		trimmed := strings.TrimSpace(*r.ContactPhone)
		phone = &trimmed
	}
	return application.RecurringInput{
		RoomID:       strings.TrimSpace(r.RoomID),
		Frequency:    strings.TrimSpace(r.Frequency),
		StartDate:    startDate,
		EndDate:      endDate,
		Span:         span,
		Purpose:      strings.TrimSpace(r.Purpose),
		Attendees:    r.Attendees,
		ContactEmail: strings.TrimSpace(r.ContactEmail),
		ContactPhone: phone,
	}, nil
}

type recurringResultDTO struct {
	PatternID           string            `json:"pattern_id"`
	ReservationsCreated int               `json:"reservations_created"`
	CreatedDates        []string          `json:"created_dates"`
	Conflicts           []dateConflictDTO `json:"conflicts,omitempty"`
}

type dateConflictDTO struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func toRecurringResultDTO(result application.RecurringResult) recurringResultDTO {
	created := make([]string, 0, len(result.CreatedDates))
	for _, date := range result.CreatedDates {
		created = append(created, date.String())
	}
	var conflicts []dateConflictDTO
	for _, conflict := range result.Conflicts {
		conflicts = append(conflicts, dateConflictDTO{Date: conflict.Date.String(), Reason: conflict.Reason})
	}
	return recurringResultDTO{
		PatternID:           result.PatternID,
		ReservationsCreated: result.ReservationsCreated,
		CreatedDates:        created,
		Conflicts:           conflicts,
	}
}

type previewDTO struct {
	TotalDates int              `json:"total_dates"`
	Conflicts  int              `json:"conflicts"`
	Available  int              `json:"available"`
	Dates      []previewDateDTO `json:"dates"`
}

type previewDateDTO struct {
	Date        string `json:"date"`
	DayOfWeek   string `json:"day_of_week"`
	HasConflict bool   `json:"has_conflict"`
}

func toPreviewDTO(result application.PreviewResult) previewDTO {
	dates := make([]previewDateDTO, 0, len(result.Dates))
	for _, date := range result.Dates {
		dates = append(dates, previewDateDTO{
			Date:        date.Date.String(),
			DayOfWeek:   date.DayOfWeek,
			HasConflict: date.HasConflict,
		})
	}
	return previewDTO{
		TotalDates: result.TotalDates,
		Conflicts:  result.Conflicts,
		Available:  result.Available,
		Dates:      dates,
	}
}

type patternResponse struct {
	Pattern patternDTO `json:"pattern"`
}

type listPatternsResponse struct {
	Patterns []patternDTO `json:"patterns"`
}

type patternDTO struct {
	ID           string  `json:"id"`
	RoomID       string  `json:"room_id"`
	UserID       string  `json:"user_id"`
	Frequency    string  `json:"frequency"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Purpose      string  `json:"purpose"`
	Attendees    int     `json:"attendees"`
	ContactEmail string  `json:"contact_email"`
	ContactPhone *string `json:"contact_phone,omitempty"`
	IsActive     bool    `json:"is_active"`
	CreatedAt    string  `json:"created_at"`
}

func toPatternDTO(pattern persistence.RecurringPattern) patternDTO {
	return patternDTO{
		ID:           pattern.ID,
		RoomID:       pattern.RoomID,
		UserID:       pattern.UserID,
		Frequency:    pattern.Frequency,
		StartDate:    pattern.StartDate.String(),
		EndDate:      pattern.EndDate.String(),
		StartTime:    pattern.Span.Start.String(),
		EndTime:      pattern.Span.End.String(),
		Purpose:      pattern.Purpose,
		Attendees:    pattern.Attendees,
		ContactEmail: pattern.ContactEmail,
		ContactPhone: pattern.ContactPhone,
		IsActive:     pattern.IsActive,
		CreatedAt:    pattern.CreatedAt.UTC().Format(time.RFC3339),
	}
}
