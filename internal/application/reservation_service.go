package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// ReservationService orchestrates booking writes and the conflict checks that
// guard them.
type ReservationService struct {
	reservations persistence.ReservationRepository
	rooms        persistence.RoomRepository
	activity     persistence.ActivityRepository
	locks        *SlotLocks
	cache        *StatusCache
	events       EventSink
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// ReservationServiceConfig wires dependencies for the reservation service.
type ReservationServiceConfig struct {
	Reservations persistence.ReservationRepository
	Rooms        persistence.RoomRepository
	Activity     persistence.ActivityRepository
	Cache        *StatusCache
	Events       EventSink
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
	// Locks is the slot lock table shared by every service that writes
	// reservations. When nil, a private table is built from LockTimeout;
	// production wiring must pass the shared one.
	Locks *SlotLocks
	// LockTimeout bounds how long a booking waits for its slot lock. Only
	// consulted when Locks is nil.
	LockTimeout time.Duration
}

// NewReservationService constructs a reservation service.
func NewReservationService(cfg ReservationServiceConfig) *ReservationService {
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	locks := cfg.Locks
	if locks == nil {
		locks = NewSlotLocks(cfg.LockTimeout)
	}
	return &ReservationService{
		reservations: cfg.Reservations,
		rooms:        cfg.Rooms,
		activity:     cfg.Activity,
		locks:        locks,
		cache:        cfg.Cache,
		events:       cfg.Events,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(cfg.Logger),
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// CreateReservation books a room for a dated time window. The conflict check
// and the insert run under the room's slot lock for the date, so two
// concurrent requests for overlapping windows cannot both succeed.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (result CreateReservationResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateReservation",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
		"date", input.Date.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", result.Reservation.ID).InfoContext(ctx, "reservation created")
	}()

	vErr := validateReservationInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var room persistence.Room
	room, err = s.rooms.GetRoom(ctx, input.RoomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}
	if !room.IsActive {
		err = ErrRoomInactive
		return
	}
	if input.Attendees > room.Capacity {
		vErr := &ValidationError{}
		vErr.add("attendees", fmt.Sprintf("room capacity is %d", room.Capacity))
		err = vErr
		return
	}

	release, lockErr := s.locks.Acquire(ctx, input.RoomID, input.Date)
	if lockErr != nil {
		err = lockErr
		return
	}
	defer release()

	var conflicts []ConflictDetail
	conflicts, err = s.slotConflicts(ctx, input.RoomID, input.Date, input.Span)
	if err != nil {
		return
	}
	if len(conflicts) > 0 {
		err = &ConflictError{RoomID: input.RoomID, Date: input.Date.String(), Conflicts: conflicts}
		return
	}

	token, hash, tokenErr := NewConfirmationToken()
	if tokenErr != nil {
		err = tokenErr
		return
	}

	createdAt := s.now()
	reservation := persistence.Reservation{
		ID:               s.idGenerator(),
		RoomID:           input.RoomID,
		UserID:           params.Principal.UserID,
		Date:             input.Date,
		Span:             input.Span,
		Purpose:          strings.TrimSpace(input.Purpose),
		Attendees:        input.Attendees,
		ContactEmail:     strings.TrimSpace(input.ContactEmail),
		ContactPhone:     normalizeOptionalString(input.ContactPhone),
		Status:           persistence.StatusPending,
		ConfirmationHash: hash,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}

	if err = s.reservations.CreateReservation(ctx, reservation); err != nil {
		err = mapReservationRepoError(err)
		return
	}

	s.cache.Invalidate(input.RoomID)
	s.publish(Event{
		Type:          EventReservationCreated,
		RoomID:        input.RoomID,
		ReservationID: reservation.ID,
		Date:          input.Date,
		OccurredAt:    createdAt,
	})
	s.recordActivity(ctx, params.Principal.UserID, "reservation_created", &reservation.RoomID, &reservation.ID,
		fmt.Sprintf("reserved %s on %s %s", room.Name, input.Date, input.Span))

	result = CreateReservationResult{Reservation: reservation, ConfirmationToken: token}
	return
}

// ConfirmReservation transitions a pending reservation to confirmed after
// verifying the one-time token issued at creation.
func (s *ReservationService) ConfirmReservation(ctx context.Context, principal Principal, reservationID, token string) (reservation persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ConfirmReservation",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation confirmed")
	}()

	reservation, err = s.authorizedReservation(ctx, principal, reservationID)
	if err != nil {
		return
	}
	if reservation.Status != persistence.StatusPending {
		err = ErrInvalidState
		return
	}
	if err = VerifyConfirmationToken(reservation.ConfirmationHash, token); err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return
	}

	reservation, err = s.transition(ctx, reservation, persistence.StatusConfirmed, EventReservationConfirmed)
	if err != nil {
		return
	}
	s.recordActivity(ctx, principal.UserID, "reservation_confirmed", &reservation.RoomID, &reservation.ID,
		fmt.Sprintf("confirmed reservation for %s %s", reservation.Date, reservation.Span))
	return
}

// CancelReservation transitions a pending or confirmed reservation to
// cancelled, freeing its slot. The row is retained for history.
func (s *ReservationService) CancelReservation(ctx context.Context, principal Principal, reservationID string) (reservation persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CancelReservation",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation cancelled")
	}()

	reservation, err = s.authorizedReservation(ctx, principal, reservationID)
	if err != nil {
		return
	}
	if reservation.Status == persistence.StatusCancelled {
		err = ErrInvalidState
		return
	}

	reservation, err = s.transition(ctx, reservation, persistence.StatusCancelled, EventReservationCancelled)
	if err != nil {
		return
	}
	s.recordActivity(ctx, principal.UserID, "reservation_cancelled", &reservation.RoomID, &reservation.ID,
		fmt.Sprintf("cancelled reservation for %s %s", reservation.Date, reservation.Span))
	return
}

// GetReservation returns a reservation visible to the principal.
func (s *ReservationService) GetReservation(ctx context.Context, principal Principal, reservationID string) (persistence.Reservation, error) {
	if s == nil {
		return persistence.Reservation{}, fmt.Errorf("ReservationService is nil")
	}
	return s.authorizedReservation(ctx, principal, reservationID)
}

// ListUserReservations returns the principal's reservations, newest date
// range first constrained by the optional bounds. Admins may list any user.
func (s *ReservationService) ListUserReservations(ctx context.Context, principal Principal, userID string, from, to *interval.Date) ([]persistence.Reservation, error) {
	if s == nil {
		return nil, fmt.Errorf("ReservationService is nil")
	}
	if userID == "" {
		userID = principal.UserID
	}
	if userID != principal.UserID && !principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	reservations, err := s.reservations.ListReservations(ctx, persistence.ReservationFilter{
		UserID:   userID,
		FromDate: from,
		ToDate:   to,
	})
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return reservations, nil
}

// DaySchedule returns a room's active reservations on one date, ordered by
// start time.
func (s *ReservationService) DaySchedule(ctx context.Context, roomID string, date interval.Date) ([]persistence.Reservation, error) {
	if s == nil {
		return nil, fmt.Errorf("ReservationService is nil")
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, mapRoomRepoError(err)
	}
	reservations, err := s.reservations.ListForRoomDate(ctx, roomID, date, persistence.ActiveStatuses)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return reservations, nil
}

// CheckSlot reports the active reservations overlapping the requested window.
// An empty result means the slot is bookable.
func (s *ReservationService) CheckSlot(ctx context.Context, roomID string, date interval.Date, span interval.Span) ([]ConflictDetail, error) {
	if s == nil {
		return nil, fmt.Errorf("ReservationService is nil")
	}
	if !span.Start.Valid() || !span.End.Valid() || span.End <= span.Start {
		vErr := &ValidationError{}
		vErr.add("time", "start must be before end")
		return nil, vErr
	}
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, mapRoomRepoError(err)
	}
	return s.slotConflicts(ctx, roomID, date, span)
}

func (s *ReservationService) slotConflicts(ctx context.Context, roomID string, date interval.Date, span interval.Span) ([]ConflictDetail, error) {
	existing, err := s.reservations.ListForRoomDate(ctx, roomID, date, persistence.ActiveStatuses)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return overlapping(existing, span), nil
}

// overlapping filters reservations whose spans intersect the candidate
// window. Touching endpoints do not conflict.
func overlapping(existing []persistence.Reservation, span interval.Span) []ConflictDetail {
	var conflicts []ConflictDetail
	for _, res := range existing {
		if res.Span.Overlaps(span) {
			conflicts = append(conflicts, ConflictDetail{
				ReservationID: res.ID,
				Span:          res.Span,
				Status:        res.Status,
			})
		}
	}
	return conflicts
}

func (s *ReservationService) authorizedReservation(ctx context.Context, principal Principal, reservationID string) (persistence.Reservation, error) {
	reservation, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return persistence.Reservation{}, mapReservationRepoError(err)
	}
	if reservation.UserID != principal.UserID && !principal.IsAdmin {
		return persistence.Reservation{}, ErrUnauthorized
	}
	return reservation, nil
}

func (s *ReservationService) transition(ctx context.Context, reservation persistence.Reservation, status persistence.ReservationStatus, eventType EventType) (persistence.Reservation, error) {
	updatedAt := s.now()
	if err := s.reservations.UpdateReservationStatus(ctx, reservation.ID, status, updatedAt); err != nil {
		return persistence.Reservation{}, mapReservationRepoError(err)
	}
	reservation.Status = status
	reservation.UpdatedAt = updatedAt

	s.cache.Invalidate(reservation.RoomID)
	s.publish(Event{
		Type:          eventType,
		RoomID:        reservation.RoomID,
		ReservationID: reservation.ID,
		Date:          reservation.Date,
		OccurredAt:    updatedAt,
	})
	return reservation, nil
}

func (s *ReservationService) recordActivity(ctx context.Context, userID, action string, roomID, reservationID *string, description string) {
	if s.activity == nil {
		return
	}
	entry := persistence.ActivityEntry{
		ID:            s.idGenerator(),
		UserID:        userID,
		Action:        action,
		RoomID:        roomID,
		ReservationID: reservationID,
		Description:   description,
		CreatedAt:     s.now(),
	}
	if err := s.activity.AppendActivity(ctx, entry); err != nil {
		s.loggerWith(ctx, "recordActivity").WarnContext(ctx, "failed to append activity", "error", err)
	}
}

func (s *ReservationService) publish(event Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(event)
}

func validateReservationInput(input ReservationInput) *ValidationError {
	vErr := &ValidationError{}

	if input.RoomID == "" {
		vErr.add("room_id", "room is required")
	}
	if input.Date.IsZero() {
		vErr.add("date", "date is required")
	}
	if !input.Span.Start.Valid() || !input.Span.End.Valid() {
		vErr.add("time", "times must be within the day")
	} else if input.Span.End <= input.Span.Start {
		vErr.add("time", "start must be before end")
	}
	if strings.TrimSpace(input.Purpose) == "" {
		vErr.add("purpose", "purpose is required")
	}
	if input.Attendees <= 0 {
		vErr.add("attendees", "attendees must be positive")
	}
	if email := strings.TrimSpace(input.ContactEmail); email == "" {
		vErr.add("contact_email", "contact email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		vErr.add("contact_email", "must be a valid email address")
	}

	return vErr
}

func mapReservationRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("room_id", "room does not exist")
		return vErr
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("time", "start must be before end")
		return vErr
	}
	return err
}
