package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

// RoomService orchestrates validation, authorization, and persistence for rooms.
type RoomService struct {
	rooms       persistence.RoomRepository
	activity    persistence.ActivityRepository
	events      EventSink
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms persistence.RoomRepository, activity persistence.ActivityRepository, events EventSink, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		rooms:       rooms,
		activity:    activity,
		events:      events,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// CreateRoom validates input and persists a new room for administrators.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	room = persistence.Room{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(params.Input.Name),
		Building:  strings.TrimSpace(params.Input.Building),
		Floor:     params.Input.Floor,
		Capacity:  params.Input.Capacity,
		Amenities: normalizeOptionalString(params.Input.Amenities),
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if params.Input.IsActive != nil {
		room.IsActive = *params.Input.IsActive
	}

	if err = s.rooms.CreateRoom(ctx, room); err != nil {
		err = mapRoomRepoError(err)
		room = persistence.Room{}
		return
	}

	s.recordActivity(ctx, params.Principal.UserID, "room_created", &room.ID, nil,
		fmt.Sprintf("room %q created in %s", room.Name, room.Building))
	s.publish(Event{Type: EventRoomUpdated, RoomID: room.ID, OccurredAt: createdAt})
	return
}

// UpdateRoom validates input and updates an existing room for administrators.
// Deactivating a room keeps its reservations but blocks new bookings.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room updated")
	}()

	var existing persistence.Room
	existing, err = s.rooms.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Name = strings.TrimSpace(params.Input.Name)
	updated.Building = strings.TrimSpace(params.Input.Building)
	updated.Floor = params.Input.Floor
	updated.Capacity = params.Input.Capacity
	updated.Amenities = normalizeOptionalString(params.Input.Amenities)
	if params.Input.IsActive != nil {
		updated.IsActive = *params.Input.IsActive
	}
	updated.UpdatedAt = s.now()

	if err = s.rooms.UpdateRoom(ctx, updated); err != nil {
		err = mapRoomRepoError(err)
		return
	}

	room = updated
	s.recordActivity(ctx, params.Principal.UserID, "room_updated", &room.ID, nil,
		fmt.Sprintf("room %q updated", room.Name))
	s.publish(Event{Type: EventRoomUpdated, RoomID: room.ID, OccurredAt: updated.UpdatedAt})
	return
}

// GetRoom returns one catalog entry.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (persistence.Room, error) {
	if s == nil {
		return persistence.Room{}, fmt.Errorf("RoomService is nil")
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return persistence.Room{}, mapRoomRepoError(err)
	}
	return room, nil
}

// ListRooms returns the catalog of rooms. Non-admin callers only see active rooms.
func (s *RoomService) ListRooms(ctx context.Context, principal Principal, includeInactive bool) (rooms []persistence.Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListRooms",
		"principal_id", principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	activeOnly := !includeInactive || !principal.IsAdmin
	rooms, err = s.rooms.ListRooms(ctx, activeOnly)
	return
}

func (s *RoomService) recordActivity(ctx context.Context, userID, action string, roomID, reservationID *string, description string) {
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

func (s *RoomService) publish(event Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(event)
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(input.Building) == "" {
		vErr.add("building", "building is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}

	return vErr
}

func mapRoomRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("capacity", "capacity must be positive")
		return vErr
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
