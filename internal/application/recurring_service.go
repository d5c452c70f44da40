package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/recurrence"
)

// maxOccurrences caps a single pattern's expansion at one year of daily
// bookings.
const maxOccurrences = 366

// RecurringService expands recurring patterns into individual reservations.
type RecurringService struct {
	reservations persistence.ReservationRepository
	patterns     persistence.PatternRepository
	rooms        persistence.RoomRepository
	activity     persistence.ActivityRepository
	locks        *SlotLocks
	cache        *StatusCache
	events       EventSink
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// RecurringServiceConfig wires dependencies for the recurring service.
type RecurringServiceConfig struct {
	Reservations persistence.ReservationRepository
	Patterns     persistence.PatternRepository
	Rooms        persistence.RoomRepository
	Activity     persistence.ActivityRepository
	Cache        *StatusCache
	Events       EventSink
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
	// Locks must be the same table the reservation service writes under;
	// occurrences and ad-hoc bookings contend for the same slots. When nil,
	// a private table is built from LockTimeout.
	Locks       *SlotLocks
	LockTimeout time.Duration
}

// NewRecurringService constructs a recurring reservation service.
func NewRecurringService(cfg RecurringServiceConfig) *RecurringService {
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
	return &RecurringService{
		reservations: cfg.Reservations,
		patterns:     cfg.Patterns,
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

func (s *RecurringService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RecurringService", operation, attrs...)
}

// CreateRecurring expands the pattern and books every conflict-free
// occurrence. Occurrences that overlap existing reservations are reported and
// skipped; the rest are created, so a partially free pattern still succeeds
// for its free dates.
func (s *RecurringService) CreateRecurring(ctx context.Context, params CreateRecurringParams) (result RecurringResult, err error) {
	if s == nil {
		err = fmt.Errorf("RecurringService is nil")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateRecurring",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
		"frequency", input.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create recurring reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"pattern_id", result.PatternID,
			"created", result.ReservationsCreated,
			"conflicts", len(result.Conflicts),
		).InfoContext(ctx, "recurring reservations created")
	}()

	freq, room, vErr := s.validateRecurring(ctx, input)
	if vErr != nil {
		err = vErr
		return
	}
	if !room.IsActive {
		err = ErrRoomInactive
		return
	}

	dates, expandErr := recurrence.Expand(freq, input.StartDate, input.EndDate)
	if expandErr != nil {
		err = expandErr
		return
	}

	createdAt := s.now()
	pattern := persistence.RecurringPattern{
		ID:           s.idGenerator(),
		RoomID:       input.RoomID,
		UserID:       params.Principal.UserID,
		Frequency:    string(freq),
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Span:         input.Span,
		Purpose:      strings.TrimSpace(input.Purpose),
		Attendees:    input.Attendees,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		ContactPhone: normalizeOptionalString(input.ContactPhone),
		IsActive:     true,
		CreatedAt:    createdAt,
	}
	if err = s.patterns.CreatePattern(ctx, pattern); err != nil {
		err = mapReservationRepoError(err)
		return
	}

	result.PatternID = pattern.ID
	for _, date := range dates {
		conflict, bookErr := s.bookOccurrence(ctx, pattern, date)
		if bookErr != nil {
			err = bookErr
			return
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
			continue
		}
		result.CreatedDates = append(result.CreatedDates, date)
	}
	result.ReservationsCreated = len(result.CreatedDates)

	s.recordActivity(ctx, params.Principal.UserID, "recurring_created", &pattern.RoomID,
		fmt.Sprintf("recurring %s pattern booked %d of %d dates in %s",
			pattern.Frequency, result.ReservationsCreated, len(dates), room.Name))
	return
}

// PreviewRecurring expands the pattern and reports per-date availability
// without writing anything. The expansion matches what CreateRecurring would
// book at this instant.
func (s *RecurringService) PreviewRecurring(ctx context.Context, params CreateRecurringParams) (result PreviewResult, err error) {
	if s == nil {
		err = fmt.Errorf("RecurringService is nil")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "PreviewRecurring",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
		"frequency", input.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to preview recurring reservations", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	freq, _, vErr := s.validateRecurring(ctx, input)
	if vErr != nil {
		err = vErr
		return
	}

	dates, expandErr := recurrence.Expand(freq, input.StartDate, input.EndDate)
	if expandErr != nil {
		err = expandErr
		return
	}

	result.TotalDates = len(dates)
	result.Dates = make([]PreviewDate, 0, len(dates))
	for _, date := range dates {
		existing, listErr := s.reservations.ListForRoomDate(ctx, input.RoomID, date, persistence.ActiveStatuses)
		if listErr != nil {
			err = mapReservationRepoError(listErr)
			return
		}
		hasConflict := len(overlapping(existing, input.Span)) > 0
		if hasConflict {
			result.Conflicts++
		}
		result.Dates = append(result.Dates, PreviewDate{
			Date:        date,
			DayOfWeek:   date.Weekday().String(),
			HasConflict: hasConflict,
		})
	}
	result.Available = result.TotalDates - result.Conflicts
	return
}

// GetPattern returns a pattern visible to the principal.
func (s *RecurringService) GetPattern(ctx context.Context, principal Principal, patternID string) (persistence.RecurringPattern, error) {
	if s == nil {
		return persistence.RecurringPattern{}, fmt.Errorf("RecurringService is nil")
	}
	pattern, err := s.patterns.GetPattern(ctx, patternID)
	if err != nil {
		return persistence.RecurringPattern{}, mapReservationRepoError(err)
	}
	if pattern.UserID != principal.UserID && !principal.IsAdmin {
		return persistence.RecurringPattern{}, ErrUnauthorized
	}
	return pattern, nil
}

// ListPatterns returns the principal's recurring patterns, newest first.
func (s *RecurringService) ListPatterns(ctx context.Context, principal Principal) ([]persistence.RecurringPattern, error) {
	if s == nil {
		return nil, fmt.Errorf("RecurringService is nil")
	}
	patterns, err := s.patterns.ListPatternsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	return patterns, nil
}

// bookOccurrence books one expanded date under its slot lock. A non-nil
// DateConflict means the date was skipped, not that the call failed.
func (s *RecurringService) bookOccurrence(ctx context.Context, pattern persistence.RecurringPattern, date interval.Date) (*DateConflict, error) {
	release, err := s.locks.Acquire(ctx, pattern.RoomID, date)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.reservations.ListForRoomDate(ctx, pattern.RoomID, date, persistence.ActiveStatuses)
	if err != nil {
		return nil, mapReservationRepoError(err)
	}
	if conflicts := overlapping(existing, pattern.Span); len(conflicts) > 0 {
		return &DateConflict{Date: date, Reason: "slot already reserved"}, nil
	}

	createdAt := s.now()
	patternID := pattern.ID
	reservation := persistence.Reservation{
		ID:           s.idGenerator(),
		RoomID:       pattern.RoomID,
		UserID:       pattern.UserID,
		Date:         date,
		Span:         pattern.Span,
		Purpose:      pattern.Purpose,
		Attendees:    pattern.Attendees,
		ContactEmail: pattern.ContactEmail,
		ContactPhone: pattern.ContactPhone,
		Status:       persistence.StatusConfirmed,
		PatternID:    &patternID,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if err := s.reservations.CreateReservation(ctx, reservation); err != nil {
		return nil, mapReservationRepoError(err)
	}

	s.cache.Invalidate(pattern.RoomID)
	if s.events != nil {
		s.events.Publish(Event{
			Type:          EventReservationCreated,
			RoomID:        pattern.RoomID,
			ReservationID: reservation.ID,
			Date:          date,
			OccurredAt:    createdAt,
		})
	}
	return nil, nil
}

// validateRecurring checks shared create/preview input and resolves the
// frequency and target room.
func (s *RecurringService) validateRecurring(ctx context.Context, input RecurringInput) (recurrence.Frequency, persistence.Room, error) {
	vErr := &ValidationError{}

	freq, freqErr := recurrence.ParseFrequency(input.Frequency)
	if freqErr != nil {
		vErr.add("frequency", "must be daily, weekly, biweekly, or monthly")
	}

	if input.RoomID == "" {
		vErr.add("room_id", "room is required")
	}
	if input.StartDate.IsZero() {
		vErr.add("start_date", "start date is required")
	}
	if input.EndDate.IsZero() {
		vErr.add("end_date", "end date is required")
	}
	if !input.StartDate.IsZero() && !input.EndDate.IsZero() && input.EndDate.Before(input.StartDate) {
		vErr.add("end_date", "end date must not precede start date")
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

	if freqErr == nil && !input.StartDate.IsZero() && !input.EndDate.IsZero() && !input.EndDate.Before(input.StartDate) {
		if count := recurrence.Count(freq, input.StartDate, input.EndDate); count > maxOccurrences {
			vErr.add("end_date", fmt.Sprintf("pattern expands to %d dates, maximum is %d", count, maxOccurrences))
		}
	}

	if vErr.HasErrors() {
		return "", persistence.Room{}, vErr
	}

	room, err := s.rooms.GetRoom(ctx, input.RoomID)
	if err != nil {
		return "", persistence.Room{}, mapRoomRepoError(err)
	}
	if input.Attendees > room.Capacity {
		capErr := &ValidationError{}
		capErr.add("attendees", fmt.Sprintf("room capacity is %d", room.Capacity))
		return "", persistence.Room{}, capErr
	}

	return freq, room, nil
}

func (s *RecurringService) recordActivity(ctx context.Context, userID, action string, roomID *string, description string) {
	if s.activity == nil {
		return
	}
	entry := persistence.ActivityEntry{
		ID:          s.idGenerator(),
		UserID:      userID,
		Action:      action,
		RoomID:      roomID,
		Description: description,
		CreatedAt:   s.now(),
	}
	if err := s.activity.AppendActivity(ctx, entry); err != nil {
		s.loggerWith(ctx, "recordActivity").WarnContext(ctx, "failed to append activity", "error", err)
	}
}
