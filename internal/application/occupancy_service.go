package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// OccupancyService answers the momentary "is this room free right now"
// question that status boards poll.
type OccupancyService struct {
	reservations persistence.ReservationRepository
	rooms        persistence.RoomRepository
	cache        *StatusCache
	threshold    time.Duration
	location     *time.Location
	now          func() time.Time
	logger       *slog.Logger
}

// OccupancyServiceConfig wires dependencies for the occupancy service.
type OccupancyServiceConfig struct {
	Reservations persistence.ReservationRepository
	Rooms        persistence.RoomRepository
	Cache        *StatusCache
	// EndingSoonThreshold is how close to its end a running reservation
	// flips the room to ending_soon.
	EndingSoonThreshold time.Duration
	Location            *time.Location
	Now                 func() time.Time
	Logger              *slog.Logger
}

// NewOccupancyService constructs an occupancy service.
func NewOccupancyService(cfg OccupancyServiceConfig) *OccupancyService {
	threshold := cfg.EndingSoonThreshold
	if threshold <= 0 {
		threshold = 15 * time.Minute
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OccupancyService{
		reservations: cfg.Reservations,
		rooms:        cfg.Rooms,
		cache:        cfg.Cache,
		threshold:    threshold,
		location:     location,
		now:          now,
		logger:       defaultLogger(cfg.Logger),
	}
}

func (s *OccupancyService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "OccupancyService", operation, attrs...)
}

// RoomStatus reports the room's occupancy at this instant. Results are served
// from the status cache until a reservation change invalidates the room or
// the entry expires.
func (s *OccupancyService) RoomStatus(ctx context.Context, roomID string) (status RoomStatus, err error) {
	if s == nil {
		err = fmt.Errorf("OccupancyService is nil")
		return
	}

	if cached, ok := s.cache.Get(roomID); ok {
		return cached, nil
	}

	logger := s.loggerWith(ctx, "RoomStatus", "room_id", roomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute room status", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var room persistence.Room
	room, err = s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	status, err = s.computeStatus(ctx, room)
	if err != nil {
		return
	}

	s.cache.Store(roomID, status)
	return
}

// OverviewStatus reports occupancy for every active room, for the status
// board's all-rooms view.
func (s *OccupancyService) OverviewStatus(ctx context.Context) (statuses []RoomStatus, err error) {
	if s == nil {
		err = fmt.Errorf("OccupancyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "OverviewStatus")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute overview status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(statuses)).DebugContext(ctx, "overview status computed")
	}()

	var rooms []persistence.Room
	rooms, err = s.rooms.ListRooms(ctx, true)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	statuses = make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		if cached, ok := s.cache.Get(room.ID); ok {
			statuses = append(statuses, cached)
			continue
		}
		status, computeErr := s.computeStatus(ctx, room)
		if computeErr != nil {
			err = computeErr
			return
		}
		s.cache.Store(room.ID, status)
		statuses = append(statuses, status)
	}
	return
}

// computeStatus classifies the room against its reservations for today. The
// probe instant falls inside a reservation when start <= now < end, so a
// reservation ending exactly now does not occupy the room.
func (s *OccupancyService) computeStatus(ctx context.Context, room persistence.Room) (RoomStatus, error) {
	now := s.now().In(s.location)
	today := interval.DateOf(now)
	probe := interval.TimeOfDayOf(now)

	reservations, err := s.reservations.ListForRoomDate(ctx, room.ID, today, persistence.ActiveStatuses)
	if err != nil {
		return RoomStatus{}, mapReservationRepoError(err)
	}

	status := RoomStatus{
		RoomID:            room.ID,
		RoomName:          room.Name,
		Status:            StatusFree,
		ReservationsToday: len(reservations),
	}

	for i := range reservations {
		res := reservations[i]
		if res.Span.Contains(probe) {
			endAt := today.At(res.Span.End, s.location)
			remaining := endAt.Sub(now)

			status.Current = &res
			status.MinutesUntilFree = int(remaining.Minutes())
			status.NextAvailable = res.Span.End.String()
			if remaining <= s.threshold {
				status.Status = StatusEndingSoon
			} else {
				status.Status = StatusOccupied
			}
			continue
		}
		if res.Span.Start > probe {
			status.Upcoming = append(status.Upcoming, res)
		}
	}

	// A free room is only free until its next booking starts.
	if status.Current == nil && len(status.Upcoming) > 0 {
		status.NextAvailable = status.Upcoming[0].Span.Start.String()
	}

	return status, nil
}
