package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// StatsService aggregates dashboard figures and the recent activity feed.
// The dashboard aggregate is cached briefly; the numbers tolerate short
// staleness and the underlying queries touch every reservation row.
type StatsService struct {
	reservations persistence.ReservationRepository
	rooms        persistence.RoomRepository
	activity     persistence.ActivityRepository
	popularLimit int
	cacheTTL     time.Duration
	location     *time.Location
	now          func() time.Time
	logger       *slog.Logger

	mu        sync.Mutex
	cached    *DashboardStats
	expiresAt time.Time
}

// StatsServiceConfig wires dependencies for the stats service.
type StatsServiceConfig struct {
	Reservations persistence.ReservationRepository
	Rooms        persistence.RoomRepository
	Activity     persistence.ActivityRepository
	PopularLimit int
	CacheTTL     time.Duration
	Location     *time.Location
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewStatsService constructs a stats service.
func NewStatsService(cfg StatsServiceConfig) *StatsService {
	popularLimit := cfg.PopularLimit
	if popularLimit <= 0 {
		popularLimit = 5
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &StatsService{
		reservations: cfg.Reservations,
		rooms:        cfg.Rooms,
		activity:     cfg.Activity,
		popularLimit: popularLimit,
		cacheTTL:     cacheTTL,
		location:     location,
		now:          now,
		logger:       defaultLogger(cfg.Logger),
	}
}

func (s *StatsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "StatsService", operation, attrs...)
}

// Dashboard returns the aggregate reservation figures, recomputing at most
// once per cache interval.
func (s *StatsService) Dashboard(ctx context.Context) (stats DashboardStats, err error) {
	if s == nil {
		err = fmt.Errorf("StatsService is nil")
		return
	}

	s.mu.Lock()
	if s.cached != nil && s.now().Before(s.expiresAt) {
		stats = *s.cached
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	logger := s.loggerWith(ctx, "Dashboard")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute dashboard stats", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	stats, err = s.compute(ctx)
	if err != nil {
		return
	}

	s.mu.Lock()
	snapshot := stats
	s.cached = &snapshot
	s.expiresAt = s.now().Add(s.cacheTTL)
	s.mu.Unlock()
	return
}

// RecentActivity returns the newest activity entries, most recent first.
func (s *StatsService) RecentActivity(ctx context.Context, limit int) ([]persistence.ActivityEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("StatsService is nil")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := s.activity.ListRecentActivity(ctx, limit)
	if err != nil {
		s.loggerWith(ctx, "RecentActivity").ErrorContext(ctx, "failed to list activity", "error", err)
		return nil, err
	}
	return entries, nil
}

func (s *StatsService) compute(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats

	allRooms, err := s.rooms.ListRooms(ctx, false)
	if err != nil {
		return DashboardStats{}, mapRoomRepoError(err)
	}
	stats.TotalRooms = len(allRooms)
	for _, room := range allRooms {
		if room.IsActive {
			stats.ActiveRooms++
		}
	}

	today := interval.DateOf(s.now().In(s.location))
	stats.ReservationsToday, err = s.reservations.CountReservations(ctx, persistence.ReservationFilter{
		Statuses: persistence.ActiveStatuses,
		FromDate: &today,
		ToDate:   &today,
	})
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	stats.PendingCount, err = s.reservations.CountReservations(ctx, persistence.ReservationFilter{
		Statuses: []persistence.ReservationStatus{persistence.StatusPending},
	})
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	stats.ConfirmedCount, err = s.reservations.CountReservations(ctx, persistence.ReservationFilter{
		Statuses: []persistence.ReservationStatus{persistence.StatusConfirmed},
	})
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	weekAhead := today.AddDays(7)
	stats.NextSevenDays, err = s.reservations.CountReservations(ctx, persistence.ReservationFilter{
		Statuses: persistence.ActiveStatuses,
		FromDate: &today,
		ToDate:   &weekAhead,
	})
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	stats.AverageAttendees, err = s.reservations.AverageAttendees(ctx, persistence.StatusConfirmed)
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	stats.PopularRooms, err = s.reservations.PopularRooms(ctx, s.popularLimit)
	if err != nil {
		return DashboardStats{}, mapReservationRepoError(err)
	}

	return stats, nil
}
