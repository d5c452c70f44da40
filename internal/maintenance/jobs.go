// Package maintenance runs the background jobs that keep reservation state
// tidy: expiring stale pending bookings and pruning old activity entries.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/persistence"
)

// Runner owns the cron schedule for the maintenance jobs.
type Runner struct {
	reservations      persistence.ReservationRepository
	activity          persistence.ActivityRepository
	cache             *application.StatusCache
	events            application.EventSink
	pendingExpiry     time.Duration
	activityRetention time.Duration
	now               func() time.Time
	logger            *slog.Logger
	cron              *cron.Cron
}

// RunnerConfig wires dependencies for the maintenance runner.
type RunnerConfig struct {
	Reservations persistence.ReservationRepository
	Activity     persistence.ActivityRepository
	Cache        *application.StatusCache
	Events       application.EventSink
	// PendingExpiry is how long a reservation may stay pending before it
	// is cancelled automatically.
	PendingExpiry time.Duration
	// ActivityRetention is how long activity entries are kept.
	ActivityRetention time.Duration
	Now               func() time.Time
	Logger            *slog.Logger
}

// NewRunner constructs a maintenance runner. Start must be called for the
// jobs to fire.
func NewRunner(cfg RunnerConfig) *Runner {
	pendingExpiry := cfg.PendingExpiry
	if pendingExpiry <= 0 {
		pendingExpiry = 15 * time.Minute
	}
	activityRetention := cfg.ActivityRetention
	if activityRetention <= 0 {
		activityRetention = 90 * 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		reservations:      cfg.Reservations,
		activity:          cfg.Activity,
		cache:             cfg.Cache,
		events:            cfg.Events,
		pendingExpiry:     pendingExpiry,
		activityRetention: activityRetention,
		now:               now,
		logger:            logger,
		cron:              cron.New(),
	}
}

// Start registers and launches the cron jobs.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", func() {
		if _, err := r.ExpirePending(context.Background()); err != nil {
			r.logger.Error("pending expiry job failed", "error", err)
		}
	}); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@daily", func() {
		if _, err := r.PruneActivity(context.Background()); err != nil {
			r.logger.Error("activity pruning job failed", "error", err)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// ExpirePending cancels reservations that have stayed pending past the
// expiry window and returns how many were cancelled. Rooms whose state
// changed have their status cache entries invalidated.
func (r *Runner) ExpirePending(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.pendingExpiry)
	stale, err := r.reservations.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, reservation := range stale {
		updatedAt := r.now()
		if err := r.reservations.UpdateReservationStatus(ctx, reservation.ID, persistence.StatusCancelled, updatedAt); err != nil {
			r.logger.Error("failed to expire pending reservation",
				"reservation_id", reservation.ID, "error", err)
			continue
		}
		cancelled++
		r.cache.Invalidate(reservation.RoomID)
		if r.events != nil {
			r.events.Publish(application.Event{
				Type:          application.EventReservationCancelled,
				RoomID:        reservation.RoomID,
				ReservationID: reservation.ID,
				Date:          reservation.Date,
				OccurredAt:    updatedAt,
			})
		}
	}

	if cancelled > 0 {
		r.logger.Info("expired pending reservations", "count", cancelled)
	}
	return cancelled, nil
}

// PruneActivity deletes activity entries older than the retention window and
// returns how many rows were removed.
func (r *Runner) PruneActivity(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.activityRetention)
	deleted, err := r.activity.DeleteActivityBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("pruned activity entries", "count", deleted)
	}
	return deleted, nil
}
