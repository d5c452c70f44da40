package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/config"
	"github.com/example/room-reservation/internal/fanout"
	httptransport "github.com/example/room-reservation/internal/http"
	"github.com/example/room-reservation/internal/maintenance"
	"github.com/example/room-reservation/internal/persistence/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Error("failed to resolve timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	roomRepo := sqlite.NewRoomRepository(pool)
	reservationRepo := sqlite.NewReservationRepository(pool)
	patternRepo := sqlite.NewPatternRepository(pool)
	activityRepo := sqlite.NewActivityRepository(pool)

	cache := application.NewStatusCache(cfg.StatusCacheSize, cfg.StatusCacheTTL)
	slotLocks := application.NewSlotLocks(cfg.SlotLockTimeout)
	hub := fanout.NewHub(fanout.HubConfig{Logger: logger})
	go hub.Run(ctx)

	idGenerator := uuid.NewString
	now := time.Now

	roomService := application.NewRoomService(roomRepo, activityRepo, hub, idGenerator, now, logger)
	reservationService := application.NewReservationService(application.ReservationServiceConfig{
		Reservations: reservationRepo,
		Rooms:        roomRepo,
		Activity:     activityRepo,
		Cache:        cache,
		Events:       hub,
		IDGenerator:  idGenerator,
		Now:          now,
		Logger:       logger,
		Locks:        slotLocks,
	})
	recurringService := application.NewRecurringService(application.RecurringServiceConfig{
		Reservations: reservationRepo,
		Patterns:     patternRepo,
		Rooms:        roomRepo,
		Activity:     activityRepo,
		Cache:        cache,
		Events:       hub,
		IDGenerator:  idGenerator,
		Now:          now,
		Logger:       logger,
		Locks:        slotLocks,
	})
	occupancyService := application.NewOccupancyService(application.OccupancyServiceConfig{
		Reservations:        reservationRepo,
		Rooms:               roomRepo,
		Cache:               cache,
		EndingSoonThreshold: cfg.EndingSoonThreshold,
		Location:            location,
		Now:                 now,
		Logger:              logger,
	})
	statsService := application.NewStatsService(application.StatsServiceConfig{
		Reservations: reservationRepo,
		Rooms:        roomRepo,
		Activity:     activityRepo,
		CacheTTL:     cfg.StatsCacheTTL,
		Location:     location,
		Now:          now,
		Logger:       logger,
	})

	runner := maintenance.NewRunner(maintenance.RunnerConfig{
		Reservations:      reservationRepo,
		Activity:          activityRepo,
		Cache:             cache,
		Events:            hub,
		PendingExpiry:     cfg.PendingExpiry,
		ActivityRetention: cfg.ActivityRetention,
		Now:               now,
		Logger:            logger,
	})
	if err := runner.Start(); err != nil {
		logger.Error("failed to start maintenance jobs", "error", err)
		os.Exit(1)
	}
	defer runner.Stop()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Rooms:        httptransport.NewRoomHandler(roomService, logger),
		Reservations: httptransport.NewReservationHandler(reservationService, logger),
		Recurring:    httptransport.NewRecurringHandler(recurringService, logger),
		Status:       httptransport.NewStatusHandler(occupancyService, logger),
		Stats:        httptransport.NewStatsHandler(statsService, logger),
		WS: httptransport.NewWSHandler(httptransport.WSConfig{
			Hub:               hub,
			Occupancy:         occupancyService,
			RoomHeartbeat:     cfg.RoomHeartbeat,
			OverviewHeartbeat: cfg.OverviewHeartbeat,
			Logger:            logger,
		}),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.ExtractPrincipal(logger),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("reservation API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
