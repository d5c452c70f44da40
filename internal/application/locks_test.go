package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/testfixtures"
)

func TestSlotLocks_SerializesSameSlot(t *testing.T) {
	locks := NewSlotLocks(time.Second)
	date := testfixtures.ReferenceDate()

	var (
		mu     sync.Mutex
		active int
		peak   int
		wg     sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(context.Background(), "room-1", date)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("peak holders = %d, want 1", peak)
	}
}

func TestSlotLocks_IndependentSlotsDoNotBlock(t *testing.T) {
	locks := NewSlotLocks(time.Second)
	date := testfixtures.ReferenceDate()

	releaseA, err := locks.Acquire(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("Acquire room-1: %v", err)
	}
	defer releaseA()

	releaseB, err := locks.Acquire(context.Background(), "room-2", date)
	if err != nil {
		t.Fatalf("Acquire room-2 should not block: %v", err)
	}
	releaseB()

	releaseC, err := locks.Acquire(context.Background(), "room-1", date.AddDays(1))
	if err != nil {
		t.Fatalf("Acquire other date should not block: %v", err)
	}
	releaseC()
}

func TestSlotLocks_TimesOutWhenHeld(t *testing.T) {
	locks := NewSlotLocks(20 * time.Millisecond)
	date := testfixtures.ReferenceDate()

	release, err := locks.Acquire(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := locks.Acquire(context.Background(), "room-1", date); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	release()
	release2, err := locks.Acquire(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

// gatedStore widens the window between the conflict check and the insert:
// every ListForRoomDate call signals entry and then waits for the gate to
// open before answering.
type gatedStore struct {
	*testfixtures.MemStore
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) ListForRoomDate(ctx context.Context, roomID string, date interval.Date, statuses []persistence.ReservationStatus) ([]persistence.Reservation, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate
	return g.MemStore.ListForRoomDate(ctx, roomID, date, statuses)
}

// An ad-hoc booking and a recurring occurrence contend for the same slot.
// Both services write under one shared lock table, so the second writer must
// wait out the first and then see its reservation in the conflict check.
func TestSlotLocks_SharedAcrossBookingServices(t *testing.T) {
	store := testfixtures.NewMemStore()
	room := testfixtures.NewRoom(testfixtures.WithRoomID("room-001"))
	store.SeedRooms(room)
	gated := &gatedStore{
		MemStore: store,
		entered:  make(chan struct{}, 2),
		gate:     make(chan struct{}),
	}

	locks := NewSlotLocks(5 * time.Second)
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("id")
	date := testfixtures.ReferenceDate()
	span := testfixtures.Span(10, 11)

	reservations := NewReservationService(ReservationServiceConfig{
		Reservations: gated,
		Rooms:        store,
		Locks:        locks,
		IDGenerator:  ids.Next,
		Now:          clock.NowFunc(),
	})
	recurring := NewRecurringService(RecurringServiceConfig{
		Reservations: gated,
		Patterns:     store,
		Rooms:        store,
		Locks:        locks,
		IDGenerator:  ids.Next,
		Now:          clock.NowFunc(),
	})

	var (
		wg       sync.WaitGroup
		adhocErr error
		result   RecurringResult
		recErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, adhocErr = reservations.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input: ReservationInput{
				RoomID:       room.ID,
				Date:         date,
				Span:         span,
				Purpose:      "Planning",
				Attendees:    2,
				ContactEmail: "alice@example.com",
			},
		})
	}()

	// The ad-hoc writer holds the slot lock inside its conflict check.
	<-gated.entered

	go func() {
		defer wg.Done()
		result, recErr = recurring.CreateRecurring(context.Background(), CreateRecurringParams{
			Principal: Principal{UserID: "bob"},
			Input: RecurringInput{
				RoomID:       room.ID,
				Frequency:    "daily",
				StartDate:    date,
				EndDate:      date,
				Span:         span,
				Purpose:      "Standup",
				Attendees:    2,
				ContactEmail: "bob@example.com",
			},
		})
	}()

	// Give the recurring writer time to queue on the lock, then let both run.
	time.Sleep(50 * time.Millisecond)
	close(gated.gate)
	wg.Wait()

	if adhocErr != nil {
		t.Fatalf("CreateReservation: %v", adhocErr)
	}
	if recErr != nil {
		t.Fatalf("CreateRecurring: %v", recErr)
	}
	if result.ReservationsCreated != 0 || len(result.Conflicts) != 1 {
		t.Fatalf("recurring result = %+v, want the occurrence skipped as a conflict", result)
	}

	booked, err := store.ListForRoomDate(context.Background(), room.ID, date, persistence.ActiveStatuses)
	if err != nil {
		t.Fatalf("ListForRoomDate: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("room holds %d active reservations for the slot, want 1", len(booked))
	}
}

func TestSlotLocks_HonoursContextCancellation(t *testing.T) {
	locks := NewSlotLocks(time.Minute)
	date := testfixtures.ReferenceDate()

	release, err := locks.Acquire(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locks.Acquire(ctx, "room-1", date); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
