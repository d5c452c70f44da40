package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/testfixtures"
)

type eventSinkStub struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSinkStub) Publish(event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *eventSinkStub) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func newReservationService(store *testfixtures.MemStore, sink EventSink, clock *testfixtures.Clock) *ReservationService {
	return NewReservationService(ReservationServiceConfig{
		Reservations: store,
		Rooms:        store,
		Activity:     store,
		Cache:        NewStatusCache(16, time.Minute),
		Events:       sink,
		IDGenerator:  testfixtures.NewIDGenerator("res").NextFunc(),
		Now:          clock.NowFunc(),
	})
}

func validInput(roomID string) ReservationInput {
	return ReservationInput{
		RoomID:       roomID,
		Date:         testfixtures.ReferenceDate(),
		Span:         testfixtures.Span(10, 11),
		Purpose:      "team sync",
		Attendees:    4,
		ContactEmail: "alice@example.com",
	}
}

func TestReservationService_CreateReservation(t *testing.T) {
	t.Run("creates a pending reservation and returns the token once", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		sink := &eventSinkStub{}
		svc := newReservationService(store, sink, testfixtures.NewClock(time.Time{}))

		result, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     validInput(room.ID),
		})
		if err != nil {
			t.Fatalf("CreateReservation: %v", err)
		}
		if result.Reservation.Status != persistence.StatusPending {
			t.Errorf("status = %s, want pending", result.Reservation.Status)
		}
		if result.ConfirmationToken == "" {
			t.Error("expected a confirmation token")
		}
		if err := VerifyConfirmationToken(result.Reservation.ConfirmationHash, result.ConfirmationToken); err != nil {
			t.Errorf("token does not verify against stored hash: %v", err)
		}

		events := sink.Events()
		if len(events) != 1 || events[0].Type != EventReservationCreated {
			t.Errorf("events = %+v, want one reservation_created", events)
		}
		if len(store.ActivityEntries()) != 1 {
			t.Errorf("expected one activity entry")
		}
	})

	t.Run("validates required attributes", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input: ReservationInput{
				Span:         testfixtures.Span(11, 10),
				ContactEmail: "not-an-email",
			},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"room_id", "date", "time", "purpose", "attendees", "contact_email"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Errorf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects overlapping reservations", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		store.SeedReservations(testfixtures.NewReservation(
			testfixtures.WithReservationRoom(room.ID),
			testfixtures.WithReservationSpan(testfixtures.Span(10, 12)),
		))
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		input := validInput(room.ID)
		input.Span = testfixtures.Span(11, 13)
		_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     input,
		})

		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if len(cErr.Conflicts) != 1 {
			t.Errorf("conflicts = %+v, want 1", cErr.Conflicts)
		}
	})

	t.Run("back to back reservations do not conflict", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		store.SeedReservations(testfixtures.NewReservation(
			testfixtures.WithReservationRoom(room.ID),
			testfixtures.WithReservationSpan(testfixtures.Span(9, 10)),
		))
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		input := validInput(room.ID)
		input.Span = testfixtures.Span(10, 11)
		if _, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     input,
		}); err != nil {
			t.Fatalf("expected back-to-back booking to succeed, got %v", err)
		}
	})

	t.Run("rejects inactive rooms", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom(testfixtures.WithRoomInactive())
		store.SeedRooms(room)
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     validInput(room.ID),
		})
		if !errors.Is(err, ErrRoomInactive) {
			t.Fatalf("expected ErrRoomInactive, got %v", err)
		}
	})

	t.Run("rejects attendee counts above room capacity", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom(testfixtures.WithRoomCapacity(4))
		store.SeedRooms(room)
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		input := validInput(room.ID)
		input.Attendees = 10
		_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     input,
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["attendees"]; !ok {
			t.Errorf("expected attendees error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("unknown room returns not found", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     validInput("missing"),
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestReservationService_ConcurrentCreatesBookExactlyOne(t *testing.T) {
	store := testfixtures.NewMemStore()
	room := testfixtures.NewRoom()
	store.SeedRooms(room)
	svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateReservation(context.Background(), CreateReservationParams{
				Principal: Principal{UserID: "alice"},
				Input:     validInput(room.ID),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var cErr *ConflictError
				if errors.As(err, &cErr) {
					conflicts++
				}
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}
	if conflicts != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}

func TestReservationService_ConfirmReservation(t *testing.T) {
	setup := func(t *testing.T) (*ReservationService, *testfixtures.MemStore, CreateReservationResult) {
		t.Helper()
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))
		result, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     validInput(room.ID),
		})
		if err != nil {
			t.Fatalf("CreateReservation: %v", err)
		}
		return svc, store, result
	}

	t.Run("confirms with the issued token", func(t *testing.T) {
		svc, _, result := setup(t)

		confirmed, err := svc.ConfirmReservation(context.Background(), Principal{UserID: "alice"}, result.Reservation.ID, result.ConfirmationToken)
		if err != nil {
			t.Fatalf("ConfirmReservation: %v", err)
		}
		if confirmed.Status != persistence.StatusConfirmed {
			t.Errorf("status = %s, want confirmed", confirmed.Status)
		}
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		svc, _, result := setup(t)

		_, err := svc.ConfirmReservation(context.Background(), Principal{UserID: "alice"}, result.Reservation.ID, "bogus")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("rejects other users", func(t *testing.T) {
		svc, _, result := setup(t)

		_, err := svc.ConfirmReservation(context.Background(), Principal{UserID: "mallory"}, result.Reservation.ID, result.ConfirmationToken)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("rejects double confirmation", func(t *testing.T) {
		svc, _, result := setup(t)

		if _, err := svc.ConfirmReservation(context.Background(), Principal{UserID: "alice"}, result.Reservation.ID, result.ConfirmationToken); err != nil {
			t.Fatalf("first confirm: %v", err)
		}
		_, err := svc.ConfirmReservation(context.Background(), Principal{UserID: "alice"}, result.Reservation.ID, result.ConfirmationToken)
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestReservationService_CancelReservation(t *testing.T) {
	t.Run("cancel frees the slot for rebooking", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		sink := &eventSinkStub{}
		svc := newReservationService(store, sink, testfixtures.NewClock(time.Time{}))

		result, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "alice"},
			Input:     validInput(room.ID),
		})
		if err != nil {
			t.Fatalf("CreateReservation: %v", err)
		}

		cancelled, err := svc.CancelReservation(context.Background(), Principal{UserID: "alice"}, result.Reservation.ID)
		if err != nil {
			t.Fatalf("CancelReservation: %v", err)
		}
		if cancelled.Status != persistence.StatusCancelled {
			t.Errorf("status = %s, want cancelled", cancelled.Status)
		}

		if _, err := svc.CreateReservation(context.Background(), CreateReservationParams{
			Principal: Principal{UserID: "bob"},
			Input:     validInput(room.ID),
		}); err != nil {
			t.Fatalf("expected rebooking the cancelled slot to succeed, got %v", err)
		}

		events := sink.Events()
		if len(events) != 3 || events[1].Type != EventReservationCancelled {
			t.Errorf("events = %+v, want created, cancelled, created", events)
		}
	})

	t.Run("admin can cancel another user's reservation", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		store.SeedReservations(testfixtures.NewReservation(
			testfixtures.WithReservationID("res-admin"),
			testfixtures.WithReservationRoom(room.ID),
			testfixtures.WithReservationUser("alice"),
		))
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		if _, err := svc.CancelReservation(context.Background(), Principal{UserID: "root", IsAdmin: true}, "res-admin"); err != nil {
			t.Fatalf("CancelReservation as admin: %v", err)
		}
	})

	t.Run("cancelling twice is rejected", func(t *testing.T) {
		store := testfixtures.NewMemStore()
		room := testfixtures.NewRoom()
		store.SeedRooms(room)
		store.SeedReservations(testfixtures.NewReservation(
			testfixtures.WithReservationID("res-x"),
			testfixtures.WithReservationRoom(room.ID),
			testfixtures.WithReservationUser("alice"),
			testfixtures.WithReservationStatus(persistence.StatusCancelled),
		))
		svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

		_, err := svc.CancelReservation(context.Background(), Principal{UserID: "alice"}, "res-x")
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestReservationService_CheckSlot(t *testing.T) {
	store := testfixtures.NewMemStore()
	room := testfixtures.NewRoom()
	store.SeedRooms(room)
	store.SeedReservations(testfixtures.NewReservation(
		testfixtures.WithReservationRoom(room.ID),
		testfixtures.WithReservationSpan(testfixtures.Span(10, 12)),
	))
	svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

	conflicts, err := svc.CheckSlot(context.Background(), room.ID, testfixtures.ReferenceDate(), testfixtures.Span(11, 13))
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want 1", conflicts)
	}

	free, err := svc.CheckSlot(context.Background(), room.ID, testfixtures.ReferenceDate(), testfixtures.Span(12, 13))
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if len(free) != 0 {
		t.Fatalf("expected no conflicts, got %+v", free)
	}
}

func TestReservationService_ListUserReservations(t *testing.T) {
	store := testfixtures.NewMemStore()
	room := testfixtures.NewRoom()
	store.SeedRooms(room)
	store.SeedReservations(
		testfixtures.NewReservation(testfixtures.WithReservationRoom(room.ID), testfixtures.WithReservationUser("alice")),
		testfixtures.NewReservation(
			testfixtures.WithReservationRoom(room.ID),
			testfixtures.WithReservationUser("bob"),
			testfixtures.WithReservationSpan(testfixtures.Span(14, 15)),
		),
	)
	svc := newReservationService(store, nil, testfixtures.NewClock(time.Time{}))

	mine, err := svc.ListUserReservations(context.Background(), Principal{UserID: "alice"}, "", nil, nil)
	if err != nil {
		t.Fatalf("ListUserReservations: %v", err)
	}
	if len(mine) != 1 || mine[0].UserID != "alice" {
		t.Errorf("got %+v, want alice's reservation only", mine)
	}

	if _, err := svc.ListUserReservations(context.Background(), Principal{UserID: "alice"}, "bob", nil, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	theirs, err := svc.ListUserReservations(context.Background(), Principal{UserID: "root", IsAdmin: true}, "bob", nil, nil)
	if err != nil {
		t.Fatalf("ListUserReservations as admin: %v", err)
	}
	if len(theirs) != 1 || theirs[0].UserID != "bob" {
		t.Errorf("got %+v, want bob's reservation only", theirs)
	}
}
