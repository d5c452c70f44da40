package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	pool, err := NewConnectionPool(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func testDate(t *testing.T, value string) interval.Date {
	t.Helper()
	d, err := interval.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

func testRoom(id string) persistence.Room {
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	return persistence.Room{
		ID:        id,
		Name:      "Conference " + id,
		Building:  "HQ",
		Floor:     2,
		Capacity:  8,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testReservation(id, roomID string, date interval.Date, start, end interval.TimeOfDay) persistence.Reservation {
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	return persistence.Reservation{
		ID:           id,
		RoomID:       roomID,
		UserID:       "user-1",
		Date:         date,
		Span:         interval.Span{Start: start, End: end},
		Purpose:      "planning",
		Attendees:    4,
		ContactEmail: "user@example.com",
		Status:       persistence.StatusConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := newTestPool(t)
	if err := Migrate(context.Background(), pool); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRoomRepository_CreateGetList(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRoomRepository(pool)
	ctx := context.Background()

	amenities := `["projector","whiteboard"]`
	room := testRoom("room-1")
	room.Amenities = &amenities
	if err := repo.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, err := repo.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != room.Name || got.Building != room.Building || got.Capacity != room.Capacity {
		t.Errorf("got %+v, want %+v", got, room)
	}
	if got.Amenities == nil || *got.Amenities != amenities {
		t.Errorf("amenities = %v, want %q", got.Amenities, amenities)
	}
	if !got.CreatedAt.Equal(room.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, room.CreatedAt)
	}

	inactive := testRoom("room-2")
	inactive.IsActive = false
	if err := repo.CreateRoom(ctx, inactive); err != nil {
		t.Fatalf("create inactive room: %v", err)
	}

	active, err := repo.ListRooms(ctx, true)
	if err != nil {
		t.Fatalf("list active rooms: %v", err)
	}
	if len(active) != 1 || active[0].ID != "room-1" {
		t.Errorf("active rooms = %+v, want only room-1", active)
	}

	all, err := repo.ListRooms(ctx, false)
	if err != nil {
		t.Fatalf("list all rooms: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all rooms = %d, want 2", len(all))
	}
}

func TestRoomRepository_GetMissingReturnsNotFound(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRoomRepository(pool)

	_, err := repo.GetRoom(context.Background(), "missing")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoomRepository_DuplicateNameInBuilding(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRoomRepository(pool)
	ctx := context.Background()

	first := testRoom("room-1")
	if err := repo.CreateRoom(ctx, first); err != nil {
		t.Fatalf("create room: %v", err)
	}
	second := testRoom("room-2")
	second.Name = first.Name
	if err := repo.CreateRoom(ctx, second); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRoomRepository_Update(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRoomRepository(pool)
	ctx := context.Background()

	room := testRoom("room-1")
	if err := repo.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	room.Capacity = 12
	room.IsActive = false
	room.UpdatedAt = room.UpdatedAt.Add(time.Hour)
	if err := repo.UpdateRoom(ctx, room); err != nil {
		t.Fatalf("update room: %v", err)
	}

	got, err := repo.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Capacity != 12 || got.IsActive {
		t.Errorf("update not applied: %+v", got)
	}

	missing := testRoom("missing")
	if err := repo.UpdateRoom(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReservationRepository_ListForRoomDate(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewReservationRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := rooms.CreateRoom(ctx, testRoom("room-2")); err != nil {
		t.Fatalf("create room: %v", err)
	}

	day := testDate(t, "2025-10-08")
	otherDay := testDate(t, "2025-10-09")

	late := testReservation("res-late", "room-1", day, 14*60, 15*60)
	early := testReservation("res-early", "room-1", day, 9*60, 10*60)
	cancelled := testReservation("res-cancelled", "room-1", day, 11*60, 12*60)
	cancelled.Status = persistence.StatusCancelled
	otherRoom := testReservation("res-other-room", "room-2", day, 9*60, 10*60)
	nextDay := testReservation("res-next-day", "room-1", otherDay, 9*60, 10*60)

	for _, res := range []persistence.Reservation{late, early, cancelled, otherRoom, nextDay} {
		if err := repo.CreateReservation(ctx, res); err != nil {
			t.Fatalf("create reservation %s: %v", res.ID, err)
		}
	}

	got, err := repo.ListForRoomDate(ctx, "room-1", day, persistence.ActiveStatuses)
	if err != nil {
		t.Fatalf("list for room date: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d reservations, want 2: %+v", len(got), got)
	}
	if got[0].ID != "res-early" || got[1].ID != "res-late" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}

	all, err := repo.ListForRoomDate(ctx, "room-1", day, nil)
	if err != nil {
		t.Fatalf("list without status filter: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d reservations, want 3", len(all))
	}
}

func TestReservationRepository_RejectsUnknownRoom(t *testing.T) {
	pool := newTestPool(t)
	repo := NewReservationRepository(pool)

	res := testReservation("res-1", "no-such-room", testDate(t, "2025-10-08"), 9*60, 10*60)
	err := repo.CreateReservation(context.Background(), res)
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestReservationRepository_UpdateStatus(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewReservationRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}
	res := testReservation("res-1", "room-1", testDate(t, "2025-10-08"), 9*60, 10*60)
	res.Status = persistence.StatusPending
	if err := repo.CreateReservation(ctx, res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	later := res.CreatedAt.Add(10 * time.Minute)
	if err := repo.UpdateReservationStatus(ctx, "res-1", persistence.StatusConfirmed, later); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := repo.GetReservation(ctx, "res-1")
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if got.Status != persistence.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, later)
	}

	err = repo.UpdateReservationStatus(ctx, "missing", persistence.StatusCancelled, later)
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReservationRepository_ListPendingCreatedBefore(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewReservationRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}

	base := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)
	day := testDate(t, "2025-10-08")

	stale := testReservation("res-stale", "room-1", day, 9*60, 10*60)
	stale.Status = persistence.StatusPending
	stale.CreatedAt = base.Add(-20 * time.Minute)

	fresh := testReservation("res-fresh", "room-1", day, 10*60, 11*60)
	fresh.Status = persistence.StatusPending
	fresh.CreatedAt = base.Add(-5 * time.Minute)

	confirmed := testReservation("res-confirmed", "room-1", day, 11*60, 12*60)
	confirmed.CreatedAt = base.Add(-30 * time.Minute)

	for _, res := range []persistence.Reservation{stale, fresh, confirmed} {
		if err := repo.CreateReservation(ctx, res); err != nil {
			t.Fatalf("create reservation %s: %v", res.ID, err)
		}
	}

	got, err := repo.ListPendingCreatedBefore(ctx, base.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(got) != 1 || got[0].ID != "res-stale" {
		t.Fatalf("got %+v, want only res-stale", got)
	}
}

func TestReservationRepository_FilterAndCount(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewReservationRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}

	first := testReservation("res-1", "room-1", testDate(t, "2025-10-08"), 9*60, 10*60)
	second := testReservation("res-2", "room-1", testDate(t, "2025-10-15"), 9*60, 10*60)
	second.UserID = "user-2"

	for _, res := range []persistence.Reservation{first, second} {
		if err := repo.CreateReservation(ctx, res); err != nil {
			t.Fatalf("create reservation %s: %v", res.ID, err)
		}
	}

	from := testDate(t, "2025-10-10")
	got, err := repo.ListReservations(ctx, persistence.ReservationFilter{FromDate: &from})
	if err != nil {
		t.Fatalf("list with from date: %v", err)
	}
	if len(got) != 1 || got[0].ID != "res-2" {
		t.Errorf("got %+v, want only res-2", got)
	}

	count, err := repo.CountReservations(ctx, persistence.ReservationFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestReservationRepository_PopularRoomsAndAverage(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewReservationRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := rooms.CreateRoom(ctx, testRoom("room-2")); err != nil {
		t.Fatalf("create room: %v", err)
	}

	day := testDate(t, "2025-10-08")
	first := testReservation("res-1", "room-1", day, 9*60, 10*60)
	first.Attendees = 2
	second := testReservation("res-2", "room-1", day, 10*60, 11*60)
	second.Attendees = 6
	third := testReservation("res-3", "room-2", day, 9*60, 10*60)
	third.Attendees = 4

	for _, res := range []persistence.Reservation{first, second, third} {
		if err := repo.CreateReservation(ctx, res); err != nil {
			t.Fatalf("create reservation %s: %v", res.ID, err)
		}
	}

	popular, err := repo.PopularRooms(ctx, 5)
	if err != nil {
		t.Fatalf("popular rooms: %v", err)
	}
	if len(popular) != 2 {
		t.Fatalf("got %d rooms, want 2", len(popular))
	}
	if popular[0].RoomID != "room-1" || popular[0].Count != 2 {
		t.Errorf("top room = %+v, want room-1 with 2", popular[0])
	}

	avg, err := repo.AverageAttendees(ctx, persistence.StatusConfirmed)
	if err != nil {
		t.Fatalf("average attendees: %v", err)
	}
	if avg != 4 {
		t.Errorf("avg = %f, want 4", avg)
	}
}

func TestPatternRepository_CreateGetList(t *testing.T) {
	pool := newTestPool(t)
	rooms := NewRoomRepository(pool)
	repo := NewPatternRepository(pool)
	ctx := context.Background()

	if err := rooms.CreateRoom(ctx, testRoom("room-1")); err != nil {
		t.Fatalf("create room: %v", err)
	}

	pattern := persistence.RecurringPattern{
		ID:           "pat-1",
		RoomID:       "room-1",
		UserID:       "user-1",
		Frequency:    "weekly",
		StartDate:    testDate(t, "2025-10-08"),
		EndDate:      testDate(t, "2025-12-31"),
		Span:         interval.Span{Start: 9 * 60, End: 10 * 60},
		Purpose:      "standup",
		Attendees:    5,
		ContactEmail: "user@example.com",
		IsActive:     true,
		CreatedAt:    time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := repo.CreatePattern(ctx, pattern); err != nil {
		t.Fatalf("create pattern: %v", err)
	}

	got, err := repo.GetPattern(ctx, "pat-1")
	if err != nil {
		t.Fatalf("get pattern: %v", err)
	}
	if got.Frequency != "weekly" || got.StartDate.String() != "2025-10-08" || got.Span.Start != 9*60 {
		t.Errorf("got %+v", got)
	}

	list, err := repo.ListPatternsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d patterns, want 1", len(list))
	}

	if _, err := repo.GetPattern(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityRepository_AppendListDelete(t *testing.T) {
	pool := newTestPool(t)
	repo := NewActivityRepository(pool)
	ctx := context.Background()

	base := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)
	roomID := "room-1"
	for i, entry := range []persistence.ActivityEntry{
		{ID: "act-1", UserID: "user-1", Action: "reservation_created", RoomID: &roomID, Description: "booked", CreatedAt: base},
		{ID: "act-2", UserID: "user-1", Action: "reservation_cancelled", Description: "cancelled", CreatedAt: base.Add(time.Hour)},
		{ID: "act-3", UserID: "user-2", Action: "room_created", Description: "added", CreatedAt: base.Add(2 * time.Hour)},
	} {
		if err := repo.AppendActivity(ctx, entry); err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
	}

	recent, err := repo.ListRecentActivity(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].ID != "act-3" || recent[1].ID != "act-2" {
		t.Errorf("wrong order: %s, %s", recent[0].ID, recent[1].ID)
	}

	deleted, err := repo.DeleteActivityBefore(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
