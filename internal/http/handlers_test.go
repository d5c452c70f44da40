package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/fanout"
	"github.com/example/room-reservation/internal/persistence"
	"github.com/example/room-reservation/internal/testfixtures"
)

type testEnv struct {
	store   *testfixtures.MemStore
	clock   *testfixtures.Clock
	hub     *fanout.Hub
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvHeartbeat(t, time.Minute)
}

func newTestEnvHeartbeat(t *testing.T, roomHeartbeat time.Duration) *testEnv {
	t.Helper()

	store := testfixtures.NewMemStore()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("id")
	cache := application.NewStatusCache(32, time.Minute)
	slotLocks := application.NewSlotLocks(time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := fanout.NewHub(fanout.HubConfig{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	rooms := application.NewRoomService(store, store, hub, ids.Next, clock.NowFunc(), logger)
	reservations := application.NewReservationService(application.ReservationServiceConfig{
		Reservations: store,
		Rooms:        store,
		Activity:     store,
		Cache:        cache,
		Events:       hub,
		IDGenerator:  ids.Next,
		Now:          clock.NowFunc(),
		Logger:       logger,
		Locks:        slotLocks,
	})
	recurring := application.NewRecurringService(application.RecurringServiceConfig{
		Reservations: store,
		Patterns:     store,
		Rooms:        store,
		Activity:     store,
		Cache:        cache,
		Events:       hub,
		IDGenerator:  ids.Next,
		Now:          clock.NowFunc(),
		Logger:       logger,
		Locks:        slotLocks,
	})
	occupancy := application.NewOccupancyService(application.OccupancyServiceConfig{
		Reservations: store,
		Rooms:        store,
		Cache:        cache,
		Location:     time.UTC,
		Now:          clock.NowFunc(),
		Logger:       logger,
	})
	stats := application.NewStatsService(application.StatsServiceConfig{
		Reservations: store,
		Rooms:        store,
		Activity:     store,
		Location:     time.UTC,
		Now:          clock.NowFunc(),
		Logger:       logger,
	})

	handler := NewRouter(RouterConfig{
		Rooms:        NewRoomHandler(rooms, logger),
		Reservations: NewReservationHandler(reservations, logger),
		Recurring:    NewRecurringHandler(recurring, logger),
		Status:       NewStatusHandler(occupancy, logger),
		Stats:        NewStatsHandler(stats, logger),
		WS: NewWSHandler(WSConfig{
			Hub:           hub,
			Occupancy:     occupancy,
			RoomHeartbeat: roomHeartbeat,
		}),
		Middleware: []func(http.Handler) http.Handler{ExtractPrincipal(logger)},
	})

	return &testEnv{store: store, clock: clock, hub: hub, handler: handler}
}

var (
	asAdmin = application.Principal{UserID: "admin-001", IsAdmin: true}
	asAlice = application.Principal{UserID: "alice"}
)

func (env *testEnv) request(t *testing.T, method, path string, body any, principal application.Principal) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if principal.UserID != "" {
		req.Header.Set("X-User-ID", principal.UserID)
		if principal.IsAdmin {
			req.Header.Set("X-User-Admin", "true")
		}
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func reservationBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"room_id":       "room-001",
		"date":          testfixtures.ReferenceDate().String(),
		"start_time":    "10:00",
		"end_time":      "11:00",
		"purpose":       "Planning",
		"attendees":     4,
		"contact_email": "alice@example.com",
	}
	for key, value := range overrides {
		body[key] = value
	}
	return body
}

func TestRouter_Auth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("rejects requests without identity header", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/rooms", nil, application.Principal{})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("health endpoint needs no identity", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/healthz", nil, application.Principal{})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("unknown methods yield 405 with Allow header", func(t *testing.T) {
		rec := env.request(t, http.MethodDelete, "/rooms", nil, asAlice)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
		if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
			t.Errorf("Allow = %q, want POST included", allow)
		}
	})
}

func TestRouter_Rooms(t *testing.T) {
	env := newTestEnv(t)

	t.Run("admin creates a room", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/rooms", map[string]any{
			"name":     "Fuji",
			"building": "HQ",
			"floor":    3,
			"capacity": 8,
		}, asAdmin)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[roomResponse](t, rec)
		if resp.Room.Name != "Fuji" || !resp.Room.IsActive {
			t.Errorf("room = %+v, want active Fuji", resp.Room)
		}
	})

	t.Run("non-admin creation is forbidden", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/rooms", map[string]any{
			"name":     "Asama",
			"building": "HQ",
			"capacity": 4,
		}, asAlice)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.ErrorCode != "AUTH_FORBIDDEN" {
			t.Errorf("error_code = %q, want AUTH_FORBIDDEN", resp.ErrorCode)
		}
	})

	t.Run("invalid capacity fails validation before the service", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/rooms", map[string]any{
			"name":     "Hiei",
			"building": "HQ",
			"capacity": 0,
		}, asAdmin)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if _, ok := resp.Errors["capacity"]; !ok {
			t.Errorf("errors = %v, want capacity entry", resp.Errors)
		}
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{"))
		req.Header.Set("X-User-ID", asAdmin.UserID)
		req.Header.Set("X-User-Admin", "true")
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("anyone lists rooms", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/rooms", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[listRoomsResponse](t, rec)
		if len(resp.Rooms) != 1 {
			t.Fatalf("rooms = %d, want 1", len(resp.Rooms))
		}
	})

	t.Run("missing room is a 404", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/rooms/nope", nil, asAlice)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestRouter_ReservationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedRooms(testfixtures.NewRoom(testfixtures.WithRoomID("room-001")))

	rec := env.request(t, http.MethodPost, "/reservations", reservationBody(nil), asAlice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[createReservationResponse](t, rec)
	if created.Reservation.Status != string(persistence.StatusPending) {
		t.Errorf("status = %s, want pending", created.Reservation.Status)
	}
	if created.ConfirmationToken == "" {
		t.Fatal("confirmation token missing from create response")
	}

	t.Run("overlap is rejected with conflict details", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/reservations", reservationBody(map[string]any{
			"start_time": "10:30",
			"end_time":   "11:30",
		}), asAlice)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if resp.ErrorCode != "SLOT_CONFLICT" || len(resp.Conflicts) != 1 {
			t.Fatalf("response = %+v, want SLOT_CONFLICT with one conflict", resp)
		}
		if resp.Conflicts[0].ReservationID != created.Reservation.ID {
			t.Errorf("conflict id = %s, want %s", resp.Conflicts[0].ReservationID, created.Reservation.ID)
		}
	})

	t.Run("wrong token cannot confirm", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/reservations/"+created.Reservation.ID+"/confirm",
			map[string]any{"token": "bogus"}, asAlice)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("holder confirms with the issued token", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/reservations/"+created.Reservation.ID+"/confirm",
			map[string]any{"token": created.ConfirmationToken}, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[reservationResponse](t, rec)
		if resp.Reservation.Status != string(persistence.StatusConfirmed) {
			t.Errorf("status = %s, want confirmed", resp.Reservation.Status)
		}
	})

	t.Run("list shows the caller's reservations", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/reservations", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[listReservationsResponse](t, rec)
		if len(resp.Reservations) != 1 {
			t.Fatalf("reservations = %d, want 1", len(resp.Reservations))
		}
	})

	t.Run("availability reports the blocker", func(t *testing.T) {
		rec := env.request(t, http.MethodGet,
			"/availability?room_id=room-001&date="+testfixtures.ReferenceDate().String()+"&start_time=10:00&end_time=10:30",
			nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[availabilityResponse](t, rec)
		if resp.Available || len(resp.Conflicts) != 1 {
			t.Errorf("response = %+v, want unavailable with one conflict", resp)
		}
	})

	t.Run("holder cancels and frees the slot", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/reservations/"+created.Reservation.ID+"/cancel", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		rec = env.request(t, http.MethodGet,
			"/availability?room_id=room-001&date="+testfixtures.ReferenceDate().String()+"&start_time=10:00&end_time=11:00",
			nil, asAlice)
		resp := decodeBody[availabilityResponse](t, rec)
		if !resp.Available {
			t.Errorf("slot still blocked after cancellation: %+v", resp)
		}
	})

	t.Run("invalid date is a field error", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/reservations", reservationBody(map[string]any{
			"date": "2025/10/08",
		}), asAlice)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		resp := decodeBody[errorResponse](t, rec)
		if _, ok := resp.Errors["date"]; !ok {
			t.Errorf("errors = %v, want date entry", resp.Errors)
		}
	})
}

func TestRouter_Recurring(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedRooms(testfixtures.NewRoom(testfixtures.WithRoomID("room-001")))

	body := map[string]any{
		"room_id":       "room-001",
		"frequency":     "weekly",
		"start_date":    "2025-10-08",
		"end_date":      "2025-10-29",
		"start_time":    "10:00",
		"end_time":      "11:00",
		"purpose":       "Weekly sync",
		"attendees":     4,
		"contact_email": "alice@example.com",
	}

	t.Run("preview expands without writing", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/recurring/preview", body, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[previewDTO](t, rec)
		if resp.TotalDates != 4 || resp.Available != 4 {
			t.Errorf("preview = %+v, want 4 available dates", resp)
		}
		if resp.Dates[0].DayOfWeek != "Wednesday" {
			t.Errorf("day_of_week = %s, want Wednesday", resp.Dates[0].DayOfWeek)
		}
	})

	t.Run("create materializes every date", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/recurring", body, asAlice)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[recurringResultDTO](t, rec)
		if resp.ReservationsCreated != 4 || len(resp.Conflicts) != 0 {
			t.Fatalf("result = %+v, want 4 created and no conflicts", resp)
		}

		get := env.request(t, http.MethodGet, "/recurring/"+resp.PatternID, nil, asAlice)
		if get.Code != http.StatusOK {
			t.Fatalf("get pattern status = %d", get.Code)
		}
		pattern := decodeBody[patternResponse](t, get)
		if pattern.Pattern.Frequency != "weekly" {
			t.Errorf("frequency = %s, want weekly", pattern.Pattern.Frequency)
		}
	})

	t.Run("foreign patterns stay hidden", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/recurring", nil, application.Principal{UserID: "mallory"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[listPatternsResponse](t, rec)
		if len(resp.Patterns) != 0 {
			t.Errorf("patterns = %d, want 0 for another user", len(resp.Patterns))
		}
	})

	t.Run("unknown frequency is a field error", func(t *testing.T) {
		bad := map[string]any{}
		for k, v := range body {
			bad[k] = v
		}
		bad["frequency"] = "hourly"
		rec := env.request(t, http.MethodPost, "/recurring", bad, asAlice)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
	})
}

func TestRouter_StatusAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedRooms(testfixtures.NewRoom(testfixtures.WithRoomID("room-001")))
	env.store.SeedReservations(testfixtures.NewReservation(
		testfixtures.WithReservationRoom("room-001"),
		testfixtures.WithReservationSpan(testfixtures.Span(10, 11)),
	))
	env.clock.Set(testfixtures.ReferenceTime().Add(90 * time.Minute)) // 10:30

	t.Run("room status reports occupancy", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/rooms/room-001/status", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[roomStatusDTO](t, rec)
		if resp.Status != string(application.StatusOccupied) {
			t.Errorf("status = %s, want occupied", resp.Status)
		}
		if resp.MinutesUntilFree != 30 || resp.NextAvailable != "11:00" {
			t.Errorf("minutes = %d next = %s, want 30 / 11:00", resp.MinutesUntilFree, resp.NextAvailable)
		}
		if resp.ReservationsToday != 1 {
			t.Errorf("reservations_today = %d, want 1", resp.ReservationsToday)
		}
	})

	t.Run("overview covers the catalog", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/status/overview", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[overviewResponse](t, rec)
		if len(resp.Rooms) != 1 || resp.Rooms[0].RoomID != "room-001" {
			t.Errorf("overview = %+v, want room-001", resp.Rooms)
		}
	})

	t.Run("schedule lists the day", func(t *testing.T) {
		rec := env.request(t, http.MethodGet,
			"/rooms/room-001/schedule?date="+testfixtures.ReferenceDate().String(), nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[scheduleResponse](t, rec)
		if len(resp.Reservations) != 1 {
			t.Errorf("reservations = %d, want 1", len(resp.Reservations))
		}
	})

	t.Run("schedule without a date is a field error", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/rooms/room-001/schedule", nil, asAlice)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("dashboard aggregates the figures", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/stats/dashboard", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[dashboardDTO](t, rec)
		if resp.TotalRooms != 1 || resp.ConfirmedCount != 1 {
			t.Errorf("dashboard = %+v, want one room and one confirmed reservation", resp)
		}
	})

	t.Run("activity feed starts empty", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/activity", nil, asAlice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		resp := decodeBody[activityResponse](t, rec)
		if len(resp.Activity) != 0 {
			t.Errorf("activity = %d entries, want 0", len(resp.Activity))
		}
	})
}

func TestRouter_WebSocketRoomStream(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeedRooms(testfixtures.NewRoom(testfixtures.WithRoomID("room-001")))

	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/room-001"
	header := http.Header{"X-User-ID": []string{"alice"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v (resp %+v)", err, resp)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot wsMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != "snapshot" || snapshot.Room == nil {
		t.Fatalf("first frame = %+v, want snapshot with room", snapshot)
	}
	if snapshot.Room.Status != string(application.StatusFree) {
		t.Errorf("snapshot status = %s, want free", snapshot.Room.Status)
	}

	rec := env.request(t, http.MethodPost, "/reservations", reservationBody(nil), asAlice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var update wsMessage
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Type != "update" || update.Room == nil {
		t.Fatalf("second frame = %+v, want update with room", update)
	}
	if len(update.Room.Upcoming) != 1 {
		t.Errorf("upcoming = %d, want the new reservation", len(update.Room.Upcoming))
	}
}

func TestRouter_WebSocketHeartbeatCarriesStatus(t *testing.T) {
	env := newTestEnvHeartbeat(t, 50*time.Millisecond)
	env.store.SeedRooms(testfixtures.NewRoom(testfixtures.WithRoomID("room-001")))
	env.store.SeedReservations(testfixtures.NewReservation(
		testfixtures.WithReservationRoom("room-001"),
		testfixtures.WithReservationSpan(testfixtures.Span(10, 11)),
	))

	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/room-001"
	header := http.Header{"X-User-ID": []string{"alice"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v (resp %+v)", err, resp)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot wsMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != "snapshot" {
		t.Fatalf("first frame = %+v, want snapshot", snapshot)
	}

	// The heartbeat restates the room status, so a client that missed an
	// update still converges.
	var heartbeat wsMessage
	if err := conn.ReadJSON(&heartbeat); err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if heartbeat.Type != "heartbeat" || heartbeat.Time == "" {
		t.Fatalf("second frame = %+v, want timed heartbeat", heartbeat)
	}
	if heartbeat.Room == nil {
		t.Fatal("heartbeat carries no room status")
	}
	if heartbeat.Room.Status != string(application.StatusFree) ||
		heartbeat.Room.NextAvailable != "10:00" ||
		heartbeat.Room.ReservationsToday != 1 {
		t.Errorf("heartbeat room = %+v, want free with 10:00 next and one booking today", heartbeat.Room)
	}
}
