package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// MemStore is an in-memory implementation of the persistence repositories for
// tests that exercise service logic without a database.
type MemStore struct {
	mu           sync.RWMutex
	rooms        map[string]persistence.Room
	reservations map[string]persistence.Reservation
	patterns     map[string]persistence.RecurringPattern
	activity     []persistence.ActivityEntry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rooms:        make(map[string]persistence.Room),
		reservations: make(map[string]persistence.Reservation),
		patterns:     make(map[string]persistence.RecurringPattern),
	}
}

// SeedRooms inserts rooms without going through validation.
func (m *MemStore) SeedRooms(rooms ...persistence.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range rooms {
		m.rooms[room.ID] = room
	}
}

// SeedReservations inserts reservations without going through validation.
func (m *MemStore) SeedReservations(reservations ...persistence.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range reservations {
		m.reservations[res.ID] = res
	}
}

// CreateRoom implements persistence.RoomRepository.
func (m *MemStore) CreateRoom(ctx context.Context, room persistence.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.ID]; exists {
		return persistence.ErrDuplicate
	}
	for _, existing := range m.rooms {
		if existing.Building == room.Building && existing.Name == room.Name {
			return persistence.ErrDuplicate
		}
	}
	m.rooms[room.ID] = room
	return nil
}

// UpdateRoom implements persistence.RoomRepository.
func (m *MemStore) UpdateRoom(ctx context.Context, room persistence.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.ID]; !exists {
		return persistence.ErrNotFound
	}
	m.rooms[room.ID] = room
	return nil
}

// GetRoom implements persistence.RoomRepository.
func (m *MemStore) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

// ListRooms implements persistence.RoomRepository.
func (m *MemStore) ListRooms(ctx context.Context, activeOnly bool) ([]persistence.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rooms []persistence.Room
	for _, room := range m.rooms {
		if activeOnly && !room.IsActive {
			continue
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Building == rooms[j].Building {
			return rooms[i].Name < rooms[j].Name
		}
		return rooms[i].Building < rooms[j].Building
	})
	return rooms, nil
}

// CreateReservation implements persistence.ReservationRepository.
func (m *MemStore) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reservations[reservation.ID]; exists {
		return persistence.ErrDuplicate
	}
	if _, exists := m.rooms[reservation.RoomID]; !exists {
		return persistence.ErrForeignKeyViolation
	}
	m.reservations[reservation.ID] = reservation
	return nil
}

// GetReservation implements persistence.ReservationRepository.
func (m *MemStore) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reservation, ok := m.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return reservation, nil
}

// UpdateReservationStatus implements persistence.ReservationRepository.
func (m *MemStore) UpdateReservationStatus(ctx context.Context, id string, status persistence.ReservationStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[id]
	if !ok {
		return persistence.ErrNotFound
	}
	reservation.Status = status
	reservation.UpdatedAt = updatedAt
	m.reservations[id] = reservation
	return nil
}

// ListReservations implements persistence.ReservationRepository.
func (m *MemStore) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []persistence.Reservation
	for _, res := range m.reservations {
		if matchesFilter(res, filter) {
			out = append(out, res)
		}
	}
	sortReservations(out)
	return out, nil
}

// ListForRoomDate implements persistence.ReservationRepository.
func (m *MemStore) ListForRoomDate(ctx context.Context, roomID string, date interval.Date, statuses []persistence.ReservationStatus) ([]persistence.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []persistence.Reservation
	for _, res := range m.reservations {
		if res.RoomID != roomID || res.Date.Compare(date) != 0 {
			continue
		}
		if len(statuses) > 0 && !statusIn(res.Status, statuses) {
			continue
		}
		out = append(out, res)
	}
	sortReservations(out)
	return out, nil
}

// ListPendingCreatedBefore implements persistence.ReservationRepository.
func (m *MemStore) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]persistence.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []persistence.Reservation
	for _, res := range m.reservations {
		if res.Status == persistence.StatusPending && !res.CreatedAt.After(cutoff) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountReservations implements persistence.ReservationRepository.
func (m *MemStore) CountReservations(ctx context.Context, filter persistence.ReservationFilter) (int, error) {
	reservations, err := m.ListReservations(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(reservations), nil
}

// PopularRooms implements persistence.ReservationRepository.
func (m *MemStore) PopularRooms(ctx context.Context, limit int) ([]persistence.RoomReservationCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, res := range m.reservations {
		if res.Status == persistence.StatusConfirmed {
			counts[res.RoomID]++
		}
	}
	var out []persistence.RoomReservationCount
	for roomID, count := range counts {
		room := m.rooms[roomID]
		out = append(out, persistence.RoomReservationCount{
			RoomID:   roomID,
			Name:     room.Name,
			Building: room.Building,
			Capacity: room.Capacity,
			Count:    count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Name < out[j].Name
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AverageAttendees implements persistence.ReservationRepository.
func (m *MemStore) AverageAttendees(ctx context.Context, status persistence.ReservationStatus) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum, count int
	for _, res := range m.reservations {
		if res.Status == status {
			sum += res.Attendees
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return float64(sum) / float64(count), nil
}

// CreatePattern implements persistence.PatternRepository.
func (m *MemStore) CreatePattern(ctx context.Context, pattern persistence.RecurringPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.patterns[pattern.ID]; exists {
		return persistence.ErrDuplicate
	}
	if _, exists := m.rooms[pattern.RoomID]; !exists {
		return persistence.ErrForeignKeyViolation
	}
	m.patterns[pattern.ID] = pattern
	return nil
}

// GetPattern implements persistence.PatternRepository.
func (m *MemStore) GetPattern(ctx context.Context, id string) (persistence.RecurringPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pattern, ok := m.patterns[id]
	if !ok {
		return persistence.RecurringPattern{}, persistence.ErrNotFound
	}
	return pattern, nil
}

// ListPatternsForUser implements persistence.PatternRepository.
func (m *MemStore) ListPatternsForUser(ctx context.Context, userID string) ([]persistence.RecurringPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []persistence.RecurringPattern
	for _, pattern := range m.patterns {
		if pattern.UserID == userID {
			out = append(out, pattern)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AppendActivity implements persistence.ActivityRepository.
func (m *MemStore) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, entry)
	return nil
}

// ListRecentActivity implements persistence.ActivityRepository.
func (m *MemStore) ListRecentActivity(ctx context.Context, limit int) ([]persistence.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.ActivityEntry, len(m.activity))
	copy(out, m.activity)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteActivityBefore implements persistence.ActivityRepository.
func (m *MemStore) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []persistence.ActivityEntry
	var deleted int64
	for _, entry := range m.activity {
		if entry.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	m.activity = kept
	return deleted, nil
}

// ActivityEntries returns a copy of the recorded activity log, oldest first.
func (m *MemStore) ActivityEntries() []persistence.ActivityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.ActivityEntry, len(m.activity))
	copy(out, m.activity)
	return out
}

func matchesFilter(res persistence.Reservation, filter persistence.ReservationFilter) bool {
	if filter.RoomID != "" && res.RoomID != filter.RoomID {
		return false
	}
	if filter.UserID != "" && res.UserID != filter.UserID {
		return false
	}
	if len(filter.Statuses) > 0 && !statusIn(res.Status, filter.Statuses) {
		return false
	}
	if filter.FromDate != nil && res.Date.Before(*filter.FromDate) {
		return false
	}
	if filter.ToDate != nil && res.Date.After(*filter.ToDate) {
		return false
	}
	return true
}

func statusIn(status persistence.ReservationStatus, statuses []persistence.ReservationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortReservations(reservations []persistence.Reservation) {
	sort.Slice(reservations, func(i, j int) bool {
		if cmp := reservations[i].Date.Compare(reservations[j].Date); cmp != 0 {
			return cmp < 0
		}
		if reservations[i].Span.Start != reservations[j].Span.Start {
			return reservations[i].Span.Start < reservations[j].Span.Start
		}
		return reservations[i].ID < reservations[j].ID
	})
}
