package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/room-reservation/internal/persistence"
)

// RoomRepository is the SQLite implementation of persistence.RoomRepository.
type RoomRepository struct {
	pool *ConnectionPool
}

func NewRoomRepository(pool *ConnectionPool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `id, name, building, floor, capacity, amenities, is_active, created_at, updated_at`

func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	_, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.Building, room.Floor, room.Capacity,
		nullString(room.Amenities), boolToInt(room.IsActive),
		formatTime(room.CreatedAt), formatTime(room.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", mapError(err))
	}
	return nil
}

func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room) error {
	result, err := r.pool.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, building = ?, floor = ?, capacity = ?, amenities = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		room.Name, room.Building, room.Floor, room.Capacity,
		nullString(room.Amenities), boolToInt(room.IsActive),
		formatTime(room.UpdatedAt), room.ID)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", mapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	row := r.pool.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		return persistence.Room{}, fmt.Errorf("failed to get room: %w", mapError(err))
	}
	return room, nil
}

func (r *RoomRepository) ListRooms(ctx context.Context, activeOnly bool) ([]persistence.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY building, name`

	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", mapError(err))
	}
	defer rows.Close()

	var rooms []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	return rooms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room      persistence.Room
		amenities sql.NullString
		isActive  int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&room.ID, &room.Name, &room.Building, &room.Floor,
		&room.Capacity, &amenities, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Room{}, err
	}
	room.Amenities = fromNullString(amenities)
	room.IsActive = isActive != 0
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Room{}, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
