package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/room-reservation/internal/persistence"
)

// ActivityRepository is the SQLite implementation of persistence.ActivityRepository.
type ActivityRepository struct {
	pool *ConnectionPool
}

func NewActivityRepository(pool *ConnectionPool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	_, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, user_id, action, room_id, reservation_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action,
		nullString(entry.RoomID), nullString(entry.ReservationID),
		entry.Description, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", mapError(err))
	}
	return nil
}

func (r *ActivityRepository) ListRecentActivity(ctx context.Context, limit int) ([]persistence.ActivityEntry, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT id, user_id, action, room_id, reservation_id, description, created_at
		 FROM activity_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", mapError(err))
	}
	defer rows.Close()

	var entries []persistence.ActivityEntry
	for rows.Next() {
		var (
			entry         persistence.ActivityEntry
			roomID        sql.NullString
			reservationID sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action,
			&roomID, &reservationID, &entry.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entry.RoomID = fromNullString(roomID)
		entry.ReservationID = fromNullString(reservationID)
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity entries: %w", err)
	}
	return entries, nil
}

func (r *ActivityRepository) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx,
		`DELETE FROM activity_log WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete activity entries: %w", mapError(err))
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}
	return deleted, nil
}
