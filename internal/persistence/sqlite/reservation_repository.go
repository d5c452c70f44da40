package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// ReservationRepository is the SQLite implementation of
// persistence.ReservationRepository.
type ReservationRepository struct {
	pool *ConnectionPool
}

func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

const reservationColumns = `id, room_id, user_id, date, start_minute, end_minute, purpose, attendees,
	contact_email, contact_phone, status, pattern_id, confirmation_hash, created_at, updated_at`

func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	_, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reservation.ID, reservation.RoomID, reservation.UserID,
		reservation.Date.String(), int(reservation.Span.Start), int(reservation.Span.End),
		reservation.Purpose, reservation.Attendees,
		reservation.ContactEmail, nullString(reservation.ContactPhone),
		string(reservation.Status), nullString(reservation.PatternID),
		reservation.ConfirmationHash,
		formatTime(reservation.CreatedAt), formatTime(reservation.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", mapError(err))
	}
	return nil
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	row := r.pool.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	reservation, err := scanReservation(row)
	if err != nil {
		return persistence.Reservation{}, fmt.Errorf("failed to get reservation: %w", mapError(err))
	}
	return reservation, nil
}

func (r *ReservationRepository) UpdateReservationStatus(ctx context.Context, id string, status persistence.ReservationStatus, updatedAt time.Time) error {
	result, err := r.pool.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(updatedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", mapError(err))
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

func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	where, args := buildFilter(filter)
	query := `SELECT ` + reservationColumns + ` FROM reservations` + where + ` ORDER BY date, start_minute`
	return r.queryReservations(ctx, query, args...)
}

func (r *ReservationRepository) ListForRoomDate(ctx context.Context, roomID string, date interval.Date, statuses []persistence.ReservationStatus) ([]persistence.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE room_id = ? AND date = ?`
	args := []any{roomID, date.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY start_minute`
	return r.queryReservations(ctx, query, args...)
}

func (r *ReservationRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]persistence.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = ? AND created_at <= ? ORDER BY created_at`
	return r.queryReservations(ctx, query, string(persistence.StatusPending), formatTime(cutoff))
}

func (r *ReservationRepository) CountReservations(ctx context.Context, filter persistence.ReservationFilter) (int, error) {
	where, args := buildFilter(filter)
	var count int
	err := r.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", mapError(err))
	}
	return count, nil
}

func (r *ReservationRepository) PopularRooms(ctx context.Context, limit int) ([]persistence.RoomReservationCount, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT rooms.id, rooms.name, rooms.building, rooms.capacity, COUNT(reservations.id) AS reservation_count
		 FROM rooms
		 JOIN reservations ON reservations.room_id = rooms.id AND reservations.status = ?
		 GROUP BY rooms.id
		 ORDER BY reservation_count DESC, rooms.name
		 LIMIT ?`,
		string(persistence.StatusConfirmed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular rooms: %w", mapError(err))
	}
	defer rows.Close()

	var counts []persistence.RoomReservationCount
	for rows.Next() {
		var c persistence.RoomReservationCount
		if err := rows.Scan(&c.RoomID, &c.Name, &c.Building, &c.Capacity, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan room count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room counts: %w", err)
	}
	return counts, nil
}

func (r *ReservationRepository) AverageAttendees(ctx context.Context, status persistence.ReservationStatus) (float64, error) {
	var avg sql.NullFloat64
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT AVG(attendees) FROM reservations WHERE status = ?`, string(status)).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average attendees: %w", mapError(err))
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

func (r *ReservationRepository) queryReservations(ctx context.Context, query string, args ...any) ([]persistence.Reservation, error) {
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", mapError(err))
	}
	defer rows.Close()

	var reservations []persistence.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return reservations, nil
}

func buildFilter(filter persistence.ReservationFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if filter.FromDate != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.FromDate.String())
	}
	if filter.ToDate != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, filter.ToDate.String())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		reservation  persistence.Reservation
		date         string
		startMinute  int
		endMinute    int
		contactPhone sql.NullString
		status       string
		patternID    sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&reservation.ID, &reservation.RoomID, &reservation.UserID,
		&date, &startMinute, &endMinute,
		&reservation.Purpose, &reservation.Attendees,
		&reservation.ContactEmail, &contactPhone, &status, &patternID,
		&reservation.ConfirmationHash, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Reservation{}, err
	}
	if reservation.Date, err = interval.ParseDate(date); err != nil {
		return persistence.Reservation{}, err
	}
	reservation.Span = interval.Span{Start: interval.TimeOfDay(startMinute), End: interval.TimeOfDay(endMinute)}
	reservation.ContactPhone = fromNullString(contactPhone)
	reservation.Status = persistence.ReservationStatus(status)
	reservation.PatternID = fromNullString(patternID)
	if reservation.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Reservation{}, err
	}
	if reservation.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Reservation{}, err
	}
	return reservation, nil
}
