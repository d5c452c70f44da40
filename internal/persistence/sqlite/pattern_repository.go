package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/room-reservation/internal/interval"
	"github.com/example/room-reservation/internal/persistence"
)

// PatternRepository is the SQLite implementation of persistence.PatternRepository.
type PatternRepository struct {
	pool *ConnectionPool
}

func NewPatternRepository(pool *ConnectionPool) *PatternRepository {
	return &PatternRepository{pool: pool}
}

const patternColumns = `id, room_id, user_id, frequency, start_date, end_date, start_minute, end_minute,
	purpose, attendees, contact_email, contact_phone, is_active, created_at`

func (r *PatternRepository) CreatePattern(ctx context.Context, pattern persistence.RecurringPattern) error {
	_, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO recurring_patterns (`+patternColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pattern.ID, pattern.RoomID, pattern.UserID, pattern.Frequency,
		pattern.StartDate.String(), pattern.EndDate.String(),
		int(pattern.Span.Start), int(pattern.Span.End),
		pattern.Purpose, pattern.Attendees,
		pattern.ContactEmail, nullString(pattern.ContactPhone),
		boolToInt(pattern.IsActive), formatTime(pattern.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pattern: %w", mapError(err))
	}
	return nil
}

func (r *PatternRepository) GetPattern(ctx context.Context, id string) (persistence.RecurringPattern, error) {
	row := r.pool.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM recurring_patterns WHERE id = ?`, id)
	pattern, err := scanPattern(row)
	if err != nil {
		return persistence.RecurringPattern{}, fmt.Errorf("failed to get pattern: %w", mapError(err))
	}
	return pattern, nil
}

func (r *PatternRepository) ListPatternsForUser(ctx context.Context, userID string) ([]persistence.RecurringPattern, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM recurring_patterns WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", mapError(err))
	}
	defer rows.Close()

	var patterns []persistence.RecurringPattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patterns: %w", err)
	}
	return patterns, nil
}

func scanPattern(row rowScanner) (persistence.RecurringPattern, error) {
	var (
		pattern      persistence.RecurringPattern
		startDate    string
		endDate      string
		startMinute  int
		endMinute    int
		contactPhone sql.NullString
		isActive     int
		createdAt    string
	)
	err := row.Scan(&pattern.ID, &pattern.RoomID, &pattern.UserID, &pattern.Frequency,
		&startDate, &endDate, &startMinute, &endMinute,
		&pattern.Purpose, &pattern.Attendees,
		&pattern.ContactEmail, &contactPhone, &isActive, &createdAt)
	if err != nil {
		return persistence.RecurringPattern{}, err
	}
	if pattern.StartDate, err = interval.ParseDate(startDate); err != nil {
		return persistence.RecurringPattern{}, err
	}
	if pattern.EndDate, err = interval.ParseDate(endDate); err != nil {
		return persistence.RecurringPattern{}, err
	}
	pattern.Span = interval.Span{Start: interval.TimeOfDay(startMinute), End: interval.TimeOfDay(endMinute)}
	pattern.ContactPhone = fromNullString(contactPhone)
	pattern.IsActive = isActive != 0
	if pattern.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.RecurringPattern{}, err
	}
	return pattern, nil
}
