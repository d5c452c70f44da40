package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema change applied exactly once.
type migration struct {
	version int
	name    string
	apply   string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create rooms",
		apply: `CREATE TABLE rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			building TEXT NOT NULL,
			floor INTEGER NOT NULL,
			capacity INTEGER NOT NULL CHECK (capacity > 0),
			amenities TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (building, name)
		)`,
	},
	{
		version: 2,
		name:    "create recurring patterns",
		apply: `CREATE TABLE recurring_patterns (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			user_id TEXT NOT NULL,
			frequency TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL CHECK (end_minute > start_minute),
			purpose TEXT NOT NULL,
			attendees INTEGER NOT NULL,
			contact_email TEXT NOT NULL,
			contact_phone TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
	},
	{
		version: 3,
		name:    "create reservations",
		apply: `CREATE TABLE reservations (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL CHECK (end_minute > start_minute),
			purpose TEXT NOT NULL,
			attendees INTEGER NOT NULL,
			contact_email TEXT NOT NULL,
			contact_phone TEXT,
			status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled')),
			pattern_id TEXT REFERENCES recurring_patterns(id),
			confirmation_hash TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	},
	{
		version: 4,
		name:    "index reservations by room and date",
		apply:   `CREATE INDEX idx_reservations_room_date ON reservations (room_id, date, start_minute)`,
	},
	{
		version: 5,
		name:    "index reservations by user",
		apply:   `CREATE INDEX idx_reservations_user ON reservations (user_id, date)`,
	},
	{
		version: 6,
		name:    "index reservations by status and creation time",
		apply:   `CREATE INDEX idx_reservations_status_created ON reservations (status, created_at)`,
	},
	{
		version: 7,
		name:    "create activity log",
		apply: `CREATE TABLE activity_log (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			room_id TEXT,
			reservation_id TEXT,
			description TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	},
	{
		version: 8,
		name:    "index activity log by creation time",
		apply:   `CREATE INDEX idx_activity_created ON activity_log (created_at)`,
	},
}

// Migrate brings the schema up to the latest version. Each migration runs in
// its own transaction and records itself in schema_migrations, so a partially
// migrated database resumes where it stopped.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := pool.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate migrations: %w", err)
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.apply); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
