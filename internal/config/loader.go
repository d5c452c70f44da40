package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the
// reservation service.
type Config struct {
	HTTPPort            int
	SQLiteDSN           string
	Timezone            string
	EndingSoonThreshold time.Duration
	SlotLockTimeout     time.Duration
	StatusCacheTTL      time.Duration
	StatusCacheSize     int
	StatsCacheTTL       time.Duration
	RoomHeartbeat       time.Duration
	OverviewHeartbeat   time.Duration
	PendingExpiry       time.Duration
	ActivityRetention   time.Duration
}

// Load parses configuration values from the current process environment.
// A .env file in the working directory is read first when present; real
// environment variables win over file entries.
//
// Optional fields fall back to defaults; malformed values are reported
// together rather than one at a time.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:            8080,
		SQLiteDSN:           "file:reservations.db?_foreign_keys=on",
		Timezone:            "Local",
		EndingSoonThreshold: 15 * time.Minute,
		SlotLockTimeout:     2 * time.Second,
		StatusCacheTTL:      30 * time.Second,
		StatusCacheSize:     128,
		StatsCacheTTL:       5 * time.Minute,
		RoomHeartbeat:       30 * time.Second,
		OverviewHeartbeat:   60 * time.Second,
		PendingExpiry:       15 * time.Minute,
		ActivityRetention:   90 * 24 * time.Hour,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("RESERVE_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "RESERVE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("RESERVE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if tz := strings.TrimSpace(os.Getenv("RESERVE_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "RESERVE_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"RESERVE_ENDING_SOON_THRESHOLD", &cfg.EndingSoonThreshold},
		{"RESERVE_SLOT_LOCK_TIMEOUT", &cfg.SlotLockTimeout},
		{"RESERVE_STATUS_CACHE_TTL", &cfg.StatusCacheTTL},
		{"RESERVE_STATS_CACHE_TTL", &cfg.StatsCacheTTL},
		{"RESERVE_ROOM_HEARTBEAT", &cfg.RoomHeartbeat},
		{"RESERVE_OVERVIEW_HEARTBEAT", &cfg.OverviewHeartbeat},
		{"RESERVE_PENDING_EXPIRY", &cfg.PendingExpiry},
		{"RESERVE_ACTIVITY_RETENTION", &cfg.ActivityRetention},
	}
	for _, entry := range durations {
		value := strings.TrimSpace(os.Getenv(entry.name))
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, entry.name)
			continue
		}
		*entry.target = d
	}

	if sizeValue := strings.TrimSpace(os.Getenv("RESERVE_STATUS_CACHE_SIZE")); sizeValue != "" {
		size, err := strconv.Atoi(sizeValue)
		if err != nil || size <= 0 {
			invalid = append(invalid, "RESERVE_STATUS_CACHE_SIZE")
		} else {
			cfg.StatusCacheSize = size
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
