// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with production defaults.
//   - Load(ctx) layers defaults, an optional YAML file and RALLY_* env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the durable store backend: sqlite or memory.
	Store string `koanf:"store"`
	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// StandingQueueSize bounds the in-memory standing delta queue.
	StandingQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of standing workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many interaction ids the HTTP layer remembers.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// StandingThreshold is the weight an interaction must exceed to move standing.
	StandingThreshold float64 `koanf:"standing_threshold"`
	// PointsPerWeight converts an interaction weight into leaderboard points.
	PointsPerWeight float64 `koanf:"points_per_weight"`
	// TypeMultipliers overrides entries of the default per-type weight table.
	TypeMultipliers map[string]float64 `koanf:"type_multipliers"`

	// ProfileStaleAfter is the age at which a cached profile is recomputed.
	ProfileStaleAfter time.Duration `koanf:"profile_stale_after"`
	// ProfileHistoryLimit is the number of recent interactions a profile is derived from.
	ProfileHistoryLimit int `koanf:"profile_history_limit"`
	// ProfileCacheSize bounds the number of cached profiles.
	ProfileCacheSize int `koanf:"profile_cache_size"`

	// FragmentTTL is how long a memory fragment stays in the per-user cache.
	FragmentTTL time.Duration `koanf:"fragment_ttl"`
	// FragmentsPerUser caps a single user's bucket.
	FragmentsPerUser int `koanf:"fragments_per_user"`
	// WarmStartWindow is how much history is bulk-loaded into the cache at start.
	WarmStartWindow time.Duration `koanf:"warm_start_window"`

	// ConsolidationInterval is the period of the consolidation job.
	ConsolidationInterval time.Duration `koanf:"consolidation_interval"`
	// ArchiveAfter is the minimum age of an interaction eligible for archival.
	ArchiveAfter time.Duration `koanf:"archive_after"`
	// ArchiveMaxWeight is the exclusive weight ceiling for archival.
	ArchiveMaxWeight float64 `koanf:"archive_max_weight"`

	// RefreshAt is the daily wall-clock time (HH:MM, UTC) of the profile refresh.
	RefreshAt string `koanf:"refresh_at"`
	// RefreshBatch caps the profiles recomputed per refresh run.
	RefreshBatch int `koanf:"refresh_batch"`
	// RefreshDelay spaces consecutive profile recomputes.
	RefreshDelay time.Duration `koanf:"refresh_delay"`
	// RefreshActiveWindow selects users active within this window.
	RefreshActiveWindow time.Duration `koanf:"refresh_active_window"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		Store:                 StoreSQLite,
		DBPath:                "rally.db",
		StandingQueueSize:     50_000,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            100_000,
		MaxLeaderboardLimit:   100,
		StandingThreshold:     2.0,
		PointsPerWeight:       10,
		TypeMultipliers:       map[string]float64{},
		ProfileStaleAfter:     24 * time.Hour,
		ProfileHistoryLimit:   200,
		ProfileCacheSize:      50_000,
		FragmentTTL:           24 * time.Hour,
		FragmentsPerUser:      500,
		WarmStartWindow:       7 * 24 * time.Hour,
		ConsolidationInterval: 6 * time.Hour,
		ArchiveAfter:          30 * 24 * time.Hour,
		ArchiveMaxWeight:      0.3,
		RefreshAt:             "04:00",
		RefreshBatch:          100,
		RefreshDelay:          250 * time.Millisecond,
		RefreshActiveWindow:   30 * 24 * time.Hour,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreSQLite && c.Store != StoreMemory:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreSQLite, StoreMemory, c.Store)
	case c.Store == StoreSQLite && c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty for the sqlite store", ErrInvalidConfig)
	case c.StandingThreshold < 0:
		return fmt.Errorf("%w: standing_threshold must not be negative", ErrInvalidConfig)
	case c.ProfileStaleAfter <= 0:
		return fmt.Errorf("%w: profile_stale_after must be positive", ErrInvalidConfig)
	case c.ConsolidationInterval <= 0:
		return fmt.Errorf("%w: consolidation_interval must be positive", ErrInvalidConfig)
	case c.RefreshDelay < 0:
		return fmt.Errorf("%w: refresh_delay must not be negative", ErrInvalidConfig)
	}
	if _, _, err := c.RefreshClock(); err != nil {
		return err
	}
	return nil
}

// RefreshClock parses RefreshAt into hour and minute.
func (c *Config) RefreshClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.RefreshAt)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: refresh_at must be HH:MM: %w", ErrInvalidConfig, err)
	}
	return t.Hour(), t.Minute(), nil
}
