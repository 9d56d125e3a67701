package simulate

import "time"

// Config holds configuration for a simulated run.
type Config struct {
	Users        int           // Number of distinct users
	Interactions int           // Number of interactions to record
	Workers      int           // Number of concurrent recorders
	Seed         int64         // Generator seed; 0 picks a random one
	Span         time.Duration // How far back timestamps may reach
}

// Stats holds run statistics.
type Stats struct {
	Generated int
	Recorded  int
	Failed    int
	Duration  time.Duration
}

// Default run settings.
const (
	DefaultUsers        = 50
	DefaultInteractions = 1_000
	DefaultWorkers      = 8
	DefaultSpan         = 14 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.Users < 1 {
		c.Users = DefaultUsers
	}
	if c.Interactions < 0 {
		c.Interactions = DefaultInteractions
	}
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.Span <= 0 {
		c.Span = DefaultSpan
	}
	return c
}
