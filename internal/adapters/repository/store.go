// Package repository defines the durable store contracts and their
// in-memory and SQLite implementations. Only single-row atomicity is assumed.
package repository

import (
	"context"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

// InteractionStore persists recorded interactions.
type InteractionStore interface {
	// InsertInteraction writes one row. A repeated id is ErrDuplicateInteraction.
	InsertInteraction(ctx context.Context, in model.Interaction) error
	// RecentInteractions returns up to limit rows for userID, newest first.
	RecentInteractions(ctx context.Context, userID string, limit int) ([]model.Interaction, error)
	// InteractionsSince returns every row at or after since, oldest first.
	InteractionsSince(ctx context.Context, since time.Time) ([]model.Interaction, error)
	// ActiveUsersSince returns up to limit distinct users with a row at or
	// after since, most recently active first.
	ActiveUsersSince(ctx context.Context, since time.Time, limit int) ([]string, error)
	// StaleInteractions returns rows older than olderThan with weight < maxWeight.
	StaleInteractions(ctx context.Context, olderThan time.Time, maxWeight float64) ([]model.Interaction, error)
	// DeleteInteractions removes rows by id and reports how many were removed.
	DeleteInteractions(ctx context.Context, ids []string) (int, error)
}

// ArchiveStore keeps consolidated interactions.
type ArchiveStore interface {
	// InsertArchive is idempotent per interaction id; it reports whether a
	// new row was written.
	InsertArchive(ctx context.Context, a model.ArchivedInteraction) (bool, error)
	// CountArchive returns the number of archived rows.
	CountArchive(ctx context.Context) (int, error)
}

// ProfileStore persists derived personality profiles.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p model.PersonalityProfile) error
	// GetProfile returns ErrNotFound for an unknown user.
	GetProfile(ctx context.Context, userID string) (model.PersonalityProfile, error)
}

// LeaderboardStore keeps ranked standings.
type LeaderboardStore interface {
	// ApplyStanding folds a delta into the user's entry, creating it if needed.
	ApplyStanding(ctx context.Context, d model.StandingDelta) (model.LeaderboardEntry, error)
	// TopN returns the top-N entries by points desc, user id asc.
	// Ties share a rank and ranks are consecutive.
	TopN(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	// Rank returns the user's ranked entry or ErrNotFound.
	Rank(ctx context.Context, userID string) (model.LeaderboardEntry, error)
	// Count returns the number of ranked users.
	Count(ctx context.Context) (int, error)
}

// Store is the full durable-store surface the engine needs.
type Store interface {
	InteractionStore
	ArchiveStore
	ProfileStore
	LeaderboardStore
	Close() error
}
