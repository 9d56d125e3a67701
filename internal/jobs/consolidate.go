// Package jobs holds the periodic maintenance tasks: consolidation of stale
// interactions and the profile refresh batch.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const (
	defaultArchiveAfter     = 30 * 24 * time.Hour
	defaultArchiveMaxWeight = 0.3
)

// ConsolidationStore is what the consolidator needs from the durable store.
type ConsolidationStore interface {
	StaleInteractions(ctx context.Context, olderThan time.Time, maxWeight float64) ([]model.Interaction, error)
	InsertArchive(ctx context.Context, a model.ArchivedInteraction) (bool, error)
	DeleteInteractions(ctx context.Context, ids []string) (int, error)
}

// Pruner drops expired cache entries.
type Pruner interface {
	PruneExpired(now time.Time) int
}

// ConsolidationReport summarizes one consolidation run.
type ConsolidationReport struct {
	Selected        int `json:"selected"`
	Archived        int `json:"archived"`
	AlreadyArchived int `json:"alreadyArchived"`
	ArchiveErrors   int `json:"archiveErrors"`
	Deleted         int `json:"deleted"`
	Pruned          int `json:"pruned"`
}

// ConsolidatorOption configures a Consolidator.
type ConsolidatorOption func(*Consolidator)

// WithArchiveAfter sets the minimum age of an archived interaction.
func WithArchiveAfter(d time.Duration) ConsolidatorOption {
	return func(c *Consolidator) {
		if d > 0 {
			c.archiveAfter = d
		}
	}
}

// WithArchiveMaxWeight sets the weight an interaction must stay under to be archived.
func WithArchiveMaxWeight(w float64) ConsolidatorOption {
	return func(c *Consolidator) { c.maxWeight = w }
}

// WithConsolidatorClock replaces time.Now.
func WithConsolidatorClock(now func() time.Time) ConsolidatorOption {
	return func(c *Consolidator) {
		if now != nil {
			c.now = now
		}
	}
}

// Consolidator archives old low-value interactions and prunes the cache.
type Consolidator struct {
	store        ConsolidationStore
	cache        Pruner
	archiveAfter time.Duration
	maxWeight    float64
	now          func() time.Time
	logger       logger.Logger
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(store ConsolidationStore, cache Pruner, opts ...ConsolidatorOption) *Consolidator {
	c := &Consolidator{
		store:        store,
		cache:        cache,
		archiveAfter: defaultArchiveAfter,
		maxWeight:    defaultArchiveMaxWeight,
		now:          time.Now,
		logger:       logger.Get().Named("consolidator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one consolidation pass. The selection is taken once, so rows
// written during the run are never deleted, and only rows with an archive
// record are deleted. Running it again with nothing new to select archives
// nothing.
func (c *Consolidator) Run(ctx context.Context) (ConsolidationReport, error) {
	var report ConsolidationReport
	now := c.now()

	stale, err := c.store.StaleInteractions(ctx, now.Add(-c.archiveAfter), c.maxWeight)
	if err != nil {
		return report, fmt.Errorf("select stale interactions: %w", err)
	}
	report.Selected = len(stale)

	archived := make([]string, 0, len(stale))
	for _, in := range stale {
		created, err := c.store.InsertArchive(ctx, model.ArchivedInteraction{Interaction: in, ArchivedAt: now})
		if err != nil {
			report.ArchiveErrors++
			c.logger.Warn(ctx, "archive failed, keeping original",
				logger.String("interaction_id", in.ID),
				logger.Error(err),
			)
			continue
		}
		if created {
			report.Archived++
		} else {
			report.AlreadyArchived++
		}
		archived = append(archived, in.ID)
	}

	var deleteErr error
	if len(archived) > 0 {
		report.Deleted, deleteErr = c.store.DeleteInteractions(ctx, archived)
	}

	// The cache prune does not depend on the store delete.
	if c.cache != nil {
		report.Pruned = c.cache.PruneExpired(now)
	}

	if deleteErr != nil {
		metrics.RecordConsolidation(report.Archived, report.Deleted, report.ArchiveErrors, report.Pruned)
		return report, fmt.Errorf("delete archived interactions: %w", deleteErr)
	}

	metrics.RecordConsolidation(report.Archived, report.Deleted, report.ArchiveErrors, report.Pruned)
	c.logger.Info(ctx, "consolidation finished",
		logger.Int("selected", report.Selected),
		logger.Int("archived", report.Archived),
		logger.Int("already_archived", report.AlreadyArchived),
		logger.Int("archive_errors", report.ArchiveErrors),
		logger.Int("deleted", report.Deleted),
		logger.Int("pruned", report.Pruned),
	)
	return report, nil
}
