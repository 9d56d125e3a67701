// Package profile derives and caches behavioral profiles from a user's
// interaction history.
//
// Reads never fail: a history read error yields the default profile, which
// is returned uncached so the next read tries again.
package profile

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const (
	defaultStaleAfter   = 24 * time.Hour
	defaultHistoryLimit = 200
	defaultCacheSize    = 50_000
)

// History reads a user's recent interactions, newest first.
type History interface {
	RecentInteractions(ctx context.Context, userID string, limit int) ([]model.Interaction, error)
}

// Profiles persists derived profiles.
type Profiles interface {
	UpsertProfile(ctx context.Context, p model.PersonalityProfile) error
	GetProfile(ctx context.Context, userID string) (model.PersonalityProfile, error)
}

// Option applies a configuration option to the Profiler.
type Option func(*Profiler)

// WithStaleAfter sets how long a profile is served before recompute.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Profiler) {
		if d > 0 {
			p.staleAfter = d
		}
	}
}

// WithHistoryLimit sets how many recent interactions feed a profile.
func WithHistoryLimit(n int) Option {
	return func(p *Profiler) {
		if n > 0 {
			p.historyLimit = n
		}
	}
}

// WithCacheSize bounds the number of cached profiles.
func WithCacheSize(n int) Option {
	return func(p *Profiler) {
		if n > 0 {
			p.cacheSize = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}

// Profiler serves cached profiles and recomputes stale ones.
type Profiler struct {
	history  History
	profiles Profiles

	cache  *lru.Cache[string, model.PersonalityProfile]
	flight singleflight.Group

	staleAfter   time.Duration
	historyLimit int
	cacheSize    int
	now          func() time.Time
	logger       logger.Logger
}

// New creates a Profiler.
func New(history History, profiles Profiles, opts ...Option) *Profiler {
	p := &Profiler{
		history:      history,
		profiles:     profiles,
		staleAfter:   defaultStaleAfter,
		historyLimit: defaultHistoryLimit,
		cacheSize:    defaultCacheSize,
		now:          time.Now,
		logger:       logger.Get().Named("profiler"),
	}
	for _, opt := range opts {
		opt(p)
	}
	// lru.New only fails for a non-positive size.
	p.cache, _ = lru.New[string, model.PersonalityProfile](p.cacheSize)
	return p
}

// Get returns userID's profile, recomputing it once the cached copy is stale.
func (p *Profiler) Get(ctx context.Context, userID string) model.PersonalityProfile {
	now := p.now()
	if cached, ok := p.cache.Get(userID); ok && p.fresh(cached, now) {
		metrics.RecordProfileCacheHit()
		return cached
	}
	metrics.RecordProfileCacheMiss()

	if stored, err := p.profiles.GetProfile(ctx, userID); err == nil && p.fresh(stored, now) {
		p.cache.Add(userID, stored)
		return stored
	}

	prof, err := p.recompute(ctx, userID)
	if err != nil {
		metrics.RecordProfileFallback()
		p.logger.Warn(ctx, "profile recompute failed, serving default",
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return Default(userID, now)
	}
	return prof.PersonalityProfile
}

// Refresh recomputes userID's profile regardless of staleness. Unlike Get it
// reports a failed history read or a failed write of the new profile.
func (p *Profiler) Refresh(ctx context.Context, userID string) (model.PersonalityProfile, error) {
	prof, err := p.recompute(ctx, userID)
	if err != nil {
		return model.PersonalityProfile{}, err
	}
	if prof.persistErr != nil {
		return prof.PersonalityProfile, fmt.Errorf("persist profile: %w", prof.persistErr)
	}
	return prof.PersonalityProfile, nil
}

// Purge drops every cached profile.
func (p *Profiler) Purge() {
	p.cache.Purge()
}

// Len returns the number of cached profiles.
func (p *Profiler) Len() int {
	return p.cache.Len()
}

func (p *Profiler) fresh(prof model.PersonalityProfile, now time.Time) bool {
	return now.Sub(prof.LastUpdated) < p.staleAfter
}

type recomputed struct {
	model.PersonalityProfile
	persistErr error
}

// recompute collapses concurrent recomputes for the same user.
func (p *Profiler) recompute(ctx context.Context, userID string) (recomputed, error) {
	v, err, _ := p.flight.Do(userID, func() (any, error) {
		history, err := p.history.RecentInteractions(ctx, userID, p.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		metrics.RecordProfileRecompute()
		out := recomputed{PersonalityProfile: Derive(userID, history, p.now())}
		if err := p.profiles.UpsertProfile(ctx, out.PersonalityProfile); err != nil {
			out.persistErr = err
			metrics.RecordErrorByComponent("profiler", "upsert")
			p.logger.Error(ctx, "persist profile failed",
				logger.String("user_id", userID),
				logger.Error(err),
			)
		}
		p.cache.Add(userID, out.PersonalityProfile)
		return out, nil
	})
	if err != nil {
		return recomputed{}, err
	}
	return v.(recomputed), nil
}
