package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const (
	defaultRefreshBatch = 100
	defaultRefreshDelay = 250 * time.Millisecond
	defaultActiveWindow = 30 * 24 * time.Hour
)

// ActiveUsers lists users with recent interactions.
type ActiveUsers interface {
	ActiveUsersSince(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// ProfileRefresh recomputes a single user's profile.
type ProfileRefresh interface {
	Refresh(ctx context.Context, userID string) (model.PersonalityProfile, error)
}

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	Candidates int `json:"candidates"`
	Refreshed  int `json:"refreshed"`
	Failed     int `json:"failed"`
}

// RefresherOption configures a ProfileRefresher.
type RefresherOption func(*ProfileRefresher)

// WithBatch caps the number of profiles refreshed per run.
func WithBatch(n int) RefresherOption {
	return func(r *ProfileRefresher) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithDelay sets the pause between two refreshes. Zero disables pacing.
func WithDelay(d time.Duration) RefresherOption {
	return func(r *ProfileRefresher) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithActiveWindow sets how far back a user counts as active.
func WithActiveWindow(d time.Duration) RefresherOption {
	return func(r *ProfileRefresher) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithRefresherClock replaces time.Now.
func WithRefresherClock(now func() time.Time) RefresherOption {
	return func(r *ProfileRefresher) {
		if now != nil {
			r.now = now
		}
	}
}

// ProfileRefresher recomputes the profiles of recently active users.
type ProfileRefresher struct {
	users    ActiveUsers
	profiles ProfileRefresh
	batch    int
	delay    time.Duration
	window   time.Duration
	now      func() time.Time
	logger   logger.Logger
}

// NewProfileRefresher creates a ProfileRefresher.
func NewProfileRefresher(users ActiveUsers, profiles ProfileRefresh, opts ...RefresherOption) *ProfileRefresher {
	r := &ProfileRefresher{
		users:    users,
		profiles: profiles,
		batch:    defaultRefreshBatch,
		delay:    defaultRefreshDelay,
		window:   defaultActiveWindow,
		now:      time.Now,
		logger:   logger.Get().Named("profile-refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes up to the batch size of active users. A failing user is
// logged and skipped; only a failed user listing or a cancelled context
// ends the run early.
func (r *ProfileRefresher) Run(ctx context.Context) (RefreshReport, error) {
	var report RefreshReport
	users, err := r.users.ActiveUsersSince(ctx, r.now().Add(-r.window), r.batch)
	if err != nil {
		return report, fmt.Errorf("list active users: %w", err)
	}
	report.Candidates = len(users)

	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, userID := range users {
		if err := limiter.Wait(ctx); err != nil {
			metrics.RecordProfileRefresh(report.Refreshed, report.Failed)
			return report, fmt.Errorf("wait for rate limiter: %w", err)
		}
		if _, err := r.profiles.Refresh(ctx, userID); err != nil {
			report.Failed++
			r.logger.Warn(ctx, "profile refresh failed",
				logger.String("user_id", userID),
				logger.Error(err),
			)
			continue
		}
		report.Refreshed++
	}

	metrics.RecordProfileRefresh(report.Refreshed, report.Failed)
	r.logger.Info(ctx, "profile refresh finished",
		logger.Int("candidates", report.Candidates),
		logger.Int("refreshed", report.Refreshed),
		logger.Int("failed", report.Failed),
	)
	return report, nil
}
