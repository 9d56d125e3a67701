// Package service wires the reputation engine together and owns the
// lifecycle of its background parts.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rally/internal/adapters/mq/queue"
	"github.com/okian/rally/internal/adapters/mq/worker"
	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/internal/domain/evaluate"
	"github.com/okian/rally/internal/domain/fragments"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/profile"
	"github.com/okian/rally/internal/domain/recorder"
	"github.com/okian/rally/internal/domain/weight"
	"github.com/okian/rally/internal/jobs"
	"github.com/okian/rally/internal/scheduler"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// Service implements the engine operations used by the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	ownsStore    bool
	deduper      dedupe.Deduper
	cache        *fragments.Cache
	recorder     *recorder.Recorder
	profiler     *profile.Profiler
	evaluators   map[evaluate.Kind]evaluate.Evaluator
	consolidator *jobs.Consolidator
	refresher    *jobs.ProfileRefresher

	// Lifecycle-bound components, rebuilt on every Start
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	cancel    context.CancelFunc

	cfg   config.Config
	clock scheduler.Clock

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every tunable from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = *cfg
		}
	}
}

// WithStore sets the durable store. The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of standing workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.WorkerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the standing queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.StandingQueueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.DedupeSize = size
		}
	}
}

// WithClock sets the time source for recording, profiles and jobs.
func WithClock(c scheduler.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without WithStore an in-memory store is used.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   *config.New(),
		clock: scheduler.RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.ownsStore = true
	}

	now := s.clock.Now
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.cache = fragments.New(
		fragments.WithTTL(s.cfg.FragmentTTL),
		fragments.WithMaxPerUser(s.cfg.FragmentsPerUser),
	)
	s.recorder = recorder.New(s.store, s.cache,
		recorder.WithClock(now),
		recorder.WithWeigher(weight.New(weight.WithTypeMultipliers(s.cfg.TypeMultipliers))),
		recorder.WithThreshold(s.cfg.StandingThreshold),
		recorder.WithPointsPerWeight(s.cfg.PointsPerWeight),
		recorder.WithPublisher(publisherFunc(s.publish)),
	)
	s.profiler = profile.New(s.store, s.store,
		profile.WithClock(now),
		profile.WithStaleAfter(s.cfg.ProfileStaleAfter),
		profile.WithHistoryLimit(s.cfg.ProfileHistoryLimit),
		profile.WithCacheSize(s.cfg.ProfileCacheSize),
	)
	s.evaluators = evaluate.Default()
	s.consolidator = jobs.NewConsolidator(s.store, s.cache,
		jobs.WithConsolidatorClock(now),
		jobs.WithArchiveAfter(s.cfg.ArchiveAfter),
		jobs.WithArchiveMaxWeight(s.cfg.ArchiveMaxWeight),
	)
	s.refresher = jobs.NewProfileRefresher(s.store, s.profiler,
		jobs.WithRefresherClock(now),
		jobs.WithBatch(s.cfg.RefreshBatch),
		jobs.WithDelay(s.cfg.RefreshDelay),
		jobs.WithActiveWindow(s.cfg.RefreshActiveWindow),
	)
	return s
}

type publisherFunc func(ctx context.Context, d model.StandingDelta) bool

func (f publisherFunc) Enqueue(ctx context.Context, d model.StandingDelta) bool { return f(ctx, d) }

// Start warms the fragment cache, starts the standing workers and schedules
// the maintenance jobs. Background work outlives ctx until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting reputation service...")

	s.warmStart(ctx)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.StandingQueueSize))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.store)
	s.pool.Start(runCtx)

	hour, minute, err := s.cfg.RefreshClock()
	if err != nil {
		cancel()
		_ = s.pool.Shutdown(ctx)
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.scheduler = scheduler.New(scheduler.WithClock(s.clock))
	if err := errors.Join(
		s.scheduler.Every("consolidation", s.cfg.ConsolidationInterval, func(ctx context.Context) error {
			_, err := s.Consolidate(ctx)
			return err
		}),
		s.scheduler.DailyAt("profile-refresh", hour, minute, func(ctx context.Context) error {
			_, err := s.RefreshProfiles(ctx)
			return err
		}),
		s.scheduler.Start(runCtx),
	); err != nil {
		cancel()
		_ = s.pool.Shutdown(ctx)
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "reputation service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.StandingQueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// warmStart is the only bulk load of the fragment cache. A failed read is
// logged; the cache then fills from new recordings.
func (s *Service) warmStart(ctx context.Context) {
	since := s.clock.Now().Add(-s.cfg.WarmStartWindow)
	rows, err := s.store.InteractionsSince(ctx, since)
	if err != nil {
		metrics.RecordErrorByComponent("service", "warm_start")
		s.logger.Warn(ctx, "warm start failed, starting with an empty cache", logger.Error(err))
		return
	}
	frags := make([]model.MemoryFragment, len(rows))
	for i, in := range rows {
		frags[i] = in.Fragment()
	}
	s.cache.Load(frags)
	stats := s.cache.Stats()
	metrics.UpdateCacheStats(stats.Users, stats.Fragments)
	s.logger.Info(ctx, "fragment cache warmed",
		logger.Int("users", stats.Users),
		logger.Int("fragments", stats.Fragments),
	)
}

// Stop halts the jobs, drains the standing queue and drops cached state.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping reputation service...")

	s.scheduler.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.cancel()

	s.cache.Clear()
	s.profiler.Purge()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "reputation service stopped")
}

func (s *Service) publish(ctx context.Context, d model.StandingDelta) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	ok := s.queue.Enqueue(ctx, d)
	if ok {
		metrics.UpdateQueueSize(s.queue.Len(ctx))
	}
	return ok
}

// RecordInteraction weighs and persists in. A failed durable write is
// returned; a dropped standing update is not.
func (s *Service) RecordInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error) {
	if !s.isStarted() {
		return model.Interaction{}, ErrNotStarted
	}
	return s.recorder.Record(ctx, in)
}

// Profile returns the user's personality profile. It never fails.
func (s *Service) Profile(ctx context.Context, userID string) model.PersonalityProfile {
	return s.profiler.Get(ctx, userID)
}

// Evaluate runs the requested evaluators in pipeline order, all of them when
// kinds is empty, and returns sub with the results attached.
func (s *Service) Evaluate(kinds []evaluate.Kind, sub evaluate.Submission) (evaluate.Submission, error) {
	want := make(map[evaluate.Kind]bool, len(kinds))
	for _, k := range kinds {
		if _, ok := s.evaluators[k]; !ok {
			return sub, fmt.Errorf("%w: %s", ErrUnknownEvaluator, k)
		}
		want[k] = true
	}
	if sub.At.IsZero() {
		sub.At = s.clock.Now()
	}

	chain := make([]evaluate.Evaluator, 0, len(evaluate.Kinds))
	for _, k := range evaluate.Kinds {
		if len(want) == 0 || want[k] {
			chain = append(chain, s.evaluators[k])
		}
	}
	sub = evaluate.Run(sub, chain...)
	for _, e := range chain {
		r := sub.Evaluations[e.Kind()]
		metrics.RecordEvaluation(string(r.Kind), verdict(r), r.Score)
	}
	return sub, nil
}

func verdict(r evaluate.Result) string {
	switch {
	case r.IsFraud:
		return "fraud"
	case r.IsSpam:
		return "spam"
	default:
		return "pass"
	}
}

// TopN returns up to n leaderboard entries, capped at the configured
// maximum. A store failure yields an empty board.
func (s *Service) TopN(ctx context.Context, n int) []model.LeaderboardEntry {
	if n > s.cfg.MaxLeaderboardLimit {
		n = s.cfg.MaxLeaderboardLimit
	}
	entries, err := s.store.TopN(ctx, n)
	if err != nil {
		metrics.RecordErrorByComponent("service", "top_n")
		s.logger.Warn(ctx, "leaderboard read failed", logger.Int("n", n), logger.Error(err))
		return []model.LeaderboardEntry{}
	}
	return entries
}

// Rank returns userID's standing. Unknown users and store failures both
// report false.
func (s *Service) Rank(ctx context.Context, userID string) (model.LeaderboardEntry, bool) {
	entry, err := s.store.Rank(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			metrics.RecordErrorByComponent("service", "rank")
			s.logger.Warn(ctx, "rank read failed", logger.String("user_id", userID), logger.Error(err))
		}
		return model.LeaderboardEntry{}, false
	}
	return entry, true
}

// Consolidate runs one consolidation pass.
func (s *Service) Consolidate(ctx context.Context) (jobs.ConsolidationReport, error) {
	start := time.Now()
	report, err := s.consolidator.Run(ctx)
	metrics.RecordJobDuration("consolidation", float64(time.Since(start).Milliseconds()))
	return report, err
}

// RefreshProfiles recomputes the profiles of recently active users.
func (s *Service) RefreshProfiles(ctx context.Context) (jobs.RefreshReport, error) {
	start := time.Now()
	report, err := s.refresher.Run(ctx)
	metrics.RecordJobDuration("profile_refresh", float64(time.Since(start).Milliseconds()))
	return report, err
}

// SeenAndRecord atomically checks if an interaction id was seen and records
// it if not. Returns true if it was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordInteractionDuplicate()
	}
	return seen
}

// Unrecord forgets an interaction id so a failed recording can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of ids held by the deduper.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	cache := s.cache.Stats()
	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.cfg.WorkerCount,
		"queueSize":       s.cfg.StandingQueueSize,
		"dedupeSize":      s.cfg.DedupeSize,
		"dedupeEntries":   s.deduper.Size(),
		"cachedUsers":     cache.Users,
		"cachedFragments": cache.Fragments,
		"cachedProfiles":  s.profiler.Len(),
	}
	metrics.UpdateCacheStats(cache.Users, cache.Fragments)

	if count, err := s.store.Count(ctx); err == nil {
		stats["rankedUsers"] = count
		metrics.UpdateLeaderboardEntries(count)
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
