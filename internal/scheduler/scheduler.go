// Package scheduler runs periodic jobs on an injectable clock.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// ErrAlreadyStarted is returned when jobs are added or Start is called twice.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

type entry struct {
	name string
	next func(now time.Time) time.Time
	run  Job
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock jobs are timed against.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler runs each job on its own timer. Runs of the same job never
// overlap; different jobs are independent.
type Scheduler struct {
	clock  Clock
	logger logger.Logger

	mu      sync.Mutex
	entries []entry
	started bool
	exit    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  RealClock(),
		logger: logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every runs job each interval, the first run one interval after Start.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	return s.add(entry{
		name: name,
		next: func(now time.Time) time.Time { return now.Add(interval) },
		run:  job,
	})
}

// DailyAt runs job once a day at hour:minute in the clock's location.
func (s *Scheduler) DailyAt(name string, hour, minute int, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return errors.New("invalid time of day")
	}
	return s.add(entry{
		name: name,
		next: func(now time.Time) time.Time { return NextDaily(now, hour, minute) },
		run:  job,
	})
}

// NextDaily returns the first hour:minute strictly after now.
func NextDaily(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func (s *Scheduler) add(e entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.entries = append(s.entries, e)
	return nil
}

// Start launches every registered job. Jobs stop when ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.exit = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(runCtx, e, s.exit)
	}
	s.logger.Info(ctx, "scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels the context of in-flight runs and waits for them to return.
// The scheduler can be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.exit)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info(context.Background(), "scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, e entry, exit <-chan struct{}) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		wait := e.next(now).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-exit:
			return
		case <-s.clock.After(wait):
		}

		start := time.Now()
		err := e.run(ctx)
		took := time.Since(start)
		metrics.RecordJobDuration(e.name, float64(took.Milliseconds()))
		if err != nil {
			metrics.RecordErrorByComponent("scheduler", e.name)
			s.logger.Error(ctx, "job failed",
				logger.String("job", e.name),
				logger.Duration("took", took),
				logger.Error(err),
			)
			continue
		}
		s.logger.Debug(ctx, "job finished",
			logger.String("job", e.name),
			logger.Duration("took", took),
		)
	}
}
