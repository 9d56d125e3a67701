// Package recorder validates, weighs and persists interactions.
//
// The durable write is the commit point: the fragment cache is touched only
// after it succeeds and a failed write is returned to the caller. Standing
// updates are published afterwards on a best-effort basis.
package recorder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/standing"
	"github.com/okian/rally/internal/domain/weight"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

// DefaultStandingThreshold is the weight an interaction must exceed to move standing.
const DefaultStandingThreshold = 2.0

// Writer persists interactions.
type Writer interface {
	InsertInteraction(ctx context.Context, in model.Interaction) error
}

// Cache receives fragments of persisted interactions.
type Cache interface {
	Append(f model.MemoryFragment)
}

// Publisher hands standing deltas to the asynchronous updater. It reports
// whether the delta was accepted.
type Publisher interface {
	Enqueue(ctx context.Context, d model.StandingDelta) bool
}

// Weigher scores an interaction.
type Weigher interface {
	Weight(in model.Interaction, now time.Time) float64
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithThreshold sets the weight above which standing is updated.
func WithThreshold(threshold float64) Option {
	return func(r *Recorder) {
		if threshold >= 0 {
			r.threshold = threshold
		}
	}
}

// WithPointsPerWeight sets the weight to points conversion rate.
func WithPointsPerWeight(rate float64) Option {
	return func(r *Recorder) {
		if rate > 0 {
			r.pointsPerWeight = rate
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithWeigher replaces the default weight policy.
func WithWeigher(w Weigher) Option {
	return func(r *Recorder) {
		if w != nil {
			r.weigher = w
		}
	}
}

// WithPublisher sets where standing deltas go. Without one no standing
// updates are published.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder records interactions.
type Recorder struct {
	store           Writer
	cache           Cache
	publisher       Publisher
	weigher         Weigher
	threshold       float64
	pointsPerWeight float64
	now             func() time.Time
	logger          logger.Logger
}

// New creates a Recorder writing to store and cache.
func New(store Writer, cache Cache, opts ...Option) *Recorder {
	r := &Recorder{
		store:           store,
		cache:           cache,
		weigher:         weight.New(),
		threshold:       DefaultStandingThreshold,
		pointsPerWeight: standing.DefaultPointsPerWeight,
		now:             time.Now,
		logger:          logger.Get().Named("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record normalizes, weighs and persists raw, returning the stored form.
func (r *Recorder) Record(ctx context.Context, raw model.Interaction) (model.Interaction, error) {
	in, err := r.normalize(raw)
	if err != nil {
		metrics.RecordInteractionError()
		return model.Interaction{}, err
	}
	in.Weight = r.weigher.Weight(in, r.now())

	if err := r.store.InsertInteraction(ctx, in); err != nil {
		metrics.RecordInteractionError()
		metrics.RecordErrorByComponent("recorder", "persist")
		r.logger.Error(ctx, "persist interaction failed",
			logger.String("interaction_id", in.ID),
			logger.String("user_id", in.UserID),
			logger.Error(err),
		)
		return model.Interaction{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	r.cache.Append(in.Fragment())
	metrics.RecordInteraction(string(in.Type), in.Weight)

	if in.Weight > r.threshold {
		r.publish(ctx, in)
	}
	return in, nil
}

// publish never fails the caller; a dropped delta is only logged and counted.
func (r *Recorder) publish(ctx context.Context, in model.Interaction) {
	if r.publisher == nil {
		return
	}
	d := standing.DeltaFor(in, r.pointsPerWeight)
	if !r.publisher.Enqueue(ctx, d) {
		metrics.RecordStandingDropped()
		r.logger.Warn(ctx, "standing update dropped",
			logger.String("interaction_id", in.ID),
			logger.String("user_id", in.UserID),
			logger.Int64("points", d.Points),
		)
		return
	}
	metrics.RecordStandingPublished()
}

func (r *Recorder) normalize(raw model.Interaction) (model.Interaction, error) {
	in := raw
	in.UserID = strings.TrimSpace(in.UserID)
	in.Type = model.InteractionType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	switch {
	case in.UserID == "":
		return model.Interaction{}, fmt.Errorf("%w: userId is required", ErrInvalidInteraction)
	case in.Type == "":
		return model.Interaction{}, fmt.Errorf("%w: type is required", ErrInvalidInteraction)
	case math.IsNaN(in.SentimentScore):
		return model.Interaction{}, fmt.Errorf("%w: sentimentScore is not a number", ErrInvalidInteraction)
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = r.now()
	}
	in.Timestamp = in.Timestamp.UTC()
	in.SentimentScore = math.Max(-1, math.Min(1, in.SentimentScore))
	ctx := make(map[string]any, len(raw.Context))
	for k, v := range raw.Context {
		ctx[k] = v
	}
	in.Context = ctx
	return in, nil
}
