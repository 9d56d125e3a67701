package simulate

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/pkg/logger"
)

// Recorder accepts interactions. The engine service satisfies it.
type Recorder interface {
	RecordInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error)
}

// Run generates a batch per cfg and feeds it to rec from cfg.Workers
// goroutines. Individual record failures are counted, not returned; the
// only error is a cancelled ctx.
func Run(ctx context.Context, rec Recorder, cfg Config) (Stats, error) {
	cfg = cfg.withDefaults()
	log := logger.Named("simulate")
	start := time.Now()

	batch := Generate(cfg, start)
	var recorded, failed atomic.Int64

	work := make(chan model.Interaction)
	eg, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		eg.Go(func() error {
			for in := range work {
				if _, err := rec.RecordInteraction(gctx, in); err != nil {
					failed.Add(1)
					log.Debug(gctx, "record failed", logger.String("id", in.ID), logger.Error(err))
					continue
				}
				recorded.Add(1)
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(work)
		for _, in := range batch {
			select {
			case work <- in:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	err := eg.Wait()
	st := Stats{
		Generated: len(batch),
		Recorded:  int(recorded.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	log.Info(ctx, "simulation finished",
		logger.Int("generated", st.Generated),
		logger.Int("recorded", st.Recorded),
		logger.Int("failed", st.Failed),
		logger.Duration("took", st.Duration),
	)
	return st, err
}
