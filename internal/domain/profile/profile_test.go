package profile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/profile"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var base = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func interactions(user string, t model.InteractionType, n int, weight, sentiment float64) []model.Interaction {
	out := make([]model.Interaction, n)
	for i := range out {
		out[i] = model.Interaction{
			ID:             fmt.Sprintf("%s-%s-%d", user, t, i),
			UserID:         user,
			Type:           t,
			Weight:         weight,
			SentimentScore: sentiment,
			Timestamp:      base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

type countingHistory struct {
	mu    sync.Mutex
	rows  []model.Interaction
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (h *countingHistory) RecentInteractions(_ context.Context, _ string, limit int) ([]model.Interaction, error) {
	h.calls.Add(1)
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.rows) {
		return h.rows[:limit], nil
	}
	return h.rows, nil
}

func TestDerive(t *testing.T) {
	Convey("Given no history", t, func() {
		p := profile.Derive("u-1", nil, base)

		Convey("The default new_user profile is returned", func() {
			So(p.EngagementStyle, ShouldEqual, profile.StyleNewUser)
			So(p.Traits, ShouldResemble, []string{profile.TraitNewMember})
			So(p.ReliabilityScore, ShouldEqual, 0.5)
			So(p.LeadershipPotential, ShouldEqual, 0.5)
			So(p.CommunicationTone, ShouldEqual, profile.ToneNeutral)
			So(p.LastUpdated, ShouldEqual, base)
		})
	})

	Convey("Given a raid leader", t, func() {
		history := interactions("u-1", model.RaidInitiation, 3, 2.5, 0.6)
		p := profile.Derive("u-1", history, base)

		Convey("Leader style wins and traits follow the thresholds", func() {
			So(p.EngagementStyle, ShouldEqual, profile.StyleLeader)
			So(p.HasTrait(profile.TraitRaidLeader), ShouldBeTrue)
			So(p.ReliabilityScore, ShouldEqual, 1.0)
			So(p.HasTrait(profile.TraitReliable), ShouldBeTrue)
			So(p.CommunicationTone, ShouldEqual, profile.TonePositive)
			So(p.HasTrait(profile.TraitPositiveInfluence), ShouldBeTrue)
			So(p.InteractionPatterns[model.RaidInitiation], ShouldEqual, 3)
			So(p.ActivityLevel, ShouldEqual, profile.LevelLow)
		})
	})

	Convey("Given an active raider with many raids", t, func() {
		history := interactions("u-2", model.RaidParticipation, 21, 2, 0)
		p := profile.Derive("u-2", history, base)

		Convey("The raider is active, a veteran and highly active", func() {
			So(p.EngagementStyle, ShouldEqual, profile.StyleActiveParticipant)
			So(p.HasTrait(profile.TraitActiveRaider), ShouldBeTrue)
			So(p.HasTrait(profile.TraitRaidVeteran), ShouldBeTrue)
			So(p.ActivityLevel, ShouldEqual, profile.LevelHigh)
		})
	})

	Convey("Given quality engagement outnumbering raids", t, func() {
		history := append(
			interactions("u-3", model.QualityEngagement, 6, 0.5, -0.5),
			interactions("u-3", model.ToxicBehavior, 2, -0.5, -0.5)...,
		)
		p := profile.Derive("u-3", history, base)

		Convey("The user is quality focused with a negative tone", func() {
			So(p.EngagementStyle, ShouldEqual, profile.StyleQualityFocused)
			So(p.HasTrait(profile.TraitQualityContributor), ShouldBeTrue)
			So(p.CommunicationTone, ShouldEqual, profile.ToneNegative)
			So(p.ReliabilityScore, ShouldEqual, 0.0)
			So(p.ActivityLevel, ShouldEqual, profile.LevelModerate)
		})
	})

	Convey("Given a helpful mentor", t, func() {
		history := append(
			interactions("u-4", model.CommunityHelp, 6, 2.5, 0),
			interactions("u-4", model.MentorBehavior, 20, 3, 0)...,
		)
		p := profile.Derive("u-4", history, base)

		Convey("Contribution is high and leadership is capped at one", func() {
			So(p.EngagementStyle, ShouldEqual, profile.StyleBalanced)
			So(p.CommunityContribution, ShouldEqual, profile.LevelHigh)
			So(p.HasTrait(profile.TraitHelpful), ShouldBeTrue)
			So(p.LeadershipPotential, ShouldAlmostEqual, 0.8, 1e-9)
			So(p.HasTrait(profile.TraitLeader), ShouldBeTrue)
		})
	})

	Convey("Given a single community help", t, func() {
		p := profile.Derive("u-5", interactions("u-5", model.CommunityHelp, 1, 0.5, 0), base)

		Convey("Contribution is moderate", func() {
			So(p.CommunityContribution, ShouldEqual, profile.LevelModerate)
			So(p.Traits, ShouldBeEmpty)
		})
	})

	Convey("Given history older than the activity window", t, func() {
		history := interactions("u-6", model.CasualChat, 10, 0.5, 0)
		p := profile.Derive("u-6", history, base.Add(30*24*time.Hour))

		Convey("Activity is low", func() {
			So(p.ActivityLevel, ShouldEqual, profile.LevelLow)
		})
	})
}

func TestProfiler(t *testing.T) {
	ctx := context.Background()

	Convey("Given a profiler with a manual clock", t, func() {
		now := base
		clock := func() time.Time { return now }
		store := repository.NewMemoryStore()
		history := &countingHistory{rows: interactions("u-1", model.RaidInitiation, 3, 2.5, 0)}
		p := profile.New(history, store, profile.WithClock(clock))

		Convey("A fresh cached profile is served without reading history", func() {
			first := p.Get(ctx, "u-1")
			So(first.EngagementStyle, ShouldEqual, profile.StyleLeader)
			now = now.Add(23 * time.Hour)
			second := p.Get(ctx, "u-1")
			So(second.LastUpdated, ShouldEqual, first.LastUpdated)
			So(history.calls.Load(), ShouldEqual, 1)
		})

		Convey("A profile older than 24h is recomputed", func() {
			p.Get(ctx, "u-1")
			now = now.Add(25 * time.Hour)
			again := p.Get(ctx, "u-1")
			So(again.LastUpdated, ShouldEqual, now)
			So(history.calls.Load(), ShouldEqual, 2)
		})

		Convey("The recomputed profile is persisted", func() {
			p.Get(ctx, "u-1")
			stored, err := store.GetProfile(ctx, "u-1")
			So(err, ShouldBeNil)
			So(stored.EngagementStyle, ShouldEqual, profile.StyleLeader)
		})

		Convey("A fresh persisted profile is reused after a restart", func() {
			p.Get(ctx, "u-1")
			restarted := profile.New(history, store, profile.WithClock(clock))
			got := restarted.Get(ctx, "u-1")
			So(got.EngagementStyle, ShouldEqual, profile.StyleLeader)
			So(history.calls.Load(), ShouldEqual, 1)
		})

		Convey("A user without history gets the cached default", func() {
			empty := &countingHistory{}
			q := profile.New(empty, store, profile.WithClock(clock))
			got := q.Get(ctx, "nobody")
			So(got.EngagementStyle, ShouldEqual, profile.StyleNewUser)
			q.Get(ctx, "nobody")
			So(empty.calls.Load(), ShouldEqual, 1)
		})

		Convey("A history read failure serves the default without caching it", func() {
			history.err = errors.New("store down")
			got := p.Get(ctx, "u-1")
			So(got.EngagementStyle, ShouldEqual, profile.StyleNewUser)
			So(p.Len(), ShouldEqual, 0)

			history.err = nil
			got = p.Get(ctx, "u-1")
			So(got.EngagementStyle, ShouldEqual, profile.StyleLeader)
		})

		Convey("Refresh reports a failed history read", func() {
			history.err = errors.New("store down")
			_, err := p.Refresh(ctx, "u-1")
			So(err, ShouldNotBeNil)
		})

		Convey("Refresh recomputes a fresh profile", func() {
			p.Get(ctx, "u-1")
			now = now.Add(time.Minute)
			got, err := p.Refresh(ctx, "u-1")
			So(err, ShouldBeNil)
			So(got.LastUpdated, ShouldEqual, now)
			So(history.calls.Load(), ShouldEqual, 2)
		})

		Convey("Purge empties the cache", func() {
			p.Get(ctx, "u-1")
			So(p.Len(), ShouldEqual, 1)
			p.Purge()
			So(p.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given concurrent readers of a stale profile", t, func() {
		gate := make(chan struct{})
		history := &countingHistory{rows: interactions("u-1", model.BugReport, 2, 1.8, 0), gate: gate}
		p := profile.New(history, repository.NewMemoryStore(), profile.WithClock(func() time.Time { return base }))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Get(ctx, "u-1")
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		Convey("History is read far fewer times than there were readers", func() {
			So(history.calls.Load(), ShouldBeLessThan, 8)
		})
	})
}
