package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/config"
	"github.com/okian/rally/internal/domain/evaluate"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/scheduler"
	"github.com/okian/rally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var epoch = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["queueSize"], ShouldEqual, 50_000)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(1_000),
			service.WithDedupeSize(25_000),
		)

		Convey("Then the options are reflected in stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 1_000)
			So(stats["dedupeSize"], ShouldEqual, 25_000)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))
		defer svc.Stop()

		Convey("Recording before Start is refused", func() {
			_, err := svc.RecordInteraction(context.Background(), model.Interaction{UserID: "u", Type: model.BugReport})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)

			Convey("It is marked as started and Start is idempotent", func() {
				So(svc.GetStats()["started"], ShouldEqual, true)
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("Cancelling the start context does not stop background work", func() {
				cancel()
				in, err := svc.RecordInteraction(context.Background(), model.Interaction{
					UserID:  "u-1",
					Type:    model.MentorBehavior,
					Content: "walked a newcomer through the setup",
				})
				So(err, ShouldBeNil)
				So(eventually(func() bool {
					_, ok := svc.Rank(context.Background(), in.UserID)
					return ok
				}), ShouldBeTrue)
			})

			Convey("Stop marks it stopped and clears the caches", func() {
				_, err := svc.RecordInteraction(ctx, model.Interaction{UserID: "u-1", Type: model.CasualChat})
				So(err, ShouldBeNil)
				svc.Profile(ctx, "u-1")
				So(svc.GetStats()["cachedFragments"], ShouldEqual, 1)

				svc.Stop()
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
				So(stats["cachedFragments"], ShouldEqual, 0)
				So(stats["cachedProfiles"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_RecordAndStanding(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		clock := scheduler.NewManualClock(epoch)
		svc := service.New(service.WithWorkerCount(2), service.WithClock(clock))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Heavy interactions reach the leaderboard with dense ranks", func() {
			heavy := model.Interaction{Type: model.MentorBehavior, Content: "walked a newcomer through the setup"}
			for _, user := range []string{"alice", "bob"} {
				in := heavy
				in.UserID = user
				_, err := svc.RecordInteraction(ctx, in)
				So(err, ShouldBeNil)
			}
			in := heavy
			in.UserID = "carol"
			in.Type = model.RaidInitiation
			_, err := svc.RecordInteraction(ctx, in)
			So(err, ShouldBeNil)

			So(eventually(func() bool { return len(svc.TopN(ctx, 10)) == 3 }), ShouldBeTrue)
			top := svc.TopN(ctx, 10)
			So(top[0].UserID, ShouldEqual, "alice")
			So(top[0].Rank, ShouldEqual, 1)
			So(top[1].UserID, ShouldEqual, "bob")
			So(top[1].Rank, ShouldEqual, 1)
			So(top[2].UserID, ShouldEqual, "carol")
			So(top[2].Rank, ShouldEqual, 2)
			So(top[2].RaidsParticipated, ShouldEqual, 1)
		})

		Convey("Light interactions are stored but do not rank", func() {
			_, err := svc.RecordInteraction(ctx, model.Interaction{UserID: "dave", Type: model.CasualChat, Content: "hi"})
			So(err, ShouldBeNil)
			time.Sleep(20 * time.Millisecond)
			_, ok := svc.Rank(ctx, "dave")
			So(ok, ShouldBeFalse)
		})

		Convey("Invalid interactions are rejected", func() {
			_, err := svc.RecordInteraction(ctx, model.Interaction{Type: model.CasualChat})
			So(err, ShouldNotBeNil)
		})

		Convey("A new user's profile is the default", func() {
			p := svc.Profile(ctx, "stranger")
			So(p.EngagementStyle, ShouldEqual, "new_user")
			So(p.Traits, ShouldResemble, []string{"new_member"})
			So(p.ReliabilityScore, ShouldEqual, 0.5)
		})

		Convey("Duplicate ids are detected by the deduper", func() {
			So(svc.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			So(svc.SeenAndRecord(ctx, "evt-1"), ShouldBeTrue)
			svc.Unrecord(ctx, "evt-1")
			So(svc.SeenAndRecord(ctx, "evt-1"), ShouldBeFalse)
			So(svc.Size(), ShouldEqual, 1)
		})
	})
}

func TestService_Evaluate(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New()
		sub := evaluate.Submission{
			Text: "CLICK HERE!!! Free giveaway, follow me and buy now!",
			Engagement: &evaluate.Engagement{
				ActionType: "comment",
				Evidence:   "some-screenshot-string",
			},
		}

		Convey("No kinds runs the whole pipeline", func() {
			out, err := svc.Evaluate(nil, sub)
			So(err, ShouldBeNil)
			So(out.Evaluations, ShouldHaveLength, len(evaluate.Kinds))
			So(out.Evaluations[evaluate.KindSpam].IsSpam, ShouldBeTrue)
			So(out.Evaluations[evaluate.KindQuality].Score, ShouldAlmostEqual, 0.85, 1e-9)
			So(out.At.IsZero(), ShouldBeFalse)
		})

		Convey("A subset runs only what was asked", func() {
			out, err := svc.Evaluate([]evaluate.Kind{evaluate.KindSpam}, sub)
			So(err, ShouldBeNil)
			So(out.Evaluations, ShouldHaveLength, 1)
			So(out.Text, ShouldEqual, sub.Text)
		})

		Convey("An unknown kind is an error", func() {
			_, err := svc.Evaluate([]evaluate.Kind{"vibes"}, sub)
			So(errors.Is(err, service.ErrUnknownEvaluator), ShouldBeTrue)
		})
	})
}

func TestService_WarmStartAndJobs(t *testing.T) {
	Convey("Given a store with history", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		rows := []model.Interaction{
			{ID: "recent-1", UserID: "u-1", Type: model.CasualChat, Weight: 0.4, Timestamp: epoch.Add(-time.Hour)},
			{ID: "recent-2", UserID: "u-2", Type: model.BugReport, Weight: 1.8, Timestamp: epoch.Add(-48 * time.Hour)},
			{ID: "stale", UserID: "u-1", Type: model.CasualChat, Weight: 0.1, Timestamp: epoch.Add(-40 * 24 * time.Hour)},
		}
		for _, in := range rows {
			So(store.InsertInteraction(ctx, in), ShouldBeNil)
		}
		cfg := config.New()
		cfg.RefreshDelay = 0
		clock := scheduler.NewManualClock(epoch)
		svc := service.New(service.WithConfig(cfg), service.WithStore(store), service.WithClock(clock), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Start loads only the warm window into the cache", func() {
			So(svc.GetStats()["cachedFragments"], ShouldEqual, 2)
			So(svc.GetStats()["cachedUsers"], ShouldEqual, 2)
		})

		Convey("The scheduled consolidation archives stale rows", func() {
			So(eventually(func() bool { return clock.Waiters() >= 2 }), ShouldBeTrue)
			clock.Advance(cfg.ConsolidationInterval)
			So(eventually(func() bool {
				n, _ := store.CountArchive(ctx)
				return n == 1
			}), ShouldBeTrue)
		})

		Convey("Consolidation on demand is idempotent", func() {
			first, err := svc.Consolidate(ctx)
			So(err, ShouldBeNil)
			So(first.Archived, ShouldEqual, 1)
			second, err := svc.Consolidate(ctx)
			So(err, ShouldBeNil)
			So(second.Archived, ShouldEqual, 0)
			n, _ := store.CountArchive(ctx)
			So(n, ShouldEqual, 1)
		})

		Convey("Profile refresh covers active users", func() {
			report, err := svc.RefreshProfiles(ctx)
			So(err, ShouldBeNil)
			So(report.Candidates, ShouldEqual, 2)
			So(report.Refreshed, ShouldEqual, 2)
			p, err := store.GetProfile(ctx, "u-2")
			So(err, ShouldBeNil)
			So(p.InteractionPatterns[model.BugReport], ShouldEqual, 1)
		})
	})
}

func TestService_StopDuringRefresh(t *testing.T) {
	Convey("Given a service whose daily refresh is pacing through many users", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		users := make([]string, 10)
		for i := range users {
			users[i] = fmt.Sprintf("active-%d", i)
			in := model.Interaction{
				ID: "in-" + users[i], UserID: users[i], Type: model.CommunityHelp,
				Weight: 1, Timestamp: epoch.Add(-time.Hour),
			}
			So(store.InsertInteraction(ctx, in), ShouldBeNil)
		}
		cfg := config.New()
		cfg.RefreshDelay = 5 * time.Second
		clock := scheduler.NewManualClock(epoch)
		svc := service.New(service.WithConfig(cfg), service.WithStore(store), service.WithClock(clock), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)

		So(eventually(func() bool { return clock.Waiters() >= 2 }), ShouldBeTrue)
		clock.Advance(17 * time.Hour)
		So(eventually(func() bool {
			for _, u := range users {
				if _, err := store.GetProfile(ctx, u); err == nil {
					return true
				}
			}
			return false
		}), ShouldBeTrue)

		Convey("Stop cancels the run instead of waiting it out", func() {
			start := time.Now()
			svc.Stop()
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)

			refreshed := 0
			for _, u := range users {
				if _, err := store.GetProfile(ctx, u); err == nil {
					refreshed++
				}
			}
			So(refreshed, ShouldBeLessThan, len(users))
		})
	})
}
