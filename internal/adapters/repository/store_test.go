package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/rally/internal/adapters/repository"
	"github.com/okian/rally/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

type factory func(t *testing.T) repository.Store

func stores() map[string]factory {
	return map[string]factory{
		"memory": func(*testing.T) repository.Store { return repository.NewMemoryStore() },
		"sqlite": func(t *testing.T) repository.Store {
			s, err := repository.OpenSQLite(context.Background(), ":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func interaction(id, user string, typ model.InteractionType, weight float64, ts time.Time) model.Interaction {
	return model.Interaction{
		ID:        id,
		UserID:    user,
		Username:  user + "-name",
		Type:      typ,
		Content:   "content of " + id,
		Context:   map[string]any{"helps_newbie": true},
		Weight:    weight,
		Timestamp: ts,
	}
}

func TestStore_Interactions(t *testing.T) {
	for name, open := range stores() {
		Convey("Given a "+name+" store with interactions", t, func() {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			So(s.InsertInteraction(ctx, interaction("a", "u-1", model.CasualChat, 0.1, t0.Add(-40*24*time.Hour))), ShouldBeNil)
			So(s.InsertInteraction(ctx, interaction("b", "u-1", model.CommunityHelp, 2.5, t0.Add(-time.Hour))), ShouldBeNil)
			So(s.InsertInteraction(ctx, interaction("c", "u-1", model.BugReport, 0.2, t0.Add(-2*time.Hour))), ShouldBeNil)
			So(s.InsertInteraction(ctx, interaction("d", "u-2", model.CasualChat, 0.25, t0.Add(-35*24*time.Hour))), ShouldBeNil)

			Convey("When inserting a duplicate id", func() {
				err := s.InsertInteraction(ctx, interaction("a", "u-9", model.CasualChat, 1, t0))

				Convey("Then it should be rejected", func() {
					So(errors.Is(err, repository.ErrDuplicateInteraction), ShouldBeTrue)
				})
			})

			Convey("When reading a user's recent interactions", func() {
				got, err := s.RecentInteractions(ctx, "u-1", 2)

				Convey("Then they should be newest first and round-trip fields", func() {
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 2)
					So(got[0].ID, ShouldEqual, "b")
					So(got[1].ID, ShouldEqual, "c")
					So(got[0].Type, ShouldEqual, model.CommunityHelp)
					So(got[0].Weight, ShouldEqual, 2.5)
					So(got[0].Timestamp.Equal(t0.Add(-time.Hour)), ShouldBeTrue)
					So(got[0].Context["helps_newbie"], ShouldEqual, true)
				})
			})

			Convey("When reading interactions since a point in time", func() {
				got, err := s.InteractionsSince(ctx, t0.Add(-3*time.Hour))

				Convey("Then only newer rows should come back oldest first", func() {
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 2)
					So(got[0].ID, ShouldEqual, "c")
					So(got[1].ID, ShouldEqual, "b")
				})
			})

			Convey("When listing active users", func() {
				users, err := s.ActiveUsersSince(ctx, t0.Add(-36*24*time.Hour), 10)
				capped, _ := s.ActiveUsersSince(ctx, t0.Add(-36*24*time.Hour), 1)

				Convey("Then users should be distinct and most recent first", func() {
					So(err, ShouldBeNil)
					So(users, ShouldResemble, []string{"u-1", "u-2"})
					So(capped, ShouldResemble, []string{"u-1"})
				})
			})

			Convey("When selecting stale low-weight rows", func() {
				got, err := s.StaleInteractions(ctx, t0.Add(-30*24*time.Hour), 0.3)

				Convey("Then only old rows under the ceiling should match", func() {
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 2)
					So(got[0].ID, ShouldEqual, "d")
					So(got[1].ID, ShouldEqual, "a")
				})

				Convey("And they are deleted", func() {
					n, err := s.DeleteInteractions(ctx, []string{"a", "d", "missing"})
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 2)
					left, _ := s.StaleInteractions(ctx, t0.Add(-30*24*time.Hour), 0.3)
					So(left, ShouldBeEmpty)
				})
			})
		})
	}
}

func TestStore_Archive(t *testing.T) {
	for name, open := range stores() {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			a := model.ArchivedInteraction{Interaction: interaction("a", "u-1", model.CasualChat, 0.1, t0), ArchivedAt: t0}

			Convey("When archiving the same interaction twice", func() {
				first, err1 := s.InsertArchive(ctx, a)
				second, err2 := s.InsertArchive(ctx, a)
				n, _ := s.CountArchive(ctx)

				Convey("Then only one archive row should exist", func() {
					So(err1, ShouldBeNil)
					So(err2, ShouldBeNil)
					So(first, ShouldBeTrue)
					So(second, ShouldBeFalse)
					So(n, ShouldEqual, 1)
				})
			})
		})
	}
}

func TestStore_Profiles(t *testing.T) {
	for name, open := range stores() {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			Convey("When reading an unknown profile", func() {
				_, err := s.GetProfile(ctx, "nobody")

				Convey("Then it should be not found", func() {
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When upserting a profile twice", func() {
				p := model.PersonalityProfile{
					UserID:                "u-1",
					EngagementStyle:       "balanced",
					CommunicationTone:     "neutral",
					ActivityLevel:         "low",
					CommunityContribution: "moderate",
					ReliabilityScore:      0.4,
					LeadershipPotential:   0.1,
					Traits:                []string{"helpful"},
					InteractionPatterns:   map[model.InteractionType]int{model.CommunityHelp: 2},
					LastUpdated:           t0,
				}
				So(s.UpsertProfile(ctx, p), ShouldBeNil)
				p.EngagementStyle = "leader"
				p.InteractionPatterns[model.RaidInitiation] = 3
				So(s.UpsertProfile(ctx, p), ShouldBeNil)

				got, err := s.GetProfile(ctx, "u-1")

				Convey("Then the latest version should be returned", func() {
					So(err, ShouldBeNil)
					So(got.EngagementStyle, ShouldEqual, "leader")
					So(got.Traits, ShouldResemble, []string{"helpful"})
					So(got.InteractionPatterns[model.RaidInitiation], ShouldEqual, 3)
					So(got.LastUpdated.Equal(t0), ShouldBeTrue)
				})
			})
		})
	}
}

func TestStore_Leaderboard(t *testing.T) {
	for name, open := range stores() {
		Convey("Given a "+name+" store with standings", t, func() {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			apply := func(user string, points int64, raids int) model.LeaderboardEntry {
				e, err := s.ApplyStanding(ctx, model.StandingDelta{UserID: user, Username: user, Points: points, Raids: raids, Engagements: 1, At: t0})
				So(err, ShouldBeNil)
				return e
			}
			apply("carol", 50, 0)
			apply("alice", 60, 1)
			apply("bob", 80, 0)
			last := apply("alice", 20, 1)

			Convey("Then the applied entry should be accumulated", func() {
				So(last.TotalPoints, ShouldEqual, 80)
				So(last.RaidsParticipated, ShouldEqual, 2)
				So(last.SuccessfulEngagements, ShouldEqual, 2)
				So(last.Badges, ShouldContain, "first_raid")
				So(last.Rank, ShouldEqual, 1)
			})

			Convey("When reading the top entries", func() {
				top, err := s.TopN(ctx, 10)

				Convey("Then ties should share a rank in user id order", func() {
					So(err, ShouldBeNil)
					So(top, ShouldHaveLength, 3)
					So([]string{top[0].UserID, top[1].UserID, top[2].UserID}, ShouldResemble, []string{"alice", "bob", "carol"})
					So([]int{top[0].Rank, top[1].Rank, top[2].Rank}, ShouldResemble, []int{1, 1, 2})
				})
			})

			Convey("When ranking a single user", func() {
				e, err := s.Rank(ctx, "carol")
				_, missing := s.Rank(ctx, "nobody")
				n, _ := s.Count(ctx)

				Convey("Then rank should match the top list", func() {
					So(err, ShouldBeNil)
					So(e.Rank, ShouldEqual, 2)
					So(e.TotalPoints, ShouldEqual, 50)
					So(errors.Is(missing, repository.ErrNotFound), ShouldBeTrue)
					So(n, ShouldEqual, 3)
				})
			})

			Convey("When asking for an invalid limit", func() {
				_, err := s.TopN(ctx, 0)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	Convey("Given a file-backed sqlite store", t, func() {
		ctx := context.Background()
		path := fmt.Sprintf("%s/rally.db", t.TempDir())

		s, err := repository.OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		So(s.InsertInteraction(ctx, interaction("a", "u-1", model.BugReport, 1.8, t0)), ShouldBeNil)
		_, err = s.ApplyStanding(ctx, model.StandingDelta{UserID: "u-1", Points: 18, Engagements: 1, At: t0})
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When reopening it", func() {
			s2, err := repository.OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer s2.Close()

			Convey("Then rows should survive and migrations be re-runnable", func() {
				got, err := s2.RecentInteractions(ctx, "u-1", 10)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				e, err := s2.Rank(ctx, "u-1")
				So(err, ShouldBeNil)
				So(e.TotalPoints, ShouldEqual, 18)
			})
		})
	})
}

func TestSQLiteStore_LargeDelete(t *testing.T) {
	Convey("Given a sqlite store with more stale rows than SQLite allows bound variables", t, func() {
		ctx := context.Background()
		s, err := repository.OpenSQLite(ctx, ":memory:")
		So(err, ShouldBeNil)
		defer s.Close()

		const rows = 33_000
		old := t0.Add(-40 * 24 * time.Hour)
		for i := 0; i < rows; i++ {
			in := interaction(fmt.Sprintf("bulk-%05d", i), fmt.Sprintf("u-%d", i%50), model.CasualChat, 0.1, old)
			if err := s.InsertInteraction(ctx, in); err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
		}
		So(s.InsertInteraction(ctx, interaction("keep", "u-1", model.CasualChat, 0.1, t0)), ShouldBeNil)

		Convey("When every stale row is deleted in one call", func() {
			stale, err := s.StaleInteractions(ctx, t0.Add(-30*24*time.Hour), 0.3)
			So(err, ShouldBeNil)
			So(stale, ShouldHaveLength, rows)

			ids := make([]string, len(stale))
			for i, in := range stale {
				ids[i] = in.ID
			}
			n, err := s.DeleteInteractions(ctx, ids)

			Convey("Then all of them go and newer rows stay", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, rows)
				left, err := s.StaleInteractions(ctx, t0.Add(-30*24*time.Hour), 0.3)
				So(err, ShouldBeNil)
				So(left, ShouldBeEmpty)
				recent, err := s.RecentInteractions(ctx, "u-1", 1)
				So(err, ShouldBeNil)
				So(recent, ShouldHaveLength, 1)
				So(recent[0].ID, ShouldEqual, "keep")
			})
		})
	})
}
