package model_test

import (
	"testing"
	"time"

	"github.com/okian/rally/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestInteractionFragment(t *testing.T) {
	convey.Convey("Given a recorded interaction", t, func() {
		ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		in := model.Interaction{
			ID:             "i-1",
			UserID:         "u-1",
			Username:       "ada",
			Type:           model.CommunityHelp,
			Content:        "try restarting the node",
			Context:        map[string]any{"helps_newbie": true},
			Weight:         2.75,
			SentimentScore: 0.4,
			Timestamp:      ts,
		}

		convey.Convey("When projecting it to a fragment", func() {
			f := in.Fragment()

			convey.Convey("Then the cached fields should be carried over", func() {
				convey.So(f.ID, convey.ShouldEqual, "i-1")
				convey.So(f.UserID, convey.ShouldEqual, "u-1")
				convey.So(f.Type, convey.ShouldEqual, model.CommunityHelp)
				convey.So(f.Content, convey.ShouldEqual, in.Content)
				convey.So(f.Weight, convey.ShouldEqual, 2.75)
				convey.So(f.Timestamp, convey.ShouldEqual, ts)
				convey.So(f.Context["helps_newbie"], convey.ShouldEqual, true)
			})
		})
	})
}

func TestInteractionTypeIsRaid(t *testing.T) {
	convey.Convey("Given interaction types", t, func() {
		convey.So(model.RaidInitiation.IsRaid(), convey.ShouldBeTrue)
		convey.So(model.RaidParticipation.IsRaid(), convey.ShouldBeTrue)
		convey.So(model.BugReport.IsRaid(), convey.ShouldBeFalse)
		convey.So(model.InteractionType("unknown").IsRaid(), convey.ShouldBeFalse)
	})
}

func TestProfileHasTrait(t *testing.T) {
	convey.Convey("Given a profile with traits", t, func() {
		p := model.PersonalityProfile{Traits: []string{"helpful", "reliable"}}
		convey.So(p.HasTrait("reliable"), convey.ShouldBeTrue)
		convey.So(p.HasTrait("leader"), convey.ShouldBeFalse)
	})
}
