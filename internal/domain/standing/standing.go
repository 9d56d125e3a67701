// Package standing turns recorded interactions into leaderboard increments
// and folds those increments into entries.
package standing

import (
	"math"
	"sort"

	"github.com/okian/rally/internal/domain/model"
)

// DefaultPointsPerWeight converts one unit of weight into points.
const DefaultPointsPerWeight = 10

// BadgeRule awards Badge when Earned holds for an entry.
type BadgeRule struct {
	Badge  string
	Earned func(model.LeaderboardEntry) bool
}

// BadgeRules is evaluated after every applied delta.
var BadgeRules = []BadgeRule{
	{Badge: "first_raid", Earned: func(e model.LeaderboardEntry) bool { return e.RaidsParticipated >= 1 }},
	{Badge: "raid_regular", Earned: func(e model.LeaderboardEntry) bool { return e.RaidsParticipated >= 10 }},
	{Badge: "raid_veteran", Earned: func(e model.LeaderboardEntry) bool { return e.RaidsParticipated >= 50 }},
	{Badge: "rising_star", Earned: func(e model.LeaderboardEntry) bool { return e.TotalPoints >= 100 }},
	{Badge: "top_contributor", Earned: func(e model.LeaderboardEntry) bool { return e.TotalPoints >= 1000 }},
	{Badge: "dependable", Earned: func(e model.LeaderboardEntry) bool { return e.SuccessfulEngagements >= 25 }},
}

// DeltaFor builds the increment for a recorded interaction.
func DeltaFor(in model.Interaction, pointsPerWeight float64) model.StandingDelta {
	if pointsPerWeight <= 0 {
		pointsPerWeight = DefaultPointsPerWeight
	}
	d := model.StandingDelta{
		InteractionID: in.ID,
		UserID:        in.UserID,
		Username:      in.Username,
		Points:        int64(math.Round(in.Weight * pointsPerWeight)),
		Engagements:   1,
		At:            in.Timestamp,
	}
	if in.Type.IsRaid() || in.RelatedRaidID != "" {
		d.Raids = 1
	}
	return d
}

// Apply folds d into e and recomputes badges. Earned badges are kept even if
// a later negative delta drops the entry below a threshold.
func Apply(e model.LeaderboardEntry, d model.StandingDelta) model.LeaderboardEntry {
	if e.UserID == "" {
		e.UserID = d.UserID
	}
	if d.Username != "" {
		e.Username = d.Username
	}
	e.TotalPoints += d.Points
	e.RaidsParticipated += d.Raids
	e.SuccessfulEngagements += d.Engagements
	if d.At.After(e.LastActivity) {
		e.LastActivity = d.At
	}
	e.Badges = Badges(e)
	return e
}

// Badges returns the sorted union of e's current badges and newly earned ones.
func Badges(e model.LeaderboardEntry) []string {
	set := make(map[string]struct{}, len(e.Badges)+len(BadgeRules))
	for _, b := range e.Badges {
		set[b] = struct{}{}
	}
	for _, r := range BadgeRules {
		if r.Earned(e) {
			set[r.Badge] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
