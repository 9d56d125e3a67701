package profile

import (
	"math"
	"time"

	"github.com/okian/rally/internal/domain/model"
)

// Profile vocabulary.
const (
	StyleNewUser           = "new_user"
	StyleLeader            = "leader"
	StyleActiveParticipant = "active_participant"
	StyleQualityFocused    = "quality_focused"
	StyleBalanced          = "balanced"

	ToneNeutral  = "neutral"
	TonePositive = "positive"
	ToneNegative = "negative"

	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"

	TraitNewMember          = "new_member"
	TraitRaidLeader         = "raid_leader"
	TraitActiveRaider       = "active_raider"
	TraitQualityContributor = "quality_contributor"
	TraitHelpful            = "helpful"
	TraitReliable           = "reliable"
	TraitLeader             = "leader"
	TraitPositiveInfluence  = "positive_influence"
	TraitRaidVeteran        = "raid_veteran"
)

// Thresholds drive every derivation rule.
var Thresholds = struct {
	ActivityWindow    time.Duration
	HighActivity      int
	ModerateActivity  int
	LeaderRaids       int
	ActiveRaids       int
	HighContribution  int
	PositiveWeight    float64
	PositiveTone      float64
	NegativeTone      float64
	ReliableScore     float64
	LeaderScore       float64
	PositiveInfluence float64
	VeteranRaids      int
	LeadershipDivisor float64
	NeutralScore      float64
}{
	ActivityWindow:    7 * 24 * time.Hour,
	HighActivity:      20,
	ModerateActivity:  5,
	LeaderRaids:       2,
	ActiveRaids:       10,
	HighContribution:  5,
	PositiveWeight:    1,
	PositiveTone:      0.3,
	NegativeTone:      -0.3,
	ReliableScore:     0.8,
	LeaderScore:       0.6,
	PositiveInfluence: 0.5,
	VeteranRaids:      20,
	LeadershipDivisor: 10,
	NeutralScore:      0.5,
}

// LeadershipWeight scores one type that signals leadership.
type LeadershipWeight struct {
	Type   model.InteractionType
	Weight float64
}

// LeadershipWeights is summed in order.
var LeadershipWeights = []LeadershipWeight{
	{Type: model.MentorBehavior, Weight: 0.4},
	{Type: model.KnowledgeSharing, Weight: 0.3},
	{Type: model.ConstructiveFeedback, Weight: 0.3},
}

// Default is the profile of a user without history.
func Default(userID string, now time.Time) model.PersonalityProfile {
	return model.PersonalityProfile{
		UserID:                userID,
		EngagementStyle:       StyleNewUser,
		CommunicationTone:     ToneNeutral,
		ActivityLevel:         LevelLow,
		CommunityContribution: LevelLow,
		ReliabilityScore:      Thresholds.NeutralScore,
		LeadershipPotential:   Thresholds.NeutralScore,
		Traits:                []string{TraitNewMember},
		InteractionPatterns:   map[model.InteractionType]int{},
		LastUpdated:           now,
	}
}

// Derive computes a profile from history as of now. An empty history yields
// the default profile.
func Derive(userID string, history []model.Interaction, now time.Time) model.PersonalityProfile {
	if len(history) == 0 {
		return Default(userID, now)
	}

	patterns := make(map[model.InteractionType]int)
	recent, positive, negative := 0, 0, 0
	sentiment := 0.0
	cutoff := now.Add(-Thresholds.ActivityWindow)
	for _, in := range history {
		patterns[in.Type]++
		if in.Timestamp.After(cutoff) {
			recent++
		}
		switch {
		case in.Weight > Thresholds.PositiveWeight:
			positive++
		case in.Weight < 0:
			negative++
		}
		sentiment += in.SentimentScore
	}
	total := len(history)
	meanSentiment := sentiment / float64(total)

	p := model.PersonalityProfile{
		UserID:              userID,
		InteractionPatterns: patterns,
		LastUpdated:         now,
		Traits:              []string{},
	}

	switch {
	case recent > Thresholds.HighActivity:
		p.ActivityLevel = LevelHigh
	case recent > Thresholds.ModerateActivity:
		p.ActivityLevel = LevelModerate
	default:
		p.ActivityLevel = LevelLow
	}

	switch {
	case patterns[model.RaidInitiation] > Thresholds.LeaderRaids:
		p.EngagementStyle = StyleLeader
		p.Traits = append(p.Traits, TraitRaidLeader)
	case patterns[model.RaidParticipation] > Thresholds.ActiveRaids:
		p.EngagementStyle = StyleActiveParticipant
		p.Traits = append(p.Traits, TraitActiveRaider)
	case patterns[model.QualityEngagement] > patterns[model.RaidParticipation]:
		p.EngagementStyle = StyleQualityFocused
		p.Traits = append(p.Traits, TraitQualityContributor)
	default:
		p.EngagementStyle = StyleBalanced
	}

	switch help := patterns[model.CommunityHelp]; {
	case help > Thresholds.HighContribution:
		p.CommunityContribution = LevelHigh
		p.Traits = append(p.Traits, TraitHelpful)
	case help >= 1:
		p.CommunityContribution = LevelModerate
	default:
		p.CommunityContribution = LevelLow
	}

	p.ReliabilityScore = clamp01(float64(positive-negative) / float64(total))

	lead := 0.0
	for _, lw := range LeadershipWeights {
		lead += float64(patterns[lw.Type]) * lw.Weight
	}
	p.LeadershipPotential = clamp01(lead / Thresholds.LeadershipDivisor)

	switch {
	case meanSentiment > Thresholds.PositiveTone:
		p.CommunicationTone = TonePositive
	case meanSentiment < Thresholds.NegativeTone:
		p.CommunicationTone = ToneNegative
	default:
		p.CommunicationTone = ToneNeutral
	}

	if p.ReliabilityScore > Thresholds.ReliableScore {
		p.Traits = append(p.Traits, TraitReliable)
	}
	if p.LeadershipPotential > Thresholds.LeaderScore {
		p.Traits = append(p.Traits, TraitLeader)
	}
	if meanSentiment > Thresholds.PositiveInfluence {
		p.Traits = append(p.Traits, TraitPositiveInfluence)
	}
	if patterns[model.RaidParticipation] > Thresholds.VeteranRaids {
		p.Traits = append(p.Traits, TraitRaidVeteran)
	}
	return p
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
