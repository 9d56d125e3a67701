package model

import "time"

// PersonalityProfile is the behavioral summary derived from a user's history.
type PersonalityProfile struct {
	UserID                string                  `json:"userId"`
	EngagementStyle       string                  `json:"engagementStyle"`
	CommunicationTone     string                  `json:"communicationTone"`
	ActivityLevel         string                  `json:"activityLevel"`
	CommunityContribution string                  `json:"communityContribution"`
	ReliabilityScore      float64                 `json:"reliabilityScore"`
	LeadershipPotential   float64                 `json:"leadershipPotential"`
	Traits                []string                `json:"traits"`
	InteractionPatterns   map[InteractionType]int `json:"interactionPatterns"`
	LastUpdated           time.Time               `json:"lastUpdated"`
}

// HasTrait reports whether the profile carries trait.
func (p PersonalityProfile) HasTrait(trait string) bool {
	for _, t := range p.Traits {
		if t == trait {
			return true
		}
	}
	return false
}
