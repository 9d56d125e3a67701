// Package model contains domain models passed between layers.
package model

import "time"

// InteractionType tags what a user did. Unknown tags are allowed and weigh
// like a default interaction.
type InteractionType string

// Known interaction types.
const (
	RaidInitiation        InteractionType = "raid_initiation"
	RaidParticipation     InteractionType = "raid_participation"
	MentorBehavior        InteractionType = "mentor_behavior"
	CommunityHelp         InteractionType = "community_help"
	KnowledgeSharing      InteractionType = "knowledge_sharing"
	ConstructiveFeedback  InteractionType = "constructive_feedback"
	ConstructiveCriticism InteractionType = "constructive_criticism"
	BugReport             InteractionType = "bug_report"
	PositiveFeedback      InteractionType = "positive_feedback"
	QualityEngagement     InteractionType = "quality_engagement"
	CasualChat            InteractionType = "casual_chat"
	SpamReport            InteractionType = "spam_report"
	ToxicBehavior         InteractionType = "toxic_behavior"
)

// IsRaid reports whether the type is part of a raid.
func (t InteractionType) IsRaid() bool {
	return t == RaidInitiation || t == RaidParticipation
}

// Interaction is a recorded user action with its computed weight.
// Weight is never below -0.5; timestamps may arrive out of order.
type Interaction struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Username       string          `json:"username,omitempty"`
	Type           InteractionType `json:"type"`
	Content        string          `json:"content,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
	Weight         float64         `json:"weight"`
	SentimentScore float64         `json:"sentimentScore"`
	RelatedRaidID  string          `json:"relatedRaidId,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// MemoryFragment is the cached projection of an Interaction.
type MemoryFragment struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content,omitempty"`
	Weight    float64         `json:"weight"`
	Timestamp time.Time       `json:"timestamp"`
	Context   map[string]any  `json:"context,omitempty"`
}

// Fragment projects the interaction into its cached form.
func (in Interaction) Fragment() MemoryFragment {
	return MemoryFragment{
		ID:        in.ID,
		UserID:    in.UserID,
		Type:      in.Type,
		Content:   in.Content,
		Weight:    in.Weight,
		Timestamp: in.Timestamp,
		Context:   in.Context,
	}
}

// ArchivedInteraction is the consolidated copy of a removed Interaction.
type ArchivedInteraction struct {
	Interaction
	ArchivedAt time.Time `json:"archivedAt"`
}
