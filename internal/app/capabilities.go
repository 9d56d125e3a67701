package service

import (
	"context"

	"github.com/okian/rally/internal/domain/evaluate"
	"github.com/okian/rally/internal/domain/model"
)

// InteractionRecorder records interactions.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error)
}

// ProfileReader serves personality profiles.
type ProfileReader interface {
	Profile(ctx context.Context, userID string) model.PersonalityProfile
}

// EngagementEvaluator scores engagement claims.
type EngagementEvaluator interface {
	Evaluate(kinds []evaluate.Kind, sub evaluate.Submission) (evaluate.Submission, error)
}

// StandingReader reads the leaderboard.
type StandingReader interface {
	TopN(ctx context.Context, n int) []model.LeaderboardEntry
	Rank(ctx context.Context, userID string) (model.LeaderboardEntry, bool)
}

var (
	_ InteractionRecorder = (*Service)(nil)
	_ ProfileReader       = (*Service)(nil)
	_ EngagementEvaluator = (*Service)(nil)
	_ StandingReader      = (*Service)(nil)
)
