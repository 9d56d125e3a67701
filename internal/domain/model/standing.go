package model

import "time"

// LeaderboardEntry is a user's ranked standing.
type LeaderboardEntry struct {
	UserID                string    `json:"userId"`
	Username              string    `json:"username,omitempty"`
	TotalPoints           int64     `json:"totalPoints"`
	RaidsParticipated     int       `json:"raidsParticipated"`
	SuccessfulEngagements int       `json:"successfulEngagements"`
	Rank                  int       `json:"rank"`
	Badges                []string  `json:"badges"`
	LastActivity          time.Time `json:"lastActivity"`
}

// StandingDelta is the increment a recorded interaction applies to a
// leaderboard entry.
type StandingDelta struct {
	InteractionID string    `json:"interactionId"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username,omitempty"`
	Points        int64     `json:"points"`
	Raids         int       `json:"raids"`
	Engagements   int       `json:"engagements"`
	At            time.Time `json:"at"`
}
