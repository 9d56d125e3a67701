package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidLimit         = errors.New("invalid leaderboard limit")
	ErrDuplicateInteraction = errors.New("interaction already recorded")
	ErrClosed               = errors.New("store closed")
)
