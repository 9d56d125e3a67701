package recorder

import "errors"

// Sentinel kinds for recorder errors.
var (
	ErrInvalidInteraction = errors.New("invalid interaction")
	ErrPersist            = errors.New("persist interaction failed")
)
