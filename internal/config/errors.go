package config

import "errors"

var (
	// ErrInvalidConfig is wrapped by every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig is wrapped when a file, env or decode step fails.
	ErrLoadConfig = errors.New("load config failed")
)
