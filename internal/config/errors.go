package config

import "errors"

var (
	// ErrInvalidConfig marks a loaded nte config that failed validation.
	ErrInvalidConfig = errors.New("nte config: invalid value")
	// ErrLoadConfig marks an nte config source that could not be read or parsed.
	ErrLoadConfig = errors.New("nte config: cannot load")
)
