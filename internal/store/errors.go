package store

import "errors"

var (
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a write does not match the
	// job's current state (for example a checkpoint on a terminal job).
	ErrInvalidTransition = errors.New("invalid job state transition")
)
