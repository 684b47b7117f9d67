package errs

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyQueued signals that a profile-creation attempt is already
	// in flight for the athlete. Callers treat it as an idempotency guard,
	// not a failure.
	ErrAlreadyQueued = errors.New("profile creation already queued")
)
