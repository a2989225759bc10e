package services

import "errors"

// Error taxonomy for the ritual configuration and chat paths.
// NotFound and Validation surface to admin callers with a reason;
// Upstream never reaches the end user - the orchestrator absorbs it
// into a fail-closed session.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = errors.New("generation oracle failure")
)
