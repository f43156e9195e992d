// Package services implements the message event pipeline: validation,
// authorization and persistence of message and receipt operations.
package services

import "errors"

// Sentinel errors returned by the pipeline. Transport layers translate them
// into wire error codes; anything else is a server error.
var (
	// ErrBadRequest is returned for malformed or missing fields.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound is returned when a referenced message or conversation is
	// absent or already soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the acting user lacks the required
	// relationship: non-participant, non-sender.
	ErrPermissionDenied = errors.New("permission denied")
)
