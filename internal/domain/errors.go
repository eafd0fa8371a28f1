package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Infrastructure wraps these so handlers can map to HTTP status codes without leaking SDK details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// ErrStorageUnavailable marks a transient backend failure; safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConflictRetryExhausted is returned by Merge when concurrent writers kept
	// winning the compare-and-swap for the whole retry budget.
	ErrConflictRetryExhausted = errors.New("conflict retry exhausted")
)
