package storage

import "errors"

// Storage errors. Callers at the token endpoint must collapse the
// code-related errors into a single coarse response; the distinct
// sentinels exist for audit logging, not for wire responses.
var (
	// ErrClientNotFound is returned when a client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret is returned when client secret validation fails
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrAuthorizationCodeNotFound is returned when an authorization code does not exist
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeConsumed is returned on a second redemption attempt
	ErrAuthorizationCodeConsumed = errors.New("authorization code already consumed")

	// ErrExpired is returned when a stored record's TTL has elapsed
	ErrExpired = errors.New("expired")
)
