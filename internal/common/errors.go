// Package common defines shared constants and sentinel errors used across
// tokengate components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Authentication outcomes. Each maps to a stable status at the boundary
	// and carries no detail about which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("authorization token missing")
	ErrMalformedToken     = errors.New("invalid token format")
	ErrBadSignature       = errors.New("invalid token signature")
	ErrTokenExpired       = errors.New("token has expired")
	ErrUserNotFound       = errors.New("user not found")

	// ErrStoreUnavailable is the only infrastructure fault in the taxonomy:
	// the secret or user backend could not be reached or returned garbage.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Administrative surface.
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrConfirmationRequired = errors.New("confirmation required")
)
