// Package services implements the session and cart business logic of the
// shop client. This file centralizes common service-level error values so
// they can be consistently returned by service methods and checked by
// callers with errors.Is.
package services

import "errors"

var (
	// ErrMutationDisabled is returned when a cart write is attempted while
	// the session runs in local-fallback mode (account-tracked state must
	// not drift from an unreachable server).
	ErrMutationDisabled = errors.New("cart mutation disabled in local-fallback session")

	// ErrSessionExpired is returned when both tokens are spent or a
	// refresh attempt was rejected; the session has been logged out.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionNotReady is returned when an operation requires a
	// bootstrapped session and the session is still idle.
	ErrSessionNotReady = errors.New("session not ready")
)
