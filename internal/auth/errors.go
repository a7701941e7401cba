package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a JWT fails signature, expiry,
	// or required-claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrPermissionDenied is returned when an actor lacks the required
	// module action. Commands rejected here never reach the outbox.
	ErrPermissionDenied = errors.New("auth: permission denied")
)
