package callback

import "errors"

var (
	// ErrTokenMismatch is returned when the envelope's verification token is wrong.
	ErrTokenMismatch = errors.New("callback: invalid verification token")

	// ErrBodyTooLarge is returned when the request body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("callback: request body too large")
)
