// Package appstore is the App Store Connect API client that serves as the review
// source for the sync pipeline and the submission target for developer replies.
package appstore

import "errors"

var (
	// ErrUnauthorized is returned when the API rejects the signed token (HTTP 401).
	ErrUnauthorized = errors.New("appstore: unauthorized")

	// ErrTransient is returned when retryable failures persist past the retry budget.
	ErrTransient = errors.New("appstore: transient failure")

	// ErrCircuitOpen is returned when the API circuit breaker rejects the call.
	ErrCircuitOpen = errors.New("appstore: circuit breaker open")

	// ErrInvalidKey is returned when the signing key cannot be parsed as an EC private key.
	ErrInvalidKey = errors.New("appstore: invalid private key")

	// ErrEmptyReply is returned when a reply body is empty.
	ErrEmptyReply = errors.New("appstore: empty reply body")
)
