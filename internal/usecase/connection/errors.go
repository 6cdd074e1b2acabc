// Package connection provides the Connection Mode abstraction: one lifecycle
// and push contract over the two ways notifications reach the chat platform.
//
// StreamingMode holds a transport connection, buffers pushes in a delivery
// queue and reconnects with exponential backoff. RequestResponseMode is always
// connected; delivery happens in response to inbound platform calls.
//
// Both variants route inbound platform events to typed handler slots.
package connection

import "errors"

var (
	// ErrConnectInProgress is returned when Connect is called while another
	// connection attempt is still running.
	ErrConnectInProgress = errors.New("connection: connect already in progress")

	// ErrReconnectExhausted is the terminal error recorded once
	// MaxReconnectAttempts reconnects have failed.
	ErrReconnectExhausted = errors.New("connection: reconnect attempts exhausted")

	// ErrClosedDuringConnect is recorded when the transport closes before
	// Connect has finished, e.g. a close frame right after the handshake.
	ErrClosedDuringConnect = errors.New("connection: transport closed while connecting")

	// ErrNotInitialized is returned by operations that require Initialize.
	ErrNotInitialized = errors.New("connection: mode not initialized")

	// ErrInvalidEvent is returned when an inbound payload cannot be decoded.
	ErrInvalidEvent = errors.New("connection: invalid platform event")
)
