package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrInvalidKind indicates that the announcement kind has no card template.
	// Reviews can be announced as new, historical or updated; replies use NotifyReply.
	ErrInvalidKind = errors.New("invalid announcement kind")

	// ErrRenderFailed indicates that a review could not be rendered into a card.
	// For batches the failing review is skipped and the rest are pushed.
	ErrRenderFailed = errors.New("render notification failed")
)
