package reply

import "errors"

// Sentinel errors for reply use case operations.
var (
	// ErrReviewNotFound indicates that the review is not in the store, so the reply
	// cannot be recorded or announced. Nothing is sent to the marketplace.
	ErrReviewNotFound = errors.New("review not found")

	// ErrSubmitFailed indicates that the marketplace rejected or never received the reply.
	ErrSubmitFailed = errors.New("submit reply failed")

	// ErrUsage indicates a malformed /reply command or card action.
	ErrUsage = errors.New("usage: /reply <review_id> <text>")
)
