package repository

import (
	"context"
	"time"

	"protalk/internal/domain/entity"
)

// ReviewRepository is the persistence port for customer reviews.
// Reviews are never deleted by this system; UpsertReviews is idempotent by review id.
type ReviewRepository interface {
	// UpsertReviews inserts or replaces the given reviews in a single transaction.
	// On conflict the earliest first_sync_at is preserved.
	UpsertReviews(ctx context.Context, reviews []entity.Review) error

	// GetExistingReviewIDs returns the set of review ids already stored for appID.
	// Returns an empty (non-nil) set when the app has no stored reviews.
	GetExistingReviewIDs(ctx context.Context, appID string) (map[string]struct{}, error)

	// GetReviewsByIDs loads full review records keyed by id.
	// Unknown ids are silently absent from the result.
	GetReviewsByIDs(ctx context.Context, ids []string) (map[string]entity.Review, error)

	// UpdateReply stores a developer response on an existing review.
	// Returns entity.ErrNotFound if no review has the given id.
	UpdateReply(ctx context.Context, reviewID, body string, at time.Time) error

	// HasReply reports whether a developer response is stored for the review.
	HasReply(ctx context.Context, reviewID string) (bool, error)
}

// SyncStateRepository stores the per-application sync watermark.
type SyncStateRepository interface {
	// GetLastSyncTime returns nil when the application has never completed a sync.
	GetLastSyncTime(ctx context.Context, appID string) (*time.Time, error)
	UpdateSyncTime(ctx context.Context, appID string, at time.Time) error
}
