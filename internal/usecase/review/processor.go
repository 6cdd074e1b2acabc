package review

import (
	"log/slog"
	"sort"

	"protalk/internal/domain/entity"
)

// DefaultMaxCount caps the number of reviews processed per batch.
const DefaultMaxCount = 1000

// ValidateReviews returns the reviews that pass entity.ValidateReview and the
// validation errors of those that did not. Invalid reviews are never fatal.
func ValidateReviews(reviews []entity.Review) ([]entity.Review, []error) {
	valid := make([]entity.Review, 0, len(reviews))
	var errs []error
	for _, r := range reviews {
		if err := entity.ValidateReview(r); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, r)
	}
	return valid, errs
}

// DeduplicateReviews drops repeated ids; the first occurrence wins.
func DeduplicateReviews(reviews []entity.Review) []entity.Review {
	seen := make(map[string]struct{}, len(reviews))
	out := make([]entity.Review, 0, len(reviews))
	for _, r := range reviews {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// LimitReviews keeps at most n reviews from the head of the slice.
// A non-positive n returns an empty slice.
func LimitReviews(reviews []entity.Review, n int) []entity.Review {
	if n <= 0 {
		return []entity.Review{}
	}
	if len(reviews) <= n {
		return reviews
	}
	return reviews[:n]
}

// SortReviews returns a copy ordered by CreatedDate, newest first.
// Reviews with equal dates keep their relative order.
func SortReviews(reviews []entity.Review) []entity.Review {
	out := make([]entity.Review, len(reviews))
	copy(out, reviews)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedDate.After(out[j].CreatedDate)
	})
	return out
}

// BatchResult is the output of ProcessReviewBatch.
type BatchResult struct {
	New     []entity.Review
	Updated []entity.Review

	Invalid    []error
	Duplicates int
	Truncated  int
}

// ProcessReviewBatch runs validate, deduplicate, limit and sort over a raw
// batch, then splits it on membership in existingIDs.
// maxCount <= 0 uses DefaultMaxCount.
func ProcessReviewBatch(raw []entity.Review, existingIDs map[string]struct{}, maxCount int) BatchResult {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	var res BatchResult

	valid, invalid := ValidateReviews(raw)
	res.Invalid = invalid
	for _, err := range invalid {
		slog.Warn("excluding invalid review", slog.Any("error", err))
	}

	unique := DeduplicateReviews(valid)
	res.Duplicates = len(valid) - len(unique)

	limited := LimitReviews(unique, maxCount)
	if res.Truncated = len(unique) - len(limited); res.Truncated > 0 {
		slog.Warn("review batch truncated",
			slog.Int("max_count", maxCount),
			slog.Int("dropped", res.Truncated))
	}

	for _, r := range SortReviews(limited) {
		if _, ok := existingIDs[r.ID]; ok {
			res.Updated = append(res.Updated, r)
		} else {
			res.New = append(res.New, r)
		}
	}
	return res
}
