package entity

import (
	"strings"
	"unicode/utf8"
)

const (
	MinRating = 1
	MaxRating = 5

	// MaxReplyLength is the marketplace's limit on a developer response, in characters.
	MaxReplyLength = 5970
)

// ValidateReview checks the invariants a review must satisfy before it enters the
// sync pipeline: non-empty id and app id, rating within [1,5], non-empty reviewer
// nickname and body, and a set creation date.
// Returns a *ValidationError describing the first violated rule.
func ValidateReview(r Review) error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "review id is required"}
	}
	if r.AppID == "" {
		return &ValidationError{ReviewID: r.ID, Field: "app_id", Message: "app id is required"}
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return &ValidationError{ReviewID: r.ID, Field: "rating", Message: "rating must be between 1 and 5"}
	}
	if r.ReviewerNickname == "" {
		return &ValidationError{ReviewID: r.ID, Field: "reviewer_nickname", Message: "reviewer nickname is required"}
	}
	if r.Body == "" {
		return &ValidationError{ReviewID: r.ID, Field: "body", Message: "body is required"}
	}
	if r.CreatedDate.IsZero() {
		return &ValidationError{ReviewID: r.ID, Field: "created_date", Message: "created date must be a valid timestamp"}
	}
	return nil
}

// ValidateReply checks a developer response body before it is submitted.
func ValidateReply(reviewID, body string) error {
	if reviewID == "" {
		return &ValidationError{Field: "review_id", Message: "review id is required"}
	}
	if strings.TrimSpace(body) == "" {
		return &ValidationError{ReviewID: reviewID, Field: "response_body", Message: "reply text is required"}
	}
	if n := utf8.RuneCountInString(body); n > MaxReplyLength {
		return &ValidationError{ReviewID: reviewID, Field: "response_body", Message: "reply text exceeds 5970 characters"}
	}
	return nil
}
