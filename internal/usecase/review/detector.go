// Package review provides the pure decision logic of the sync pipeline:
// content fingerprinting and change detection, the push decision engine,
// and the batch processor that validates, deduplicates, limits and orders
// freshly fetched reviews.
package review

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"protalk/internal/domain/entity"
)

// Change detection reasons.
const (
	ReasonNewFeedback = "new_feedback"
	ReasonNoChange    = "no_change"
)

// Mutable field names reported by DetectChanges.
const (
	FieldRating           = "rating"
	FieldTitle            = "title"
	FieldBody             = "body"
	FieldReviewerNickname = "reviewer_nickname"
	FieldIsEdited         = "is_edited"
	FieldResponseBody     = "response_body"
	FieldResponseDate     = "response_date"
)

// fingerprintFields is the fixed-order tuple hashed by Fingerprint.
// Struct field order makes the JSON encoding deterministic.
type fingerprintFields struct {
	Rating           int     `json:"rating"`
	Title            string  `json:"title"`
	Body             string  `json:"body"`
	ReviewerNickname string  `json:"reviewer_nickname"`
	IsEdited         bool    `json:"is_edited"`
	ResponseBody     *string `json:"response_body"`
	ResponseDate     *string `json:"response_date"`
}

// Fingerprint returns the hex SHA-256 digest of the review's mutable fields.
// Equal fingerprints mean two snapshots are identical for notification purposes.
func Fingerprint(r entity.Review) string {
	f := fingerprintFields{
		Rating:           r.Rating,
		Title:            r.Title,
		Body:             r.Body,
		ReviewerNickname: r.ReviewerNickname,
		IsEdited:         r.IsEdited,
		ResponseBody:     r.ResponseBody,
	}
	if r.ResponseDate != nil {
		s := r.ResponseDate.UTC().Format(time.RFC3339Nano)
		f.ResponseDate = &s
	}
	// Marshalling a struct of strings, ints and bools cannot fail.
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ChangeResult describes how an incoming review differs from its stored copy.
type ChangeResult struct {
	HasChanged          bool
	Reason              string
	ChangedFields       []string
	NewFingerprint      string
	ExistingFingerprint string
}

// DetectChanges compares incoming against existing.
// A nil existing always reports a change with reason new_feedback.
func DetectChanges(incoming entity.Review, existing *entity.Review) ChangeResult {
	res := ChangeResult{NewFingerprint: Fingerprint(incoming)}
	if existing == nil {
		res.HasChanged = true
		res.Reason = ReasonNewFeedback
		return res
	}

	res.ExistingFingerprint = Fingerprint(*existing)
	if res.NewFingerprint == res.ExistingFingerprint {
		res.Reason = ReasonNoChange
		return res
	}

	res.HasChanged = true
	res.ChangedFields = changedFields(incoming, *existing)
	return res
}

func changedFields(a, b entity.Review) []string {
	var fields []string
	if a.Rating != b.Rating {
		fields = append(fields, FieldRating)
	}
	if a.Title != b.Title {
		fields = append(fields, FieldTitle)
	}
	if a.Body != b.Body {
		fields = append(fields, FieldBody)
	}
	if a.ReviewerNickname != b.ReviewerNickname {
		fields = append(fields, FieldReviewerNickname)
	}
	if a.IsEdited != b.IsEdited {
		fields = append(fields, FieldIsEdited)
	}
	if !equalStringPtr(a.ResponseBody, b.ResponseBody) {
		fields = append(fields, FieldResponseBody)
	}
	if !equalTimePtr(a.ResponseDate, b.ResponseDate) {
		fields = append(fields, FieldResponseDate)
	}
	return fields
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// BatchChanges is the partition produced by DetectBatchChanges.
type BatchChanges struct {
	New       []entity.Review
	Changed   []entity.Review
	Unchanged []entity.Review
	Summary   BatchChangeSummary
}

// BatchChangeSummary counts each partition.
type BatchChangeSummary struct {
	Total     int
	New       int
	Changed   int
	Unchanged int
}

// DetectBatchChanges partitions incoming reviews against the stored records.
// Input order is preserved inside each partition.
func DetectBatchChanges(incoming []entity.Review, existingByID map[string]entity.Review) BatchChanges {
	var out BatchChanges
	for _, r := range incoming {
		var existing *entity.Review
		if e, ok := existingByID[r.ID]; ok {
			existing = &e
		}
		res := DetectChanges(r, existing)
		switch {
		case existing == nil:
			out.New = append(out.New, r)
		case res.HasChanged:
			out.Changed = append(out.Changed, r)
		default:
			out.Unchanged = append(out.Unchanged, r)
		}
	}
	out.Summary = BatchChangeSummary{
		Total:     len(incoming),
		New:       len(out.New),
		Changed:   len(out.Changed),
		Unchanged: len(out.Unchanged),
	}
	return out
}
