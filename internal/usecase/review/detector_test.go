package review

import (
	"testing"
	"time"

	"protalk/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	r := makeReview("r-1", baseTime)
	r.SetResponse("thanks", baseTime.Add(time.Hour))

	assert.Equal(t, Fingerprint(r), Fingerprint(r))
	assert.Len(t, Fingerprint(r), 64)
}

func TestFingerprint_IgnoresNonContentFields(t *testing.T) {
	a := makeReview("r-1", baseTime)
	b := a
	b.IsPushed = true
	b.PushType = entity.PushTypeNew
	b.FirstSyncAt = baseTime.Add(time.Hour)
	b.Territory = "USA"

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ResponseDateTimezoneInsensitive(t *testing.T) {
	a := makeReview("r-1", baseTime)
	a.SetResponse("ok", baseTime)
	b := makeReview("r-1", baseTime)
	b.SetResponse("ok", baseTime.In(time.FixedZone("JST", 9*3600)))

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_Sensitivity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *entity.Review)
		field  string
	}{
		{"rating", func(r *entity.Review) { r.Rating = 1 }, FieldRating},
		{"title", func(r *entity.Review) { r.Title = "other" }, FieldTitle},
		{"body", func(r *entity.Review) { r.Body = "other" }, FieldBody},
		{"nickname", func(r *entity.Review) { r.ReviewerNickname = "other" }, FieldReviewerNickname},
		{"is edited", func(r *entity.Review) { r.IsEdited = true }, FieldIsEdited},
		{"response body", func(r *entity.Review) { r.ResponseBody = strPtr("hi") }, FieldResponseBody},
		{"response date", func(r *entity.Review) { r.ResponseDate = timePtr(baseTime) }, FieldResponseDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			existing := makeReview("r-1", baseTime)
			incoming := existing
			tt.mutate(&incoming)

			// Act
			res := DetectChanges(incoming, &existing)

			// Assert
			assert.NotEqual(t, Fingerprint(existing), Fingerprint(incoming))
			assert.True(t, res.HasChanged)
			assert.Equal(t, []string{tt.field}, res.ChangedFields)
			assert.Equal(t, Fingerprint(existing), res.ExistingFingerprint)
		})
	}
}

func TestDetectChanges_NewItem(t *testing.T) {
	r := makeReview("r-1", baseTime)

	res := DetectChanges(r, nil)

	assert.True(t, res.HasChanged)
	assert.Equal(t, ReasonNewFeedback, res.Reason)
	assert.Empty(t, res.ExistingFingerprint)
	assert.Equal(t, Fingerprint(r), res.NewFingerprint)
}

func TestDetectChanges_Unchanged(t *testing.T) {
	r := makeReview("r-1", baseTime)
	existing := r

	res := DetectChanges(r, &existing)

	assert.False(t, res.HasChanged)
	assert.Equal(t, ReasonNoChange, res.Reason)
	assert.Empty(t, res.ChangedFields)
}

func TestDetectChanges_MultipleFields(t *testing.T) {
	existing := makeReview("r-1", baseTime)
	incoming := existing
	incoming.Rating = 2
	incoming.Body = "changed"
	incoming.IsEdited = true

	res := DetectChanges(incoming, &existing)

	require.True(t, res.HasChanged)
	assert.Equal(t, []string{FieldRating, FieldBody, FieldIsEdited}, res.ChangedFields)
}

func TestDetectBatchChanges(t *testing.T) {
	// Arrange
	unchanged := makeReview("a", baseTime)
	changedOld := makeReview("b", baseTime)
	changedNew := changedOld
	changedNew.Body = "edited"
	fresh := makeReview("c", baseTime)

	existing := map[string]entity.Review{
		"a": unchanged,
		"b": changedOld,
	}

	// Act
	out := DetectBatchChanges([]entity.Review{unchanged, changedNew, fresh}, existing)

	// Assert
	assert.Equal(t, BatchChangeSummary{Total: 3, New: 1, Changed: 1, Unchanged: 1}, out.Summary)
	require.Len(t, out.New, 1)
	assert.Equal(t, "c", out.New[0].ID)
	require.Len(t, out.Changed, 1)
	assert.Equal(t, "b", out.Changed[0].ID)
	require.Len(t, out.Unchanged, 1)
	assert.Equal(t, "a", out.Unchanged[0].ID)
}
