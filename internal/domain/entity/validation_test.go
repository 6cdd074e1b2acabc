package entity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReview() Review {
	return Review{
		ID:               "r-1",
		AppID:            "app-1",
		Rating:           5,
		Title:            "Great",
		Body:             "Works well",
		ReviewerNickname: "alice",
		CreatedDate:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestValidateReview(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *Review)
		wantField string
	}{
		{name: "valid review", mutate: func(r *Review) {}},
		{name: "valid without title", mutate: func(r *Review) { r.Title = "" }},
		{name: "empty id", mutate: func(r *Review) { r.ID = "" }, wantField: "id"},
		{name: "empty app id", mutate: func(r *Review) { r.AppID = "" }, wantField: "app_id"},
		{name: "rating zero", mutate: func(r *Review) { r.Rating = 0 }, wantField: "rating"},
		{name: "rating six", mutate: func(r *Review) { r.Rating = 6 }, wantField: "rating"},
		{name: "rating one", mutate: func(r *Review) { r.Rating = 1 }},
		{name: "empty nickname", mutate: func(r *Review) { r.ReviewerNickname = "" }, wantField: "reviewer_nickname"},
		{name: "empty body", mutate: func(r *Review) { r.Body = "" }, wantField: "body"},
		{name: "zero created date", mutate: func(r *Review) { r.CreatedDate = time.Time{} }, wantField: "created_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReview()
			tt.mutate(&r)

			err := ValidateReview(r)

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
			assert.True(t, errors.Is(err, ErrValidationFailed))
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		expected string
	}{
		{
			name:     "without review id",
			err:      &ValidationError{Field: "id", Message: "review id is required"},
			expected: "validation error on field 'id': review id is required",
		},
		{
			name:     "with review id",
			err:      &ValidationError{ReviewID: "r-9", Field: "rating", Message: "out of range"},
			expected: "validation error on review r-9 field 'rating': out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestPushType_Valid(t *testing.T) {
	for _, pt := range []PushType{PushTypeNew, PushTypeHistorical, PushTypeUpdated, PushTypeReply} {
		assert.True(t, pt.Valid(), pt)
	}
	assert.False(t, PushType("update").Valid())
	assert.False(t, PushType("").Valid())
}

func TestReview_SetResponse(t *testing.T) {
	r := validReview()
	assert.False(t, r.HasResponse())

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	r.SetResponse("thanks", at)

	require.True(t, r.HasResponse())
	assert.Equal(t, "thanks", *r.ResponseBody)
	assert.Equal(t, at, *r.ResponseDate)
}

func TestReview_HasResponseOnStoredValue(t *testing.T) {
	answered := validReview()
	answered.SetResponse("thanks", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	blank := validReview()
	blank.SetResponse("", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	stored := map[string]Review{"plain": validReview(), "answered": answered, "blank": blank}

	assert.False(t, stored["plain"].HasResponse())
	assert.True(t, stored["answered"].HasResponse())
	assert.False(t, stored["blank"].HasResponse())
}

func TestMessage_DedupKey(t *testing.T) {
	m := Message{ReviewID: "r-1", Kind: PushTypeUpdated, Fingerprint: "abc"}
	assert.Equal(t, "r-1:updated:abc", m.DedupKey())
}

func TestValidateReply(t *testing.T) {
	tests := []struct {
		name      string
		reviewID  string
		body      string
		wantField string
	}{
		{name: "valid", reviewID: "r-1", body: "Thanks for the feedback"},
		{name: "at limit", reviewID: "r-1", body: strings.Repeat("あ", MaxReplyLength)},
		{name: "empty review id", reviewID: "", body: "hi", wantField: "review_id"},
		{name: "blank body", reviewID: "r-1", body: "  \n", wantField: "response_body"},
		{name: "too long", reviewID: "r-1", body: strings.Repeat("a", MaxReplyLength+1), wantField: "response_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReply(tt.reviewID, tt.body)

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}
