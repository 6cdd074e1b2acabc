package review

import (
	"fmt"
	"time"

	"protalk/internal/domain/entity"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func makeReview(id string, created time.Time) entity.Review {
	return entity.Review{
		ID:               id,
		AppID:            "app-1",
		Rating:           4,
		Title:            "Title " + id,
		Body:             "Body " + id,
		ReviewerNickname: "user-" + id,
		CreatedDate:      created,
	}
}

func makeReviews(n int) []entity.Review {
	out := make([]entity.Review, n)
	for i := range out {
		out[i] = makeReview(fmt.Sprintf("r-%d", i), baseTime.Add(-time.Duration(i)*time.Hour))
	}
	return out
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
