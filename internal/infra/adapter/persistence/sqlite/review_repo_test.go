package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"protalk/internal/domain/entity"
	"protalk/internal/infra/adapter/persistence/sqlite"
	"protalk/internal/infra/db"
)

// ─────────────────────────────────────────────
// ヘルパ：インメモリDB
// ─────────────────────────────────────────────
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.MigrateUp(conn, db.DriverSQLite); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return conn
}

var baseTime = time.Date(2025, 7, 19, 9, 0, 0, 0, time.UTC)

func sampleReview(id string) entity.Review {
	return entity.Review{
		ID:               id,
		AppID:            "app-1",
		Rating:           5,
		Title:            "Great",
		Body:             "Love it",
		ReviewerNickname: "mio",
		CreatedDate:      baseTime,
		FirstSyncAt:      baseTime.Add(time.Hour),
		IsPushed:         true,
		PushType:         entity.PushTypeNew,
		Territory:        "JPN",
		AppVersion:       "2.0.1",
		UpdatedAt:        baseTime.Add(time.Hour),
	}
}

// ─────────────────────────────────────────────
// 1. UpsertReviews → GetReviewsByIDs
// ─────────────────────────────────────────────
func TestReviewRepo_UpsertAndLoad(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	r1 := sampleReview("r1")
	r2 := sampleReview("r2")
	r2.SetResponse("Thank you!", baseTime.Add(30*time.Minute+123*time.Nanosecond))
	r2.PushType = ""
	r2.IsPushed = false

	if err := repo.UpsertReviews(ctx, []entity.Review{r1, r2}); err != nil {
		t.Fatalf("UpsertReviews err=%v", err)
	}

	got, err := repo.GetReviewsByIDs(ctx, []string{"r1", "r2", "missing"})
	if err != nil {
		t.Fatalf("GetReviewsByIDs err=%v", err)
	}
	want := map[string]entity.Review{"r1": r1, "r2": r2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetReviewsByIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestReviewRepo_Upsert_ConflictKeepsEarliestFirstSync(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	first := sampleReview("r1")
	if err := repo.UpsertReviews(ctx, []entity.Review{first}); err != nil {
		t.Fatalf("UpsertReviews(first) err=%v", err)
	}

	edited := first
	edited.Body = "Love it, but the latest update crashes"
	edited.Rating = 2
	edited.IsEdited = true
	edited.FirstSyncAt = first.FirstSyncAt.Add(24 * time.Hour)
	edited.IsPushed = false
	edited.PushType = ""
	if err := repo.UpsertReviews(ctx, []entity.Review{edited}); err != nil {
		t.Fatalf("UpsertReviews(edited) err=%v", err)
	}

	got, err := repo.GetReviewsByIDs(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("GetReviewsByIDs err=%v", err)
	}
	r := got["r1"]
	if r.Body != edited.Body || r.Rating != 2 || !r.IsEdited {
		t.Fatalf("mutable fields not replaced: %+v", r)
	}
	if !r.FirstSyncAt.Equal(first.FirstSyncAt) {
		t.Fatalf("FirstSyncAt=%v, want earliest %v", r.FirstSyncAt, first.FirstSyncAt)
	}
	if !r.IsPushed || r.PushType != entity.PushTypeNew {
		t.Fatalf("push state lost: IsPushed=%v PushType=%q", r.IsPushed, r.PushType)
	}
}

func TestReviewRepo_Upsert_RejectsInvalidRating(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	bad := sampleReview("bad")
	bad.Rating = 9
	if err := repo.UpsertReviews(ctx, []entity.Review{sampleReview("ok"), bad}); err == nil {
		t.Fatal("UpsertReviews should fail on CHECK constraint")
	}

	// トランザクション全体がロールバックされる
	ids, err := repo.GetExistingReviewIDs(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetExistingReviewIDs err=%v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("want no rows after rollback, got %v", ids)
	}
}

// ─────────────────────────────────────────────
// 2. GetExistingReviewIDs
// ─────────────────────────────────────────────
func TestReviewRepo_GetExistingReviewIDs(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	other := sampleReview("x1")
	other.AppID = "app-2"
	if err := repo.UpsertReviews(ctx, []entity.Review{sampleReview("r1"), sampleReview("r2"), other}); err != nil {
		t.Fatalf("UpsertReviews err=%v", err)
	}

	got, err := repo.GetExistingReviewIDs(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetExistingReviewIDs err=%v", err)
	}
	want := map[string]struct{}{"r1": {}, "r2": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetExistingReviewIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestReviewRepo_GetReviewsByIDs_ManyIDs(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	const n = 1200
	reviews := make([]entity.Review, n)
	ids := make([]string, n)
	for i := range reviews {
		reviews[i] = sampleReview(fmt.Sprintf("r%04d", i))
		ids[i] = reviews[i].ID
	}
	if err := repo.UpsertReviews(ctx, reviews); err != nil {
		t.Fatalf("UpsertReviews err=%v", err)
	}

	got, err := repo.GetReviewsByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("GetReviewsByIDs err=%v", err)
	}
	if len(got) != n {
		t.Fatalf("len=%d, want %d", len(got), n)
	}
}

// ─────────────────────────────────────────────
// 3. UpdateReply / HasReply
// ─────────────────────────────────────────────
func TestReviewRepo_UpdateReply(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)
	ctx := context.Background()

	if err := repo.UpsertReviews(ctx, []entity.Review{sampleReview("r1")}); err != nil {
		t.Fatalf("UpsertReviews err=%v", err)
	}

	has, err := repo.HasReply(ctx, "r1")
	if err != nil || has {
		t.Fatalf("HasReply before=%v err=%v", has, err)
	}

	at := baseTime.Add(48 * time.Hour)
	if err := repo.UpdateReply(ctx, "r1", "Fixed in 2.0.2", at); err != nil {
		t.Fatalf("UpdateReply err=%v", err)
	}

	has, err = repo.HasReply(ctx, "r1")
	if err != nil || !has {
		t.Fatalf("HasReply after=%v err=%v", has, err)
	}
	got, err := repo.GetReviewsByIDs(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("GetReviewsByIDs err=%v", err)
	}
	r := got["r1"]
	if r.ResponseBody == nil || *r.ResponseBody != "Fixed in 2.0.2" {
		t.Fatalf("ResponseBody=%v", r.ResponseBody)
	}
	if r.ResponseDate == nil || !r.ResponseDate.Equal(at) {
		t.Fatalf("ResponseDate=%v, want %v", r.ResponseDate, at)
	}
}

func TestReviewRepo_UpdateReply_NotFound(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)

	err := repo.UpdateReply(context.Background(), "nope", "hi", baseTime)
	if !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestReviewRepo_HasReply_UnknownReview(t *testing.T) {
	conn := openTestDB(t)
	repo := sqlite.NewReviewRepo(conn)

	has, err := repo.HasReply(context.Background(), "nope")
	if err != nil || has {
		t.Fatalf("HasReply=%v err=%v, want false,nil", has, err)
	}
}
