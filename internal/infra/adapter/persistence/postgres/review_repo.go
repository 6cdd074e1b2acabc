package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"protalk/internal/domain/entity"
	"protalk/internal/observability/metrics"
	"protalk/internal/repository"
)

// DB is the subset of *sql.DB the repositories need.
// *sql.DB and *circuitbreaker.DB both satisfy it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type ReviewRepo struct{ db DB }

func NewReviewRepo(db DB) repository.ReviewRepository {
	return &ReviewRepo{db: db}
}

const reviewColumns = `
    review_id, app_id, rating, title, body, reviewer_nickname, created_date, is_edited,
    response_body, response_date, first_sync_at, is_pushed, push_type,
    territory, app_version, response_state, updated_at`

// first_sync_at は最初の観測時刻を保持する (LEAST)
// is_pushed は一度 true になったら戻さない
const upsertReviewQuery = `
INSERT INTO reviews (` + reviewColumns + `
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (review_id) DO UPDATE SET
    app_id            = EXCLUDED.app_id,
    rating            = EXCLUDED.rating,
    title             = EXCLUDED.title,
    body              = EXCLUDED.body,
    reviewer_nickname = EXCLUDED.reviewer_nickname,
    created_date      = EXCLUDED.created_date,
    is_edited         = EXCLUDED.is_edited,
    response_body     = EXCLUDED.response_body,
    response_date     = EXCLUDED.response_date,
    first_sync_at     = LEAST(reviews.first_sync_at, EXCLUDED.first_sync_at),
    is_pushed         = reviews.is_pushed OR EXCLUDED.is_pushed,
    push_type         = COALESCE(EXCLUDED.push_type, reviews.push_type),
    territory         = EXCLUDED.territory,
    app_version       = EXCLUDED.app_version,
    response_state    = EXCLUDED.response_state,
    updated_at        = EXCLUDED.updated_at`

func (repo *ReviewRepo) UpsertReviews(ctx context.Context, reviews []entity.Review) (err error) {
	if len(reviews) == 0 {
		return nil
	}
	defer func(start time.Time) { metrics.RecordDBQuery("upsert_reviews", time.Since(start)) }(time.Now())

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpsertReviews: BeginTx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, r := range reviews {
		if _, err = tx.ExecContext(ctx, upsertReviewQuery, upsertArgs(r, now)...); err != nil {
			return fmt.Errorf("UpsertReviews: ExecContext review_id=%s: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("UpsertReviews: Commit: %w", err)
	}
	return nil
}

func upsertArgs(r entity.Review, now time.Time) []any {
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	firstSyncAt := r.FirstSyncAt
	if firstSyncAt.IsZero() {
		firstSyncAt = now
	}
	var pushType sql.NullString
	if r.PushType != "" {
		pushType = sql.NullString{String: string(r.PushType), Valid: true}
	}
	return []any{
		r.ID, r.AppID, r.Rating, r.Title, r.Body, r.ReviewerNickname, r.CreatedDate, r.IsEdited,
		r.ResponseBody, r.ResponseDate, firstSyncAt, r.IsPushed, pushType,
		r.Territory, r.AppVersion, r.ResponseState, updatedAt,
	}
}

func (repo *ReviewRepo) GetExistingReviewIDs(ctx context.Context, appID string) (map[string]struct{}, error) {
	const query = `SELECT review_id FROM reviews WHERE app_id = $1`
	rows, err := repo.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("GetExistingReviewIDs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("GetExistingReviewIDs: Scan: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetExistingReviewIDs: rows.Err: %w", err)
	}
	return ids, nil
}

func (repo *ReviewRepo) GetReviewsByIDs(ctx context.Context, ids []string) (map[string]entity.Review, error) {
	defer func(start time.Time) { metrics.RecordDBQuery("get_reviews_by_ids", time.Since(start)) }(time.Now())
	if len(ids) == 0 {
		return make(map[string]entity.Review), nil
	}

	const query = `SELECT` + reviewColumns + `
FROM reviews
WHERE review_id = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("GetReviewsByIDs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]entity.Review, len(ids))
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("GetReviewsByIDs: Scan: %w", err)
		}
		result[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetReviewsByIDs: rows.Err: %w", err)
	}
	return result, nil
}

func scanReview(rows *sql.Rows) (entity.Review, error) {
	var (
		r            entity.Review
		responseBody sql.NullString
		responseDate sql.NullTime
		pushType     sql.NullString
	)
	err := rows.Scan(
		&r.ID, &r.AppID, &r.Rating, &r.Title, &r.Body, &r.ReviewerNickname, &r.CreatedDate, &r.IsEdited,
		&responseBody, &responseDate, &r.FirstSyncAt, &r.IsPushed, &pushType,
		&r.Territory, &r.AppVersion, &r.ResponseState, &r.UpdatedAt,
	)
	if err != nil {
		return entity.Review{}, err
	}
	if responseBody.Valid {
		body := responseBody.String
		r.ResponseBody = &body
	}
	if responseDate.Valid {
		at := responseDate.Time
		r.ResponseDate = &at
	}
	r.PushType = entity.PushType(pushType.String)
	return r, nil
}

func (repo *ReviewRepo) UpdateReply(ctx context.Context, reviewID, body string, at time.Time) error {
	const query = `
UPDATE reviews
SET response_body = $2, response_date = $3, updated_at = now()
WHERE review_id = $1`
	res, err := repo.db.ExecContext(ctx, query, reviewID, body, at)
	if err != nil {
		return fmt.Errorf("UpdateReply: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateReply: RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateReply: review_id=%s: %w", reviewID, entity.ErrNotFound)
	}
	return nil
}

func (repo *ReviewRepo) HasReply(ctx context.Context, reviewID string) (bool, error) {
	const query = `SELECT response_body IS NOT NULL AND response_body <> '' FROM reviews WHERE review_id = $1`
	var has bool
	err := repo.db.QueryRowContext(ctx, query, reviewID).Scan(&has)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasReply: QueryRowContext: %w", err)
	}
	return has, nil
}
