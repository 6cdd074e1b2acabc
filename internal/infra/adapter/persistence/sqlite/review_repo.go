package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"protalk/internal/domain/entity"
	"protalk/internal/observability/metrics"
	"protalk/internal/repository"
)

// DB is the subset of *sql.DB the repositories need.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SQLiteのプレースホルダ上限は999、余裕を持って分割する
// 参考: https://www.sqlite.org/limits.html#max_variable_number
const idChunkSize = 500

type ReviewRepo struct {
	db  DB
	now func() time.Time
}

func NewReviewRepo(db DB) repository.ReviewRepository {
	return &ReviewRepo{db: db, now: time.Now}
}

const reviewColumns = `
    review_id, app_id, rating, title, body, reviewer_nickname, created_date, is_edited,
    response_body, response_date, first_sync_at, is_pushed, push_type,
    territory, app_version, response_state, updated_at`

// 時刻はUTCで保存するため julianday で比較できる
const upsertReviewQuery = `
INSERT INTO reviews (` + reviewColumns + `
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (review_id) DO UPDATE SET
    app_id            = excluded.app_id,
    rating            = excluded.rating,
    title             = excluded.title,
    body              = excluded.body,
    reviewer_nickname = excluded.reviewer_nickname,
    created_date      = excluded.created_date,
    is_edited         = excluded.is_edited,
    response_body     = excluded.response_body,
    response_date     = excluded.response_date,
    first_sync_at     = CASE
        WHEN julianday(excluded.first_sync_at) < julianday(reviews.first_sync_at) THEN excluded.first_sync_at
        ELSE reviews.first_sync_at
    END,
    is_pushed         = reviews.is_pushed OR excluded.is_pushed,
    push_type         = COALESCE(excluded.push_type, reviews.push_type),
    territory         = excluded.territory,
    app_version       = excluded.app_version,
    response_state    = excluded.response_state,
    updated_at        = excluded.updated_at`

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

	now := repo.now().UTC()
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
	var responseDate any
	if r.ResponseDate != nil {
		responseDate = r.ResponseDate.UTC()
	}
	var pushType any
	if r.PushType != "" {
		pushType = string(r.PushType)
	}
	return []any{
		r.ID, r.AppID, r.Rating, r.Title, r.Body, r.ReviewerNickname, r.CreatedDate.UTC(), r.IsEdited,
		r.ResponseBody, responseDate, firstSyncAt.UTC(), r.IsPushed, pushType,
		r.Territory, r.AppVersion, r.ResponseState, updatedAt.UTC(),
	}
}

func (repo *ReviewRepo) GetExistingReviewIDs(ctx context.Context, appID string) (map[string]struct{}, error) {
	const query = `SELECT review_id FROM reviews WHERE app_id = ?`
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
	result := make(map[string]entity.Review, len(ids))
	for start := 0; start < len(ids); start += idChunkSize {
		end := min(start+idChunkSize, len(ids))
		if err := repo.loadChunk(ctx, ids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (repo *ReviewRepo) loadChunk(ctx context.Context, ids []string, into map[string]entity.Review) error {
	// placeholdersは"?"のみ
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s\nFROM reviews\nWHERE review_id IN (%s)",
		reviewColumns, strings.Join(placeholders, ","))

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("GetReviewsByIDs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return fmt.Errorf("GetReviewsByIDs: Scan: %w", err)
		}
		into[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("GetReviewsByIDs: rows.Err: %w", err)
	}
	return nil
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
SET response_body = ?, response_date = ?, updated_at = ?
WHERE review_id = ?`
	res, err := repo.db.ExecContext(ctx, query, body, at.UTC(), repo.now().UTC(), reviewID)
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
	const query = `SELECT response_body IS NOT NULL AND response_body <> '' FROM reviews WHERE review_id = ?`
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
