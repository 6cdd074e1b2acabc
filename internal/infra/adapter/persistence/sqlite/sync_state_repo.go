package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"protalk/internal/repository"
)

type SyncStateRepo struct {
	db  DB
	now func() time.Time
}

func NewSyncStateRepo(db DB) repository.SyncStateRepository {
	return &SyncStateRepo{db: db, now: time.Now}
}

func (repo *SyncStateRepo) GetLastSyncTime(ctx context.Context, appID string) (*time.Time, error) {
	const query = `SELECT last_sync_time FROM sync_state WHERE app_id = ?`
	var at time.Time
	err := repo.db.QueryRowContext(ctx, query, appID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetLastSyncTime: QueryRowContext: %w", err)
	}
	return &at, nil
}

func (repo *SyncStateRepo) UpdateSyncTime(ctx context.Context, appID string, at time.Time) error {
	const query = `
INSERT INTO sync_state (app_id, last_sync_time, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (app_id) DO UPDATE SET
    last_sync_time = excluded.last_sync_time,
    updated_at     = excluded.updated_at`
	if _, err := repo.db.ExecContext(ctx, query, appID, at.UTC(), repo.now().UTC()); err != nil {
		return fmt.Errorf("UpdateSyncTime: ExecContext: %w", err)
	}
	return nil
}
