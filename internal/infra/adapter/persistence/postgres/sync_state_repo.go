package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"protalk/internal/repository"
)

type SyncStateRepo struct{ db DB }

func NewSyncStateRepo(db DB) repository.SyncStateRepository {
	return &SyncStateRepo{db: db}
}

func (repo *SyncStateRepo) GetLastSyncTime(ctx context.Context, appID string) (*time.Time, error) {
	const query = `SELECT last_sync_time FROM sync_state WHERE app_id = $1`
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
VALUES ($1, $2, now())
ON CONFLICT (app_id) DO UPDATE SET
    last_sync_time = EXCLUDED.last_sync_time,
    updated_at     = now()`
	if _, err := repo.db.ExecContext(ctx, query, appID, at); err != nil {
		return fmt.Errorf("UpdateSyncTime: ExecContext: %w", err)
	}
	return nil
}
