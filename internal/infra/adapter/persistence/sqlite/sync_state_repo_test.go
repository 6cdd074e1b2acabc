package sqlite_test

import (
	"context"
	"testing"
	"time"

	"protalk/internal/infra/adapter/persistence/sqlite"
)

// ─────────────────────────────────────────────
// 1. 未同期 → nil
// ─────────────────────────────────────────────
func TestSyncStateRepo_NeverSynced(t *testing.T) {
	repo := sqlite.NewSyncStateRepo(openTestDB(t))

	got, err := repo.GetLastSyncTime(context.Background(), "app-1")
	if err != nil || got != nil {
		t.Fatalf("GetLastSyncTime got=%v err=%v, want nil,nil", got, err)
	}
}

// ─────────────────────────────────────────────
// 2. 更新 → 上書き
// ─────────────────────────────────────────────
func TestSyncStateRepo_UpdateSyncTime(t *testing.T) {
	repo := sqlite.NewSyncStateRepo(openTestDB(t))
	ctx := context.Background()

	first := time.Date(2025, 7, 19, 12, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)

	if err := repo.UpdateSyncTime(ctx, "app-1", first); err != nil {
		t.Fatalf("UpdateSyncTime(first) err=%v", err)
	}
	if err := repo.UpdateSyncTime(ctx, "app-1", second); err != nil {
		t.Fatalf("UpdateSyncTime(second) err=%v", err)
	}

	got, err := repo.GetLastSyncTime(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetLastSyncTime err=%v", err)
	}
	if got == nil || !got.Equal(second) {
		t.Fatalf("GetLastSyncTime=%v, want %v", got, second)
	}

	other, err := repo.GetLastSyncTime(ctx, "app-2")
	if err != nil || other != nil {
		t.Fatalf("watermark leaked across apps: %v err=%v", other, err)
	}
}
