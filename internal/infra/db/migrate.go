package db

import (
	"database/sql"
	"fmt"
)

// reviews: マーケットプレイスのレビュー本体 + 同期制御カラム (first_sync_at, is_pushed, push_type)
// sync_state: アプリ単位の同期ウォーターマーク
var postgresSchema = []string{
	`
CREATE TABLE IF NOT EXISTS reviews (
    review_id         TEXT PRIMARY KEY,
    app_id            TEXT NOT NULL,
    rating            SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
    title             TEXT NOT NULL DEFAULT '',
    body              TEXT NOT NULL,
    reviewer_nickname TEXT NOT NULL,
    created_date      TIMESTAMPTZ NOT NULL,
    is_edited         BOOLEAN NOT NULL DEFAULT FALSE,
    response_body     TEXT,
    response_date     TIMESTAMPTZ,
    first_sync_at     TIMESTAMPTZ NOT NULL,
    is_pushed         BOOLEAN NOT NULL DEFAULT FALSE,
    push_type         VARCHAR(16),
    territory         TEXT NOT NULL DEFAULT '',
    app_version       TEXT NOT NULL DEFAULT '',
    response_state    TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS sync_state (
    app_id         TEXT PRIMARY KEY,
    last_sync_time TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	// アプリ別の既存ID取得用
	`CREATE INDEX IF NOT EXISTS idx_reviews_app_id ON reviews(app_id)`,
	// アプリ別・新しい順の一覧用
	`CREATE INDEX IF NOT EXISTS idx_reviews_app_created ON reviews(app_id, created_date DESC)`,
}

var sqliteSchema = []string{
	`
CREATE TABLE IF NOT EXISTS reviews (
    review_id         TEXT PRIMARY KEY,
    app_id            TEXT NOT NULL,
    rating            INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
    title             TEXT NOT NULL DEFAULT '',
    body              TEXT NOT NULL,
    reviewer_nickname TEXT NOT NULL,
    created_date      DATETIME NOT NULL,
    is_edited         BOOLEAN NOT NULL DEFAULT 0,
    response_body     TEXT,
    response_date     DATETIME,
    first_sync_at     DATETIME NOT NULL,
    is_pushed         BOOLEAN NOT NULL DEFAULT 0,
    push_type         TEXT,
    territory         TEXT NOT NULL DEFAULT '',
    app_version       TEXT NOT NULL DEFAULT '',
    response_state    TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`
CREATE TABLE IF NOT EXISTS sync_state (
    app_id         TEXT PRIMARY KEY,
    last_sync_time DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_app_id ON reviews(app_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_app_created ON reviews(app_id, created_date DESC)`,
}

// MigrateUp creates the reviews and sync_state tables for driver.
// Every statement is idempotent, so it runs on each worker start.
func MigrateUp(db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops the review tables and their indexes.
// Use with caution: this deletes every stored review and watermark.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_reviews_app_created`,
		`DROP INDEX IF EXISTS idx_reviews_app_id`,
		`DROP TABLE IF EXISTS sync_state`,
		`DROP TABLE IF EXISTS reviews`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
