package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sony/gobreaker"
)

func testDBConfig() Config {
	return Config{
		Name:             "test-db",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

func TestNewDB(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDB(db)

	if d.Unwrap() != db {
		t.Error("expected Unwrap to return the pool")
	}
	if d.State() != gobreaker.StateClosed {
		t.Errorf("expected initial state to be Closed, got %s", d.State())
	}
}

func TestDB_QueryContext_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDB(db)
	mock.ExpectQuery("SELECT review_id FROM reviews").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"review_id"}).AddRow("r1"))

	rows, err := d.QueryContext(context.Background(), "SELECT review_id FROM reviews WHERE app_id = $1", "app-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var id string
	if err := rows.Scan(&id); err != nil || id != "r1" {
		t.Fatalf("Scan id=%q err=%v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_ExecContext_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDB(db)
	mock.ExpectExec("UPDATE reviews").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := d.ExecContext(context.Background(), "UPDATE reviews SET is_pushed = TRUE WHERE review_id = $1", "r1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		t.Errorf("expected 1 row affected, got %d", n)
	}
}

func TestDB_BeginTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDB(db)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := d.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_OpensAfterConsecutiveFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDBWithConfig(db, testDBConfig())
	ctx := context.Background()

	expectedErr := errors.New("database connection failed")
	for i := 0; i < 5; i++ {
		mock.ExpectBegin().WillReturnError(expectedErr)
	}
	for i := 0; i < 5; i++ {
		if _, err := d.BeginTx(ctx, nil); err == nil {
			t.Errorf("attempt %d: expected error, got nil", i+1)
		}
	}

	if !d.IsOpen() {
		t.Fatalf("expected circuit to be open, state: %s", d.State())
	}

	// Next call fails fast without touching the pool
	_, err = d.ExecContext(ctx, "UPDATE reviews SET is_pushed = TRUE")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_CancelledContextDoesNotTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDBWithConfig(db, testDBConfig())
	for i := 0; i < 6; i++ {
		mock.ExpectExec("UPDATE reviews").WillReturnError(context.Canceled)
	}
	for i := 0; i < 6; i++ {
		_, _ = d.ExecContext(context.Background(), "UPDATE reviews SET is_pushed = TRUE")
	}

	if d.IsOpen() {
		t.Error("expected circuit to stay closed for cancelled contexts")
	}
}

func TestDB_HalfOpenAfterTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDBWithConfig(db, testDBConfig())
	ctx := context.Background()

	expectedErr := errors.New("database connection failed")
	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT (.+)").WillReturnError(expectedErr)
	}
	for i := 0; i < 5; i++ {
		_, _ = d.QueryContext(ctx, "SELECT review_id FROM reviews")
	}
	if !d.IsOpen() {
		t.Fatal("expected circuit to be open")
	}

	time.Sleep(100 * time.Millisecond)

	mock.ExpectQuery("SELECT (.+)").WillReturnRows(sqlmock.NewRows([]string{"review_id"}).AddRow("r1"))
	rows, err := d.QueryContext(ctx, "SELECT review_id FROM reviews")
	if err != nil {
		t.Fatalf("expected query to succeed in half-open state, got %v", err)
	}
	_ = rows.Close()
}

func TestDB_QueryRowContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer func() { _ = db.Close() }()

	d := NewDB(db)
	mock.ExpectQuery("SELECT last_sync_time FROM sync_state").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(7)))

	var n int
	if err := d.QueryRowContext(context.Background(), "SELECT last_sync_time FROM sync_state WHERE app_id = $1", "app-1").Scan(&n); err != nil {
		t.Fatalf("failed to scan row: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

func TestDBConfig(t *testing.T) {
	cfg := DBConfig()

	if cfg.Name != "database" {
		t.Errorf("expected name 'database', got '%s'", cfg.Name)
	}
	if cfg.MaxRequests != 3 {
		t.Errorf("expected MaxRequests 3, got %d", cfg.MaxRequests)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", cfg.Timeout)
	}
	if cfg.FailureThreshold != 1.0 {
		t.Errorf("expected FailureThreshold 1.0, got %f", cfg.FailureThreshold)
	}
}
