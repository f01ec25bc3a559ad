package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull: per-type capacity reached; existing entries untouched.
	ErrQueueFull = errors.New("offline queue is full")

	// ErrStorageFull: the underlying storage ran out of space.
	ErrStorageFull = errors.New("local storage is full")

	// ErrNotFound: no pending submission with that local id.
	ErrNotFound = errors.New("pending submission not found")
)

// Store is the durable offline queue. One *sql.DB serializes all
// mutations, so an enqueue racing a drain pass cannot be lost.
type Store struct {
	db       *sql.DB
	capacity int
	logger   *zerolog.Logger
}

// NewStore opens (or creates) the sqlite database at path.
// capacity bounds the number of pending submissions per type.
func NewStore(path string, capacity int, logger *zerolog.Logger) (*Store, error) {
	if capacity <= 0 {
		capacity = models.DefaultQueueCapacity
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to queue database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Int("capacity", capacity).Msg("offline queue initialized")
	}
	return &Store{db: db, capacity: capacity, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_submissions (
            local_id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            credential TEXT,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            client_time DATETIME NOT NULL,
            timezone_label TEXT,
            attempt_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS dead_submissions (
            local_id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            client_time DATETIME NOT NULL,
            attempts INTEGER NOT NULL,
            last_error TEXT,
            failed_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_pending_type ON pending_submissions(type)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending_submissions(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Enqueue appends a submission if the per-type capacity allows it.
// The capacity check and insert run in one transaction.
func (s *Store) Enqueue(ctx context.Context, sub models.Submission) (*models.PendingSubmission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorageErr(fmt.Errorf("begin enqueue: %w", err))
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_submissions WHERE type = ?`, sub.Type,
	).Scan(&count)
	if err != nil {
		return nil, wrapStorageErr(fmt.Errorf("count pending: %w", err))
	}
	if count >= s.capacity {
		return nil, fmt.Errorf("%w: %d %s submissions pending", ErrQueueFull, count, sub.Type)
	}

	item := models.PendingSubmission{
		LocalID:       uuid.NewString(),
		OwnerID:       sub.OwnerID,
		Credential:    sub.Credential,
		Type:          sub.Type,
		Payload:       sub.Payload,
		ClientTime:    sub.ClientTime,
		TimezoneLabel: sub.TimezoneLabel,
		CreatedAt:     time.Now(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pending_submissions (local_id, owner_id, credential, type, payload, client_time, timezone_label, attempt_count, last_error, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		item.LocalID, item.OwnerID, item.Credential, item.Type, item.Payload,
		item.ClientTime, item.TimezoneLabel, item.CreatedAt,
	)
	if err != nil {
		return nil, wrapStorageErr(fmt.Errorf("insert pending: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorageErr(fmt.Errorf("commit enqueue: %w", err))
	}

	if s.logger != nil {
		s.logger.Info().Str("local_id", item.LocalID).Str("type", item.Type).Msg("submission queued offline")
	}
	return &item, nil
}

// Snapshot returns all pending items oldest first. This ordering is
// the FIFO contract the sync engine drains in.
func (s *Store) Snapshot(ctx context.Context) ([]models.PendingSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT local_id, owner_id, credential, type, payload, client_time, timezone_label, attempt_count, last_error, created_at
         FROM pending_submissions ORDER BY created_at ASC, local_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot pending: %w", err)
	}
	defer rows.Close()

	var items []models.PendingSubmission
	for rows.Next() {
		var item models.PendingSubmission
		err := rows.Scan(
			&item.LocalID, &item.OwnerID, &item.Credential, &item.Type, &item.Payload,
			&item.ClientTime, &item.TimezoneLabel, &item.AttemptCount, &item.LastError, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return items, nil
}

// Remove deletes one entry. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE local_id = ?`, localID)
	if err != nil {
		return wrapStorageErr(fmt.Errorf("remove pending: %w", err))
	}
	return nil
}

// IncrementAttempt bumps attempt_count and records the failure cause.
// Returns the new attempt count.
func (s *Store) IncrementAttempt(ctx context.Context, localID string, lastError string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_submissions SET attempt_count = attempt_count + 1, last_error = ? WHERE local_id = ?`,
		lastError, localID)
	if err != nil {
		return 0, wrapStorageErr(fmt.Errorf("increment attempt: %w", err))
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT attempt_count FROM pending_submissions WHERE local_id = ?`, localID,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read attempt count: %w", err)
	}
	return count, nil
}

// Count returns the number of pending submissions of one type.
func (s *Store) Count(ctx context.Context, submissionType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_submissions WHERE type = ?`, submissionType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// CountAll returns the number of pending submissions of every type.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count all pending: %w", err)
	}
	return count, nil
}

// RecordDead journals an item evicted after exhausting sync retries.
func (s *Store) RecordDead(ctx context.Context, item models.PendingSubmission, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dead_submissions (local_id, owner_id, type, payload, client_time, attempts, last_error, failed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.LocalID, item.OwnerID, item.Type, item.Payload, item.ClientTime,
		item.AttemptCount, lastError, time.Now(),
	)
	if err != nil {
		return wrapStorageErr(fmt.Errorf("record dead submission: %w", err))
	}
	return nil
}

// DeadSubmissions lists permanently failed items, newest first.
func (s *Store) DeadSubmissions(ctx context.Context) ([]models.DeadSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT local_id, owner_id, type, payload, client_time, attempts, last_error, failed_at
         FROM dead_submissions ORDER BY failed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list dead submissions: %w", err)
	}
	defer rows.Close()

	var items []models.DeadSubmission
	for rows.Next() {
		var item models.DeadSubmission
		err := rows.Scan(
			&item.LocalID, &item.OwnerID, &item.Type, &item.Payload,
			&item.ClientTime, &item.Attempts, &item.LastError, &item.FailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dead submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead submissions: %w", err)
	}
	return items, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// wrapStorageErr surfaces SQLITE_FULL as the distinct storage-full
// condition instead of a generic write failure.
func wrapStorageErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return err
}
