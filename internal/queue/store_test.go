package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
)

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := NewStore(path, capacity, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSubmission(submissionType, payload string) models.Submission {
	return models.Submission{
		OwnerID:       "student-1",
		Credential:    "ABC-123",
		Type:          submissionType,
		Payload:       payload,
		ClientTime:    time.Now(),
		TimezoneLabel: "+0700",
	}
}

func TestEnqueueAndSnapshot(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, models.AttendanceCheckIn))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.LocalID == "" {
		t.Fatalf("expected generated local id")
	}
	if item.AttemptCount != 0 {
		t.Fatalf("expected attempt_count=0, got %d", item.AttemptCount)
	}

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(snapshot))
	}
	if snapshot[0].LocalID != item.LocalID {
		t.Errorf("expected local_id %s, got %s", item.LocalID, snapshot[0].LocalID)
	}
	if snapshot[0].Payload != models.AttendanceCheckIn {
		t.Errorf("expected payload %s, got %s", models.AttendanceCheckIn, snapshot[0].Payload)
	}
	if snapshot[0].LastError != nil {
		t.Errorf("expected no last_error on fresh item")
	}
}

func TestSnapshotOrderedOldestFirst(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		item, err := store.Enqueue(ctx, testSubmission(models.TypeJournal, "entry"))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids = append(ids, item.LocalID)
		time.Sleep(2 * time.Millisecond)
	}

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != len(ids) {
		t.Fatalf("expected %d items, got %d", len(ids), len(snapshot))
	}
	for i, item := range snapshot {
		if item.LocalID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], item.LocalID)
		}
	}
}

func TestEnqueueCapacityPerType(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, "x")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	_, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, "overflow"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// Capacity is per type: the journal queue still has room.
	if _, err := store.Enqueue(ctx, testSubmission(models.TypeJournal, "entry")); err != nil {
		t.Fatalf("journal enqueue should succeed: %v", err)
	}

	// A rejected enqueue must not disturb existing entries.
	count, err := store.Count(ctx, models.TypeAttendance)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 attendance pending, got %d", count)
	}
}

func TestIncrementAttempt(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, "x"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	count, err := store.IncrementAttempt(ctx, item.LocalID, "timeout")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Errorf("expected attempt count 1, got %d", count)
	}

	count, err = store.IncrementAttempt(ctx, item.LocalID, "server error")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 2 {
		t.Errorf("expected attempt count 2, got %d", count)
	}

	snapshot, _ := store.Snapshot(ctx)
	if snapshot[0].LastError == nil || *snapshot[0].LastError != "server error" {
		t.Errorf("expected last_error to hold the latest failure")
	}

	if _, err := store.IncrementAttempt(ctx, "missing-id", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, testSubmission(models.TypeJournal, "entry"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := store.Remove(ctx, item.LocalID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	count, _ := store.CountAll(ctx)
	if count != 0 {
		t.Errorf("expected empty queue after remove, got %d", count)
	}

	// Removing twice is a no-op, not an error.
	if err := store.Remove(ctx, item.LocalID); err != nil {
		t.Errorf("second remove should be a no-op: %v", err)
	}
}

func TestRecordDead(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, models.AttendanceCheckOut))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	item.AttemptCount = 5

	if err := store.RecordDead(ctx, *item, "validation rejected"); err != nil {
		t.Fatalf("record dead: %v", err)
	}
	if err := store.Remove(ctx, item.LocalID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	dead, err := store.DeadSubmissions(ctx)
	if err != nil {
		t.Fatalf("dead submissions: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead submission, got %d", len(dead))
	}
	if dead[0].LocalID != item.LocalID {
		t.Errorf("expected local_id %s, got %s", item.LocalID, dead[0].LocalID)
	}
	if dead[0].Attempts != 5 {
		t.Errorf("expected 5 attempts, got %d", dead[0].Attempts)
	}
	if dead[0].LastError != "validation rejected" {
		t.Errorf("unexpected last_error: %s", dead[0].LastError)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	store, err := NewStore(path, 10, nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	item, err := store.Enqueue(ctx, testSubmission(models.TypeJournal, "persisted entry"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.IncrementAttempt(ctx, item.LocalID, "flaky network"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, 10, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	snapshot, err := reopened.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("expected queue to survive restart, got %d items", len(snapshot))
	}
	if snapshot[0].LocalID != item.LocalID {
		t.Errorf("expected local_id %s, got %s", item.LocalID, snapshot[0].LocalID)
	}
	if snapshot[0].AttemptCount != 1 {
		t.Errorf("expected attempt count to survive restart, got %d", snapshot[0].AttemptCount)
	}
}

func TestCountByType(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Enqueue(ctx, testSubmission(models.TypeAttendance, "x")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, err := store.Enqueue(ctx, testSubmission(models.TypeJournal, "y")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	attendance, err := store.Count(ctx, models.TypeAttendance)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	journal, err := store.Count(ctx, models.TypeJournal)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	all, err := store.CountAll(ctx)
	if err != nil {
		t.Fatalf("count all: %v", err)
	}

	if attendance != 2 || journal != 1 || all != 3 {
		t.Errorf("expected counts 2/1/3, got %d/%d/%d", attendance, journal, all)
	}
}
