package domain

import (
	"context"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
)

// QueueStore is the durable holding area for submissions that could
// not be delivered online. It is the only shared mutable resource
// between the orchestrator (enqueue) and the sync engine
// (snapshot/remove/increment); implementations must serialize
// mutations so an enqueue during a drain is never lost.
type QueueStore interface {
	Enqueue(ctx context.Context, sub models.Submission) (*models.PendingSubmission, error)
	Snapshot(ctx context.Context) ([]models.PendingSubmission, error)
	Remove(ctx context.Context, localID string) error
	IncrementAttempt(ctx context.Context, localID string, lastError string) (int, error)
	Count(ctx context.Context, submissionType string) (int, error)
	CountAll(ctx context.Context) (int, error)
	RecordDead(ctx context.Context, item models.PendingSubmission, lastError string) error
	DeadSubmissions(ctx context.Context) ([]models.DeadSubmission, error)
}

// RemoteChannel delivers one submission to the record service.
// The service enforces per-owner per-day uniqueness; a duplicate is
// reported through an "already recorded" rejection, not an error.
type RemoteChannel interface {
	Submit(ctx context.Context, sub models.Submission) error
}

// ConnectivitySource exposes the last known network classification.
// Status never blocks; SampleNow forces a probe before a submission.
type ConnectivitySource interface {
	Status() models.Connectivity
	SampleNow(ctx context.Context) models.Connectivity
}

// CredentialRepository persists cached authorization codes per owner.
type CredentialRepository interface {
	Get(ctx context.Context, ownerID string) (*models.CredentialEntry, error)
	Set(ctx context.Context, entry *models.CredentialEntry) error
	History(ctx context.Context, ownerID string) ([]string, error)
	PushHistory(ctx context.Context, ownerID, value string, at time.Time) error
}

// EventPublisher lets core components announce state changes without
// knowing who listens.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncTrigger is what event subscriptions call to kick a drain pass.
type SyncTrigger interface {
	SyncAll(ctx context.Context) (models.SyncResult, error)
}
