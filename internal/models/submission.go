package models

import "time"

// Submission types accepted by the record service.
const (
	TypeAttendance = "ATTENDANCE"
	TypeJournal    = "JOURNAL"
)

// Attendance event kinds.
const (
	AttendanceCheckIn  = "MASUK"
	AttendanceCheckOut = "PULANG"
)

// Submission is what a caller hands to the agent: one attendance event
// or one journal entry for a single owner.
type Submission struct {
	OwnerID       string    `json:"owner_id"`
	Credential    string    `json:"credential"`
	Type          string    `json:"type"`
	Payload       string    `json:"payload"`
	ClientTime    time.Time `json:"client_time"`
	TimezoneLabel string    `json:"timezone_label"`
}

// PendingSubmission is a Submission parked in the offline queue.
// The queue store owns these; other components reference them by
// LocalID only.
type PendingSubmission struct {
	LocalID       string    `json:"local_id"`
	OwnerID       string    `json:"owner_id"`
	Credential    string    `json:"credential"`
	Type          string    `json:"type"`
	Payload       string    `json:"payload"`
	ClientTime    time.Time `json:"client_time"`
	TimezoneLabel string    `json:"timezone_label"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     *string   `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToSubmission rebuilds the caller-shaped value for a remote attempt.
func (p *PendingSubmission) ToSubmission() Submission {
	return Submission{
		OwnerID:       p.OwnerID,
		Credential:    p.Credential,
		Type:          p.Type,
		Payload:       p.Payload,
		ClientTime:    p.ClientTime,
		TimezoneLabel: p.TimezoneLabel,
	}
}

// DeadSubmission records an item evicted from the queue after
// exhausting its sync retries. Kept for the handover report.
type DeadSubmission struct {
	LocalID    string    `json:"local_id"`
	OwnerID    string    `json:"owner_id"`
	Type       string    `json:"type"`
	Payload    string    `json:"payload"`
	ClientTime time.Time `json:"client_time"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	FailedAt   time.Time `json:"failed_at"`
}

// SyncResult summarizes one drain pass over the queue snapshot.
// Never persisted.
type SyncResult struct {
	SyncedCount    int `json:"synced_count"`
	FailedCount    int `json:"failed_count"`
	RemainingCount int `json:"remaining_count"`
}

// CredentialEntry is one cached authorization code for an owner.
type CredentialEntry struct {
	OwnerID    string    `json:"owner_id"`
	Value      string    `json:"value"`
	LastUsedAt time.Time `json:"last_used_at"`
}
