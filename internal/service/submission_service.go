package service

import (
	"context"
	"fmt"

	"github.com/Jem1004/pklapps-v2-sub000/internal/credential"
	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/metrics"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/submit"

	"github.com/rs/zerolog"
)

// SubmissionService is the caller-facing API of the agent: submit a
// record, inspect the queue, force a sync, ask for credential
// suggestions. Presentation layers talk only to this type.
type SubmissionService struct {
	orchestrator *submit.Orchestrator
	engine       domain.SyncTrigger
	cache        *credential.Cache
	store        domain.QueueStore
	channel      domain.RemoteChannel
	monitor      domain.ConnectivitySource
	bus          domain.EventPublisher
	logger       *zerolog.Logger
}

func NewSubmissionService(
	orchestrator *submit.Orchestrator,
	engine domain.SyncTrigger,
	cache *credential.Cache,
	store domain.QueueStore,
	channel domain.RemoteChannel,
	monitor domain.ConnectivitySource,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		orchestrator: orchestrator,
		engine:       engine,
		cache:        cache,
		store:        store,
		channel:      channel,
		monitor:      monitor,
		bus:          bus,
		logger:       logger,
	}
}

// Submit runs one submission through the resilience flow and updates
// the credential cache when the service accepted the record.
func (s *SubmissionService) Submit(ctx context.Context, sub models.Submission) (submit.Result, error) {
	if err := validateSubmission(sub); err != nil {
		return submit.Result{Status: submit.StatusFailed, Message: err.Error()}, err
	}
	sub.Credential = credential.Normalize(sub.Credential)

	result, err := s.orchestrator.Submit(ctx, sub, s.channel)
	metrics.IncSubmission(string(result.Status))

	if result.Status == submit.StatusDelivered || result.Status == submit.StatusAlreadyRecorded {
		if sub.Credential != "" {
			if cerr := s.cache.Store(ctx, sub.OwnerID, sub.Credential); cerr != nil && s.logger != nil {
				s.logger.Warn().Err(cerr).Str("owner_id", sub.OwnerID).Msg("failed to cache credential")
			}
		}
	}

	s.refreshQueueDepth(ctx, sub.Type)
	return result, err
}

// QueueCount returns the number of pending submissions of one type.
func (s *SubmissionService) QueueCount(ctx context.Context, submissionType string) (int, error) {
	return s.store.Count(ctx, submissionType)
}

// SyncNow drives a user-initiated drain pass.
func (s *SubmissionService) SyncNow(ctx context.Context) (models.SyncResult, error) {
	result, err := s.engine.SyncAll(ctx)
	s.refreshQueueDepth(ctx, models.TypeAttendance)
	s.refreshQueueDepth(ctx, models.TypeJournal)
	return result, err
}

// CredentialSuggestions returns cached codes matching the prefix,
// most recently used first.
func (s *SubmissionService) CredentialSuggestions(ctx context.Context, ownerID, prefix string) ([]string, error) {
	return s.cache.Suggestions(ctx, ownerID, prefix)
}

// ValidateCredential is the structural (offline) credential check.
func (s *SubmissionService) ValidateCredential(value string) credential.ValidationResult {
	return credential.Validate(value)
}

// Connectivity exposes the last known classification.
func (s *SubmissionService) Connectivity() models.Connectivity {
	return s.monitor.Status()
}

func (s *SubmissionService) refreshQueueDepth(ctx context.Context, submissionType string) {
	count, err := s.store.Count(ctx, submissionType)
	if err != nil {
		return
	}
	metrics.SetQueueDepth(submissionType, count)
	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventQueueChanged, events.QueueEventPayload{
			Type:  submissionType,
			Count: count,
		})
	}
}

func validateSubmission(sub models.Submission) error {
	if sub.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	switch sub.Type {
	case models.TypeAttendance, models.TypeJournal:
	default:
		return fmt.Errorf("unknown submission type: %q", sub.Type)
	}
	if sub.Payload == "" {
		return fmt.Errorf("payload is required")
	}
	if sub.ClientTime.IsZero() {
		return fmt.Errorf("client time is required")
	}
	return nil
}
