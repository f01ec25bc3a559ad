package submit

import (
	"context"
	"errors"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/errclass"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/queue"

	"github.com/rs/zerolog"
)

// Status is the caller-visible outcome of one submission.
type Status string

const (
	StatusDelivered       Status = "delivered"
	StatusAlreadyRecorded Status = "already_recorded"
	StatusStoredOffline   Status = "stored_offline"
	StatusFailed          Status = "failed"
)

// Result reports what happened to a submission. LocalID is set only
// when the item was parked in the offline queue.
type Result struct {
	Status  Status
	Message string
	LocalID string
	Kind    errclass.Kind
}

// Orchestrator attempts an online submission with bounded retries and
// falls back to the offline queue when the device is unreachable.
type Orchestrator struct {
	monitor    domain.ConnectivitySource
	store      domain.QueueStore
	classifier *errclass.Classifier
	policy     RetryPolicy
	bus        domain.EventPublisher
	logger     *zerolog.Logger
}

func NewOrchestrator(
	monitor domain.ConnectivitySource,
	store domain.QueueStore,
	classifier *errclass.Classifier,
	policy RetryPolicy,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *Orchestrator {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = models.DefaultMaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	return &Orchestrator{
		monitor:    monitor,
		store:      store,
		classifier: classifier,
		policy:     policy,
		bus:        bus,
		logger:     logger,
	}
}

// Submit runs the full online-first flow:
//
//  1. OFFLINE device: skip remote attempts, enqueue directly.
//  2. Up to MaxAttempts remote calls with increasing backoff.
//  3. Non-retryable failures abort immediately, never enqueued.
//  4. Exhausted retryable failures: enqueue only if the device has
//     gone OFFLINE meanwhile; a reachable-but-rejecting service is a
//     terminal failure, resubmitting unchanged would repeat it.
func (o *Orchestrator) Submit(ctx context.Context, sub models.Submission, channel domain.RemoteChannel) (Result, error) {
	if status := o.monitor.SampleNow(ctx); !status.Reachable() {
		return o.storeOffline(ctx, sub)
	}

	var lastErr error
	unknownFailures := 0

	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		err := channel.Submit(ctx, sub)
		if err == nil {
			return Result{Status: StatusDelivered, Message: "submission delivered"}, nil
		}
		lastErr = err

		cls := o.classifier.Classify(err, "submit")
		if cls.AlreadyRecorded {
			return Result{Status: StatusAlreadyRecorded, Message: cls.UserMessage, Kind: cls.Kind}, nil
		}
		if !cls.Retryable {
			return Result{Status: StatusFailed, Message: cls.UserMessage, Kind: cls.Kind}, err
		}
		if cls.RetryOnce {
			unknownFailures++
			if unknownFailures > 1 {
				return Result{Status: StatusFailed, Message: cls.UserMessage, Kind: cls.Kind}, err
			}
		}

		if attempt < o.policy.MaxAttempts {
			if werr := wait(ctx, o.policy.NextDelay(attempt)); werr != nil {
				lastErr = werr
				break
			}
		}
	}

	// Exhausted on retryable failures: decide between the queue and a
	// terminal error based on fresh connectivity.
	if status := o.monitor.SampleNow(ctx); !status.Reachable() {
		return o.storeOffline(ctx, sub)
	}

	cls := o.classifier.Classify(lastErr, "submit_exhausted")
	if o.logger != nil {
		o.logger.Error().Err(lastErr).Str("type", sub.Type).Msg("submission attempts exhausted while reachable")
	}
	return Result{
		Status:  StatusFailed,
		Message: cls.UserMessage,
		Kind:    cls.Kind,
	}, lastErr
}

func (o *Orchestrator) storeOffline(ctx context.Context, sub models.Submission) (Result, error) {
	item, err := o.store.Enqueue(ctx, sub)
	if err != nil {
		cls := o.classifier.Classify(err, "enqueue")
		if errors.Is(err, queue.ErrQueueFull) {
			return Result{
				Status:  StatusFailed,
				Message: "offline queue is full, sync before submitting more",
				Kind:    cls.Kind,
			}, err
		}
		return Result{Status: StatusFailed, Message: cls.UserMessage, Kind: cls.Kind}, err
	}

	if o.bus != nil {
		count, cerr := o.store.Count(ctx, sub.Type)
		if cerr == nil {
			_ = o.bus.PublishJSON(events.EventQueueChanged, events.QueueEventPayload{
				LocalID: item.LocalID,
				Type:    item.Type,
				Count:   count,
			})
		}
	}

	return Result{
		Status:  StatusStoredOffline,
		Message: "stored offline, will sync when connection returns",
		LocalID: item.LocalID,
	}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
