package syncer

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/errclass"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/metrics"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Engine drains the offline queue through the remote channel once
// connectivity returns. A single-flight guard keeps concurrent
// triggers from interleaving queue mutations.
type Engine struct {
	store      domain.QueueStore
	channel    domain.RemoteChannel
	classifier *errclass.Classifier
	retryLimit int
	limiter    *rate.Limiter
	bus        domain.EventPublisher
	logger     *zerolog.Logger
	running    atomic.Bool
}

type Config struct {
	RetryLimit int
	RPS        float64
	Burst      int
}

func NewEngine(
	store domain.QueueStore,
	channel domain.RemoteChannel,
	classifier *errclass.Classifier,
	cfg Config,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *Engine {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = models.DefaultSyncRetryLimit
	}
	if cfg.RPS <= 0 {
		cfg.RPS = models.DefaultSyncRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = models.DefaultSyncBurst
	}
	return &Engine{
		store:      store,
		channel:    channel,
		classifier: classifier,
		retryLimit: cfg.RetryLimit,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		bus:        bus,
		logger:     logger,
	}
}

// SyncAll performs one drain pass over a snapshot of the queue.
// Items enqueued after the snapshot wait for the next trigger. A pass
// already in flight makes this call a no-op. Per-item failures are
// absorbed into the result; only store-level I/O errors propagate.
func (e *Engine) SyncAll(ctx context.Context) (models.SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		if e.logger != nil {
			e.logger.Debug().Msg("sync already running, trigger ignored")
		}
		return models.SyncResult{}, nil
	}
	defer e.running.Store(false)

	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		return models.SyncResult{}, err
	}

	var result models.SyncResult
	for i := range snapshot {
		// Sequential, rate-limited: a fragile connection must not be
		// saturated by the backlog.
		if err := e.limiter.Wait(ctx); err != nil {
			break
		}
		if err := e.processItem(ctx, &snapshot[i], &result); err != nil {
			remaining, _ := e.store.CountAll(ctx)
			result.RemainingCount = remaining
			return result, err
		}
	}

	remaining, err := e.store.CountAll(ctx)
	if err != nil {
		return result, err
	}
	result.RemainingCount = remaining

	if e.logger != nil && (result.SyncedCount > 0 || result.FailedCount > 0) {
		e.logger.Info().
			Int("synced", result.SyncedCount).
			Int("failed", result.FailedCount).
			Int("remaining", result.RemainingCount).
			Msg("sync pass finished")
	}
	metrics.IncSyncPass()
	return result, nil
}

func (e *Engine) processItem(ctx context.Context, item *models.PendingSubmission, result *models.SyncResult) error {
	err := e.channel.Submit(ctx, item.ToSubmission())
	if err == nil {
		return e.markSynced(ctx, item, result)
	}

	cls := e.classifier.Classify(err, "sync")
	if cls.AlreadyRecorded {
		// The service already holds this record; nothing left to sync.
		return e.markSynced(ctx, item, result)
	}

	newCount, incErr := e.store.IncrementAttempt(ctx, item.LocalID, err.Error())
	if incErr != nil {
		return incErr
	}
	result.FailedCount++
	metrics.IncSyncItem("failed")

	// Unclassifiable failures earn a single extra pass, not the full
	// retry budget.
	terminal := !cls.Retryable || newCount >= e.retryLimit || (cls.RetryOnce && newCount >= 2)
	if !terminal {
		if e.logger != nil {
			e.logger.Warn().
				Str("local_id", item.LocalID).
				Int("attempts", newCount).
				Str("kind", string(cls.Kind)).
				Msg("sync attempt failed, will retry next pass")
		}
		return nil
	}

	// Permanent failure: evict instead of retrying forever and keep a
	// record for the user.
	item.AttemptCount = newCount
	if derr := e.store.RecordDead(ctx, *item, err.Error()); derr != nil {
		return derr
	}
	if rerr := e.store.Remove(ctx, item.LocalID); rerr != nil {
		return rerr
	}
	metrics.IncSyncItem("dead")

	if e.logger != nil {
		e.logger.Error().
			Str("local_id", item.LocalID).
			Int("attempts", newCount).
			Str("kind", string(cls.Kind)).
			Msg("submission permanently failed")
	}
	if e.bus != nil {
		_ = e.bus.PublishJSON(events.EventSubmissionFailed, events.SubmissionEventPayload{
			LocalID:  item.LocalID,
			OwnerID:  item.OwnerID,
			Type:     item.Type,
			Attempts: newCount,
			Error:    cls.UserMessage,
		})
	}
	return nil
}

func (e *Engine) markSynced(ctx context.Context, item *models.PendingSubmission, result *models.SyncResult) error {
	if err := e.store.Remove(ctx, item.LocalID); err != nil {
		return err
	}
	result.SyncedCount++
	metrics.IncSyncItem("synced")

	if e.bus != nil {
		_ = e.bus.PublishJSON(events.EventSubmissionSynced, events.SubmissionEventPayload{
			LocalID:  item.LocalID,
			OwnerID:  item.OwnerID,
			Type:     item.Type,
			Attempts: item.AttemptCount,
		})
	}
	return nil
}

// Start wires the engine's triggers: a drain when connectivity comes
// back, and one at startup when the queue is non-empty. Returns the
// unsubscribe func for the connectivity subscription.
func (e *Engine) Start(ctx context.Context, bus *events.EventBus) func() {
	unsubscribe := bus.Subscribe(events.EventConnectivityChanged, func(ev *events.Event) error {
		var payload events.ConnectivityEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil
		}
		if !shouldTrigger(payload.Previous, payload.Current) {
			return nil
		}
		go func() {
			if _, err := e.SyncAll(ctx); err != nil && e.logger != nil {
				e.logger.Error().Err(err).Msg("connectivity-triggered sync failed")
			}
		}()
		return nil
	})

	go func() {
		count, err := e.store.CountAll(ctx)
		if err != nil || count == 0 {
			return
		}
		if e.logger != nil {
			e.logger.Info().Int("pending", count).Msg("pending submissions found at startup")
		}
		if _, err := e.SyncAll(ctx); err != nil && e.logger != nil {
			e.logger.Error().Err(err).Msg("startup sync failed")
		}
	}()

	return unsubscribe
}

// shouldTrigger fires on OFFLINE/SLOW -> reachable transitions.
func shouldTrigger(previous, current string) bool {
	if previous == current {
		return false
	}
	cur := models.Connectivity(current)
	prev := models.Connectivity(previous)
	return cur.Reachable() && (prev == models.ConnectivityOffline || prev == models.ConnectivitySlow)
}
