package credential

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/rs/zerolog"
)

// FailoverRepository prefers the primary (redis) repository and falls
// back to the in-memory one when it errors, retrying the primary
// after a cool-down.
type FailoverRepository struct {
	primary   domain.CredentialRepository
	fallback  domain.CredentialRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverRepository(primary, fallback domain.CredentialRepository, logger *zerolog.Logger) *FailoverRepository {
	return &FailoverRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRepository) markDown(err error) {
	if r.logger != nil {
		r.logger.Error().Err(err).Msg("Primary credential repository failed, falling back to memory")
	}
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverRepository) primaryUsable() bool {
	if !r.isDown.Load() {
		return true
	}
	// Try to recover after 1 minute.
	if time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute {
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (r *FailoverRepository) Get(ctx context.Context, ownerID string) (*models.CredentialEntry, error) {
	if r.primaryUsable() {
		entry, err := r.primary.Get(ctx, ownerID)
		if err == nil {
			r.isDown.Store(false)
			return entry, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, ownerID)
}

func (r *FailoverRepository) Set(ctx context.Context, entry *models.CredentialEntry) error {
	// Always mirror into the fallback so a later redis outage still
	// serves the freshest value.
	_ = r.fallback.Set(ctx, entry)

	if r.primaryUsable() {
		err := r.primary.Set(ctx, entry)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverRepository) History(ctx context.Context, ownerID string) ([]string, error) {
	if r.primaryUsable() {
		history, err := r.primary.History(ctx, ownerID)
		if err == nil {
			r.isDown.Store(false)
			return history, nil
		}
		r.markDown(err)
	}
	return r.fallback.History(ctx, ownerID)
}

func (r *FailoverRepository) PushHistory(ctx context.Context, ownerID, value string, at time.Time) error {
	_ = r.fallback.PushHistory(ctx, ownerID, value, at)

	if r.primaryUsable() {
		err := r.primary.PushHistory(ctx, ownerID, value, at)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return nil
}
