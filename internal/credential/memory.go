package credential

import (
	"context"
	"sync"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
)

// MemoryRepository is the in-process fallback used when redis is
// unavailable (the usual state on an offline device).
type MemoryRepository struct {
	mu         sync.RWMutex
	entries    map[string]*models.CredentialEntry
	histories  map[string][]string
	historyCap int
}

func NewMemoryRepository(historyCap int) *MemoryRepository {
	if historyCap <= 0 {
		historyCap = models.DefaultCredentialHistory
	}
	return &MemoryRepository{
		entries:    make(map[string]*models.CredentialEntry),
		histories:  make(map[string][]string),
		historyCap: historyCap,
	}
}

func (r *MemoryRepository) Get(ctx context.Context, ownerID string) (*models.CredentialEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[ownerID]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (r *MemoryRepository) Set(ctx context.Context, entry *models.CredentialEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries[entry.OwnerID] = &copied
	return nil
}

func (r *MemoryRepository) History(ctx context.Context, ownerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.histories[ownerID]...), nil
}

func (r *MemoryRepository) PushHistory(ctx context.Context, ownerID, value string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.histories[ownerID]
	filtered := history[:0]
	for _, v := range history {
		if v != value {
			filtered = append(filtered, v)
		}
	}
	history = append([]string{value}, filtered...)
	if len(history) > r.historyCap {
		history = history[:r.historyCap]
	}
	r.histories[ownerID] = history
	return nil
}
