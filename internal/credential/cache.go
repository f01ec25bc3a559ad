package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/rs/zerolog"
)

// ValidationResult is the outcome of a structural credential check.
// It never involves the record service.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Cache suggests and stores short authorization codes per owner.
type Cache struct {
	repo            domain.CredentialRepository
	suggestionLimit int
	logger          *zerolog.Logger
}

func NewCache(repo domain.CredentialRepository, suggestionLimit int, logger *zerolog.Logger) *Cache {
	if suggestionLimit <= 0 {
		suggestionLimit = models.DefaultSuggestionLimit
	}
	return &Cache{repo: repo, suggestionLimit: suggestionLimit, logger: logger}
}

// Normalize maps a code to its canonical form.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// Get returns the owner's cached code, or empty when none is cached.
func (c *Cache) Get(ctx context.Context, ownerID string) (string, error) {
	entry, err := c.repo.Get(ctx, ownerID)
	if err != nil {
		if c.logger != nil {
			c.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to get cached credential")
		}
		return "", err
	}
	if entry == nil {
		return "", nil
	}
	return entry.Value, nil
}

// Store normalizes the value, overwrites the owner's entry and moves
// it to the front of the suggestion history.
func (c *Cache) Store(ctx context.Context, ownerID, value string) error {
	normalized := Normalize(value)
	if result := Validate(normalized); !result.Valid {
		return fmt.Errorf("invalid credential: %s", strings.Join(result.Errors, "; "))
	}

	now := time.Now()
	entry := &models.CredentialEntry{OwnerID: ownerID, Value: normalized, LastUsedAt: now}
	if err := c.repo.Set(ctx, entry); err != nil {
		return err
	}
	return c.repo.PushHistory(ctx, ownerID, normalized, now)
}

// Suggestions returns historically used codes whose normalized form
// starts with the normalized prefix, most-recently-used first,
// bounded to the suggestion limit. An empty prefix matches everything.
func (c *Cache) Suggestions(ctx context.Context, ownerID, prefix string) ([]string, error) {
	history, err := c.repo.History(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	normalizedPrefix := Normalize(prefix)
	var matches []string
	for _, value := range history {
		if strings.HasPrefix(Normalize(value), normalizedPrefix) {
			matches = append(matches, value)
			if len(matches) >= c.suggestionLimit {
				break
			}
		}
	}
	return matches, nil
}

// Validate checks length bounds and the allowed character set
// (A-Z, 0-9 and dash after normalization).
func Validate(value string) ValidationResult {
	normalized := Normalize(value)
	var errs []string

	if len(normalized) < models.CredentialMinLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", models.CredentialMinLen))
	}
	if len(normalized) > models.CredentialMaxLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", models.CredentialMaxLen))
	}
	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			errs = append(errs, fmt.Sprintf("character %q is not allowed", r))
			break
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
