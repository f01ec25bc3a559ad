package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps credentials in redis, namespaced per owner so
// one student's codes never leak into another's suggestions.
type RedisRepository struct {
	client     *redis.Client
	ttl        time.Duration
	historyCap int
}

func NewRedisRepository(client *redis.Client, ttl time.Duration, historyCap int) *RedisRepository {
	if historyCap <= 0 {
		historyCap = models.DefaultCredentialHistory
	}
	return &RedisRepository{client: client, ttl: ttl, historyCap: historyCap}
}

func entryKey(ownerID string) string   { return fmt.Sprintf("credential:%s", ownerID) }
func historyKey(ownerID string) string { return fmt.Sprintf("credential_history:%s", ownerID) }

func (r *RedisRepository) Get(ctx context.Context, ownerID string) (*models.CredentialEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, entryKey(ownerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential from redis: %w", err)
	}

	var entry models.CredentialEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &entry, nil
}

func (r *RedisRepository) Set(ctx context.Context, entry *models.CredentialEntry) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := r.client.Set(ctx, entryKey(entry.OwnerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set credential in redis: %w", err)
	}
	return nil
}

// History returns the owner's codes most-recently-used first.
func (r *RedisRepository) History(ctx context.Context, ownerID string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	values, err := r.client.LRange(ctx, historyKey(ownerID), 0, int64(r.historyCap-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credential history: %w", err)
	}
	return values, nil
}

// PushHistory moves value to the front of the owner's MRU list.
func (r *RedisRepository) PushHistory(ctx context.Context, ownerID, value string, at time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := historyKey(ownerID)
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, key, 0, value)
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, int64(r.historyCap-1))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push credential history: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
