package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/pkg/retry"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceBackend is the shared-cache presence store for multi-instance
// deployments. Per-connection detail keys and the aggregated summary key are
// separate entries, each with the same bounded TTL, so a crashed instance's
// stale entries expire on their own and a failed delete degrades to "expires
// naturally" rather than "never clears".
type RedisPresenceBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  retry.Config
}

func NewRedisPresenceBackend(client *redis.Client, ttl time.Duration) ports.PresenceBackend {
	return &RedisPresenceBackend{
		client: client,
		prefix: "relaygate:presence:",
		ttl:    ttl,
		retry:  retry.PresenceWriteConfig(),
	}
}

func (r *RedisPresenceBackend) summaryKey(actorID domain.ActorID) string {
	return fmt.Sprintf("%s%s:summary", r.prefix, actorID)
}

func (r *RedisPresenceBackend) connKey(actorID domain.ActorID, connID domain.ConnectionID) string {
	return fmt.Sprintf("%s%s:conn:%s", r.prefix, actorID, connID)
}

func (r *RedisPresenceBackend) TrackJoin(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal connection meta: %w", err)
	}

	key := r.connKey(actorID, meta.ID)
	return retry.Do(ctx, r.retry, func() error {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set presence detail in Redis: %w", err)
		}
		return nil
	})
}

func (r *RedisPresenceBackend) TrackLeave(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta, reason string) error {
	key := r.connKey(actorID, meta.ID)
	// A failed delete is tolerable: the detail key still carries a TTL.
	return retry.Do(ctx, r.retry, func() error {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete presence detail from Redis: %w", err)
		}
		return nil
	})
}

func (r *RedisPresenceBackend) SetSummary(ctx context.Context, record *domain.PresenceRecord) error {
	key := r.summaryKey(record.ActorID)

	if len(record.Connections) == 0 {
		return retry.Do(ctx, r.retry, func() error {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("failed to delete presence summary from Redis: %w", err)
			}
			return nil
		})
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	return retry.Do(ctx, r.retry, func() error {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set presence summary in Redis: %w", err)
		}
		return nil
	})
}

func (r *RedisPresenceBackend) GetSummary(ctx context.Context, actorID domain.ActorID) (*domain.PresenceRecord, error) {
	data, err := r.client.Get(ctx, r.summaryKey(actorID)).Result()
	if err == redis.Nil {
		return &domain.PresenceRecord{ActorID: actorID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence summary from Redis: %w", err)
	}

	var record domain.PresenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence record: %w", err)
	}
	return &record, nil
}
