package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"watchparty/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKey = "watchparty:rooms"
	presenceTTL = 24 * time.Hour
)

// RedisPresenceRepository mirrors room occupancy into a Redis hash so
// several relay instances can be inspected from one place. The live
// room registry stays in process memory; this is observability state
// only and every write is best-effort.
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) SetOccupancy(ctx context.Context, roomID domain.RoomID, occupants int) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, presenceKey, string(roomID), occupants)
	pipe.Expire(ctx, presenceKey, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record room presence: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) Clear(ctx context.Context, roomID domain.RoomID) error {
	if err := r.client.HDel(ctx, presenceKey, string(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to clear room presence: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) Snapshot(ctx context.Context) (map[domain.RoomID]int, error) {
	raw, err := r.client.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room presence: %w", err)
	}

	out := make(map[domain.RoomID]int, len(raw))
	for id, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[domain.RoomID(id)] = n
	}
	return out, nil
}
