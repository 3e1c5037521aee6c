package repositories

import (
	"context"

	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/reliability"
	"watchparty/internal/infrastructure/repositories/memory"
	redisrepo "watchparty/internal/infrastructure/repositories/redis"
	"watchparty/pkg/circuitbreaker"
	"watchparty/pkg/config"
	"watchparty/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. When Redis is
// enabled but unreachable it falls back to memory repositories rather
// than failing startup.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis presence repository")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateRoomRegistry creates the live room registry. Always memory:
// room lifecycle (destroy-on-empty, atomic pairing) is a per-process
// contract tied to the websocket connections this instance owns.
func (f *RepositoryFactory) CreateRoomRegistry() ports.RoomRegistry {
	return memory.NewMemoryRoomRegistry()
}

// CreatePresenceRepository creates a presence repository (Redis or
// memory with fallback). The Redis variant is wrapped with retry and a
// circuit breaker; the memory one does not need either.
func (f *RepositoryFactory) CreatePresenceRepository() ports.PresenceRepository {
	if f.useRedis && f.redisClient != nil {
		return reliability.NewPresenceWrapper(
			redisrepo.NewRedisPresenceRepository(f.redisClient),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemoryPresenceRepository()
}

// RedisClient exposes the shared client for components that ride the
// same connection, like the event bus. Nil when Redis is unavailable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if used.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
