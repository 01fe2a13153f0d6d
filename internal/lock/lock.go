package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/xref"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/redis"
	"github.com/google/uuid"
)

type LockConfig struct {
	// LockTTL bounds how long a crashed holder can block other cascades.
	LockTTL time.Duration

	KeyPrefix string
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		LockTTL:   30 * time.Second,
		KeyPrefix: "xref:lock:",
	}
}

// RedisLocker is a single-instance redis lock. Each acquisition stores a random
// token so a holder whose TTL expired cannot release a successor's lock.
type RedisLocker struct {
	redis  redis.RedisAdapter
	config LockConfig
}

var _ xref.Locker = (*RedisLocker)(nil)

func NewRedisLocker(redisAdapter redis.RedisAdapter, config LockConfig) *RedisLocker {
	def := DefaultLockConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	return &RedisLocker{redis: redisAdapter, config: config}
}

// Acquire takes the lock for key or returns xref.ErrLockHeld when another holder owns it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.config.KeyPrefix + key
	token := []byte(uuid.NewString())

	acquired, err := l.redis.SetNX(ctx, lockKey, token, l.config.LockTTL)
	if err != nil {
		logger.Error("failed to acquire lock", "key", lockKey, "error", err)
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		logger.Info("lock already held by another process", "key", lockKey)
		return nil, xref.ErrLockHeld
	}

	logger.Debug("lock acquired", "key", lockKey, "ttl", l.config.LockTTL)
	return func() { l.release(lockKey, token) }, nil
}

func (l *RedisLocker) release(lockKey string, token []byte) {
	// release must still run when the caller's ctx was cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deleted, err := l.redis.CompareAndDelete(ctx, lockKey, token)
	if err != nil {
		logger.Warn("failed to release lock", "key", lockKey, "error", err)
		return
	}
	if !deleted {
		logger.Warn("lock expired before release", "key", lockKey)
		return
	}
	logger.Debug("lock released", "key", lockKey)
}
