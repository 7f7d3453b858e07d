package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker is used by the appointment registry to serialize bookings per slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSlotLocker creates a locker that holds one Redis key per slot for at
// most ttl.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		logger: logging.OrNop(logger),
	}
}

func slotLockKey(slotID uuid.UUID) string {
	return fmt.Sprintf("portal:lock:slot:%s", slotID.String())
}

// WithSlotLock runs fn while holding the slot key. fn gets a context bounded
// by the lock TTL so the critical section cannot outlive the lock.
func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := slotLockKey(slotID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !acquired {
		l.logger.Debug("slot lock busy", zap.Stringer("slot_id", slotID))
		return ErrLockNotAcquired
	}

	held := time.Now()
	defer func() {
		// release even when the caller's context is already done
		released, err := l.release(context.WithoutCancel(ctx), key, token)
		switch {
		case err != nil:
			l.logger.Warn("slot lock release failed; key expires with its ttl",
				zap.Stringer("slot_id", slotID),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		case !released:
			l.logger.Warn("slot lock expired before release",
				zap.Stringer("slot_id", slotID),
				zap.Duration("held", time.Since(held)),
				zap.Duration("ttl", l.ttl),
			)
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// unlockScript deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// release reports whether our token was still on the key.
func (l *redisSlotLocker) release(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("release slot lock: %w", err)
	}
	return n == 1, nil
}
