package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRevocations struct {
	client *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func revocationKey(sessionID string) string {
	return "portal:session:revoked:" + sessionID
}

// Revoke keeps the marker only as long as the token could still be presented.
func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revocationKey(sessionID), 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
