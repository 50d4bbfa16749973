package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for revoked tokens and revoked users.
const (
	revokedTokenKeyPrefix = "revoked:jti:"
	revokedUserKeyPrefix  = "revoked:user:"
)

// RedisStore is a Redis-backed denylist for deployments where multiple
// instances need to share revocation state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Revoke adds a token to the denylist with TTL. Uses SET with expiry so the
// key disappears once the token would have expired anyway.
func (s *RedisStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	key := revokedTokenKeyPrefix + jti
	// Store "1" as a simple marker; the key existence is what matters.
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// IsTokenRevoked checks if a token is in the denylist.
// Returns false if the key doesn't exist (not revoked or already expired).
func (s *RedisStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	key := revokedTokenKeyPrefix + jti
	_, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RevokeUser denylists every outstanding token for an account. The TTL should
// be the access token lifetime; anything issued before the suspension expires
// within that window.
func (s *RedisStore) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if userID == "" || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedUserKeyPrefix+userID, "1", ttl).Err()
}

func (s *RedisStore) IsUserRevoked(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	_, err := s.client.Get(ctx, revokedUserKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
