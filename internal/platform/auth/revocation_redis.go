package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore shares the revocation list across server instances.
// Keys carry TTLs matching token expiry so entries clean themselves up.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func revokedKey(jti string) string  { return "auth:revoked:" + jti }
func userKey(userID string) string  { return "auth:tokens:" + userID }

func (s *RedisRevocationStore) Track(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, userKey(userID), jti)
	pipe.Expire(ctx, userKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	jtis, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list user tokens: %w", err)
	}
	if len(jtis) == 0 {
		return 0, nil
	}

	ttl, err := s.client.TTL(ctx, userKey(userID)).Result()
	if err != nil || ttl <= 0 {
		ttl = time.Hour
	}

	pipe := s.client.TxPipeline()
	for _, jti := range jtis {
		pipe.Set(ctx, revokedKey(jti), "1", ttl)
	}
	pipe.Del(ctx, userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return len(jtis), nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.client.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return true, nil
}
