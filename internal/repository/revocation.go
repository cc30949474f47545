package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/datingapp/pkg/cache"
)

const revokedPrefix = "session:revoked:"

// RedisRevocationList implements domain.RevocationList with expiring Redis keys
type RedisRevocationList struct {
	client *redis.Client
}

func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Flag(ctx, revokedPrefix+tokenID, ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ok, err := l.client.Exists(ctx, revokedPrefix+tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return ok, nil
}

// MemoryRevocationList implements domain.RevocationList in process memory
type MemoryRevocationList struct {
	items *cache.Cache[struct{}]
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{items: cache.New[struct{}]()}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.items.Set(revokedPrefix+tokenID, struct{}{}, ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := l.items.Get(revokedPrefix + tokenID)
	return ok, nil
}

// Sweep drops entries whose tokens have expired anyway
func (l *MemoryRevocationList) Sweep() int {
	return l.items.Sweep()
}
