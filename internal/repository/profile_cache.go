package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/datingapp/internal/observability/metrics"
	"github.com/aryan0dhankhar/datingapp/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/datingapp/pkg/cache"
)

const profileCachePrefix = "profile:"

func profileCacheKey(id int64) string {
	return profileCachePrefix + strconv.FormatInt(id, 10)
}

// cachedProfile is the serialized cache form. The password hash is never cached,
// callers that check credentials read from the repository.
type cachedProfile struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	OpenInfo   string    `json:"openInfo"`
	ClosedInfo string    `json:"closedInfo"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toCached(p *domain.Profile) cachedProfile {
	return cachedProfile{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		OpenInfo:   p.OpenInfo,
		ClosedInfo: p.ClosedInfo,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (c cachedProfile) profile() *domain.Profile {
	return &domain.Profile{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		OpenInfo:   c.OpenInfo,
		ClosedInfo: c.ClosedInfo,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// RedisProfileCache implements domain.ProfileCache on Redis. Calls go through a
// circuit breaker so a struggling Redis degrades to cache misses.
type RedisProfileCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRedisProfileCache creates a Redis-backed profile cache
func NewRedisProfileCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisProfileCache {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(5, 2, 30*time.Second)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("profile cache breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &RedisProfileCache{client: client, ttl: ttl, breaker: breaker, logger: logger}
}

func (c *RedisProfileCache) Get(ctx context.Context, id int64) (*domain.Profile, error) {
	var (
		cp             cachedProfile
		found, corrupt bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		found, err = c.client.GetJSON(ctx, profileCacheKey(id), &cp)
		if errors.Is(err, redis.ErrCorrupt) {
			corrupt = true
			return nil
		}
		return err
	})
	if err != nil {
		metrics.ObserveCache("error")
		return nil, fmt.Errorf("profile cache get: %w", err)
	}
	if !found {
		if corrupt {
			c.logger.Warn("dropping corrupt profile cache entry", slog.Int64("profile_id", id))
			_ = c.client.Delete(ctx, profileCacheKey(id))
		}
		metrics.ObserveCache("miss")
		return nil, domain.ErrCacheMiss
	}
	metrics.ObserveCache("hit")
	return cp.profile(), nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile *domain.Profile) error {
	return c.breaker.Execute(func() error {
		return c.client.SetJSON(ctx, profileCacheKey(profile.ID), toCached(profile), c.ttl)
	})
}

func (c *RedisProfileCache) Delete(ctx context.Context, id int64) error {
	return c.breaker.Execute(func() error {
		return c.client.Delete(ctx, profileCacheKey(id))
	})
}

// MemoryProfileCache implements domain.ProfileCache in process memory
type MemoryProfileCache struct {
	items *cache.Cache[cachedProfile]
	ttl   time.Duration
}

// NewMemoryProfileCache creates an in-process profile cache
func NewMemoryProfileCache(ttl time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{items: cache.New[cachedProfile](), ttl: ttl}
}

func (c *MemoryProfileCache) Get(_ context.Context, id int64) (*domain.Profile, error) {
	cp, ok := c.items.Get(profileCacheKey(id))
	if !ok {
		metrics.ObserveCache("miss")
		return nil, domain.ErrCacheMiss
	}
	metrics.ObserveCache("hit")
	return cp.profile(), nil
}

func (c *MemoryProfileCache) Set(_ context.Context, profile *domain.Profile) error {
	c.items.Set(profileCacheKey(profile.ID), toCached(profile), c.ttl)
	return nil
}

func (c *MemoryProfileCache) Delete(_ context.Context, id int64) error {
	c.items.Delete(profileCacheKey(id))
	return nil
}

// Sweep drops expired entries
func (c *MemoryProfileCache) Sweep() int {
	return c.items.Sweep()
}
