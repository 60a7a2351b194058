package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// QuoteProvider resolves a quote for a symbol
type QuoteProvider interface {
	Resolve(ctx context.Context, symbol string) *Quote
}

// CachedResolver wraps a Resolver with Redis caching so back-to-back ticks
// within the TTL reuse the last consensus instead of hammering the sources
type CachedResolver struct {
	inner    QuoteProvider
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewCachedResolver creates a caching layer over a quote provider
func NewCachedResolver(inner QuoteProvider, redisClient *redis.Client, cacheTTL time.Duration) *CachedResolver {
	return &CachedResolver{
		inner:    inner,
		redis:    redisClient,
		cacheTTL: cacheTTL,
	}
}

// Resolve returns a cached consensus quote when one is fresh, otherwise
// resolves upstream and caches the result. Simulated quotes are never
// cached; they would pin a degraded view past the outage.
func (c *CachedResolver) Resolve(ctx context.Context, symbol string) *Quote {
	cacheKey := fmt.Sprintf("cryptoguard:quote:%s", symbol)

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var quote Quote
		if err := json.Unmarshal([]byte(cached), &quote); err == nil {
			log.Debug().
				Str("symbol", symbol).
				Str("cache_key", cacheKey).
				Msg("Cache hit for quote")
			return &quote
		}
		log.Warn().Err(err).Msg("Failed to unmarshal cached quote, resolving fresh")
	} else if err != redis.Nil {
		log.Warn().Err(err).Msg("Redis error during cache lookup")
	}

	quote := c.inner.Resolve(ctx, symbol)

	if quote.Source != SourceSimulated {
		data, err := json.Marshal(quote)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal quote for cache")
			return quote
		}
		if err := c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to cache quote")
		}
	}

	return quote
}

// Invalidate removes the cached quote for a symbol
func (c *CachedResolver) Invalidate(ctx context.Context, symbol string) error {
	return c.redis.Del(ctx, fmt.Sprintf("cryptoguard:quote:%s", symbol)).Err()
}

// Health checks Redis connectivity
func (c *CachedResolver) Health(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return nil
}
