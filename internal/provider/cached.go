package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sigv4-gate/internal/verify"
)

const cacheKeyPrefix = "sigv4gate:cred:"

// Cached is a read-through redis cache in front of another provider. Cache
// failures degrade to direct lookups; they never fail a request on their
// own. Only successful resolutions are cached, so disabled or deleted keys
// take effect after at most one TTL.
type Cached struct {
	next   verify.Provider
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps next with a redis lookup cache.
func NewCached(next verify.Provider, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "provider.cache").Logger(),
	}
}

// Lookup returns the cached credential or falls through to the wrapped
// provider.
func (c *Cached) Lookup(ctx context.Context, accessKeyID string) (*verify.Credential, error) {
	key := cacheKeyPrefix + accessKeyID

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cred verify.Credential
		if err := json.Unmarshal(payload, &cred); err == nil {
			return &cred, nil
		}
		// Unreadable entry; drop it and fall through.
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Msg("cache lookup failed, falling through")
	}

	cred, err := c.next.Lookup(ctx, accessKeyID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(cred); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("cache store failed")
		}
	}
	return cred, nil
}
