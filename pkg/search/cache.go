package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/models"
)

// CacheKeyPrefix namespaces cached external results in Redis.
const CacheKeyPrefix = "signimg:ext:"

// CachedProvider memoizes successful lookups of another Provider in Redis.
// Cache failures are logged and never fail the lookup.
type CachedProvider struct {
	next   Provider
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider wraps next with a Redis cache. A nil client returns next unchanged.
func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, logger *zap.Logger) Provider {
	if client == nil {
		return next
	}
	return &CachedProvider{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("search-cache"),
	}
}

var _ Provider = (*CachedProvider)(nil)

func (p *CachedProvider) Search(ctx context.Context, query string) (*models.ImageResult, error) {
	key := CacheKey(query)

	cached, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var result models.ImageResult
		if jerr := json.Unmarshal(cached, &result); jerr == nil {
			return &result, nil
		}
		p.logger.Warn("Discarding malformed cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("Search cache read failed", zap.String("error", logging.SanitizeError(err)))
	}

	result, err := p.next.Search(ctx, query)
	if err != nil || result == nil {
		return result, err
	}

	payload, err := json.Marshal(result)
	if err == nil {
		err = p.client.Set(ctx, key, payload, p.ttl).Err()
	}
	if err != nil {
		p.logger.Warn("Search cache write failed", zap.String("error", logging.SanitizeError(err)))
	}

	return result, nil
}

// CacheKey derives the Redis key for a query.
func CacheKey(query string) string {
	return CacheKeyPrefix + models.NormalizeKeyword(query)
}
