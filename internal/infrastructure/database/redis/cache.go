package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/pkg/errors"
)

// Cache is a JSON key-value cache with a shared key prefix. It satisfies the
// extraction service's cache interface: misses are (false, nil), transport
// failures are (false, err), and callers treat both as a miss.
type Cache struct {
	client    *Client
	prefix    string
	ttl       time.Duration
	logger    logging.Logger
	loadGroup singleflight.Group
}

// NewCache wraps a client with a key prefix and default TTL.
func NewCache(client *Client, prefix string, defaultTTL time.Duration, log logging.Logger) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    defaultTTL,
		logger: log,
	}
}

// Get loads and decodes one value. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.rdb.Get(ctx, c.prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "cache read failed")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A payload that no longer decodes is stale schema; drop it.
		c.logger.Warn("evicting undecodable cache entry", logging.String("key", key), logging.Err(err))
		c.client.rdb.Del(ctx, c.prefix+key)
		return false, nil
	}
	return true, nil
}

// Set encodes and stores one value. A non-positive ttl falls back to the
// cache default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "cache encode failed")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "cache write failed")
	}
	return nil
}

// Delete removes one value. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "cache delete failed")
	}
	return nil
}

// GetOrLoad returns the cached value for key or computes it with load and
// stores the result. Concurrent callers for the same key share one load.
func (c *Cache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func(ctx context.Context) (interface{}, error)) error {
	if ok, err := c.Get(ctx, key, dest); err == nil && ok {
		return nil
	} else if err != nil {
		c.logger.Warn("cache read failed, loading directly", logging.String("key", key), logging.Err(err))
	}

	value, err, _ := c.loadGroup.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, ttl); err != nil {
			c.logger.Warn("cache backfill failed", logging.String("key", key), logging.Err(err))
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	// The loader's value reaches every waiter through one JSON pass so all
	// callers see identical decoding behavior.
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "loaded value encode failed")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "loaded value decode failed")
	}
	return nil
}
