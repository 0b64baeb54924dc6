package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ican-workers/internal/common/logger"
	"ican-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oracle:"

func quoteKey(pair models.CurrencyPair) string { return keyPrefix + "quote:" + pair.String() }
func lkgKey(pair models.CurrencyPair) string   { return keyPrefix + "lkg:" + pair.String() }

// CachedOracle serves repeated quotes for a pair from Redis for a short TTL.
// Cache errors fall through to the wrapped oracle.
type CachedOracle struct {
	next   PriceOracle
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedOracle(next PriceOracle, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedOracle {
	return &CachedOracle{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.Component(log, "oracle-cache"),
	}
}

func (c *CachedOracle) Quote(ctx context.Context, pair models.CurrencyPair) (Quote, error) {
	if c.ttl > 0 {
		if q, ok := c.read(ctx, quoteKey(pair)); ok {
			return q, nil
		}
	}

	q, err := c.next.Quote(ctx, pair)
	if err != nil {
		return Quote{}, err
	}

	if c.ttl > 0 {
		if err := write(ctx, c.redis, quoteKey(pair), q, c.ttl); err != nil {
			c.logger.Warn("quote cache write failed", map[string]interface{}{"pair": pair.String(), "error": err})
		}
	}
	return q, nil
}

func (c *CachedOracle) read(ctx context.Context, key string) (Quote, bool) {
	q, found, err := read(ctx, c.redis, key)
	if err != nil {
		c.logger.Warn("quote cache read failed", map[string]interface{}{"key": key, "error": err})
		return Quote{}, false
	}
	return q, found
}

// PriceHistory stores the last price that passed validation for each pair.
type PriceHistory struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewPriceHistory(rdb redis.Cmdable, ttl time.Duration) *PriceHistory {
	return &PriceHistory{redis: rdb, ttl: ttl}
}

// LastKnownGood returns false when no price is stored for pair.
func (h *PriceHistory) LastKnownGood(ctx context.Context, pair models.CurrencyPair) (Quote, bool, error) {
	return read(ctx, h.redis, lkgKey(pair))
}

func (h *PriceHistory) Remember(ctx context.Context, q Quote) error {
	return write(ctx, h.redis, lkgKey(q.Pair), q, h.ttl)
}

func read(ctx context.Context, rdb redis.Cmdable, key string) (Quote, bool, error) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return q, true, nil
}

func write(ctx context.Context, rdb redis.Cmdable, key string, q Quote, ttl time.Duration) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}
