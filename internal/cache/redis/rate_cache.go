package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// RateCache implements domain.RateCache with one hash per rate at
// "rate:{key}" holding "value" (signed raw integer), "fetched_at" (unix
// nanoseconds) and "ttl" (nanoseconds). Keys expire from Redis after twice
// their TTL so abandoned rates do not accumulate.
type RateCache struct {
	rdb    *redis.Client
	client *Client
}

func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.rdb, client: c}
}

func (rc *RateCache) Set(ctx context.Context, key string, rate domain.CachedRate) error {
	k := rc.client.key("rate", key)
	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, k, encodeRate(rate))
	if rate.TTL > 0 {
		pipe.Expire(ctx, k, 2*rate.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", key, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when no rate is stored under key.
func (rc *RateCache) Get(ctx context.Context, key string) (domain.CachedRate, error) {
	vals, err := rc.rdb.HGetAll(ctx, rc.client.key("rate", key)).Result()
	if err != nil {
		return domain.CachedRate{}, fmt.Errorf("redis: get rate %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.CachedRate{}, domain.ErrNotFound
	}
	rate, err := decodeRate(vals)
	if err != nil {
		return domain.CachedRate{}, fmt.Errorf("redis: get rate %s: %w", key, err)
	}
	return rate, nil
}

func encodeRate(rate domain.CachedRate) map[string]any {
	value, _ := rate.Value.MarshalText()
	return map[string]any{
		"value":      string(value),
		"fetched_at": strconv.FormatInt(rate.FetchedAt.UnixNano(), 10),
		"ttl":        strconv.FormatInt(int64(rate.TTL), 10),
	}
}

func decodeRate(vals map[string]string) (domain.CachedRate, error) {
	var rate domain.CachedRate
	raw, ok := vals["value"]
	if !ok {
		return rate, domain.ErrNotFound
	}
	var v fixedpoint.Signed
	if err := v.UnmarshalText([]byte(raw)); err != nil {
		return rate, fmt.Errorf("parse value: %w", err)
	}
	fetched, err := strconv.ParseInt(vals["fetched_at"], 10, 64)
	if err != nil {
		return rate, fmt.Errorf("parse fetched_at: %w", err)
	}
	ttl, err := strconv.ParseInt(vals["ttl"], 10, 64)
	if err != nil {
		return rate, fmt.Errorf("parse ttl: %w", err)
	}
	rate.Value = v
	rate.FetchedAt = time.Unix(0, fetched).UTC()
	rate.TTL = time.Duration(ttl)
	return rate, nil
}

var _ domain.RateCache = (*RateCache)(nil)
