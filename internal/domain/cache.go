package domain

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// CachedRate is a rate value together with its refresh policy.
type CachedRate struct {
	Value     fixedpoint.Signed
	FetchedAt time.Time
	TTL       time.Duration
}

// RateCache stores computed rates. Get returns ErrNotFound on a miss.
type RateCache interface {
	Get(ctx context.Context, key string) (CachedRate, error)
	Set(ctx context.Context, key string, rate CachedRate) error
}

// SignalBus provides pub/sub between the recorder and live subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ChannelValuations carries JSON-encoded ValuationRecord messages.
const ChannelValuations = "valuations"

// ErrLockHeld is returned by LockManager.Acquire when another holder owns
// the lock.
var ErrLockHeld = errors.New("lock held")

// LockManager hands out short-lived distributed locks so that only one
// replica records or archives at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter admits at most limit events per window for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
