package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// DefaultRateTTL is how long a computed rate is served before recomputing.
const DefaultRateTTL = time.Hour

// Refresh decides whether a cached rate must be recomputed at now. It
// returns the cached value and true once the TTL has elapsed, when the
// entry was never fetched, or when the TTL is not positive.
func Refresh(c domain.CachedRate, now time.Time) (fixedpoint.Signed, bool) {
	if c.FetchedAt.IsZero() || c.TTL <= 0 {
		return c.Value, true
	}
	return c.Value, !now.Before(c.FetchedAt.Add(c.TTL))
}

// RateSource computes rates from the ledger.
type RateSource interface {
	FundingFeeRate(ctx context.Context, indexToken string, dir domain.Direction) (fixedpoint.Signed, error)
	ReservingFeeRate(ctx context.Context, collateralToken string, delta uint64) (fixedpoint.Decimal, error)
}

// CachedRates serves funding and reserving rates through a RateCache.
// Cache failures are logged and fall through to the source.
type CachedRates struct {
	source RateSource
	cache  domain.RateCache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewCachedRates(source RateSource, cache domain.RateCache, ttl time.Duration, logger *slog.Logger) *CachedRates {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &CachedRates{
		source: source,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "rate_cache")),
	}
}

func rateKey(kind domain.RateKind, id string) string {
	return string(kind) + ":" + id
}

// FundingFeeRate returns the funding rate of a symbol.
func (c *CachedRates) FundingFeeRate(ctx context.Context, indexToken string, dir domain.Direction) (fixedpoint.Signed, error) {
	return c.get(ctx, rateKey(domain.RateFunding, deploy.SymbolKey(dir, indexToken)), func() (fixedpoint.Signed, error) {
		return c.source.FundingFeeRate(ctx, indexToken, dir)
	})
}

// ReservingFeeRate returns the reserving rate of a vault. Only the
// current rate (zero delta) is cached.
func (c *CachedRates) ReservingFeeRate(ctx context.Context, collateralToken string, delta uint64) (fixedpoint.Decimal, error) {
	if delta != 0 {
		return c.source.ReservingFeeRate(ctx, collateralToken, delta)
	}
	v, err := c.get(ctx, rateKey(domain.RateReserving, collateralToken), func() (fixedpoint.Signed, error) {
		r, err := c.source.ReservingFeeRate(ctx, collateralToken, 0)
		return fixedpoint.PositiveOf(r), err
	})
	return v.Magnitude, err
}

func (c *CachedRates) get(ctx context.Context, key string, compute func() (fixedpoint.Signed, error)) (fixedpoint.Signed, error) {
	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		if v, refetch := Refresh(cached, c.now()); !refetch {
			return v, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		c.logger.WarnContext(ctx, "rate cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	v, err := compute()
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("rates: %s: %w", key, err)
	}
	entry := domain.CachedRate{Value: v, FetchedAt: c.now(), TTL: c.ttl}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.WarnContext(ctx, "rate cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return v, nil
}
