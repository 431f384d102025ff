// Package oracle keeps on-ledger price feeds fresh ahead of a simulation.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
)

// DefaultMaxSkew is the largest tolerated distance between a feed's last
// arrival time and now.
const DefaultMaxSkew = 7 * time.Second

// Injector appends update calls for the given feeders to an empty transaction.
type Injector interface {
	Inject(ctx context.Context, tx *ptb.Transaction, updates [][]byte, feederIDs []string) error
}

// Oracle decides which feed objects are stale and refreshes them.
type Oracle struct {
	ids      *deploy.Identifiers
	reader   domain.LedgerReader
	prices   domain.PriceService
	injector Injector
	maxSkew  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithMaxSkew overrides DefaultMaxSkew.
func WithMaxSkew(d time.Duration) Option {
	return func(o *Oracle) {
		if d > 0 {
			o.maxSkew = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

func New(ids *deploy.Identifiers, reader domain.LedgerReader, prices domain.PriceService, injector Injector, logger *slog.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		ids:      ids,
		reader:   reader,
		prices:   prices,
		injector: injector,
		maxSkew:  DefaultMaxSkew,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "oracle")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type feederFields struct {
	PriceInfo struct {
		Fields struct {
			ArrivalTime json.RawMessage `json:"arrival_time"`
		} `json:"fields"`
	} `json:"price_info"`
}

// arrivalTime reads price_info.arrival_time in seconds. A missing value
// counts as zero, which is always stale.
func arrivalTime(obj domain.LedgerObject) (int64, error) {
	var f feederFields
	if err := json.Unmarshal(obj.Fields, &f); err != nil {
		return 0, &domain.ParseError{Path: "price_info.fields.arrival_time", Reason: err.Error()}
	}
	raw := f.PriceInfo.Fields.ArrivalTime
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &domain.ParseError{Path: "price_info.fields.arrival_time", Reason: err.Error()}
	}
	return v, nil
}

// Stale returns the feeder objects backing keys whose arrival time is more
// than the tolerated skew away from now, in either direction. Keys are
// deduplicated and keys without a feeder are ignored.
func (o *Oracle) Stale(ctx context.Context, keys []string) ([]string, error) {
	feeders := o.ids.FeedersFor(keys)
	if len(feeders) == 0 {
		return nil, nil
	}
	objs, err := o.reader.MultiGetObjects(ctx, feeders)
	if err != nil {
		return nil, fmt.Errorf("oracle: read feeders: %w", err)
	}
	now := o.now()
	var stale []string
	for i, obj := range objs {
		arrival, err := arrivalTime(obj)
		if err != nil {
			return nil, fmt.Errorf("oracle: feeder %s: %w", feeders[i], err)
		}
		skew := time.Unix(arrival, 0).Sub(now)
		if skew < 0 {
			skew = -skew
		}
		if skew > o.maxSkew {
			stale = append(stale, feeders[i])
		}
	}
	return stale, nil
}

// Prepare refreshes the stale feeds behind keys by prepending update calls
// to tx, which must not contain calls yet. When every feed is fresh tx is
// left untouched and no price service request is made.
func (o *Oracle) Prepare(ctx context.Context, tx *ptb.Transaction, keys []string) error {
	stale, err := o.Stale(ctx, keys)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	priceIDs, feeders := o.ids.PriceIDsFor(stale)
	if len(priceIDs) == 0 {
		return nil
	}
	o.logger.DebugContext(ctx, "refreshing stale price feeds",
		slog.Int("stale", len(stale)),
		slog.Int("updated", len(feeders)),
	)
	updates, err := o.prices.LatestUpdates(ctx, priceIDs)
	if err != nil {
		return fmt.Errorf("oracle: fetch updates: %w", err)
	}
	if err := o.injector.Inject(ctx, tx, updates, feeders); err != nil {
		return fmt.Errorf("oracle: inject updates: %w", err)
	}
	return nil
}

// LatestPrices returns the latest attested price per asset key. Keys
// without a feeder or price id are omitted. Keys sharing a feeder each get
// their own entry.
func (o *Oracle) LatestPrices(ctx context.Context, keys []string) (map[string]domain.PriceFeed, error) {
	priceIDs, _ := o.ids.PriceIDsFor(o.ids.FeedersFor(keys))
	if len(priceIDs) == 0 {
		return map[string]domain.PriceFeed{}, nil
	}
	feeds, err := o.prices.LatestPrices(ctx, priceIDs)
	if err != nil {
		return nil, fmt.Errorf("oracle: latest prices: %w", err)
	}
	byPrice := make(map[string]domain.PriceFeed, len(feeds))
	for _, f := range feeds {
		byPrice[deploy.NormalizePriceID(f.PriceID)] = f
	}
	out := make(map[string]domain.PriceFeed, len(keys))
	for _, key := range keys {
		feeder, ok := o.ids.Feeder(key)
		if !ok {
			continue
		}
		priceID, ok := o.ids.PriceID(feeder)
		if !ok {
			continue
		}
		f, ok := byPrice[priceID]
		if !ok {
			continue
		}
		f.AssetKey = key
		out[key] = f
	}
	return out, nil
}
