package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// MarketValuer computes the market valuation.
type MarketValuer interface {
	MarketValuation(ctx context.Context) (domain.MarketValuation, error)
}

// Recorder snapshots the market valuation into the history store and
// announces each snapshot on the valuations channel. store and bus may be
// nil.
type Recorder struct {
	valuer  MarketValuer
	store   domain.ValuationStore
	bus     domain.SignalBus
	locks   domain.LockManager
	alerts  domain.Alerter
	network string
	logger  *slog.Logger
}

func NewRecorder(valuer MarketValuer, store domain.ValuationStore, bus domain.SignalBus, network string, logger *slog.Logger) *Recorder {
	return &Recorder{
		valuer:  valuer,
		store:   store,
		bus:     bus,
		network: network,
		logger:  logger.With(slog.String("component", "recorder")),
	}
}

// WithLock makes Run record at most once per interval across replicas
// sharing locks.
func (r *Recorder) WithLock(locks domain.LockManager) *Recorder {
	r.locks = locks
	return r
}

// WithAlerts notifies operators when consecutive rounds fail and when
// recording recovers.
func (r *Recorder) WithAlerts(alerts domain.Alerter) *Recorder {
	r.alerts = alerts
	return r
}

// failureAlertThreshold is the number of consecutive failed rounds before
// an alert is raised.
const failureAlertThreshold = 3

func (r *Recorder) alert(ctx context.Context, event, title, message string) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// claim reports whether this replica owns the current round. The lock is
// left to expire so that other replicas skip the rest of the interval.
func (r *Recorder) claim(ctx context.Context, ttl time.Duration) bool {
	if r.locks == nil {
		return true
	}
	_, err := r.locks.Acquire(ctx, "record:"+r.network, ttl)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrLockHeld):
		r.logger.DebugContext(ctx, "valuation round owned by another replica")
		return false
	default:
		r.logger.WarnContext(ctx, "record lock unavailable, recording anyway",
			slog.String("error", err.Error()),
		)
		return true
	}
}

// Record computes one valuation, persists it and publishes it.
func (r *Recorder) Record(ctx context.Context) (domain.ValuationRecord, error) {
	v, err := r.valuer.MarketValuation(ctx)
	if err != nil {
		return domain.ValuationRecord{}, fmt.Errorf("recorder: %w", err)
	}
	rec := domain.ValuationRecord{
		ID:           uuid.New().String(),
		Network:      r.network,
		Total:        v.Total,
		VaultsValue:  v.VaultsValue,
		SymbolsValue: v.SymbolsValue,
		LPSupply:     v.LPSupply,
		ComputedAt:   time.Now().UTC(),
	}
	if r.store != nil {
		if err := r.store.Insert(ctx, rec); err != nil {
			return domain.ValuationRecord{}, fmt.Errorf("recorder: insert: %w", err)
		}
	}
	if r.bus != nil {
		payload, _ := json.Marshal(rec)
		if pubErr := r.bus.Publish(ctx, domain.ChannelValuations, payload); pubErr != nil {
			r.logger.WarnContext(ctx, "recorder: publish valuation failed",
				slog.String("id", rec.ID),
				slog.String("error", pubErr.Error()),
			)
		}
	}
	r.logger.InfoContext(ctx, "valuation recorded",
		slog.String("id", rec.ID),
		slog.String("total", rec.Total.String()),
	)
	return rec, nil
}

// Run records a valuation every interval until ctx is cancelled. Failed
// rounds are logged and retried on the next tick.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lease := interval * 9 / 10
	failures := 0
	for {
		if !r.claim(ctx, lease) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			continue
		}
		_, err := r.Record(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			r.logger.ErrorContext(ctx, "valuation round failed",
				slog.String("error", err.Error()),
				slog.String("kind", string(domain.KindOf(err))),
				slog.Int("consecutive", failures),
			)
			if failures == failureAlertThreshold {
				r.alert(ctx, domain.EventValuationFailing,
					fmt.Sprintf("Valuation failing on %s", r.network),
					fmt.Sprintf("%d consecutive rounds failed (%s): %v", failures, domain.KindOf(err), err))
			}
		default:
			if failures >= failureAlertThreshold {
				r.alert(ctx, domain.EventValuationRecovered,
					fmt.Sprintf("Valuation recovered on %s", r.network),
					fmt.Sprintf("recording resumed after %d failed rounds", failures))
			}
			failures = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
