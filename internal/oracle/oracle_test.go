package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ledgertest"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	suiFeeder  = "0x0000000000000000000000000000000000000000000000000000000000001001"
	usdcFeeder = "0x0000000000000000000000000000000000000000000000000000000000001002"
	btcFeeder  = "0x0000000000000000000000000000000000000000000000000000000000001003"
	suiPriceID = "50c67b3fd225db8912a424dd4baed60ffdde625ed2feaaf283724f9608fea266"
	arrival    = int64(1_700_000_000)
)

type fakePrices struct {
	updateCalls [][]string
	feeds       []domain.PriceFeed
	err         error
}

func (f *fakePrices) LatestPrices(_ context.Context, ids []string) ([]domain.PriceFeed, error) {
	return f.feeds, f.err
}

func (f *fakePrices) LatestUpdates(_ context.Context, ids []string) ([][]byte, error) {
	f.updateCalls = append(f.updateCalls, ids)
	if f.err != nil {
		return nil, f.err
	}
	return [][]byte{[]byte("update")}, nil
}

type fakeInjector struct {
	feeders []string
}

func (f *fakeInjector) Inject(_ context.Context, tx *ptb.Transaction, _ [][]byte, feederIDs []string) error {
	f.feeders = feederIDs
	for range feederIDs {
		tx.MoveCall("0xf001::pyth::update_single_price_feed", nil)
	}
	return tx.Err()
}

type fixture struct {
	ledger   *ledgertest.Ledger
	prices   *fakePrices
	injector *fakeInjector
}

func (f *fixture) feeder(id string, arrival int64) {
	f.ledger.PutShared(id, fmt.Sprintf(`{"price_info":{"fields":{"arrival_time":"%d"}}}`, arrival))
}

func newOracle(t *testing.T, now time.Time) (*Oracle, *fixture) {
	t.Helper()
	_, ids, err := deploy.Load("../deploy/testdata", deploy.Testnet)
	require.NoError(t, err)

	f := &fixture{ledger: ledgertest.New(), prices: &fakePrices{}, injector: &fakeInjector{}}
	for _, id := range []string{suiFeeder, usdcFeeder, btcFeeder} {
		f.feeder(id, arrival)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(ids, f.ledger, f.prices, f.injector, logger, WithClock(func() time.Time { return now }))
	return o, f
}

func TestStaleBoundary(t *testing.T) {
	base := time.Unix(arrival, 0)
	cases := []struct {
		name  string
		now   time.Time
		stale bool
	}{
		{"exactly 7s late", base.Add(7 * time.Second), false},
		{"7.01s late", base.Add(7010 * time.Millisecond), true},
		{"exactly 7s early", base.Add(-7 * time.Second), false},
		{"7.01s early", base.Add(-7010 * time.Millisecond), true},
		{"in sync", base, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, _ := newOracle(t, tc.now)
			stale, err := o.Stale(context.Background(), []string{"sui"})
			require.NoError(t, err)
			if tc.stale {
				assert.Equal(t, []string{suiFeeder}, stale)
			} else {
				assert.Empty(t, stale)
			}
		})
	}
}

func TestPrepareFastPath(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival+3, 0))
	tx := ptb.New()

	require.NoError(t, o.Prepare(context.Background(), tx, []string{"sui", "usdc"}))
	assert.Equal(t, 0, tx.Len())
	assert.Empty(t, f.prices.updateCalls)
	assert.Nil(t, f.injector.feeders)
}

func TestPrepareInjectsStaleSubset(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival+3, 0))
	f.feeder(suiFeeder, arrival-60)
	tx := ptb.New()

	require.NoError(t, o.Prepare(context.Background(), tx, []string{"sui", "usdc", "sui"}))
	require.Len(t, f.prices.updateCalls, 1)
	assert.Equal(t, []string{suiPriceID}, f.prices.updateCalls[0])
	assert.Equal(t, []string{suiFeeder}, f.injector.feeders)
	assert.Equal(t, 1, tx.Len())
}

func TestPrepareDeduplicatesKeys(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival+100, 0))
	tx := ptb.New()

	require.NoError(t, o.Prepare(context.Background(), tx, []string{"usdc", "sui", "usdc", "sui"}))
	assert.Equal(t, []string{usdcFeeder, suiFeeder}, f.injector.feeders)
	assert.Len(t, f.prices.updateCalls[0], 2)
}

func TestPrepareDropsFeedersWithoutPriceID(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival+100, 0))
	tx := ptb.New()

	require.NoError(t, o.Prepare(context.Background(), tx, []string{"btc", "unknown"}))
	assert.Empty(t, f.prices.updateCalls)
	assert.Equal(t, 0, tx.Len())
}

func TestPrepareMissingArrivalIsStale(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival, 0))
	f.ledger.PutShared(suiFeeder, `{"price_info":{"fields":{}}}`)

	stale, err := o.Stale(context.Background(), []string{"sui"})
	require.NoError(t, err)
	assert.Equal(t, []string{suiFeeder}, stale)
}

func TestPreparePriceServiceUnavailable(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival+100, 0))
	f.prices.err = fmt.Errorf("%w: connection refused", domain.ErrRemoteUnavailable)

	err := o.Prepare(context.Background(), ptb.New(), []string{"sui"})
	assert.True(t, errors.Is(err, domain.ErrRemoteUnavailable))
	assert.Equal(t, domain.KindRemoteUnavailable, domain.KindOf(err))
}

func TestLatestPricesMapsBackToKeys(t *testing.T) {
	o, f := newOracle(t, time.Unix(arrival, 0))
	f.prices.feeds = []domain.PriceFeed{{PriceID: suiPriceID, Price: 150, Expo: -2}}

	prices, err := o.LatestPrices(context.Background(), []string{"sui", "btc"})
	require.NoError(t, err)
	require.Contains(t, prices, "sui")
	assert.Equal(t, "sui", prices["sui"].AssetKey)
	assert.InDelta(t, 1.5, prices["sui"].Value(), 1e-9)
	assert.NotContains(t, prices, "btc")
}

func TestLatestPricesSharedFeeder(t *testing.T) {
	d := &deploy.Deployment{}
	d.Pyth.Feeder = map[string]string{"sui": suiFeeder, "wsui": suiFeeder}
	ids, err := deploy.NewIdentifiers(d, map[string]string{"0x" + suiPriceID: suiFeeder})
	require.NoError(t, err)

	prices := &fakePrices{feeds: []domain.PriceFeed{{PriceID: suiPriceID, Price: 150, Expo: -2}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(ids, ledgertest.New(), prices, &fakeInjector{}, logger)

	got, err := o.LatestPrices(context.Background(), []string{"wsui", "sui"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sui", got["sui"].AssetKey)
	assert.Equal(t, "wsui", got["wsui"].AssetKey)
	assert.InDelta(t, 1.5, got["wsui"].Value(), 1e-9)
}
