package deploy

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	suiFeeder  = "0x0000000000000000000000000000000000000000000000000000000000001001"
	usdcFeeder = "0x0000000000000000000000000000000000000000000000000000000000001002"
	btcFeeder  = "0x0000000000000000000000000000000000000000000000000000000000001003"
	suiPrice   = "50c67b3fd225db8912a424dd4baed60ffdde625ed2feaaf283724f9608fea266"
)

func load(t *testing.T) (*Deployment, *Identifiers) {
	t.Helper()
	d, ids, err := Load("testdata", Testnet)
	require.NoError(t, err)
	return d, ids
}

func TestLoad(t *testing.T) {
	d, _ := load(t)
	assert.Equal(t, Testnet, d.Network)
	assert.Equal(t, []string{"sui", "usdc"}, d.VaultTokens())
	assert.Equal(t, []string{"long_btc", "long_sui", "short_sui"}, d.SymbolKeys())
	assert.Equal(t, d.Core.Package+"::slp::SLP", d.SLPType())
	assert.Equal(t, d.Core.Package+"::market::SHORT", d.DirectionType(domain.Short))

	w, err := d.VaultWeight("sui")
	require.NoError(t, err)
	assert.Equal(t, "1", w.String())

	_, err = d.Symbol(domain.Short, "btc")
	assert.True(t, errors.Is(err, domain.ErrIdentifierUnresolved))
}

func TestParseSymbolKey(t *testing.T) {
	dir, token, err := ParseSymbolKey("short_sui")
	require.NoError(t, err)
	assert.Equal(t, domain.Short, dir)
	assert.Equal(t, "sui", token)

	for _, bad := range []string{"sui", "up_sui", "long_"} {
		_, _, err := ParseSymbolKey(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "long_btc", SymbolKey(domain.Long, "btc"))
}

func TestValidateReportsDanglingReferences(t *testing.T) {
	_, err := Parse(Testnet, []byte(`{"sudo_core":{"package":"0x1","market":"0x2","vaults":{"eth":{"weight":"x"}}},"coins":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrParse))
	assert.Contains(t, err.Error(), `vault "eth" has no coin entry`)
	assert.Contains(t, err.Error(), `weight "x"`)
}

func TestIdentifiers(t *testing.T) {
	_, ids := load(t)

	f, ok := ids.Feeder("sui")
	require.True(t, ok)
	assert.Equal(t, suiFeeder, f)

	key, ok := ids.AssetKey("0x1001")
	require.True(t, ok)
	assert.Equal(t, "sui", key)

	p, ok := ids.PriceID(suiFeeder)
	require.True(t, ok)
	assert.Equal(t, suiPrice, p)

	back, ok := ids.FeederByPriceID("0x" + suiPrice)
	require.True(t, ok)
	assert.Equal(t, suiFeeder, back)

	k, err := ids.AssetKeyByCoinType("0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI")
	require.NoError(t, err)
	assert.Equal(t, "sui", k)

	_, err = ids.AssetKeyByCoinType("0x2::coin::NOPE")
	assert.True(t, errors.Is(err, domain.ErrIdentifierUnresolved))
}

func TestFeedersForDeduplicatesAndDropsUnmapped(t *testing.T) {
	_, ids := load(t)
	got := ids.FeedersFor([]string{"sui", "eth", "sui", "usdc", "btc"})
	assert.Equal(t, []string{suiFeeder, usdcFeeder, btcFeeder}, got)

	prices, feeders := ids.PriceIDsFor(got)
	// btc has no price id and is dropped
	assert.Len(t, prices, 2)
	assert.Equal(t, []string{suiFeeder, usdcFeeder}, feeders)
}

func TestIdentifiersSharedFeeder(t *testing.T) {
	d := &Deployment{}
	d.Pyth.Feeder = map[string]string{"wsui": "0x1001", "sui": "0x1001", "usdc": "0x1002"}

	for range 20 {
		ids, err := NewIdentifiers(d, map[string]string{suiPrice: "0x1001"})
		require.NoError(t, err)

		key, ok := ids.AssetKey(suiFeeder)
		require.True(t, ok)
		assert.Equal(t, "sui", key)
		assert.Equal(t, []string{"sui", "wsui"}, ids.AssetKeys("0x1001"))
	}
}
