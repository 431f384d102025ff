package deploy

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

// Identifiers maps between the three asset keyspaces: local asset keys,
// on-ledger feeder object ids and external price ids. It also maps coin
// types back to asset keys. It is immutable once built.
type Identifiers struct {
	feederByKey   map[string]string
	keysByFeeder  map[string][]string
	priceByFeeder map[string]string
	feederByPrice map[string]string
	keyByCoinType map[string]string
}

// NewIdentifiers builds the maps from a deployment and a price-id to
// feeder-object table. Object ids and price ids are normalised.
func NewIdentifiers(d *Deployment, priceToObject map[string]string) (*Identifiers, error) {
	ids := &Identifiers{
		feederByKey:   make(map[string]string, len(d.Pyth.Feeder)),
		keysByFeeder:  make(map[string][]string, len(d.Pyth.Feeder)),
		priceByFeeder: make(map[string]string, len(priceToObject)),
		feederByPrice: make(map[string]string, len(priceToObject)),
		keyByCoinType: make(map[string]string, len(d.Coins)),
	}
	for _, key := range sortedKeys(d.Pyth.Feeder) {
		obj := d.Pyth.Feeder[key]
		if obj == "" {
			continue
		}
		id, err := typetag.NormalizeAddress(obj)
		if err != nil {
			return nil, fmt.Errorf("feeder %q: %w", key, err)
		}
		ids.feederByKey[key] = id
		ids.keysByFeeder[id] = append(ids.keysByFeeder[id], key)
	}
	for price, obj := range priceToObject {
		id, err := typetag.NormalizeAddress(obj)
		if err != nil {
			return nil, fmt.Errorf("price id %q: %w", price, err)
		}
		p := NormalizePriceID(price)
		ids.priceByFeeder[id] = p
		ids.feederByPrice[p] = id
	}
	for key, c := range d.Coins {
		t, err := typetag.Parse(c.Module)
		if err != nil {
			return nil, fmt.Errorf("coin %q: %w", key, err)
		}
		ids.keyByCoinType[t.Canonical()] = key
	}
	return ids, nil
}

// NormalizePriceID lower-cases and strips the 0x prefix.
func NormalizePriceID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

// Feeder returns the feeder object id of an asset key.
func (m *Identifiers) Feeder(key string) (string, bool) {
	id, ok := m.feederByKey[key]
	return id, ok
}

// AssetKey returns the asset key of a feeder object id. When several keys
// share the feeder the lexically smallest is returned.
func (m *Identifiers) AssetKey(feederID string) (string, bool) {
	keys := m.AssetKeys(feederID)
	if len(keys) == 0 {
		return "", false
	}
	return keys[0], true
}

// AssetKeys returns every asset key backed by a feeder object id, sorted.
func (m *Identifiers) AssetKeys(feederID string) []string {
	id, err := typetag.NormalizeAddress(feederID)
	if err != nil {
		return nil
	}
	return append([]string(nil), m.keysByFeeder[id]...)
}

// PriceID returns the external price id of a feeder object id.
func (m *Identifiers) PriceID(feederID string) (string, bool) {
	id, err := typetag.NormalizeAddress(feederID)
	if err != nil {
		return "", false
	}
	p, ok := m.priceByFeeder[id]
	return p, ok
}

// FeederByPriceID returns the feeder object id for an external price id.
func (m *Identifiers) FeederByPriceID(priceID string) (string, bool) {
	id, ok := m.feederByPrice[NormalizePriceID(priceID)]
	return id, ok
}

// AssetKeyByCoinType resolves a Move coin type to its asset key.
func (m *Identifiers) AssetKeyByCoinType(coinType string) (string, error) {
	t, err := typetag.Parse(coinType)
	if err != nil {
		return "", err
	}
	key, ok := m.keyByCoinType[t.Canonical()]
	if !ok {
		return "", domain.Unresolved("coin type", coinType)
	}
	return key, nil
}

// FeedersFor deduplicates keys, resolves them to feeder ids, drops keys with
// no feeder and deduplicates the ids. Input order is preserved.
func (m *Identifiers) FeedersFor(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := m.feederByKey[k]
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PriceIDsFor maps feeder ids to price ids, silently dropping feeders with
// no price id.
func (m *Identifiers) PriceIDsFor(feederIDs []string) (priceIDs, feeders []string) {
	for _, f := range feederIDs {
		if p, ok := m.PriceID(f); ok {
			priceIDs = append(priceIDs, p)
			feeders = append(feeders, f)
		}
	}
	return priceIDs, feeders
}
