// Package deploy loads per-network contract deployments and the
// identifier tables that tie asset keys, feeder objects and price ids
// together.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

// Network names a deployment.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork accepts "mainnet" or "testnet".
func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(s))); n {
	case Mainnet, Testnet:
		return n, nil
	}
	return "", fmt.Errorf("deploy: unknown network %q", s)
}

type Vault struct {
	Weight            string `json:"weight"`
	ReservingFeeModel string `json:"reserving_fee_model"`
}

type Symbol struct {
	SupportedCollaterals []string `json:"supported_collaterals"`
	FundingFeeModel      string   `json:"funding_fee_model"`
	PositionConfig       string   `json:"position_config"`
}

type Coin struct {
	Decimals int     `json:"decimals"`
	Module   string  `json:"module"`
	Metadata string  `json:"metadata"`
	Treasury *string `json:"treasury"`
}

// Core holds the market package's shared objects.
type Core struct {
	Package         string            `json:"package"`
	UpgradedPackage string            `json:"upgraded_package"`
	Market          string            `json:"market"`
	SLPMetadata     string            `json:"slp_metadata"`
	RebaseFeeModel  string            `json:"rebase_fee_model"`
	VaultsParent    string            `json:"vaults_parent"`
	SymbolsParent   string            `json:"symbols_parent"`
	PositionsParent string            `json:"positions_parent"`
	OrdersParent    string            `json:"orders_parent"`
	Vaults          map[string]Vault  `json:"vaults"`
	Symbols         map[string]Symbol `json:"symbols"`
}

type Wormhole struct {
	Package string `json:"package"`
	State   string `json:"state"`
}

// PythFeeder lists the oracle packages and one feeder object per asset key.
type PythFeeder struct {
	Package  string            `json:"package"`
	State    string            `json:"state"`
	Wormhole Wormhole          `json:"wormhole"`
	Feeder   map[string]string `json:"feeder"`
}

// Deployment is one network's deployment file.
type Deployment struct {
	Network Network         `json:"-"`
	Core    Core            `json:"sudo_core"`
	Pyth    PythFeeder      `json:"pyth_feeder"`
	Coins   map[string]Coin `json:"coins"`
}

// Parse decodes and validates a deployment file.
func Parse(network Network, data []byte) (*Deployment, error) {
	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, &domain.ParseError{Path: "deployment", Reason: err.Error()}
	}
	d.Network = network
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks that every reference between tables resolves.
func (d *Deployment) Validate() error {
	var errs []string
	if d.Core.Package == "" {
		errs = append(errs, "sudo_core.package is required")
	}
	if d.Core.Market == "" {
		errs = append(errs, "sudo_core.market is required")
	}
	for token, v := range d.Core.Vaults {
		if _, ok := d.Coins[token]; !ok {
			errs = append(errs, fmt.Sprintf("vault %q has no coin entry", token))
		}
		if _, err := fixedpoint.Parse(v.Weight); err != nil {
			errs = append(errs, fmt.Sprintf("vault %q weight %q is not an integer", token, v.Weight))
		}
	}
	for key := range d.Core.Symbols {
		_, token, err := ParseSymbolKey(key)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if _, ok := d.Coins[token]; !ok {
			errs = append(errs, fmt.Sprintf("symbol %q has no coin entry", key))
		}
	}
	for token, c := range d.Coins {
		if _, err := typetag.ParseStruct(c.Module); err != nil {
			errs = append(errs, fmt.Sprintf("coin %q module %q: %v", token, c.Module, err))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return &domain.ParseError{Path: "deployment", Reason: strings.Join(errs, "; ")}
	}
	return nil
}

// SymbolKey joins a direction and token the way deployment files key symbols.
func SymbolKey(dir domain.Direction, token string) string {
	return string(dir) + "_" + token
}

// ParseSymbolKey splits "long_sui" into its direction and token.
func ParseSymbolKey(key string) (domain.Direction, string, error) {
	dir, token, ok := strings.Cut(key, "_")
	if !ok || token == "" {
		return "", "", fmt.Errorf("deploy: malformed symbol key %q", key)
	}
	switch d := domain.Direction(dir); d {
	case domain.Long, domain.Short:
		return d, token, nil
	}
	return "", "", fmt.Errorf("deploy: malformed symbol key %q", key)
}

// SLPType is the liquidity-provider coin type parameter of every market call.
func (d *Deployment) SLPType() string { return d.Core.Package + "::slp::SLP" }

// DirectionType is the Move marker type for a direction.
func (d *Deployment) DirectionType(dir domain.Direction) string {
	if dir.IsLong() {
		return d.Core.Package + "::market::LONG"
	}
	return d.Core.Package + "::market::SHORT"
}

// Target builds "package::module::function" against the core package.
func (d *Deployment) Target(module, function string) string {
	return d.Core.Package + "::" + module + "::" + function
}

// CoinType returns the Move type of a token.
func (d *Deployment) CoinType(token string) (string, error) {
	c, ok := d.Coins[token]
	if !ok {
		return "", domain.Unresolved("coin", token)
	}
	return c.Module, nil
}

func (d *Deployment) Vault(token string) (Vault, error) {
	v, ok := d.Core.Vaults[token]
	if !ok {
		return Vault{}, domain.Unresolved("vault", token)
	}
	return v, nil
}

// VaultWeight returns the configured weight of a vault.
func (d *Deployment) VaultWeight(token string) (fixedpoint.Decimal, error) {
	v, err := d.Vault(token)
	if err != nil {
		return fixedpoint.Decimal{}, err
	}
	return fixedpoint.Parse(v.Weight)
}

func (d *Deployment) Symbol(dir domain.Direction, token string) (Symbol, error) {
	key := SymbolKey(dir, token)
	s, ok := d.Core.Symbols[key]
	if !ok {
		return Symbol{}, domain.Unresolved("symbol", key)
	}
	return s, nil
}

// VaultTokens lists vault tokens in a stable order.
func (d *Deployment) VaultTokens() []string { return sortedKeys(d.Core.Vaults) }

// SymbolKeys lists symbol keys in a stable order.
func (d *Deployment) SymbolKeys() []string { return sortedKeys(d.Core.Symbols) }

// FeederTokens lists every asset key that has a feeder object.
func (d *Deployment) FeederTokens() []string { return sortedKeys(d.Pyth.Feeder) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads deployments-<network>.json and price_id_to_object_id.<network>.json
// from dir.
func Load(dir string, network Network) (*Deployment, *Identifiers, error) {
	raw, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("deployments-%s.json", network)))
	if err != nil {
		return nil, nil, fmt.Errorf("deploy: read deployment: %w", err)
	}
	d, err := Parse(network, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("deploy: %w", err)
	}

	raw, err = os.ReadFile(filepath.Join(dir, fmt.Sprintf("price_id_to_object_id.%s.json", network)))
	if err != nil {
		return nil, nil, fmt.Errorf("deploy: read price ids: %w", err)
	}
	var priceToObject map[string]string
	if err := json.Unmarshal(raw, &priceToObject); err != nil {
		return nil, nil, fmt.Errorf("deploy: %w", &domain.ParseError{Path: "price_id_to_object_id", Reason: err.Error()})
	}

	ids, err := NewIdentifiers(d, priceToObject)
	if err != nil {
		return nil, nil, fmt.Errorf("deploy: %w", err)
	}
	return d, ids, nil
}
