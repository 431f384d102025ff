package domain

import (
	"time"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// VaultValuation is one vault's contribution to a valuation snapshot.
type VaultValuation struct {
	Token string            `json:"token"`
	Price float64           `json:"price"`
	Value fixedpoint.Signed `json:"value"`
}

// MarketValuation is the replicated value of the whole market.
// SymbolsValue is zero for a vault-only valuation.
type MarketValuation struct {
	Timestamp    time.Time          `json:"timestamp"`
	Vaults       []VaultValuation   `json:"vaults"`
	TotalWeight  fixedpoint.Decimal `json:"total_weight"`
	VaultsValue  fixedpoint.Signed  `json:"vaults_value"`
	SymbolsValue fixedpoint.Signed  `json:"symbols_value"`
	LPSupply     fixedpoint.Decimal `json:"lp_supply"`
	Total        fixedpoint.Signed  `json:"total"`
}

// Display returns the total as raw/1e18.
func (v MarketValuation) Display() float64 { return v.Total.Float64() }

// ValuationRecord is a persisted market valuation.
type ValuationRecord struct {
	ID           string             `json:"id"`
	Network      string             `json:"network"`
	Total        fixedpoint.Signed  `json:"total"`
	VaultsValue  fixedpoint.Signed  `json:"vaults_value"`
	SymbolsValue fixedpoint.Signed  `json:"symbols_value"`
	LPSupply     fixedpoint.Decimal `json:"lp_supply"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// RateKind names a cached rate family.
type RateKind string

const (
	RateFunding   RateKind = "funding"
	RateReserving RateKind = "reserving"
	RateRebase    RateKind = "rebase"
)
