package domain

import (
	"time"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// Direction is the side of a symbol.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// DirectionOf maps a boolean long flag to a Direction.
func DirectionOf(long bool) Direction {
	if long {
		return Long
	}
	return Short
}

func (d Direction) IsLong() bool { return d == Long }

// VaultInfo is the on-ledger state of one collateral vault.
type VaultInfo struct {
	Token                        string             `json:"token"`
	Liquidity                    uint64             `json:"liquidity"`
	ReservedAmount               uint64             `json:"reserved_amount"`
	UnrealisedReservingFeeAmount fixedpoint.Decimal `json:"unrealised_reserving_fee_amount"`
	AccReservingRate             fixedpoint.Decimal `json:"acc_reserving_rate"`
	Enabled                      bool               `json:"enabled"`
	Weight                       fixedpoint.Decimal `json:"weight"`
	LastUpdate                   time.Time          `json:"last_update"`
}

// SymbolInfo is the on-ledger aggregate state of one (index token, direction).
type SymbolInfo struct {
	Token                     string             `json:"token"`
	Direction                 Direction          `json:"direction"`
	OpeningSize               fixedpoint.Decimal `json:"opening_size"`
	OpeningAmount             uint64             `json:"opening_amount"`
	AccFundingRate            fixedpoint.Signed  `json:"acc_funding_rate"`
	RealisedPnl               fixedpoint.Signed  `json:"realised_pnl"`
	UnrealisedFundingFeeValue fixedpoint.Signed  `json:"unrealised_funding_fee_value"`
	OpenEnabled               bool               `json:"open_enabled"`
	LiquidateEnabled          bool               `json:"liquidate_enabled"`
	DecreaseEnabled           bool               `json:"decrease_enabled"`
	LastUpdate                time.Time          `json:"last_update"`
}

// PositionConfig holds the trading limits of one symbol.
type PositionConfig struct {
	MaxLeverage           uint64             `json:"max_leverage"`
	MinHoldingDuration    uint64             `json:"min_holding_duration"`
	MaxReservedMultiplier uint64             `json:"max_reserved_multiplier"`
	MinCollateralValue    fixedpoint.Decimal `json:"min_collateral_value"`
	OpenFeeBps            fixedpoint.Decimal `json:"open_fee_bps"`
	DecreaseFeeBps        fixedpoint.Decimal `json:"decrease_fee_bps"`
	LiquidationThreshold  fixedpoint.Decimal `json:"liquidation_threshold"`
	LiquidationBonus      fixedpoint.Decimal `json:"liquidation_bonus"`
}

// PositionCap is an owned capability naming one position.
type PositionCap struct {
	ID             string `json:"id"`
	CollateralType string `json:"collateral_type"`
	IndexType      string `json:"index_type"`
	Long           bool   `json:"long"`
}

// OrderCap is an owned capability naming one pending order.
type OrderCap struct {
	ID             string `json:"id"`
	CollateralType string `json:"collateral_type"`
	IndexType      string `json:"index_type"`
	Long           bool   `json:"long"`
	PositionID     string `json:"position_id,omitempty"`
}
