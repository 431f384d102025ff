package domain

import (
	"time"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// OrderType distinguishes the two pending-order shapes.
type OrderType string

const (
	OrderOpenPosition     OrderType = "OPEN_POSITION"
	OrderDecreasePosition OrderType = "DECREASE_POSITION"
)

// OpenOrder is the payload of an OPEN_POSITION order.
type OpenOrder struct {
	ReserveAmount    uint64 `json:"reserve_amount"`
	CollateralAmount uint64 `json:"collateral_amount"`
	OpenAmount       uint64 `json:"open_amount"`
}

// DecreaseOrder is the payload of a DECREASE_POSITION order.
type DecreaseOrder struct {
	DecreaseAmount uint64 `json:"decrease_amount"`
	TakeProfit     bool   `json:"take_profit"`
}

// OrderRecord is one pending limit order. Exactly one of Open and Decrease
// is set, matching Type.
type OrderRecord struct {
	ID                       string             `json:"id"`
	CapID                    string             `json:"cap_id"`
	Executed                 bool               `json:"executed"`
	Owner                    string             `json:"owner"`
	CollateralToken          string             `json:"collateral_token"`
	IndexToken               string             `json:"index_token"`
	FeeToken                 string             `json:"fee_token"`
	CollateralPriceThreshold fixedpoint.Decimal `json:"collateral_price_threshold"`
	FeeAmount                uint64             `json:"fee_amount"`
	Long                     bool               `json:"long"`
	IndexPrice               fixedpoint.Decimal `json:"index_price"`
	Type                     OrderType          `json:"order_type"`
	Open                     *OpenOrder         `json:"open_order,omitempty"`
	Decrease                 *DecreaseOrder     `json:"decrease_order,omitempty"`
	CreatedAt                time.Time          `json:"created_at"`
}
