package domain

import (
	"time"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// PositionRecord is one trader position. ReservingFeeAmount and
// FundingFeeValue are live estimates for open positions; when the estimate
// could not be computed they are zero and FeesDegraded is set.
type PositionRecord struct {
	ID                 string             `json:"id"`
	Owner              string             `json:"owner"`
	Long               bool               `json:"long"`
	Version            uint64             `json:"version"`
	CollateralToken    string             `json:"collateral_token"`
	IndexToken         string             `json:"index_token"`
	CollateralAmount   uint64             `json:"collateral_amount"`
	PositionAmount     uint64             `json:"position_amount"`
	ReservedAmount     uint64             `json:"reserved_amount"`
	PositionSize       fixedpoint.Decimal `json:"position_size"`
	LastFundingRate    fixedpoint.Signed  `json:"last_funding_rate"`
	LastReservingRate  fixedpoint.Decimal `json:"last_reserving_rate"`
	ReservingFeeAmount fixedpoint.Decimal `json:"reserving_fee_amount"`
	FundingFeeValue    fixedpoint.Signed  `json:"funding_fee_value"`
	Closed             bool               `json:"closed"`
	OpenTimestamp      time.Time          `json:"open_timestamp"`
	FeesDegraded       bool               `json:"fees_degraded,omitempty"`
	FeesErrorKind      ErrorKind          `json:"fees_error_kind,omitempty"`
}
