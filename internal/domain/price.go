package domain

import (
	"context"
	"math"
	"time"
)

// PriceFeed is the latest attested price for one price-service identifier.
// The display price is Price * 10^Expo.
type PriceFeed struct {
	PriceID     string
	AssetKey    string
	Price       int64
	Conf        uint64
	Expo        int32
	EMAPrice    int64
	PublishTime time.Time
}

// Value returns the display price.
func (p PriceFeed) Value() float64 {
	return float64(p.Price) * math.Pow10(int(p.Expo))
}

// PriceService fetches attestations from the external price service.
type PriceService interface {
	LatestPrices(ctx context.Context, priceIDs []string) ([]PriceFeed, error)
	// LatestUpdates returns binary update payloads covering every requested id.
	LatestUpdates(ctx context.Context, priceIDs []string) ([][]byte, error)
}
