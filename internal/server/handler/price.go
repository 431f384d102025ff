package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// PriceReader reads oracle prices and their freshness.
type PriceReader interface {
	LatestPrices(ctx context.Context, keys []string) (map[string]domain.PriceFeed, error)
	Stale(ctx context.Context, keys []string) ([]string, error)
}

// PriceHandler serves the latest attested prices.
type PriceHandler struct {
	prices   PriceReader
	defaults []string
	logger   *slog.Logger
}

// NewPriceHandler creates a PriceHandler. defaults are the asset keys
// reported when the request names none.
func NewPriceHandler(prices PriceReader, defaults []string, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, defaults: defaults, logger: logger.With(slog.String("handler", "prices"))}
}

type priceResponse struct {
	Token       string    `json:"token"`
	PriceID     string    `json:"price_id"`
	Price       float64   `json:"price"`
	Conf        uint64    `json:"conf"`
	Expo        int32     `json:"expo"`
	PublishTime time.Time `json:"publish_time"`
}

// ListPrices returns the latest price per asset key together with the
// feeder objects that are currently stale on the ledger.
// GET /api/prices?tokens=btc,eth
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	keys := h.defaults
	if v := r.URL.Query().Get("tokens"); v != "" {
		keys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	feeds, err := h.prices.LatestPrices(r.Context(), keys)
	if err != nil {
		writeFailure(w, r, h.logger, "latest prices", err)
		return
	}
	stale, err := h.prices.Stale(r.Context(), keys)
	if err != nil {
		writeFailure(w, r, h.logger, "feeder freshness", err)
		return
	}

	out := make([]priceResponse, 0, len(feeds))
	for key, f := range feeds {
		out = append(out, priceResponse{
			Token:       key,
			PriceID:     f.PriceID,
			Price:       f.Value(),
			Conf:        f.Conf,
			Expo:        f.Expo,
			PublishTime: f.PublishTime.UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	if stale == nil {
		stale = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": out, "stale_feeders": stale})
}
