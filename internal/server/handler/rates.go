package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// RateService serves funding and reserving rates.
type RateService interface {
	FundingFeeRate(ctx context.Context, indexToken string, dir domain.Direction) (fixedpoint.Signed, error)
	ReservingFeeRate(ctx context.Context, collateralToken string, delta uint64) (fixedpoint.Decimal, error)
}

// RebaseService computes rebase fee rates.
type RebaseService interface {
	RebaseFeeRate(ctx context.Context, collateralToken string, increase bool, delta fixedpoint.Decimal) (fixedpoint.Decimal, error)
}

// RateHandler serves the fee-rate endpoints.
type RateHandler struct {
	rates  RateService
	rebase RebaseService
	logger *slog.Logger
}

func NewRateHandler(rates RateService, rebase RebaseService, logger *slog.Logger) *RateHandler {
	return &RateHandler{rates: rates, rebase: rebase, logger: logger.With(slog.String("handler", "rates"))}
}

type rateResponse struct {
	Kind    domain.RateKind `json:"kind"`
	Token   string          `json:"token"`
	Side    string          `json:"side,omitempty"`
	Raw     string          `json:"raw"`
	Display string          `json:"display"`
}

// GetFunding returns a symbol's funding rate.
// GET /api/rates/funding?token=btc&side=long
func (h *RateHandler) GetFunding(w http.ResponseWriter, r *http.Request) {
	token, ok := requireQuery(w, r, "token")
	if !ok {
		return
	}
	dir, err := parseDirection(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rate, err := h.rates.FundingFeeRate(r.Context(), token, dir)
	if err != nil {
		writeFailure(w, r, h.logger, "funding rate", err)
		return
	}
	raw, _ := rate.MarshalText()
	writeJSON(w, http.StatusOK, rateResponse{
		Kind: domain.RateFunding, Token: token, Side: string(dir),
		Raw: string(raw), Display: rate.String(),
	})
}

// GetReserving returns a vault's reserving rate, optionally after
// reserving delta more units.
// GET /api/rates/reserving?token=usdc&delta=0
func (h *RateHandler) GetReserving(w http.ResponseWriter, r *http.Request) {
	token, ok := requireQuery(w, r, "token")
	if !ok {
		return
	}
	delta, err := queryUint(r, "delta")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rate, err := h.rates.ReservingFeeRate(r.Context(), token, delta)
	if err != nil {
		writeFailure(w, r, h.logger, "reserving rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{
		Kind: domain.RateReserving, Token: token,
		Raw: rate.Text(), Display: rate.String(),
	})
}

// GetRebase returns the rebase fee rate for a deposit (increase=true) or
// withdrawal of delta, given as a raw 18-decimal value.
// GET /api/rates/rebase?token=usdc&increase=true&delta=1000000000000000000
func (h *RateHandler) GetRebase(w http.ResponseWriter, r *http.Request) {
	token, ok := requireQuery(w, r, "token")
	if !ok {
		return
	}
	increase := true
	if v := r.URL.Query().Get("increase"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "increase must be a boolean")
			return
		}
		increase = b
	}
	delta := fixedpoint.Zero()
	if v := r.URL.Query().Get("delta"); v != "" {
		d, err := fixedpoint.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "delta must be a raw unsigned integer")
			return
		}
		delta = d
	}
	rate, err := h.rebase.RebaseFeeRate(r.Context(), token, increase, delta)
	if err != nil {
		writeFailure(w, r, h.logger, "rebase rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{
		Kind: domain.RateRebase, Token: token,
		Raw: rate.Text(), Display: rate.String(),
	})
}
