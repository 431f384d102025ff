package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// MarketReader reads ledger-backed market records.
type MarketReader interface {
	VaultInfo(ctx context.Context, token string) (domain.VaultInfo, error)
	SymbolInfo(ctx context.Context, indexToken string, dir domain.Direction) (domain.SymbolInfo, error)
	PositionConfig(ctx context.Context, indexToken string, dir domain.Direction) (domain.PositionConfig, error)
	Positions(ctx context.Context, owner string) ([]domain.PositionRecord, error)
	Orders(ctx context.Context, owner string) ([]domain.OrderRecord, error)
}

// MarketHandler serves vault, symbol, position and order endpoints.
type MarketHandler struct {
	market MarketReader
	logger *slog.Logger
}

func NewMarketHandler(market MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logger.With(slog.String("handler", "market"))}
}

func validOwner(owner string) bool {
	return strings.HasPrefix(owner, "0x") && len(owner) > 2 && len(owner) <= 66
}

// ListPositions returns an owner's positions with live fee estimates.
// GET /api/positions?owner=0x...
func (h *MarketHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireQuery(w, r, "owner")
	if !ok {
		return
	}
	if !validOwner(owner) {
		writeError(w, http.StatusBadRequest, "owner must be a 0x address")
		return
	}
	positions, err := h.market.Positions(r.Context(), owner)
	if err != nil {
		writeFailure(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.PositionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "positions": positions})
}

// ListOrders returns an owner's pending orders.
// GET /api/orders?owner=0x...
func (h *MarketHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireQuery(w, r, "owner")
	if !ok {
		return
	}
	if !validOwner(owner) {
		writeError(w, http.StatusBadRequest, "owner must be a 0x address")
		return
	}
	orders, err := h.market.Orders(r.Context(), owner)
	if err != nil {
		writeFailure(w, r, h.logger, "list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "orders": orders})
}

// GetVault returns one vault's on-ledger state.
// GET /api/vaults/{token}
func (h *MarketHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	info, err := h.market.VaultInfo(r.Context(), r.PathValue("token"))
	if err != nil {
		writeFailure(w, r, h.logger, "vault info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetSymbol returns one symbol's aggregate state.
// GET /api/symbols/{token}/{side}
func (h *MarketHandler) GetSymbol(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(r.PathValue("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.market.SymbolInfo(r.Context(), r.PathValue("token"), dir)
	if err != nil {
		writeFailure(w, r, h.logger, "symbol info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetPositionConfig returns a symbol's trading limits.
// GET /api/symbols/{token}/{side}/config
func (h *MarketHandler) GetPositionConfig(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(r.PathValue("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.market.PositionConfig(r.Context(), r.PathValue("token"), dir)
	if err != nil {
		writeFailure(w, r, h.logger, "position config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
