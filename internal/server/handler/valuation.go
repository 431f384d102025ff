package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// Valuer computes live valuations.
type Valuer interface {
	MarketValuation(ctx context.Context) (domain.MarketValuation, error)
	VaultsValuation(ctx context.Context) (domain.MarketValuation, error)
}

// HistoryReader lists recorded valuations, newest first.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ValuationRecord, error)
}

// ValuationHandler serves live and historical market valuations. history
// and archive may be nil when storage is not configured.
type ValuationHandler struct {
	valuer  Valuer
	history HistoryReader
	archive domain.BlobReader
	network string
	logger  *slog.Logger
}

func NewValuationHandler(valuer Valuer, history HistoryReader, archive domain.BlobReader, network string, logger *slog.Logger) *ValuationHandler {
	return &ValuationHandler{
		valuer:  valuer,
		history: history,
		archive: archive,
		network: network,
		logger:  logger.With(slog.String("handler", "valuation")),
	}
}

type valuationResponse struct {
	domain.MarketValuation
	Display float64 `json:"display"`
}

// GetValuation computes the full market valuation.
// GET /api/valuation
func (h *ValuationHandler) GetValuation(w http.ResponseWriter, r *http.Request) {
	v, err := h.valuer.MarketValuation(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "market valuation", err)
		return
	}
	writeJSON(w, http.StatusOK, valuationResponse{MarketValuation: v, Display: v.Display()})
}

// GetVaultsValuation computes the vault-only valuation.
// GET /api/valuation/vaults
func (h *ValuationHandler) GetVaultsValuation(w http.ResponseWriter, r *http.Request) {
	v, err := h.valuer.VaultsValuation(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "vaults valuation", err)
		return
	}
	writeJSON(w, http.StatusOK, valuationResponse{MarketValuation: v, Display: v.Display()})
}

// ListHistory returns the most recent recorded valuations.
// GET /api/valuation/history?limit=100
func (h *ValuationHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "valuation history is not configured")
		return
	}
	recs, err := h.history.ListRecent(r.Context(), parseLimit(r, 100, 1000))
	if err != nil {
		writeFailure(w, r, h.logger, "list valuation history", err)
		return
	}
	if recs == nil {
		recs = []domain.ValuationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"network": h.network, "valuations": recs})
}

// GetArchive streams one archived day as JSON lines.
// GET /api/valuation/archive?date=2024-03-01
func (h *ValuationHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "valuation archive is not configured")
		return
	}
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	path := domain.ValuationArchivePath(h.network, day)
	body, err := h.archive.Get(r.Context(), path)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no archive for "+date)
		return
	}
	if err != nil {
		writeFailure(w, r, h.logger, "read archive", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
