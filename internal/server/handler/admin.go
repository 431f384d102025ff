package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// SnapshotRecorder records one valuation snapshot on demand.
type SnapshotRecorder interface {
	Record(ctx context.Context) (domain.ValuationRecord, error)
}

// ArchiveRunner runs one archive pass on demand.
type ArchiveRunner interface {
	Run(ctx context.Context) (int64, error)
}

// AdminHandler triggers maintenance jobs. Either collaborator may be nil.
type AdminHandler struct {
	recorder SnapshotRecorder
	archiver ArchiveRunner
	logger   *slog.Logger
}

func NewAdminHandler(recorder SnapshotRecorder, archiver ArchiveRunner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{recorder: recorder, archiver: archiver, logger: logger.With(slog.String("handler", "admin"))}
}

// Record computes and stores a valuation snapshot now.
// POST /api/admin/record
func (h *AdminHandler) Record(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "recorder is not configured")
		return
	}
	rec, err := h.recorder.Record(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "record valuation", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Archive moves old valuation history to cold storage now.
// POST /api/admin/archive
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver is not configured")
		return
	}
	n, err := h.archiver.Run(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "archive valuations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": n})
}
