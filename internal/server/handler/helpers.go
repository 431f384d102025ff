// Package handler implements the read-only HTTP API over the market replica.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status code.
// If marshaling fails it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound, domain.KindIdentifierUnresolved:
		return http.StatusNotFound
	case domain.KindRemoteUnavailable:
		return http.StatusBadGateway
	case domain.KindSimulationAborted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs err and answers with its kind. Ledger aborts keep their
// message; other internal failures are reported by kind only.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
		slog.String("kind", string(kind)),
	)
	msg := op + " failed"
	var simErr *domain.SimulationError
	switch {
	case errors.As(err, &simErr):
		msg = simErr.Message
	case status == http.StatusNotFound:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// parseLimit reads ?limit= with the given default, capped at max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// parseDirection accepts long|short in any case.
func parseDirection(s string) (domain.Direction, error) {
	switch domain.Direction(strings.ToLower(strings.TrimSpace(s))) {
	case domain.Long:
		return domain.Long, nil
	case domain.Short:
		return domain.Short, nil
	}
	return "", fmt.Errorf("side must be long or short, got %q", s)
}

// queryUint reads an optional unsigned integer parameter, zero when absent.
func queryUint(r *http.Request, name string) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", name)
	}
	return n, nil
}

// requireQuery returns the named parameter or writes a 400.
func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeError(w, http.StatusBadRequest, name+" query parameter required")
		return "", false
	}
	return v, true
}
