package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireKey guards a maintenance handler with a static API key sent as a
// Bearer token or in X-API-Key. With an empty apiKey the handler is
// refused outright, so maintenance routes are never left open.
func RequireKey(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if apiKey == "" {
			writeJSONError(w, http.StatusForbidden, "maintenance endpoints are disabled")
			return
		}
		token := extractToken(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}
		next(w, r)
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
