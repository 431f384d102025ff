// Package server exposes the market replica over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/server/handler"
	"github.com/alanyoungcy/sudomarket/internal/server/middleware"
	"github.com/alanyoungcy/sudomarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards the maintenance routes; empty disables them.
	APIKey string
	// RateLimit is requests per RateWindow per client; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Admin may be
// nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Valuation *handler.ValuationHandler
	Rates     *handler.RateHandler
	Market    *handler.MarketHandler
	Prices    *handler.PriceHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. wsHub and limiter may be nil.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, h, wsHub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped http.Handler.
func NewHandler(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/valuation", h.Valuation.GetValuation)
	mux.HandleFunc("GET /api/valuation/vaults", h.Valuation.GetVaultsValuation)
	mux.HandleFunc("GET /api/valuation/history", h.Valuation.ListHistory)
	mux.HandleFunc("GET /api/valuation/archive", h.Valuation.GetArchive)

	mux.HandleFunc("GET /api/rates/funding", h.Rates.GetFunding)
	mux.HandleFunc("GET /api/rates/reserving", h.Rates.GetReserving)
	mux.HandleFunc("GET /api/rates/rebase", h.Rates.GetRebase)

	mux.HandleFunc("GET /api/positions", h.Market.ListPositions)
	mux.HandleFunc("GET /api/orders", h.Market.ListOrders)
	mux.HandleFunc("GET /api/vaults/{token}", h.Market.GetVault)
	mux.HandleFunc("GET /api/symbols/{token}/{side}", h.Market.GetSymbol)
	mux.HandleFunc("GET /api/symbols/{token}/{side}/config", h.Market.GetPositionConfig)

	mux.HandleFunc("GET /api/prices", h.Prices.ListPrices)

	if h.Admin != nil {
		mux.HandleFunc("POST /api/admin/record", middleware.RequireKey(cfg.APIKey, h.Admin.Record))
		mux.HandleFunc("POST /api/admin/archive", middleware.RequireKey(cfg.APIKey, h.Admin.Archive))
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var handler http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		handler = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(handler)
	}
	handler = middleware.Logging(logger)(handler)
	return middleware.CORS(cfg.CORSOrigins)(handler)
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
