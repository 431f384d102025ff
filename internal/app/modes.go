package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/server"
	"github.com/alanyoungcy/sudomarket/internal/server/handler"
	"github.com/alanyoungcy/sudomarket/internal/server/ws"
	"github.com/alanyoungcy/sudomarket/internal/service"
)

const shutdownTimeout = 5 * time.Second

func (a *App) newRecorder(deps *Dependencies) *service.Recorder {
	if deps.ValuationStore == nil {
		return nil
	}
	rec := service.NewRecorder(deps.Valuation, deps.ValuationStore, deps.SignalBus, a.cfg.Network, a.logger)
	if deps.LockManager != nil {
		rec.WithLock(deps.LockManager)
	}
	if deps.Alerts != nil {
		rec.WithAlerts(deps.Alerts)
	}
	return rec
}

// ServeMode runs the HTTP and WebSocket API, plus the recorder when
// server.record is set.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	g, ctx := errgroup.WithContext(ctx)

	recorder := a.newRecorder(deps)
	if recorder != nil && a.cfg.Server.Record {
		g.Go(func() error {
			return recorder.Run(ctx, a.cfg.Monitor.Interval.Duration)
		})
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{Network: a.cfg.Network, Mode: a.cfg.Mode}, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Network, a.cfg.Mode, a.logger),
		Valuation: handler.NewValuationHandler(deps.Valuation, historyReader(deps), deps.BlobReader, a.cfg.Network, a.logger),
		Rates:     handler.NewRateHandler(deps.Rates, deps.Valuation, a.logger),
		Market:    handler.NewMarketHandler(deps.Market, a.logger),
		Prices:    handler.NewPriceHandler(deps.Oracle, deps.Deployment.FeederTokens(), a.logger),
		Admin:     handler.NewAdminHandler(snapshotRecorder(recorder), archiveRunner(deps), a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// MonitorMode records valuations on an interval and archives old history
// on the configured cron schedule.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Duration("interval", a.cfg.Monitor.Interval.Duration),
		slog.Bool("archive", deps.Archiver != nil),
	)
	recorder := a.newRecorder(deps)
	if recorder == nil {
		return fmt.Errorf("app: monitor mode requires a valuation store")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return recorder.Run(ctx, a.cfg.Monitor.Interval.Duration)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunCron(ctx, a.cfg.Monitor.ArchiveCron)
		})
	}
	return g.Wait()
}

// onceReport is what once mode prints.
type onceReport struct {
	Network   string                 `json:"network"`
	Valuation domain.MarketValuation `json:"valuation"`
	Display   float64                `json:"display"`
}

// OnceMode computes the market valuation once and prints it as JSON.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	v, err := deps.Valuation.MarketValuation(ctx)
	if err != nil {
		return fmt.Errorf("app: market valuation: %w", err)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(onceReport{Network: a.cfg.Network, Valuation: v, Display: v.Display()}); err != nil {
		return fmt.Errorf("app: print valuation: %w", err)
	}
	return nil
}

// The helpers below keep typed-nil pointers out of handler interfaces.

func historyReader(deps *Dependencies) handler.HistoryReader {
	if deps.ValuationStore == nil {
		return nil
	}
	return deps.ValuationStore
}

func snapshotRecorder(r *service.Recorder) handler.SnapshotRecorder {
	if r == nil {
		return nil
	}
	return r
}

func archiveRunner(deps *Dependencies) handler.ArchiveRunner {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}
