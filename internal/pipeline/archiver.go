// Package pipeline runs the periodic maintenance jobs of monitor mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// archiveLockTTL bounds how long one replica may hold the archive lock.
const archiveLockTTL = 30 * time.Minute

// Archiver moves valuation history older than archiveAfter to cold
// storage on a cron schedule. When a lock manager is set only one replica
// archives per trigger.
type Archiver struct {
	archiver     domain.Archiver
	locks        domain.LockManager
	alerts       domain.Alerter
	archiveAfter time.Duration
	network      string
	now          func() time.Time
	logger       *slog.Logger
}

// NewArchiver creates an Archiver. locks may be nil.
func NewArchiver(archiver domain.Archiver, locks domain.LockManager, archiveAfter time.Duration, network string, logger *slog.Logger) *Archiver {
	return &Archiver{
		archiver:     archiver,
		locks:        locks,
		archiveAfter: archiveAfter,
		network:      network,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// WithAlerts reports completed and failed runs to operators.
func (a *Archiver) WithAlerts(alerts domain.Alerter) *Archiver {
	a.alerts = alerts
	return a
}

func (a *Archiver) alert(ctx context.Context, event, title, message string) {
	if a.alerts == nil {
		return
	}
	if err := a.alerts.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Run archives once. It returns the number of records moved; zero with a
// nil error means another replica holds the lock.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "archive:"+a.network, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.now().UTC().Add(-a.archiveAfter)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Duration("archive_after", a.archiveAfter),
	)
	n, err := a.archiver.ArchiveValuations(ctx, cutoff)
	if err != nil {
		err = fmt.Errorf("pipeline: archive valuations before %s: %w", cutoff.Format(time.RFC3339), err)
		a.alert(ctx, domain.EventArchiveFailed, "Archive failed on "+a.network, err.Error())
		return 0, err
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", n))
	if n > 0 {
		a.alert(ctx, domain.EventArchiveCompleted, "Archive completed on "+a.network,
			fmt.Sprintf("%d valuation records before %s moved to cold storage", n, cutoff.Format(time.RFC3339)))
	}
	return n, nil
}

// RunCron runs the archiver at every time matching the five-field cron
// expression (UTC) until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := ParseSchedule(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.Next(a.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
					slog.String("kind", string(domain.KindOf(err))),
				)
			}
		}
	}
}
