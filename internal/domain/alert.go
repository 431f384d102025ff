package domain

import "context"

// Alert event names. Operators filter notifications by these.
const (
	EventValuationFailing   = "valuation_failing"
	EventValuationRecovered = "valuation_recovered"
	EventArchiveCompleted   = "archive_completed"
	EventArchiveFailed      = "archive_failed"
)

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}
