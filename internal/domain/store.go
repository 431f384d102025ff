package domain

import (
	"context"
	"time"
)

// ValuationStore persists valuation history.
type ValuationStore interface {
	Insert(ctx context.Context, rec ValuationRecord) error
	ListRecent(ctx context.Context, limit int) ([]ValuationRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ValuationRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditLog records operational events.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
