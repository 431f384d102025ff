package domain

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads objects back. Get returns ErrNotFound for a missing
// object.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves old valuation history from the database to cold storage.
type Archiver interface {
	ArchiveValuations(ctx context.Context, before time.Time) (int64, error)
}

// ValuationArchivePath is the object key holding one UTC day of a
// network's archived valuations as JSON lines.
func ValuationArchivePath(network string, day time.Time) string {
	return fmt.Sprintf("archive/valuations/%s/%s.jsonl", network, day.UTC().Format("2006-01-02"))
}
