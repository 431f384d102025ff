package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// ValuationArchiveStore is the part of the valuation store the archiver
// needs.
type ValuationArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ValuationRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ValuationArchiver implements domain.Archiver. Records older than the
// cutoff are grouped by UTC day and written to one JSON-lines object per
// day; a day that already has an object is merged with it so repeated runs
// never drop rows. Database rows are deleted only after every upload has
// succeeded.
type ValuationArchiver struct {
	store   ValuationArchiveStore
	writer  domain.BlobWriter
	reader  domain.BlobReader
	audit   domain.AuditLog
	network string
}

// NewValuationArchiver creates an archiver. audit may be nil.
func NewValuationArchiver(
	store ValuationArchiveStore,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	audit domain.AuditLog,
	network string,
) *ValuationArchiver {
	return &ValuationArchiver{
		store:   store,
		writer:  writer,
		reader:  reader,
		audit:   audit,
		network: network,
	}
}

func (a *ValuationArchiver) ArchiveValuations(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.store.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive valuations query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	days := groupByDay(recs)
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, path := range keys {
		merged, err := a.mergeExisting(ctx, path, days[path])
		if err != nil {
			return 0, err
		}
		buf, err := marshalJSONL(merged)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive valuations marshal: %w", err)
		}
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive valuations upload: %w", err)
		}
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive valuations delete: %w", err)
	}

	count := int64(len(recs))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.valuations", map[string]any{
			"network": a.network,
			"objects": keys,
			"count":   count,
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive valuations audit log: %w", err)
		}
	}
	return count, nil
}

func groupByDay(recs []domain.ValuationRecord) map[string][]domain.ValuationRecord {
	out := make(map[string][]domain.ValuationRecord)
	for _, r := range recs {
		path := domain.ValuationArchivePath(r.Network, r.ComputedAt)
		out[path] = append(out[path], r)
	}
	return out
}

// mergeExisting prepends the records already archived at path, dropping
// any that are about to be written again.
func (a *ValuationArchiver) mergeExisting(ctx context.Context, path string, recs []domain.ValuationRecord) ([]domain.ValuationRecord, error) {
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive valuations: %w", err)
	}
	if !exists {
		return recs, nil
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return recs, nil
		}
		return nil, fmt.Errorf("s3blob: archive valuations: %w", err)
	}
	defer body.Close()

	old, err := ReadJSONL(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive valuations read %s: %w", path, err)
	}
	fresh := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		fresh[r.ID] = struct{}{}
	}
	merged := make([]domain.ValuationRecord, 0, len(old)+len(recs))
	for _, r := range old {
		if _, dup := fresh[r.ID]; !dup {
			merged = append(merged, r)
		}
	}
	merged = append(merged, recs...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ComputedAt.Before(merged[j].ComputedAt)
	})
	return merged, nil
}

// marshalJSONL writes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// ReadJSONL parses an archived day back into records.
func ReadJSONL(r io.Reader) ([]domain.ValuationRecord, error) {
	var out []domain.ValuationRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec domain.ValuationRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

var _ domain.Archiver = (*ValuationArchiver)(nil)
