// Package simulate runs call graphs speculatively against the ledger and
// exposes their per-step outputs.
package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
)

const statusSuccess = "success"

// Executor resolves a transaction's object inputs, serialises it and submits
// it for speculative execution. Nothing is signed or committed.
type Executor struct {
	reader    domain.LedgerReader
	inspector domain.LedgerInspector
	logger    *slog.Logger
}

func NewExecutor(reader domain.LedgerReader, inspector domain.LedgerInspector, logger *slog.Logger) *Executor {
	return &Executor{
		reader:    reader,
		inspector: inspector,
		logger:    logger.With(slog.String("component", "simulate")),
	}
}

// Run executes tx as sender. A ledger-reported failure is returned as a
// *domain.SimulationError carrying the ledger's message verbatim.
func (e *Executor) Run(ctx context.Context, sender string, tx *ptb.Transaction) (*Result, error) {
	if err := tx.Err(); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	refs, err := e.resolve(ctx, tx.ObjectIDs())
	if err != nil {
		return nil, err
	}
	kind, err := tx.Build(refs)
	if err != nil {
		return nil, fmt.Errorf("simulate: build: %w", err)
	}

	start := time.Now()
	res, err := e.inspector.DevInspect(ctx, sender, kind)
	if err != nil {
		return nil, fmt.Errorf("simulate: inspect: %w", err)
	}
	if res.Status != statusSuccess {
		e.logger.DebugContext(ctx, "simulation aborted",
			slog.Int("calls", tx.Len()),
			slog.String("error", res.Error),
		)
		return nil, &domain.SimulationError{Message: res.Error}
	}
	if len(res.Steps) != tx.Len() {
		return nil, &domain.DecodeError{
			Schema: "InspectResult",
			Reason: fmt.Sprintf("%d result steps for %d calls", len(res.Steps), tx.Len()),
		}
	}
	e.logger.DebugContext(ctx, "simulation complete",
		slog.Int("calls", tx.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return newResult(res.Steps), nil
}

func (e *Executor) resolve(ctx context.Context, ids []string) (map[string]ptb.ObjectRef, error) {
	refs := make(map[string]ptb.ObjectRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}
	objs, err := e.reader.MultiGetObjects(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("simulate: resolve inputs: %w", err)
	}
	for i, obj := range objs {
		ref, err := ptb.RefFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("simulate: resolve %s: %w", ids[i], err)
		}
		refs[ids[i]] = ref
	}
	return refs, nil
}
