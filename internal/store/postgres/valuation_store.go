package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// ValuationStore implements domain.ValuationStore for one network. Amounts
// travel as text so that 256-bit values survive the round trip exactly.
type ValuationStore struct {
	pool    *pgxpool.Pool
	network string
}

func NewValuationStore(pool *pgxpool.Pool, network string) *ValuationStore {
	return &ValuationStore{pool: pool, network: network}
}

const valuationSelectCols = `id::text, network, total::text, vaults_value::text,
	symbols_value::text, lp_supply::text, computed_at`

func scanValuationRows(rows pgx.Rows) ([]domain.ValuationRecord, error) {
	var out []domain.ValuationRecord
	for rows.Next() {
		var rec domain.ValuationRecord
		var total, vaults, symbols, lpSupply string
		if err := rows.Scan(&rec.ID, &rec.Network, &total, &vaults, &symbols, &lpSupply, &rec.ComputedAt); err != nil {
			return nil, err
		}
		if err := rec.Total.UnmarshalText([]byte(total)); err != nil {
			return nil, err
		}
		if err := rec.VaultsValue.UnmarshalText([]byte(vaults)); err != nil {
			return nil, err
		}
		if err := rec.SymbolsValue.UnmarshalText([]byte(symbols)); err != nil {
			return nil, err
		}
		if err := rec.LPSupply.UnmarshalText([]byte(lpSupply)); err != nil {
			return nil, err
		}
		rec.ComputedAt = rec.ComputedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func signedText(s fixedpoint.Signed) string {
	b, _ := s.MarshalText()
	return string(b)
}

func (s *ValuationStore) Insert(ctx context.Context, rec domain.ValuationRecord) error {
	const query = `
		INSERT INTO valuations (id, network, total, vaults_value, symbols_value, lp_supply, computed_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Network,
		signedText(rec.Total), signedText(rec.VaultsValue), signedText(rec.SymbolsValue),
		rec.LPSupply.Text(), rec.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert valuation %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the newest records first.
func (s *ValuationStore) ListRecent(ctx context.Context, limit int) ([]domain.ValuationRecord, error) {
	query := `SELECT ` + valuationSelectCols + ` FROM valuations
		WHERE network = $1 ORDER BY computed_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, s.network, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent valuations: %w", err)
	}
	defer rows.Close()
	recs, err := scanValuationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan valuations: %w", err)
	}
	return recs, nil
}

// ListBefore returns records computed strictly before the cutoff, oldest
// first. A non-positive limit returns every match.
func (s *ValuationStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ValuationRecord, error) {
	query := `SELECT ` + valuationSelectCols + ` FROM valuations
		WHERE network = $1 AND computed_at < $2 ORDER BY computed_at ASC`
	args := []any{s.network, before}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list valuations before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	recs, err := scanValuationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan valuations: %w", err)
	}
	return recs, nil
}

// DeleteBefore removes records computed strictly before the cutoff and
// reports how many were removed.
func (s *ValuationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM valuations WHERE network = $1 AND computed_at < $2`, s.network, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete valuations before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ValuationStore = (*ValuationStore)(nil)
