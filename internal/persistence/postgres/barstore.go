package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
)

// BarStore implements bar.Store over the bars table. Row-level conflict
// resolution replaces the memory store's per-key mutex: the unique
// (symbol, interval, timestamp) constraint plus a conditional
// ON CONFLICT update gives the same provisional-only overwrite rule.
type BarStore struct {
	repo *Repo
	base bar.Interval
}

func NewBarStore(repo *Repo, base bar.Interval) *BarStore {
	return &BarStore{repo: repo, base: base}
}

func (s *BarStore) BaseInterval() bar.Interval { return s.base }

// Upsert inserts or updates bars for (symbol, interval). A conflicting
// row is updated only while provisional and only when content actually
// changed; identical duplicates and finalized rows produce no write,
// matching the memory store (spec §4.A, §8 bar monotonicity).
func (s *BarStore) Upsert(ctx context.Context, symbol string, interval bar.Interval, bars []bar.Bar) (inserted, updated int, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.repo.timeout)
	defer cancel()

	tx, err := s.repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin bars tx: %w", err)
	}
	defer tx.Rollback()

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, interval, timestamp, o, h, l, c, v, is_provisional)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, interval, timestamp) DO UPDATE SET
			o = EXCLUDED.o, h = EXCLUDED.h, l = EXCLUDED.l, c = EXCLUDED.c,
			v = EXCLUDED.v, is_provisional = EXCLUDED.is_provisional
		WHERE bars.is_provisional
		  AND (bars.o, bars.h, bars.l, bars.c, bars.v, bars.is_provisional)
		      IS DISTINCT FROM
		      (EXCLUDED.o, EXCLUDED.h, EXCLUDED.l, EXCLUDED.c, EXCLUDED.v, EXCLUDED.is_provisional)
		RETURNING (xmax = 0) AS was_insert`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare bar upsert: %w", err)
	}
	defer stmt.Close()

	for _, raw := range bars {
		nb := raw.Normalized()
		nb.Symbol = symbol
		nb.Interval = interval
		if err := nb.Validate(); err != nil {
			continue // InvalidBar: skip, caller already logs upstream
		}
		var wasInsert bool
		err := stmt.QueryRowContext(ctx, symbol, string(interval), nb.Timestamp,
			nb.Open, nb.High, nb.Low, nb.Close, nb.Volume, nb.Provisional).Scan(&wasInsert)
		if err == sql.ErrNoRows {
			continue // duplicate content, or finalized row: no write
		}
		if err != nil {
			return inserted, updated, fmt.Errorf("upsert bar %s %s @ %s: %w", symbol, interval, nb.Timestamp, err)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, updated, fmt.Errorf("commit bars tx: %w", err)
	}
	return inserted, updated, nil
}

func (s *BarStore) selectRange(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) ([]bar.Bar, error) {
	rows, err := s.repo.db.QueryxContext(ctx, `
		SELECT symbol, interval, timestamp, o, h, l, c, v, is_provisional
		FROM bars
		WHERE symbol = $1 AND interval = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp`, symbol, string(interval), start, end)
	if err != nil {
		return nil, fmt.Errorf("select bars: %w", err)
	}
	defer rows.Close()

	var out []bar.Bar
	for rows.Next() {
		var rec persistence.BarRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		out = append(out, persistence.ToBar(rec))
	}
	return out, rows.Err()
}

// Get returns bars in [start, end], synthesizing from the base interval
// when the requested interval has no native rows (spec §4.A).
func (s *BarStore) Get(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) ([]bar.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, s.repo.timeout)
	defer cancel()

	native, err := s.selectRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(native) > 0 || interval == s.base {
		return native, nil
	}

	// fetch base bars from the open of the bucket containing start, so
	// the first synthesized bucket is complete.
	bucketStart := bar.AlignTimestamp(start, interval)
	baseBars, err := s.selectRange(ctx, symbol, s.base, bucketStart, end)
	if err != nil {
		return nil, err
	}
	agg := bar.Aggregate(baseBars, interval)
	out := agg[:0:0]
	for _, b := range agg {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *BarStore) Latest(ctx context.Context, symbol string, interval bar.Interval) (bar.Bar, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.repo.timeout)
	defer cancel()

	var rec persistence.BarRecord
	err := s.repo.db.GetContext(ctx, &rec, `
		SELECT symbol, interval, timestamp, o, h, l, c, v, is_provisional
		FROM bars WHERE symbol = $1 AND interval = $2
		ORDER BY timestamp DESC LIMIT 1`, symbol, string(interval))
	if err == sql.ErrNoRows {
		if interval == s.base {
			return bar.Bar{}, false, nil
		}
		// no native rows: synthesize from whatever base coverage exists.
		cov, err := s.Coverage(ctx, symbol, s.base)
		if err != nil || cov.Count == 0 {
			return bar.Bar{}, false, err
		}
		bars, err := s.Get(ctx, symbol, interval, cov.First, cov.Last)
		if err != nil || len(bars) == 0 {
			return bar.Bar{}, false, err
		}
		return bars[len(bars)-1], true, nil
	}
	if err != nil {
		return bar.Bar{}, false, fmt.Errorf("latest bar: %w", err)
	}
	return persistence.ToBar(rec), true, nil
}

func (s *BarStore) Coverage(ctx context.Context, symbol string, interval bar.Interval) (bar.Coverage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.repo.timeout)
	defer cancel()

	var row struct {
		First *time.Time `db:"first"`
		Last  *time.Time `db:"last"`
		Count int        `db:"count"`
	}
	err := s.repo.db.GetContext(ctx, &row, `
		SELECT MIN(timestamp) AS first, MAX(timestamp) AS last, COUNT(*) AS count
		FROM bars WHERE symbol = $1 AND interval = $2`, symbol, string(interval))
	if err != nil {
		return bar.Coverage{}, fmt.Errorf("bar coverage: %w", err)
	}
	if row.Count == 0 || row.First == nil || row.Last == nil {
		return bar.Coverage{}, nil
	}
	return bar.Coverage{First: *row.First, Last: *row.Last, Count: row.Count}, nil
}
