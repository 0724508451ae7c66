package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
)

func (r *Repo) UpsertSymbols(ctx context.Context, symbols []persistence.SymbolRecord) error {
	if len(symbols) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin symbols tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_symbols (symbol_id, symbol, exchange, is_active, index_membership)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol_id) DO UPDATE SET
			is_active        = EXCLUDED.is_active,
			index_membership = EXCLUDED.index_membership`)
	if err != nil {
		return fmt.Errorf("prepare symbol upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range symbols {
		if _, err := stmt.ExecContext(ctx, s.SymbolID, s.Symbol, s.Exchange, s.IsActive, pq.Array(s.IndexMembership)); err != nil {
			return fmt.Errorf("upsert symbol %s: %w", s.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) ListActive(ctx context.Context) ([]persistence.SymbolRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT symbol_id, symbol, exchange, is_active, index_membership
		FROM market_symbols WHERE is_active ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list active symbols: %w", err)
	}
	defer rows.Close()

	var out []persistence.SymbolRecord
	for rows.Next() {
		var rec persistence.SymbolRecord
		var membership pq.StringArray
		if err := rows.Scan(&rec.SymbolID, &rec.Symbol, &rec.Exchange, &rec.IsActive, &membership); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		rec.IndexMembership = membership
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) SavePLdots(ctx context.Context, records []persistence.PLdotRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pldot tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pldot (symbol, interval, projection_timestamp, value, is_projected)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, interval, projection_timestamp) DO UPDATE SET
			value        = EXCLUDED.value,
			is_projected = EXCLUDED.is_projected`)
	if err != nil {
		return fmt.Errorf("prepare pldot upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range records {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Interval, p.ProjectionTS, p.Value, p.IsProjected); err != nil {
			return fmt.Errorf("upsert pldot %s %s @ %s: %w", p.Symbol, p.Interval, p.ProjectionTS, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) SaveEnvelopes(ctx context.Context, records []persistence.EnvelopeRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin envelope tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO envelope (symbol, interval, timestamp, upper, lower, center, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, interval, timestamp) DO UPDATE SET
			upper  = EXCLUDED.upper,
			lower  = EXCLUDED.lower,
			center = EXCLUDED.center,
			method = EXCLUDED.method`)
	if err != nil {
		return fmt.Errorf("prepare envelope upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range records {
		if _, err := stmt.ExecContext(ctx, e.Symbol, e.Interval, e.Timestamp, e.Upper, e.Lower, e.Center, e.Method); err != nil {
			return fmt.Errorf("upsert envelope %s %s @ %s: %w", e.Symbol, e.Interval, e.Timestamp, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) SaveMarketStates(ctx context.Context, records []persistence.MarketStateRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin market_states tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_states
			(symbol, interval, timestamp, state, trend_direction, bars_in_state, slope_trend, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, timestamp) DO UPDATE SET
			state           = EXCLUDED.state,
			trend_direction = EXCLUDED.trend_direction,
			bars_in_state   = EXCLUDED.bars_in_state,
			slope_trend     = EXCLUDED.slope_trend,
			confidence      = EXCLUDED.confidence`)
	if err != nil {
		return fmt.Errorf("prepare market_states upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range records {
		if _, err := stmt.ExecContext(ctx, s.Symbol, s.Interval, s.Timestamp, s.State, s.TrendDirection, s.BarsInState, s.SlopeTrend, s.Confidence); err != nil {
			return fmt.Errorf("upsert market_state %s %s @ %s: %w", s.Symbol, s.Interval, s.Timestamp, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) SavePatternEvents(ctx context.Context, records []persistence.PatternEventRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pattern_events tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pattern_events
			(symbol, interval, pattern_type, direction, start_ts, end_ts, strength, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, pattern_type, start_ts) DO UPDATE SET
			direction = EXCLUDED.direction,
			end_ts    = EXCLUDED.end_ts,
			strength  = EXCLUDED.strength,
			metadata  = EXCLUDED.metadata`)
	if err != nil {
		return fmt.Errorf("prepare pattern_events upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range records {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal pattern metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.Symbol, e.Interval, e.PatternType, e.Direction, e.StartTS, e.EndTS, e.Strength, metaJSON); err != nil {
			return fmt.Errorf("upsert pattern_event %s %s @ %s: %w", e.Symbol, e.PatternType, e.StartTS, err)
		}
	}
	return tx.Commit()
}

// SaveAnalysis writes one multi_timeframe_analysis row and replaces its
// confluence_zones children, all in one transaction (the row is unique
// on (symbol, htf, ttf, timestamp); re-analysis of the same instant
// overwrites).
func (r *Repo) SaveAnalysis(ctx context.Context, row persistence.AnalysisRow, zones []persistence.ConfluenceZoneRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analysis tx: %w", err)
	}
	defer tx.Rollback()

	var analysisID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO multi_timeframe_analysis
			(analysis_id, symbol, htf, ttf, timestamp, htf_trend, htf_strength, ttf_trend,
			 alignment_score, alignment_type, trade_permitted, htf_pldot, ttf_pldot,
			 pldot_distance_percent, signal_strength, risk_level, recommended_action,
			 pattern_confluence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (symbol, htf, ttf, timestamp) DO UPDATE SET
			htf_trend              = EXCLUDED.htf_trend,
			htf_strength           = EXCLUDED.htf_strength,
			ttf_trend              = EXCLUDED.ttf_trend,
			alignment_score        = EXCLUDED.alignment_score,
			alignment_type         = EXCLUDED.alignment_type,
			trade_permitted        = EXCLUDED.trade_permitted,
			htf_pldot              = EXCLUDED.htf_pldot,
			ttf_pldot              = EXCLUDED.ttf_pldot,
			pldot_distance_percent = EXCLUDED.pldot_distance_percent,
			signal_strength        = EXCLUDED.signal_strength,
			risk_level             = EXCLUDED.risk_level,
			recommended_action     = EXCLUDED.recommended_action,
			pattern_confluence     = EXCLUDED.pattern_confluence
		RETURNING analysis_id`,
		row.AnalysisID, row.Symbol, row.HTF, row.TTF, row.Timestamp, row.HTFTrend,
		row.HTFStrength, row.TTFTrend, row.AlignmentScore, row.AlignmentType,
		row.TradePermitted, row.HTFPLdot, row.TTFPLdot, row.PLdotDistancePercent,
		row.SignalStrength, row.RiskLevel, row.RecommendedAction, row.PatternConfluence,
	).Scan(&analysisID)
	if err != nil {
		return fmt.Errorf("upsert analysis %s %s/%s @ %s: %w", row.Symbol, row.HTF, row.TTF, row.Timestamp, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM confluence_zones WHERE analysis_id = $1`, analysisID); err != nil {
		return fmt.Errorf("clear confluence zones: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO confluence_zones
			(analysis_id, symbol, level, upper, lower, strength, timeframes, zone_type, first_touch, last_touch)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`)
	if err != nil {
		return fmt.Errorf("prepare zone insert: %w", err)
	}
	defer stmt.Close()

	for _, z := range zones {
		if _, err := stmt.ExecContext(ctx, analysisID, z.Symbol, z.Level, z.Upper, z.Lower,
			z.Strength, pq.Array(z.Timeframes), z.ZoneType, z.FirstTouch, z.LastTouch); err != nil {
			return fmt.Errorf("insert confluence zone: %w", err)
		}
	}
	return tx.Commit()
}
