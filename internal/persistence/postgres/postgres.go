// Package postgres implements the persistence contracts against
// PostgreSQL using sqlx and lib/pq, following the teacher's
// timeout-wrapped-query / transaction-per-batch idiom.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
)

// Repo implements RunsRepo, SignalsRepo, BacktestRepo, and
// SchedulerStateRepo over a single *sqlx.DB connection pool.
type Repo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func New(db *sqlx.DB, timeout time.Duration) *Repo {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Repo{db: db, timeout: timeout}
}

func isDuplicate(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func (r *Repo) PersistRun(ctx context.Context, run persistence.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO prediction_runs
			(run_id, run_ts, interval_type, symbols_requested, symbols_processed,
			 signals_generated, latency_total_ms, latency_data_fetch_ms,
			 latency_indicator_calc_ms, latency_signal_generation_ms,
			 latency_notification_ms, status, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			symbols_processed            = EXCLUDED.symbols_processed,
			signals_generated            = EXCLUDED.signals_generated,
			latency_total_ms             = EXCLUDED.latency_total_ms,
			latency_data_fetch_ms        = EXCLUDED.latency_data_fetch_ms,
			latency_indicator_calc_ms    = EXCLUDED.latency_indicator_calc_ms,
			latency_signal_generation_ms = EXCLUDED.latency_signal_generation_ms,
			latency_notification_ms      = EXCLUDED.latency_notification_ms,
			status                       = EXCLUDED.status,
			errors                       = EXCLUDED.errors`,
		run.RunID, run.RunTS, run.IntervalType, run.SymbolsRequested, run.SymbolsProcessed,
		run.SignalsGenerated, run.LatencyTotalMs, run.LatencyDataFetchMs, run.LatencyIndicatorCalcMs,
		run.LatencySignalGenerationMs, run.LatencyNotificationMs, run.Status, errsJSON)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("duplicate run: %w", err)
		}
		return fmt.Errorf("persist run: %w", err)
	}
	return nil
}

func (r *Repo) GetRun(ctx context.Context, runID string) (persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row struct {
		RunID                     string    `db:"run_id"`
		RunTS                     time.Time `db:"run_ts"`
		IntervalType              string    `db:"interval_type"`
		SymbolsRequested          int       `db:"symbols_requested"`
		SymbolsProcessed          int       `db:"symbols_processed"`
		SignalsGenerated          int       `db:"signals_generated"`
		LatencyTotalMs            int64     `db:"latency_total_ms"`
		LatencyDataFetchMs        int64     `db:"latency_data_fetch_ms"`
		LatencyIndicatorCalcMs    int64     `db:"latency_indicator_calc_ms"`
		LatencySignalGenerationMs int64     `db:"latency_signal_generation_ms"`
		LatencyNotificationMs     int64     `db:"latency_notification_ms"`
		Status                    string    `db:"status"`
		Errors                    []byte    `db:"errors"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, run_ts, interval_type, symbols_requested, symbols_processed,
		       signals_generated, latency_total_ms, latency_data_fetch_ms,
		       latency_indicator_calc_ms, latency_signal_generation_ms,
		       latency_notification_ms, status, errors
		FROM prediction_runs WHERE run_id = $1`, runID)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.RunRecord{}, fmt.Errorf("run %s not found: %w", runID, err)
		}
		return persistence.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	var errs []string
	_ = json.Unmarshal(row.Errors, &errs)
	return persistence.RunRecord{
		RunID: row.RunID, RunTS: row.RunTS, IntervalType: row.IntervalType,
		SymbolsRequested: row.SymbolsRequested, SymbolsProcessed: row.SymbolsProcessed,
		SignalsGenerated: row.SignalsGenerated, LatencyTotalMs: row.LatencyTotalMs,
		LatencyDataFetchMs: row.LatencyDataFetchMs, LatencyIndicatorCalcMs: row.LatencyIndicatorCalcMs,
		LatencySignalGenerationMs: row.LatencySignalGenerationMs, LatencyNotificationMs: row.LatencyNotificationMs,
		Status: row.Status, Errors: errs,
	}, nil
}

// PersistSignals writes every signal for run_id inside a single
// transaction (spec §5: atomic per run_id, all-or-nothing).
func (r *Repo) PersistSignals(ctx context.Context, runID string, signals []persistence.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(signals)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin signals tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generated_signals
			(signal_id, run_id, symbol, signal_ts, signal_type, entry, stop, target,
			 confidence, signal_strength, timeframe_alignment, rr_ratio, htf_trend,
			 trading_tf_state, confluence_zones_count, pattern_context)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`)
	if err != nil {
		return fmt.Errorf("prepare signal insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		if s.RunID != runID {
			return fmt.Errorf("signal %s does not belong to run %s", s.SignalID, runID)
		}
		ctxJSON, err := json.Marshal(s.PatternContext)
		if err != nil {
			return fmt.Errorf("marshal pattern_context: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			s.SignalID, s.RunID, s.Symbol, s.SignalTS, s.SignalType, s.Entry, s.Stop, s.Target,
			s.Confidence, s.SignalStrength, s.TimeframeAlignment, s.RRRatio, s.HTFTrend,
			s.TradingTFState, s.ConfluenceZonesCount, ctxJSON)
		if err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("duplicate signal %s: %w", s.SignalID, err)
			}
			return fmt.Errorf("insert signal %s: %w", s.SignalID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) ListBySymbol(ctx context.Context, symbol string, from, to time.Time) ([]persistence.SignalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT signal_id, run_id, symbol, signal_ts, signal_type, entry, stop, target,
		       confidence, signal_strength, timeframe_alignment, rr_ratio, htf_trend,
		       trading_tf_state, confluence_zones_count, pattern_context,
		       outcome, actual_high, actual_low, actual_close, pnl_pct, evaluated_at
		FROM generated_signals
		WHERE symbol = $1 AND signal_ts >= $2 AND signal_ts <= $3
		ORDER BY signal_ts DESC`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("list signals by symbol: %w", err)
	}
	defer rows.Close()

	var out []persistence.SignalRecord
	for rows.Next() {
		var rec persistence.SignalRecord
		var ctxJSON []byte
		if err := rows.Scan(&rec.SignalID, &rec.RunID, &rec.Symbol, &rec.SignalTS, &rec.SignalType,
			&rec.Entry, &rec.Stop, &rec.Target, &rec.Confidence, &rec.SignalStrength,
			&rec.TimeframeAlignment, &rec.RRRatio, &rec.HTFTrend, &rec.TradingTFState,
			&rec.ConfluenceZonesCount, &ctxJSON,
			&rec.Outcome, &rec.ActualHigh, &rec.ActualLow, &rec.ActualClose,
			&rec.PnLPercent, &rec.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		_ = json.Unmarshal(ctxJSON, &rec.PatternContext)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordOutcome writes a signal's post-hoc evaluation onto its
// generated_signals row. The signal itself stays immutable; only the
// outcome columns are touched (spec §3: "optional post-hoc outcome").
func (r *Repo) RecordOutcome(ctx context.Context, signalID string, outcome persistence.SignalOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE generated_signals
		SET outcome = $2, actual_high = $3, actual_low = $4, actual_close = $5,
		    pnl_pct = $6, evaluated_at = $7
		WHERE signal_id = $1`,
		signalID, outcome.Outcome, outcome.ActualHigh, outcome.ActualLow,
		outcome.ActualClose, outcome.PnLPercent, outcome.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", signalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("signal %s not found", signalID)
	}
	return nil
}

func (r *Repo) SaveResult(ctx context.Context, result persistence.BacktestResultRecord, trades []persistence.BacktestTradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/100+2))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin backtest tx: %w", err)
	}
	defer tx.Rollback()

	cfgJSON, err := json.Marshal(result.TestConfig)
	if err != nil {
		return fmt.Errorf("marshal test_config: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_results
			(backtest_id, strategy_name, symbol_id, start_date, end_date, initial_capital,
			 final_capital, total_return_pct, sharpe, sortino, calmar, max_drawdown_pct,
			 win_rate, profit_factor, var_95, cvar_95, test_config)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		result.BacktestID, result.StrategyName, result.Symbol, result.StartDate, result.EndDate,
		result.InitialCapital, result.FinalCapital, result.TotalReturnPct, result.Sharpe,
		result.Sortino, result.Calmar, result.MaxDrawdownPct, result.WinRate,
		result.ProfitFactor, result.VaR95, result.CVaR95, cfgJSON)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("duplicate backtest: %w", err)
		}
		return fmt.Errorf("insert backtest result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(trade_id, backtest_id, symbol_id, entry_ts, exit_ts, entry_px, exit_px,
			 position_size, trade_type, gross_pnl, net_pnl, return_pct, duration_hours, signal_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`)
	if err != nil {
		return fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err = stmt.ExecContext(ctx, t.TradeID, t.BacktestID, t.Symbol, t.EntryTS, t.ExitTS,
			t.EntryPrice, t.ExitPrice, t.PositionSize, t.TradeType, t.GrossPnL, t.NetPnL,
			t.ReturnPct, t.DurationHrs, t.SignalID)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) Load(ctx context.Context) (persistence.SchedulerStateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row persistence.SchedulerStateRecord
	err := r.db.GetContext(ctx, &row, `
		SELECT state_id, last_run_ts, next_scheduled_run, status, current_run_id, error_message
		FROM scheduler_state WHERE state_id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.SchedulerStateRecord{StateID: 1, Status: "IDLE"}, nil
		}
		return persistence.SchedulerStateRecord{}, fmt.Errorf("load scheduler state: %w", err)
	}
	return row, nil
}

func (r *Repo) Save(ctx context.Context, state persistence.SchedulerStateRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (state_id, last_run_ts, next_scheduled_run, status, current_run_id, error_message)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (state_id) DO UPDATE SET
			last_run_ts = EXCLUDED.last_run_ts,
			next_scheduled_run = EXCLUDED.next_scheduled_run,
			status = EXCLUDED.status,
			current_run_id = EXCLUDED.current_run_id,
			error_message = EXCLUDED.error_message`,
		state.LastRunTS, state.NextScheduledRun, state.Status, state.CurrentRunID, state.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}
