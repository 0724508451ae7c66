// Package persistence defines the logical data contracts (spec §6)
// for runs, signals, and backtest results. The physical schema is
// adapter-specific; see the postgres and memory subpackages.
package persistence

import (
	"context"
	"time"
)

// SignalRecord is the generated_signals logical row (spec §6).
type SignalRecord struct {
	SignalID             string                 `json:"signal_id" db:"signal_id"`
	RunID                string                 `json:"run_id" db:"run_id"`
	Symbol               string                 `json:"symbol" db:"symbol"`
	SignalTS             time.Time              `json:"signal_ts" db:"signal_ts"`
	SignalType           string                 `json:"signal_type" db:"signal_type"`
	Entry                float64                `json:"entry" db:"entry"`
	Stop                 float64                `json:"stop" db:"stop"`
	Target               float64                `json:"target" db:"target"`
	Confidence           float64                `json:"confidence" db:"confidence"`
	SignalStrength       float64                `json:"signal_strength" db:"signal_strength"`
	TimeframeAlignment   float64                `json:"timeframe_alignment" db:"timeframe_alignment"`
	RRRatio              float64                `json:"rr_ratio" db:"rr_ratio"`
	HTFTrend             string                 `json:"htf_trend" db:"htf_trend"`
	TradingTFState       string                 `json:"trading_tf_state" db:"trading_tf_state"`
	ConfluenceZonesCount int                    `json:"confluence_zones_count" db:"confluence_zones_count"`
	PatternContext       map[string]interface{} `json:"pattern_context" db:"pattern_context"`
	Outcome              *string                `json:"outcome,omitempty" db:"outcome"`
	ActualHigh           *float64               `json:"actual_high,omitempty" db:"actual_high"`
	ActualLow            *float64               `json:"actual_low,omitempty" db:"actual_low"`
	ActualClose          *float64               `json:"actual_close,omitempty" db:"actual_close"`
	PnLPercent           *float64               `json:"pnl_pct,omitempty" db:"pnl_pct"`
	EvaluatedAt          *time.Time             `json:"evaluated_at,omitempty" db:"evaluated_at"`
}

// SignalOutcome is the post-hoc evaluation written back onto a
// generated_signals row once the signal's window has played out.
type SignalOutcome struct {
	Outcome     string    `json:"outcome" db:"outcome"`
	ActualHigh  float64   `json:"actual_high" db:"actual_high"`
	ActualLow   float64   `json:"actual_low" db:"actual_low"`
	ActualClose float64   `json:"actual_close" db:"actual_close"`
	PnLPercent  float64   `json:"pnl_pct" db:"pnl_pct"`
	EvaluatedAt time.Time `json:"evaluated_at" db:"evaluated_at"`
}

// RunRecord is the prediction_runs logical row (spec §6: "latency_*_ms").
type RunRecord struct {
	RunID            string    `json:"run_id" db:"run_id"`
	RunTS            time.Time `json:"run_ts" db:"run_ts"`
	IntervalType     string    `json:"interval_type" db:"interval_type"`
	SymbolsRequested int       `json:"symbols_requested" db:"symbols_requested"`
	SymbolsProcessed int       `json:"symbols_processed" db:"symbols_processed"`
	SignalsGenerated int       `json:"signals_generated" db:"signals_generated"`
	LatencyTotalMs   int64     `json:"latency_total_ms" db:"latency_total_ms"`

	LatencyDataFetchMs        int64 `json:"latency_data_fetch_ms" db:"latency_data_fetch_ms"`
	LatencyIndicatorCalcMs    int64 `json:"latency_indicator_calc_ms" db:"latency_indicator_calc_ms"`
	LatencySignalGenerationMs int64 `json:"latency_signal_generation_ms" db:"latency_signal_generation_ms"`
	LatencyNotificationMs     int64 `json:"latency_notification_ms" db:"latency_notification_ms"`

	Status string   `json:"status" db:"status"`
	Errors []string `json:"errors" db:"errors"`
}

// BacktestResultRecord is the backtest_results logical row (spec §6).
type BacktestResultRecord struct {
	BacktestID     string                 `json:"backtest_id" db:"backtest_id"`
	StrategyName   string                 `json:"strategy_name" db:"strategy_name"`
	Symbol         *string                `json:"symbol_id,omitempty" db:"symbol_id"`
	StartDate      time.Time              `json:"start_date" db:"start_date"`
	EndDate        time.Time              `json:"end_date" db:"end_date"`
	InitialCapital float64                `json:"initial_capital" db:"initial_capital"`
	FinalCapital   float64                `json:"final_capital" db:"final_capital"`
	TotalReturnPct float64                `json:"total_return_pct" db:"total_return_pct"`
	Sharpe         float64                `json:"sharpe" db:"sharpe"`
	Sortino        float64                `json:"sortino" db:"sortino"`
	Calmar         float64                `json:"calmar" db:"calmar"`
	MaxDrawdownPct float64                `json:"max_drawdown_pct" db:"max_drawdown_pct"`
	WinRate        float64                `json:"win_rate" db:"win_rate"`
	ProfitFactor   float64                `json:"profit_factor" db:"profit_factor"`
	VaR95          float64                `json:"var_95" db:"var_95"`
	CVaR95         float64                `json:"cvar_95" db:"cvar_95"`
	TestConfig     map[string]interface{} `json:"test_config" db:"test_config"`
}

// BacktestTradeRecord is the backtest_trades logical row (spec §6).
type BacktestTradeRecord struct {
	TradeID      string    `json:"trade_id" db:"trade_id"`
	BacktestID   string    `json:"backtest_id" db:"backtest_id"`
	Symbol       string    `json:"symbol_id" db:"symbol_id"`
	EntryTS      time.Time `json:"entry_ts" db:"entry_ts"`
	ExitTS       time.Time `json:"exit_ts" db:"exit_ts"`
	EntryPrice   float64   `json:"entry_px" db:"entry_px"`
	ExitPrice    float64   `json:"exit_px" db:"exit_px"`
	PositionSize float64   `json:"position_size" db:"position_size"`
	TradeType    string    `json:"trade_type" db:"trade_type"`
	GrossPnL     float64   `json:"gross_pnl" db:"gross_pnl"`
	NetPnL       float64   `json:"net_pnl" db:"net_pnl"`
	ReturnPct    float64   `json:"return_pct" db:"return_pct"`
	DurationHrs  float64   `json:"duration_hours" db:"duration_hours"`
	SignalID     *string   `json:"signal_id,omitempty" db:"signal_id"`
}

// SchedulerStateRecord is the scheduler_state singleton row (spec §6).
type SchedulerStateRecord struct {
	StateID          int        `json:"state_id" db:"state_id"`
	LastRunTS        *time.Time `json:"last_run_ts,omitempty" db:"last_run_ts"`
	NextScheduledRun *time.Time `json:"next_scheduled_run,omitempty" db:"next_scheduled_run"`
	Status           string     `json:"status" db:"status"`
	CurrentRunID     *string    `json:"current_run_id,omitempty" db:"current_run_id"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
}

// RunsRepo persists prediction_runs rows.
type RunsRepo interface {
	PersistRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
}

// SignalsRepo persists generated_signals rows. PersistSignals writes
// every signal for one run_id in a single transaction (spec §5:
// "signal persistence is atomic per run_id ... all-or-nothing per
// symbol's signal").
type SignalsRepo interface {
	PersistSignals(ctx context.Context, runID string, signals []SignalRecord) error
	ListBySymbol(ctx context.Context, symbol string, from, to time.Time) ([]SignalRecord, error)
	RecordOutcome(ctx context.Context, signalID string, outcome SignalOutcome) error
}

// RunsAndSignalsRepo is satisfied by an adapter that backs both
// prediction_runs and generated_signals (the postgres.Repo and
// memory.Store do), which is what the scheduler needs to persist a run
// and its signal batch together.
type RunsAndSignalsRepo interface {
	RunsRepo
	SignalsRepo
}

// BacktestRepo persists backtest_results and backtest_trades rows.
type BacktestRepo interface {
	SaveResult(ctx context.Context, result BacktestResultRecord, trades []BacktestTradeRecord) error
}

// SchedulerStateRepo persists the scheduler_state singleton.
type SchedulerStateRepo interface {
	Load(ctx context.Context) (SchedulerStateRecord, error)
	Save(ctx context.Context, state SchedulerStateRecord) error
}
