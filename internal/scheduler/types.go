package scheduler

import (
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// State is the scheduler_state singleton's status (spec §4.H, §6).
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
	StateError   State = "ERROR"
)

// RunStatus is the terminal outcome of one scheduled run.
type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

// SymbolError records a per-symbol failure inside a run (spec §4.H
// step 6).
type SymbolError struct {
	Symbol string
	Reason string
}

// RunRecord is the prediction_runs logical contract (spec §6: "total
// and per-stage latency (data_fetch, indicator_calc, signal_generation,
// notification)").
type RunRecord struct {
	RunID            string
	RunTS            time.Time
	IntervalType     string
	SymbolsRequested int
	SymbolsProcessed int
	SignalsGenerated int
	LatencyTotalMs   int64
	LatencyPerSymbol map[string]int64

	LatencyDataFetchMs        int64
	LatencyIndicatorCalcMs    int64
	LatencySignalGenerationMs int64
	LatencyNotificationMs     int64

	Status RunStatus
	Errors []SymbolError
}

// SymbolResult is one symbol's outcome from a single tick, fed back
// from the worker pool to the coordinating goroutine.
type SymbolResult struct {
	Symbol    string
	Signal    *signal.Signal
	LatencyMs int64
	Err       error

	// StageLatencyMs breaks LatencyMs down per stage (spec §3); keys are
	// "data_fetch", "indicator_calc", "signal_generation". Optional: a
	// pipeline that doesn't measure per-stage timing may leave this nil,
	// in which case the run's per-stage totals simply omit this symbol.
	StageLatencyMs map[string]int64
}
