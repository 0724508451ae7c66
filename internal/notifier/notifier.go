// Package notifier defines the Notifier contract the scheduler calls
// against (spec §6). Discord/email transports are explicitly out of
// scope (spec §1); this package only carries the interface plus a
// no-op and a logging stand-in so the scheduler has a real collaborator
// to call without building notification transports.
package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/scheduler"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// DeliveryOutcome reports whether a notification attempt completed and
// how long it took; the core never blocks on or retries delivery
// (spec §6: "the core awaits no delivery confirmation for correctness").
type DeliveryOutcome struct {
	Delivered bool
	LatencyMs int64
	Err       error
}

// Notifier is the contract external transports implement.
type Notifier interface {
	Notify(ctx context.Context, sig signal.Signal) (DeliveryOutcome, error)
}

// NoOp discards every signal; useful for backtests and tests where no
// notification surface exists.
type NoOp struct{}

func (NoOp) Notify(ctx context.Context, sig signal.Signal) (DeliveryOutcome, error) {
	return DeliveryOutcome{Delivered: true, LatencyMs: 0}, nil
}

// Logging writes one structured log line per signal instead of pushing
// to an external transport, grounded on the teacher's pervasive
// zerolog component logging.
type Logging struct{}

func (Logging) Notify(ctx context.Context, sig signal.Signal) (DeliveryOutcome, error) {
	start := time.Now()
	log.Info().
		Str("symbol", sig.Symbol).
		Str("signal_type", string(sig.SignalType)).
		Float64("confidence", sig.Confidence).
		Float64("entry", sig.EntryPrice).
		Float64("stop", sig.StopLoss).
		Float64("target", sig.TargetPrice).
		Msg("notifier: signal generated")
	return DeliveryOutcome{Delivered: true, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// RunLogger implements scheduler.Notifier, logging a run summary line.
// Per-signal notification happens separately through Notifier.Notify as
// each symbol's pipeline produces a signal; this only covers the
// run-level summary the scheduler emits at the end of a tick.
type RunLogger struct{}

func (RunLogger) NotifyRun(ctx context.Context, run scheduler.RunRecord) error {
	log.Info().
		Str("run_id", run.RunID).
		Str("status", string(run.Status)).
		Int("symbols_processed", run.SymbolsProcessed).
		Int("signals_generated", run.SignalsGenerated).
		Int64("latency_total_ms", run.LatencyTotalMs).
		Msg("notifier: run summary")
	return nil
}
