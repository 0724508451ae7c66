// Package scheduler implements the Scheduler & Runner (spec component
// H): a cron-driven fan-out over a symbol universe with bounded
// concurrency, freshness checks, and per-run persistence.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

// PipelineFunc runs the D→E→F pipeline for one symbol as of `at` under
// the given run ID (stamped onto any generated signal so it survives
// into generated_signals as the foreign key to this run) and returns a
// signal if one was generated.
type PipelineFunc func(ctx context.Context, runID, symbol string, at time.Time) (*SymbolResult, error)

// Persister writes a run and its signals atomically per spec §5
// ("signal persistence is atomic per run_id"). PersistSignals is
// expected to write every signal for runID in a single transaction
// (or not at all); the scheduler calls it once per run with the full
// batch collected from every symbol's pipeline result.
type Persister interface {
	PersistRun(ctx context.Context, run RunRecord) error
	PersistSignals(ctx context.Context, runID string, signals []*signal.Signal) error
}

// Notifier pushes a run summary to an external collaborator (spec §1
// treats actual notification transports as out of scope; this is the
// interface the scheduler calls against).
type Notifier interface {
	NotifyRun(ctx context.Context, run RunRecord) error
}

// Config carries the scheduler's tunables (spec §4.H).
type Config struct {
	Schedule           string        // cron expression, default "*/15 * * * *"
	IntervalType       string        // label stored on RunRecord, e.g. "5m"
	WorkerPoolSize     int           // default runtime.NumCPU()
	FreshnessThreshold time.Duration // default 5m; the same threshold applies in and out of market hours
	FreshnessGrace     time.Duration // default 5m
	ShutdownDeadline   time.Duration // default 30s
	PIDFilePath        string
}

func DefaultConfig() Config {
	return Config{
		Schedule:           "*/15 * * * *",
		IntervalType:       "5m",
		WorkerPoolSize:     runtime.NumCPU(),
		FreshnessThreshold: 5 * time.Minute,
		FreshnessGrace:     5 * time.Minute,
		ShutdownDeadline:   30 * time.Second,
		PIDFilePath:        "scheduler.pid",
	}
}

// SymbolSource returns the active symbol universe for a tick.
type SymbolSource func(ctx context.Context) ([]string, error)

// FreshnessCheck reports the age of the latest bar for a symbol/interval
// pair; the scheduler waits up to FreshnessGrace for it to clear the
// threshold before proceeding with whatever is available.
type FreshnessCheck func(ctx context.Context) (time.Duration, error)

// Scheduler owns the single scheduler_state writer (spec §5).
type Scheduler struct {
	cfg       Config
	cron      cronSpec
	pipeline  PipelineFunc
	symbols   SymbolSource
	freshness FreshnessCheck
	persister Persister
	notifier  Notifier
	metrics   *telemetry.Registry

	mu           sync.RWMutex
	state        State
	currentRunID string
	lastRun      time.Time
	errorMessage string
}

func New(cfg Config, pipeline PipelineFunc, symbols SymbolSource, freshness FreshnessCheck, persister Persister, notifier Notifier) (*Scheduler, error) {
	spec, err := parseCron(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	return &Scheduler{
		cfg:       cfg,
		cron:      spec,
		pipeline:  pipeline,
		symbols:   symbols,
		freshness: freshness,
		persister: persister,
		notifier:  notifier,
		state:     StateIdle,
	}, nil
}

// SetMetrics attaches a Registry the scheduler reports run outcomes to;
// nil (the default) disables reporting.
func (s *Scheduler) SetMetrics(reg *telemetry.Registry) {
	s.metrics = reg
}

// Status returns a point-in-time snapshot of the scheduler_state
// singleton for readers (spec §5: "readers see eventually-consistent
// snapshots").
func (s *Scheduler) Status() (State, string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.currentRunID, s.lastRun
}

// ErrorMessage returns the message recorded the last time the
// scheduler_state transitioned to ERROR, empty otherwise (spec §3, §6).
func (s *Scheduler) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorMessage
}

func (s *Scheduler) writePID() error {
	if s.cfg.PIDFilePath == "" {
		return nil
	}
	return os.WriteFile(s.cfg.PIDFilePath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) dropPID() {
	if s.cfg.PIDFilePath == "" {
		return
	}
	_ = os.Remove(s.cfg.PIDFilePath)
}

// Start runs the scheduler loop until ctx is cancelled (spec §4.H).
// The one-minute check interval matches cron's minute-granularity
// precision without busy-waiting.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		log.Warn().Err(err).Msg("scheduler: failed to write PID file")
	}
	defer func() {
		s.mu.Lock()
		if s.state != StateError {
			s.state = StateStopped
		}
		s.mu.Unlock()
		s.dropPID()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Info().Str("schedule", s.cfg.Schedule).Msg("scheduler starting")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: graceful shutdown requested")
			return s.gracefulShutdown()
		case now := <-ticker.C:
			if !s.cron.matches(now.UTC()) {
				continue
			}
			if _, err := s.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler: run failed")
			}
		}
	}
}

func (s *Scheduler) gracefulShutdown() error {
	s.mu.RLock()
	running := s.state == StateRunning
	s.mu.RUnlock()
	if !running {
		return nil
	}
	// any in-flight RunOnce call observes context cancellation and
	// returns within ShutdownDeadline; the caller is responsible for
	// deriving ctx with that deadline before invoking Start's parent.
	deadline := time.NewTimer(s.cfg.ShutdownDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline.C:
			err := fmt.Errorf("scheduler: in-flight run did not finish within shutdown deadline")
			s.mu.Lock()
			s.state = StateError
			s.errorMessage = err.Error()
			s.mu.Unlock()
			return err
		case <-ticker.C:
			s.mu.RLock()
			stillRunning := s.state == StateRunning
			s.mu.RUnlock()
			if !stillRunning {
				return nil
			}
		}
	}
}

// RunOnce executes one full tick: transition to RUNNING, fan out over
// the symbol universe with bounded concurrency, persist, and notify
// (spec §4.H steps 1-6).
func (s *Scheduler) RunOnce(ctx context.Context) (RunRecord, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return RunRecord{}, fmt.Errorf("scheduler: run %s already in progress", s.currentRunID)
	}
	runID := uuid.NewString()
	s.state = StateRunning
	s.currentRunID = runID
	s.errorMessage = ""
	s.mu.Unlock()

	start := time.Now()
	runTS := start.UTC()

	var runErr error
	defer func() {
		s.mu.Lock()
		if runErr != nil {
			s.state = StateError
			s.errorMessage = runErr.Error()
		} else {
			s.state = StateIdle
		}
		s.currentRunID = ""
		s.lastRun = runTS
		s.mu.Unlock()
	}()

	fetchStart := time.Now()
	symbols, err := s.symbols(ctx)
	if err != nil {
		runErr = fmt.Errorf("scheduler: loading symbol universe: %w", err)
		return RunRecord{}, runErr
	}

	s.awaitFreshness(ctx)
	dataFetchMs := time.Since(fetchStart).Milliseconds()

	results := s.fanOut(ctx, runID, symbols, runTS)

	run := RunRecord{
		RunID:              runID,
		RunTS:              runTS,
		IntervalType:       s.cfg.IntervalType,
		SymbolsRequested:   len(symbols),
		LatencyPerSymbol:   make(map[string]int64, len(results)),
		LatencyDataFetchMs: dataFetchMs,
	}
	var signals []*signal.Signal
	for _, r := range results {
		run.LatencyPerSymbol[r.Symbol] = r.LatencyMs
		run.LatencyIndicatorCalcMs += r.StageLatencyMs["indicator_calc"]
		run.LatencySignalGenerationMs += r.StageLatencyMs["signal_generation"]
		if r.Err != nil {
			run.Errors = append(run.Errors, SymbolError{Symbol: r.Symbol, Reason: r.Err.Error()})
			continue
		}
		run.SymbolsProcessed++
		if r.Signal != nil {
			run.SignalsGenerated++
			signals = append(signals, r.Signal)
		}
	}
	run.LatencyTotalMs = time.Since(start).Milliseconds()

	switch {
	case len(run.Errors) == 0:
		run.Status = RunSuccess
	case run.SymbolsProcessed > 0:
		run.Status = RunPartial
	default:
		run.Status = RunFailed
	}

	if s.persister != nil {
		// signals persist atomically per run_id (spec §5); if this fails,
		// the signals are dropped for this run rather than partially
		// written (spec §7).
		if err := s.persister.PersistSignals(ctx, runID, signals); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("scheduler: persisting signals failed")
		}
	}
	notifyStart := time.Now()
	if s.notifier != nil {
		if err := s.notifier.NotifyRun(ctx, run); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("scheduler: notification failed")
		}
	}
	run.LatencyNotificationMs = time.Since(notifyStart).Milliseconds()

	if s.persister != nil {
		if err := s.persister.PersistRun(ctx, run); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("scheduler: persisting run failed")
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveRun(string(run.Status), run.SignalsGenerated)
	}

	log.Info().Str("run_id", runID).Str("status", string(run.Status)).
		Int("symbols_processed", run.SymbolsProcessed).
		Int("signals_generated", run.SignalsGenerated).
		Msg("scheduler: run complete")

	return run, nil
}

func (s *Scheduler) awaitFreshness(ctx context.Context) {
	if s.freshness == nil {
		return
	}
	deadline := time.Now().Add(s.cfg.FreshnessGrace)
	for {
		age, err := s.freshness(ctx)
		if err == nil && age <= s.cfg.FreshnessThreshold {
			return
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("age", age).Msg("scheduler: proceeding despite stale data after freshness grace")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// fanOut runs the pipeline across symbols with a bounded worker pool
// (spec §4.H step 4; spec §5 "parallel worker pool over symbols").
func (s *Scheduler) fanOut(ctx context.Context, runID string, symbols []string, at time.Time) []SymbolResult {
	poolSize := s.cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	sem := make(chan struct{}, poolSize)
	results := make([]SymbolResult, len(symbols))
	var wg sync.WaitGroup

	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i] = SymbolResult{Symbol: sym, Err: fmt.Errorf("%w: %v", errs.ErrCancelled, err)}
				return
			}

			symStart := time.Now()
			r, err := s.pipeline(ctx, runID, sym, at)
			latency := time.Since(symStart).Milliseconds()
			if err != nil {
				results[i] = SymbolResult{Symbol: sym, LatencyMs: latency, Err: err}
				return
			}
			if r == nil {
				r = &SymbolResult{Symbol: sym}
			}
			r.Symbol = sym
			r.LatencyMs = latency
			results[i] = *r
		}(i, sym)
	}
	wg.Wait()
	return results
}
