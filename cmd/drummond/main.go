// Command drummond is the thin entrypoint for the Drummond Geometry
// platform core. Per spec.md §1, CLI argument handling and
// configuration-file parsing are out of scope for the core itself; this
// binary only wires flags to the packages under internal/ the way the
// teacher's cmd/cryptorun/main.go layers cobra flags over its
// application packages — no business logic lives here.
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/backtest"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/calendar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/config"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/coordinator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/notifier"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence/memory"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/scheduler"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

const appName = "drummond"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	root := &cobra.Command{
		Use:   appName,
		Short: "Drummond Geometry quantitative market-analysis pipeline",
	}
	root.PersistentFlags().String("config", "config.yaml", "path to YAML configuration")
	root.PersistentFlags().StringSlice("symbols", []string{"ABT"}, "symbol universe for this invocation")
	root.PersistentFlags().String("htf", "1h", "higher timeframe interval")
	root.PersistentFlags().String("ttf", "5m", "trading timeframe interval")

	root.AddCommand(newScanCmd())
	root.AddCommand(newSchedulerCmd())
	root.AddCommand(newBacktestCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("drummond: fatal error")
	}
}

func loadConfigOrExit(cmd *cobra.Command) config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("drummond: refusing to start with invalid configuration")
	}
	return cfg
}

func newSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the cron-driven fan-out scheduler (spec component H)",
		RunE:  runScheduler,
	}
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run the symbol-universe pipeline once and exit",
		RunE:  runScan,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	sched, repo, err := buildScheduler(cmd)
	if err != nil {
		return err
	}
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := sched.RunOnce(ctx)
	saveSchedulerState(ctx, repo, sched)
	if err != nil {
		return fmt.Errorf("running scan: %w", err)
	}
	log.Info().
		Str("run_id", run.RunID).
		Str("status", string(run.Status)).
		Int("symbols_processed", run.SymbolsProcessed).
		Int("signals_generated", run.SignalsGenerated).
		Msg("drummond: scan complete")
	return nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, repo, err := buildScheduler(cmd)
	if err != nil {
		return err
	}
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = sched.Start(ctx)
	saveSchedulerState(context.Background(), repo, sched)
	return err
}

// saveSchedulerState snapshots the scheduler_state singleton into its
// row after a run or a shutdown.
func saveSchedulerState(ctx context.Context, repo persistence.SchedulerStateRepo, sched *scheduler.Scheduler) {
	state, runID, lastRun := sched.Status()
	rec := persistence.SchedulerStateRecord{StateID: 1, Status: string(state)}
	if runID != "" {
		rec.CurrentRunID = &runID
	}
	if !lastRun.IsZero() {
		rec.LastRunTS = &lastRun
	}
	if msg := sched.ErrorMessage(); msg != "" {
		rec.ErrorMessage = &msg
	}
	if err := repo.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("drummond: persisting scheduler state failed")
	}
}

// buildScheduler wires the D→E→F pipeline, persistence, and notifier
// into a Scheduler from the command's flags and config file.
func buildScheduler(cmd *cobra.Command) (*scheduler.Scheduler, *memory.Store, error) {
	cfg := loadConfigOrExit(cmd)
	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	htf, _ := cmd.Flags().GetString("htf")
	ttf, _ := cmd.Flags().GetString("ttf")

	reg := telemetry.New(prometheus.NewRegistry())

	store := bar.NewMemoryStore(bar.Interval(cfg.BaseInterval))
	bundles := bundle.NewManager(store, cfg.Engine)
	bundles.SetMetrics(reg)

	memo := coordinator.NewMemo(coordinator.DefaultConfig(), 256)
	memo.SetMetrics(reg)

	repo := memory.New()
	marketData := persistence.MarketDataWriter{Indicators: repo, Analyses: repo}
	outcomes := persistence.OutcomeEvaluator{
		Signals:  repo,
		Bars:     store,
		Interval: bar.Interval(ttf),
		TTL:      cfg.Signal.TTL,
	}

	pipeline := func(ctx context.Context, runID, symbol string, at time.Time) (*scheduler.SymbolResult, error) {
		// resolve earlier signals for this symbol before producing a new
		// one, so generated_signals carries outcomes as bars accumulate.
		if _, err := outcomes.EvaluateSymbol(ctx, symbol, at.Add(-7*24*time.Hour), at); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("drummond: evaluating prior signal outcomes failed")
		}
		stageStart := time.Now()
		htfBundle, err := bundles.Get(ctx, symbol, bar.Interval(htf), at.Add(-90*24*time.Hour), at)
		if err != nil {
			return nil, err
		}
		ttfBundle, err := bundles.Get(ctx, symbol, bar.Interval(ttf), at.Add(-5*24*time.Hour), at)
		if err != nil {
			return nil, err
		}
		indicatorCalcMs := time.Since(stageStart).Milliseconds()
		reg.ObserveStage("indicator_calc", indicatorCalcMs)

		coordStart := time.Now()
		rec, err := memo.Analyze(symbol, htf, ttf, htfBundle, ttfBundle, htf, ttf, at, false)
		if err != nil {
			return nil, err
		}
		for _, b := range []*bundle.Bundle{htfBundle, ttfBundle} {
			if err := marketData.PersistBundle(ctx, b); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("drummond: persisting indicator series failed")
			}
		}
		if err := marketData.PersistAnalysis(ctx, uuid.NewString(), rec); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("drummond: persisting analysis failed")
		}
		sig, ok := signal.Generate(runID, rec, ttfBundle, ttfBundle.Bars, at, cfg.Signal)
		signalGenerationMs := time.Since(coordStart).Milliseconds()
		reg.ObserveStage("signal_generation", signalGenerationMs)

		result := &scheduler.SymbolResult{
			Symbol: symbol,
			StageLatencyMs: map[string]int64{
				"indicator_calc":    indicatorCalcMs,
				"signal_generation": signalGenerationMs,
			},
		}
		if ok {
			result.Signal = sig
		}
		return result, nil
	}

	symbolSource := func(ctx context.Context) ([]string, error) { return symbols, nil }
	freshness := func(ctx context.Context) (time.Duration, error) {
		latest, ok, err := store.Latest(ctx, symbols[0], bar.Interval(ttf))
		if err != nil || !ok {
			return time.Hour, err
		}
		return time.Since(latest.Timestamp), nil
	}

	persister := persistence.SchedulerPersister{Repo: repo}
	sched, err := scheduler.New(cfg.SchedulerConfig(ttf), pipeline, symbolSource, freshness,
		persister, notifier.RunLogger{})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing scheduler: %w", err)
	}
	sched.SetMetrics(reg)
	return sched, repo, nil
}

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the deterministic event-driven backtester (spec component G)",
		RunE:  runBacktest,
	}
	cmd.Flags().String("start", "", "backtest start date (RFC3339)")
	cmd.Flags().String("end", "", "backtest end date (RFC3339)")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrExit(cmd)
	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	htf, _ := cmd.Flags().GetString("htf")
	ttf, _ := cmd.Flags().GetString("ttf")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return fmt.Errorf("parsing --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return fmt.Errorf("parsing --end: %w", err)
	}

	store := bar.NewMemoryStore(bar.Interval(cfg.BaseInterval))

	series := make(map[string]backtest.SymbolSeries, len(symbols))
	for _, sym := range symbols {
		htfBars, err := store.Get(context.Background(), sym, bar.Interval(htf), start, end)
		if err != nil {
			return fmt.Errorf("loading %s higher-timeframe bars: %w", sym, err)
		}
		ttfBars, err := store.Get(context.Background(), sym, bar.Interval(ttf), start, end)
		if err != nil {
			return fmt.Errorf("loading %s trading-timeframe bars: %w", sym, err)
		}
		series[sym] = backtest.SymbolSeries{HTF: htfBars, TTF: ttfBars}
	}

	engine := backtest.NewEngine(uuid.NewString(), htf, ttf)
	engine.Config = cfg.BacktestConfig()
	engine.Calendar = calendar.New()

	result, err := engine.Run(context.Background(), series)
	if err != nil {
		return fmt.Errorf("running backtest: %w", err)
	}

	log.Info().
		Float64("final_capital", result.FinalCapital).
		Float64("total_return_pct", result.Metrics.TotalReturnPct).
		Float64("sharpe", result.Metrics.Sharpe).
		Float64("max_drawdown_pct", result.Metrics.MaxDrawdownPct).
		Int("trades", len(result.Trades)).
		Msg("drummond: backtest complete")
	return nil
}
