// Package config loads the platform's YAML configuration, mirroring
// the teacher's internal/config/guards.go load-then-default-then-validate
// shape: a typed struct per component, defaults applied after unmarshal,
// ConfigError on anything malformed (spec §7 ConfigError: "refuses to
// start").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/backtest"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/ingest"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/scheduler"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// Config is the root of the platform's YAML configuration file.
type Config struct {
	BaseInterval string `yaml:"base_interval"`

	Engine      bundle.Config         `yaml:"-"`
	EngineRaw   engineConfig          `yaml:"engine"`
	Ingestion   ingest.Config         `yaml:"-"`
	Backfill    ingest.BackfillConfig `yaml:"-"`
	IngestRaw   ingestConfig          `yaml:"ingestion"`
	Coordinator coordinatorConfig     `yaml:"coordinator"`
	Signal      signal.Config         `yaml:"signal"`
	Scheduler   schedulerConfig       `yaml:"scheduler"`
	Backtest    backtestConfig        `yaml:"backtest"`
}

type engineConfig struct {
	Displacement int `yaml:"displacement"`
}

type ingestConfig struct {
	FinalizationLagMinutes int     `yaml:"finalization_lag_minutes"`
	ChunkHours             int     `yaml:"chunk_hours"`
	MaxAttempts            int     `yaml:"max_attempts"`
	HistoricalRPS          float64 `yaml:"historical_rps"`
	HistoricalBurst        int     `yaml:"historical_burst"`
}

type coordinatorConfig struct {
	ClusteringTolerancePercent float64 `yaml:"clustering_tolerance_percent"`
	MemoCacheSize              int     `yaml:"memo_cache_size"`
}

type schedulerConfig struct {
	Schedule               string `yaml:"schedule"`
	WorkerPoolSize         int    `yaml:"worker_pool_size"`
	FreshnessMarketMinutes int    `yaml:"freshness_market_minutes"`
	FreshnessOtherMinutes  int    `yaml:"freshness_other_minutes"`
	FreshnessGraceMinutes  int    `yaml:"freshness_grace_minutes"`
	ShutdownDeadlineSecs   int    `yaml:"shutdown_deadline_seconds"`
	PIDFilePath            string `yaml:"pid_file_path"`
}

type backtestConfig struct {
	InitialCapital   float64 `yaml:"initial_capital"`
	MaxPositions     int     `yaml:"max_positions"`
	MaxPortfolioRisk float64 `yaml:"max_portfolio_risk"`
	PerTradeRisk     float64 `yaml:"per_trade_risk"`
	SlippageBps      float64 `yaml:"slippage_bps"`
	CommissionBps    float64 `yaml:"commission_bps"`
	RegularHoursOnly bool    `yaml:"regular_hours_only"`
}

// Load reads, unmarshals, defaults, and validates the YAML config at
// path. Any failure is wrapped in errs.ErrConfig so the caller refuses
// to start rather than running with partial configuration.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", errs.ErrConfig, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", errs.ErrConfig, path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseInterval == "" {
		c.BaseInterval = string(bar.Interval5m)
	}

	if c.EngineRaw.Displacement <= 0 {
		c.EngineRaw.Displacement = 1
	}
	c.Engine = bundle.DefaultConfig()
	c.Engine.Displacement = c.EngineRaw.Displacement

	if c.IngestRaw.FinalizationLagMinutes <= 0 {
		c.IngestRaw.FinalizationLagMinutes = 180
	}
	if c.IngestRaw.ChunkHours <= 0 {
		c.IngestRaw.ChunkHours = 24
	}
	if c.IngestRaw.MaxAttempts <= 0 {
		c.IngestRaw.MaxAttempts = 3
	}
	if c.IngestRaw.HistoricalRPS <= 0 {
		c.IngestRaw.HistoricalRPS = 5
	}
	if c.IngestRaw.HistoricalBurst <= 0 {
		c.IngestRaw.HistoricalBurst = 10
	}
	c.Ingestion = ingest.Config{FinalizationLag: time.Duration(c.IngestRaw.FinalizationLagMinutes) * time.Minute}
	c.Backfill = ingest.BackfillConfig{
		ChunkSize:      time.Duration(c.IngestRaw.ChunkHours) * time.Hour,
		MaxAttempts:    c.IngestRaw.MaxAttempts,
		InitialBackoff: time.Second,
	}

	if c.Coordinator.ClusteringTolerancePercent <= 0 {
		c.Coordinator.ClusteringTolerancePercent = 0.5
	}
	if c.Coordinator.MemoCacheSize <= 0 {
		c.Coordinator.MemoCacheSize = 512
	}

	zero := signal.Config{}
	if c.Signal == zero {
		c.Signal = signal.DefaultConfig()
	}

	if c.Scheduler.Schedule == "" {
		c.Scheduler.Schedule = "*/15 * * * *"
	}
	if c.Scheduler.WorkerPoolSize <= 0 {
		c.Scheduler.WorkerPoolSize = 0 // scheduler.DefaultConfig() fills in runtime.NumCPU()
	}
	if c.Scheduler.FreshnessMarketMinutes <= 0 {
		c.Scheduler.FreshnessMarketMinutes = 5
	}
	if c.Scheduler.FreshnessOtherMinutes <= 0 {
		c.Scheduler.FreshnessOtherMinutes = 60
	}
	if c.Scheduler.FreshnessGraceMinutes <= 0 {
		c.Scheduler.FreshnessGraceMinutes = 5
	}
	if c.Scheduler.ShutdownDeadlineSecs <= 0 {
		c.Scheduler.ShutdownDeadlineSecs = 30
	}
	if c.Scheduler.PIDFilePath == "" {
		c.Scheduler.PIDFilePath = "scheduler.pid"
	}

	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = 100000
	}
	if c.Backtest.MaxPositions <= 0 {
		c.Backtest.MaxPositions = 20
	}
	if c.Backtest.MaxPortfolioRisk <= 0 {
		c.Backtest.MaxPortfolioRisk = 0.10
	}
	if c.Backtest.PerTradeRisk <= 0 {
		c.Backtest.PerTradeRisk = 0.02
	}
	if c.Backtest.SlippageBps <= 0 {
		c.Backtest.SlippageBps = 2
	}
}

func (c *Config) validate() error {
	if !bar.Interval(c.BaseInterval).Valid() {
		return fmt.Errorf("base_interval %q is not one of the declared intervals", c.BaseInterval)
	}
	if c.Backtest.MaxPortfolioRisk <= 0 || c.Backtest.MaxPortfolioRisk > 1 {
		return fmt.Errorf("backtest.max_portfolio_risk must be in (0, 1], got %v", c.Backtest.MaxPortfolioRisk)
	}
	if c.Backtest.PerTradeRisk <= 0 || c.Backtest.PerTradeRisk > 1 {
		return fmt.Errorf("backtest.per_trade_risk must be in (0, 1], got %v", c.Backtest.PerTradeRisk)
	}
	if c.Coordinator.ClusteringTolerancePercent <= 0 {
		return fmt.Errorf("coordinator.clustering_tolerance_percent must be positive")
	}
	return nil
}

// SchedulerConfig builds a scheduler.Config from the loaded YAML.
func (c Config) SchedulerConfig(intervalType string) scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.Schedule = c.Scheduler.Schedule
	cfg.IntervalType = intervalType
	if c.Scheduler.WorkerPoolSize > 0 {
		cfg.WorkerPoolSize = c.Scheduler.WorkerPoolSize
	}
	cfg.FreshnessThreshold = time.Duration(c.Scheduler.FreshnessMarketMinutes) * time.Minute
	cfg.FreshnessGrace = time.Duration(c.Scheduler.FreshnessGraceMinutes) * time.Minute
	cfg.ShutdownDeadline = time.Duration(c.Scheduler.ShutdownDeadlineSecs) * time.Second
	cfg.PIDFilePath = c.Scheduler.PIDFilePath
	return cfg
}

// BacktestConfig builds a backtest.Config from the loaded YAML's
// backtest section.
func (c Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital:   c.Backtest.InitialCapital,
		MaxPositions:     c.Backtest.MaxPositions,
		MaxPortfolioRisk: c.Backtest.MaxPortfolioRisk,
		PerTradeRisk:     c.Backtest.PerTradeRisk,
		SlippageBps:      c.Backtest.SlippageBps,
		CommissionBps:    c.Backtest.CommissionBps,
		RegularHoursOnly: c.Backtest.RegularHoursOnly,
	}
}
