package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.BaseInterval)
	assert.Equal(t, 1, cfg.Engine.Displacement)
	assert.Equal(t, 3*time.Hour, cfg.Ingestion.FinalizationLag)
	assert.Equal(t, 24*time.Hour, cfg.Backfill.ChunkSize)
	assert.Equal(t, 3, cfg.Backfill.MaxAttempts)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Schedule)
	assert.InDelta(t, 0.60, cfg.Signal.MinSignalStrength, 1e-9)
	assert.InDelta(t, 0.65, cfg.Signal.MinConfidence, 1e-9)
	assert.InDelta(t, 100000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.Equal(t, 20, cfg.Backtest.MaxPositions)
}

func TestLoad_OverridesFromYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_interval: 15m
ingestion:
  finalization_lag_minutes: 60
  chunk_hours: 6
scheduler:
  schedule: "*/5 * * * *"
  worker_pool_size: 4
backtest:
  initial_capital: 250000
  max_positions: 10
`))
	require.NoError(t, err)

	assert.Equal(t, "15m", cfg.BaseInterval)
	assert.Equal(t, time.Hour, cfg.Ingestion.FinalizationLag)
	assert.Equal(t, 6*time.Hour, cfg.Backfill.ChunkSize)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.Schedule)

	sched := cfg.SchedulerConfig("15m")
	assert.Equal(t, 4, sched.WorkerPoolSize)
	assert.Equal(t, "15m", sched.IntervalType)

	bt := cfg.BacktestConfig()
	assert.InDelta(t, 250000.0, bt.InitialCapital, 1e-9)
	assert.Equal(t, 10, bt.MaxPositions)
}

func TestLoad_RefusesToStart(t *testing.T) {
	_, err := Load(writeConfig(t, "base_interval: 2m\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = Load(writeConfig(t, "backtest:\n  max_portfolio_risk: 1.5\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = Load(writeConfig(t, ":\tnot yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
}
