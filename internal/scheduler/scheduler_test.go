package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

func TestCron_EveryFifteenMinutes(t *testing.T) {
	spec, err := parseCron("*/15 * * * *")
	require.NoError(t, err)

	assert.True(t, spec.matches(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
	assert.True(t, spec.matches(time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)))
	assert.False(t, spec.matches(time.Date(2026, 3, 2, 9, 16, 0, 0, time.UTC)))
}

func TestCron_InvalidExpression(t *testing.T) {
	_, err := parseCron("* * *")
	assert.Error(t, err)
}

func noopFreshness(ctx context.Context) (time.Duration, error) { return 0, nil }

func TestRunOnce_PartialOnMixedResults(t *testing.T) {
	pipeline := func(ctx context.Context, runID, symbol string, at time.Time) (*SymbolResult, error) {
		if symbol == "BAD" {
			return nil, errors.New("boom")
		}
		return &SymbolResult{Signal: &signal.Signal{Symbol: symbol, RunID: runID}}, nil
	}
	symbols := func(ctx context.Context) ([]string, error) { return []string{"ABT", "BAD"}, nil }

	cfg := DefaultConfig()
	cfg.WorkerPoolSize = 2
	s, err := New(cfg, pipeline, symbols, noopFreshness, nil, nil)
	require.NoError(t, err)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunPartial, run.Status)
	assert.Equal(t, 2, run.SymbolsRequested)
	assert.Equal(t, 1, run.SymbolsProcessed)
	assert.Equal(t, 1, run.SignalsGenerated)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, "BAD", run.Errors[0].Symbol)
}

func TestRunOnce_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	pipeline := func(ctx context.Context, runID, symbol string, at time.Time) (*SymbolResult, error) {
		close(started)
		<-release
		return &SymbolResult{}, nil
	}
	symbols := func(ctx context.Context) ([]string, error) { return []string{"ABT"}, nil }

	cfg := DefaultConfig()
	cfg.WorkerPoolSize = 1
	s, err := New(cfg, pipeline, symbols, noopFreshness, nil, nil)
	require.NoError(t, err)

	go func() {
		_, _ = s.RunOnce(context.Background())
	}()
	<-started

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)

	close(release)
}
