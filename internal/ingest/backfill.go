package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/net/circuit"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/net/ratelimit"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

// Status is one backfill_status lifecycle value (spec §4.B).
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// BackfillResult is the backfill_status record for one (symbol, interval).
type BackfillResult struct {
	Symbol       string
	Interval     bar.Interval
	Status       Status
	BarsStored   int
	ExpectedBars int
	Quality      float64 // BarsStored / ExpectedBars
	ChunkErrors  error   // non-nil multierror of per-chunk failures
}

// BackfillConfig tunes the chunked backfill procedure.
type BackfillConfig struct {
	ChunkSize      time.Duration // window walked per request, default 24h
	MaxAttempts    int           // per-chunk retry budget, default 3
	InitialBackoff time.Duration // default 1s, doubles each retry
}

func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		ChunkSize:      24 * time.Hour,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}
}

// Backfiller runs the gap-filling procedure of spec §4.B against a
// HistoricalSource, guarded by a circuit breaker and rate limiter the
// way the teacher's ingestion paths guard venue REST calls.
type Backfiller struct {
	cfg     BackfillConfig
	source  HistoricalSource
	store   bar.Store
	breaker *circuit.Manager
	limiter *ratelimit.Manager
	now     Clock
	metrics *telemetry.Registry
}

func NewBackfiller(cfg BackfillConfig, source HistoricalSource, store bar.Store, breaker *circuit.Manager, limiter *ratelimit.Manager, now Clock) *Backfiller {
	if now == nil {
		now = time.Now
	}
	return &Backfiller{cfg: cfg, source: source, store: store, breaker: breaker, limiter: limiter, now: now}
}

// SetMetrics attaches a Registry the Backfiller reports backfill
// quality to; nil (the default) disables reporting.
func (b *Backfiller) SetMetrics(reg *telemetry.Registry) {
	b.metrics = reg
}

// Backfill fills (symbol, interval) over [targetStart, targetEnd],
// clipping targetEnd to min(targetEnd, now-1d) per spec §4.B and §8
// scenario 4. Per-chunk failures are collected but do not abort the
// job; the symbol is failed only if every chunk failed.
func (b *Backfiller) Backfill(ctx context.Context, symbol string, interval bar.Interval, targetStart, targetEnd time.Time) BackfillResult {
	now := b.now().UTC()
	effectiveEnd := targetEnd
	if cutoff := now.Add(-24 * time.Hour); effectiveEnd.After(cutoff) {
		effectiveEnd = cutoff
	}
	if !effectiveEnd.After(targetStart) {
		return BackfillResult{Symbol: symbol, Interval: interval, Status: StatusSkipped}
	}

	expected := int(math.Ceil(float64(effectiveEnd.Sub(targetStart)) / float64(interval.Duration())))
	if expected < 0 {
		expected = 0
	}

	var merr *multierror.Error
	stored := 0
	okChunks := 0

	for cursor := targetStart; cursor.Before(effectiveEnd); cursor = cursor.Add(b.cfg.ChunkSize) {
		if err := ctx.Err(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%w: %v", errs.ErrCancelled, err))
			break
		}
		chunkEnd := cursor.Add(b.cfg.ChunkSize)
		if chunkEnd.After(effectiveEnd) {
			chunkEnd = effectiveEnd
		}

		n, err := b.fetchChunkWithRetry(ctx, symbol, interval, cursor, chunkEnd)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("chunk [%s,%s]: %w", cursor, chunkEnd, err))
			continue
		}
		stored += n
		okChunks++
	}

	status := StatusCompleted
	var chunkErr error
	if merr != nil {
		chunkErr = merr.ErrorOrNil()
		if okChunks == 0 {
			status = StatusFailed
		}
	}

	quality := 0.0
	if expected > 0 {
		quality = float64(stored) / float64(expected)
	}

	if b.metrics != nil {
		b.metrics.BackfillQuality.WithLabelValues(symbol, string(interval)).Set(quality)
	}

	return BackfillResult{
		Symbol:       symbol,
		Interval:     interval,
		Status:       status,
		BarsStored:   stored,
		ExpectedBars: expected,
		Quality:      quality,
		ChunkErrors:  chunkErr,
	}
}

// fetchChunkWithRetry retries a single chunk up to MaxAttempts times
// with exponential backoff, guarded by the circuit breaker and rate
// limiter keyed on the source's host (spec §5, §7 TransientIngestionError).
func (b *Backfiller) fetchChunkWithRetry(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) (int, error) {
	host := b.source.Host()
	backoff := b.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx, "historical", host); err != nil {
				return 0, fmt.Errorf("%w: rate limiter wait: %v", errs.ErrTransientIngestion, err)
			}
		}

		var bars []bar.Bar
		callErr := func() error {
			if b.breaker == nil {
				var err error
				bars, err = b.source.Fetch(ctx, symbol, interval, start, end)
				return err
			}
			return b.breaker.Call(ctx, "historical:"+host, func(ctx context.Context) error {
				var err error
				bars, err = b.source.Fetch(ctx, symbol, interval, start, end)
				return err
			})
		}()

		if callErr == nil {
			inserted, updated, err := b.store.Upsert(ctx, symbol, interval, bars)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
			}
			return inserted + updated, nil
		}

		lastErr = callErr
		log.Warn().Err(callErr).Str("symbol", symbol).Int("attempt", attempt).
			Msg("ingest: backfill chunk attempt failed")

		if attempt == b.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return 0, fmt.Errorf("%w: exhausted %d attempts: %v", errs.ErrTransientIngestion, b.cfg.MaxAttempts, lastErr)
}
