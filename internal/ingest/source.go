// Package ingest implements the Ingestion Reconciler (spec component B):
// it merges three logical bar sources into the single monotonic series
// the Bar Store persists, and runs the chunked backfill procedure that
// fills gaps against the historical source.
package ingest

import (
	"context"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// HistoricalSource yields canonical, finalized bars. Per spec §4.B it is
// available no sooner than 3h after a bar's close.
type HistoricalSource interface {
	Fetch(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) ([]bar.Bar, error)
	// Host identifies the source for rate-limiting and breaker keys.
	Host() string
}

// LiveSource yields today's bars 15-20 minutes delayed, provisional
// until finalized by a later Historical fetch.
type LiveSource interface {
	Fetch(ctx context.Context, symbol string, interval bar.Interval) ([]bar.Bar, error)
	Host() string
}

// StreamSource yields real-time bar pushes during the extended session.
// Connected is checked on every Reconciler.Select call; implementations own
// their own reconnect-with-backoff loop internally.
type StreamSource interface {
	Connected() bool
	Latest(symbol string, interval bar.Interval) (bar.Bar, bool)
}

// Clock abstracts "now" so selection-rule tests are deterministic.
type Clock func() time.Time
