// Package errs defines the typed error kinds propagated across the
// pipeline (spec §7). Callers match with errors.Is against the sentinel
// values; wrapped context is added with fmt.Errorf("...: %w", errs.X).
package errs

import "errors"

var (
	// ErrInvalidBar is returned by the bar store and indicator kernel
	// when an OHLCV invariant is violated. Never fatal to a pipeline run.
	ErrInvalidBar = errors.New("invalid bar")

	// ErrInvalidIndicatorInput is returned by the indicator kernel when
	// a calculator is called with a malformed or insufficient sequence
	// that is not simply "too few bars" (that is ErrInsufficientData).
	ErrInvalidIndicatorInput = errors.New("invalid indicator input")

	// ErrInsufficientData means a symbol yields no analysis for this
	// tick; it does not fail the run.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrTransientIngestion covers network/rate-limit failures in the
	// ingestion reconciler; retried with backoff up to a budget.
	ErrTransientIngestion = errors.New("transient ingestion error")

	// ErrStorage covers persistence failures; writes are retried with
	// bounded attempts before the per-symbol write is aborted.
	ErrStorage = errors.New("storage error")

	// ErrConfig means the process refuses to start.
	ErrConfig = errors.New("config error")

	// ErrCancelled is returned promptly on context cancellation; any
	// partial work is discarded by the caller.
	ErrCancelled = errors.New("cancelled")
)
