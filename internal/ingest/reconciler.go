package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

var extendedSessionLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// inExtendedSession reports whether t falls within the 04:00-20:00 ET
// extended session window (spec §4.B source 3), independent of which
// calendar days are trading days — that filter belongs to the
// regular-hours backtest gate, not to stream eligibility.
func inExtendedSession(t time.Time) bool {
	local := t.In(extendedSessionLoc)
	mins := local.Hour()*60 + local.Minute()
	return mins >= 4*60 && mins < 20*60
}

// Config tunes the reconciler's selection rule.
type Config struct {
	FinalizationLag time.Duration // default 3h
}

func DefaultConfig() Config {
	return Config{FinalizationLag: 3 * time.Hour}
}

// Reconciler implements the per-bar source-selection rule of spec §4.B.
type Reconciler struct {
	cfg        Config
	historical HistoricalSource
	live       LiveSource
	stream     StreamSource
	now        Clock
}

func New(cfg Config, historical HistoricalSource, live LiveSource, stream StreamSource, now Clock) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{cfg: cfg, historical: historical, live: live, stream: stream, now: now}
}

// Select produces the bar to store for (symbol, interval, ts), or
// ok=false when no source currently has it. historicalBar/liveBar are
// the candidates already fetched by the caller for this tick (fetching
// is the caller's concern so the selection rule itself stays pure and
// testable); streamBar is read live from the Stream source here since
// it is push-driven rather than pulled per tick.
func (r *Reconciler) Select(symbol string, interval bar.Interval, ts time.Time, historicalBar, liveBar *bar.Bar) (bar.Bar, bool) {
	now := r.now().UTC()
	age := now.Sub(ts)

	if age >= r.cfg.FinalizationLag {
		if historicalBar == nil {
			return bar.Bar{}, false
		}
		b := *historicalBar
		b.Provisional = false
		return b, true
	}

	if r.stream != nil && r.stream.Connected() && inExtendedSession(now) {
		if sb, ok := r.stream.Latest(symbol, interval); ok {
			sb.Provisional = true
			return sb, true
		}
	}

	if liveBar != nil {
		b := *liveBar
		b.Provisional = true
		return b, true
	}

	return bar.Bar{}, false
}

// Reconcile pulls candidates from Historical and Live for the requested
// window, runs Select bar-by-bar, and upserts the winners into store.
// Stream eligibility is re-evaluated per bar via Select itself.
func (r *Reconciler) Reconcile(ctx context.Context, store bar.Store, symbol string, interval bar.Interval, start, end time.Time) (inserted, updated int, err error) {
	now := r.now().UTC()

	var historicalBars []bar.Bar
	if age := now.Sub(end); age >= r.cfg.FinalizationLag && r.historical != nil {
		historicalBars, err = r.historical.Fetch(ctx, symbol, interval, start, end)
		if err != nil {
			return 0, 0, fmt.Errorf("historical fetch %s %s: %w", symbol, interval, err)
		}
	}
	historicalByTS := make(map[time.Time]bar.Bar, len(historicalBars))
	for _, b := range historicalBars {
		historicalByTS[b.Timestamp] = b
	}

	var liveBars []bar.Bar
	if r.live != nil {
		liveBars, err = r.live.Fetch(ctx, symbol, interval)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("ingest: live fetch failed, continuing with historical/stream only")
		}
	}
	liveByTS := make(map[time.Time]bar.Bar, len(liveBars))
	for _, b := range liveBars {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			liveByTS[b.Timestamp] = b
		}
	}

	seen := make(map[time.Time]struct{}, len(historicalByTS)+len(liveByTS))
	for ts := range historicalByTS {
		seen[ts] = struct{}{}
	}
	for ts := range liveByTS {
		seen[ts] = struct{}{}
	}

	resolved := make([]bar.Bar, 0, len(seen))
	for ts := range seen {
		var hp, lp *bar.Bar
		if hb, ok := historicalByTS[ts]; ok {
			hb := hb
			hp = &hb
		}
		if lb, ok := liveByTS[ts]; ok {
			lb := lb
			lp = &lb
		}
		if b, ok := r.Select(symbol, interval, ts, hp, lp); ok {
			resolved = append(resolved, b)
		}
	}

	return store.Upsert(ctx, symbol, interval, resolved)
}
