package coordinator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

// Memo wraps Analyze with an LRU cache keyed by
// (symbol, HTF, TTF, t, bundle-version) per spec §4.E.
type Memo struct {
	cache   *indicator.Cache
	cfg     Config
	metrics *telemetry.Registry

	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemo(cfg Config, maxEntries int) *Memo {
	return &Memo{
		// bundle version is already part of the key, so a long TTL just
		// bounds memory; staleness is handled by the version, not time.
		cache: indicator.NewCache(24*time.Hour, maxEntries),
		cfg:   cfg,
	}
}

// SetMetrics attaches a Registry the Memo reports its hit ratio to;
// nil (the default) disables reporting.
func (m *Memo) SetMetrics(reg *telemetry.Registry) {
	m.metrics = reg
}

func (m *Memo) Analyze(symbol, htfName, ttfName string, htf, ttf *bundle.Bundle, htfInterval, ttfInterval string, t time.Time, openPosition bool) (AnalysisRecord, error) {
	key := indicator.CacheKey{
		CalcType:    "mtf_analysis",
		Symbol:      symbol,
		Interval:    htfInterval + "/" + ttfInterval,
		Params:      fmt.Sprintf("%v", m.cfg),
		Fingerprint: fmt.Sprintf("%d|%d|%d|%v", htf.Version, ttf.Version, t.UnixNano(), openPosition),
	}
	if v, ok := m.cache.Get(key); ok {
		m.recordHit(true)
		return v.(AnalysisRecord), nil
	}
	m.recordHit(false)
	rec, err := Analyze(symbol, htfName, ttfName, htf, ttf, t, openPosition, m.cfg)
	if err != nil {
		return AnalysisRecord{}, err
	}
	m.cache.Set(key, rec)
	return rec, nil
}

func (m *Memo) recordHit(hit bool) {
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	if m.metrics == nil {
		return
	}
	hits, misses := m.hits.Load(), m.misses.Load()
	if total := hits + misses; total > 0 {
		m.metrics.IndicatorCacheHitRatio.Set(float64(hits) / float64(total))
	}
}
