package bundle

import (
	"context"
	"sync"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

// Config carries the indicator parameters a Manager builds bundles with.
type Config struct {
	Displacement int
	Envelope     indicator.EnvelopeConfig
	State        indicator.StateConfig
	Pattern      indicator.PatternConfig
}

func DefaultConfig() Config {
	return Config{
		Displacement: indicator.DefaultDisplacement,
		Envelope:     indicator.DefaultEnvelopeConfig(),
		State:        indicator.DefaultStateConfig(),
		Pattern:      indicator.DefaultPatternConfig(),
	}
}

type key struct {
	symbol   string
	interval bar.Interval
}

// Manager owns the in-memory bundle cache (spec §3, §4.D). Reader-writer
// discipline: Get takes a read lock for the common case; invalidation
// and rebuild take the write lock.
type Manager struct {
	store   bar.Store
	cfg     Config
	metrics *telemetry.Registry

	mu       sync.RWMutex
	bundles  map[key]*Bundle
	versions map[key]int
}

func NewManager(store bar.Store, cfg Config) *Manager {
	return &Manager{
		store:    store,
		cfg:      cfg,
		bundles:  make(map[key]*Bundle),
		versions: make(map[key]int),
	}
}

// SetMetrics attaches a Registry the Manager reports cache hits/misses
// to; nil (the default) disables reporting.
func (m *Manager) SetMetrics(reg *telemetry.Registry) {
	m.metrics = reg
}

// Get returns the cached bundle for (symbol, interval), building it from
// the bar store's [start, end] range if absent. A cached bundle is
// returned as built, whatever range a later call asks for.
func (m *Manager) Get(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) (*Bundle, error) {
	k := key{symbol, interval}

	m.mu.RLock()
	b, ok := m.bundles[k]
	m.mu.RUnlock()
	if ok {
		if m.metrics != nil {
			m.metrics.BundleCacheHits.WithLabelValues(string(interval)).Inc()
		}
		return b, nil
	}
	if m.metrics != nil {
		m.metrics.BundleCacheMisses.WithLabelValues(string(interval)).Inc()
	}

	bars, err := m.store.Get(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bundles[k]; ok {
		return b, nil
	}
	b = Build(symbol, interval, bars, m.cfg.Displacement, m.cfg.Envelope, m.cfg.State, m.cfg.Pattern)
	m.versions[k]++
	b.Version = m.versions[k]
	m.bundles[k] = b
	return b, nil
}

// Invalidate drops the cached bundle for (symbol, interval); the next
// Get rebuilds it from the bar store. Called when new bars arrive for
// that key, and for every coarser interval whose bucket close the new
// base-interval bars fall before (spec §4.D).
func (m *Manager) Invalidate(symbol string, interval bar.Interval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, key{symbol, interval})
}

// InvalidateForBaseBar invalidates (symbol, base) and every coarser
// interval whose open bucket contains baseBarTS, per spec §4.D: a
// coarser bundle must be rebuilt whenever a base-interval bar lands
// inside a bucket that bundle has already materialized.
func (m *Manager) InvalidateForBaseBar(symbol string, base bar.Interval, baseBarTS time.Time, coarser []bar.Interval) {
	m.Invalidate(symbol, base)
	for _, iv := range coarser {
		m.mu.RLock()
		b, ok := m.bundles[key{symbol, iv}]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		bucket := bar.AlignTimestamp(baseBarTS, iv)
		bucketClose := bucket.Add(iv.Duration())
		if len(b.Bars) == 0 || baseBarTS.Before(bucketClose) {
			m.Invalidate(symbol, iv)
		}
	}
}

// Version returns the bundle's version counter (0 if not cached), used
// by the coordinator's memoization key (spec §4.E).
func (m *Manager) Version(symbol string, interval bar.Interval) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bundles[key{symbol, interval}]; ok {
		return b.Version
	}
	return 0
}
