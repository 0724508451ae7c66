// Package ratelimit provides per-host token-bucket throttling for the
// ingestion reconciler's external source calls (spec §5: "a token-bucket
// rate limiter matching the external source's quota").
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per host, created lazily.
type Limiter struct {
	rps   float64
	burst int

	mu    sync.RWMutex
	byKey map[string]*rate.Limiter
}

// NewLimiter creates a Limiter issuing rps tokens/sec per host with the
// given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{rps: rps, burst: burst, byKey: make(map[string]*rate.Limiter)}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.byKey[host]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.byKey[host]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.byKey[host] = b
	return b
}

// Allow reports whether a request against host may proceed immediately.
func (l *Limiter) Allow(host string) bool {
	return l.bucket(host).Allow()
}

// Wait blocks until a request against host is permitted or ctx ends.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.bucket(host).Wait(ctx)
}

// Manager owns one Limiter per source name ("historical", "live",
// "stream"), each with its own quota.
type Manager struct {
	mu    sync.RWMutex
	byKey map[string]*Limiter
}

func NewManager() *Manager {
	return &Manager{byKey: make(map[string]*Limiter)}
}

// Configure installs or replaces the limiter for a named source.
func (m *Manager) Configure(source string, rps float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[source] = NewLimiter(rps, burst)
}

// Wait blocks until source/host may proceed. A source with no
// configured limiter proceeds immediately.
func (m *Manager) Wait(ctx context.Context, source, host string) error {
	m.mu.RLock()
	l, ok := m.byKey[source]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return l.Wait(ctx, host)
}
