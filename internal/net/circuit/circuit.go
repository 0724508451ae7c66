// Package circuit implements a per-source circuit breaker guarding
// calls into the ingestion reconciler's external collaborators (spec
// §4.B, §5); the Backfiller's historical-source fetches are the calls
// routed through it.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/telemetry"
)

var (
	// ErrOpen is returned when the breaker is rejecting calls.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when a guarded call exceeds its deadline.
	ErrTimeout = errors.New("request timeout")
)

// State is one of the three classic breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker instance.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	OpenTimeout      time.Duration // time spent open before probing half-open
	CallTimeout      time.Duration // per-call deadline
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		CallTimeout:      30 * time.Second,
	}
}

// Breaker wraps calls to one external collaborator (one historical
// source host, or the stream source) with open/half-open/closed
// bookkeeping.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openSince time.Time
}

func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Call runs fn if the breaker permits it, applying CallTimeout and
// recording the outcome against the breaker's state machine.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.onFailure()
			return err
		}
		b.onSuccess()
		return nil
	case <-callCtx.Done():
		b.onFailure()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return callCtx.Err()
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openSince) > b.cfg.OpenTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	default: // half-open: allow a probe through
		return true
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openSince = time.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openSince = time.Now()
		b.successes = 0
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Manager owns one Breaker per named source ("historical", "stream",
// or a per-host key), created lazily on first use.
type Manager struct {
	cfg     Config
	metrics *telemetry.Registry

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// SetMetrics attaches a Registry the Manager reports per-source breaker
// state to; nil (the default) disables reporting.
func (m *Manager) SetMetrics(reg *telemetry.Registry) {
	m.metrics = reg
}

func (m *Manager) breaker(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b = NewBreaker(m.cfg)
	m.breakers[name] = b
	return b
}

// Call guards fn with the named breaker.
func (m *Manager) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	b := m.breaker(name)
	err := b.Call(ctx, fn)
	if m.metrics != nil {
		open := 0.0
		if b.State() == StateOpen {
			open = 1.0
		}
		m.metrics.CircuitOpen.WithLabelValues(name).Set(open)
	}
	return err
}

// State reports the named breaker's current state ("closed" if it has
// never been used).
func (m *Manager) State(name string) State {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}
