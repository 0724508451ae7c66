package bar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the Bar Store contract (spec §4.A). Implementations: the
// Postgres-backed internal/persistence/postgres.BarStore and the
// in-memory MemoryStore below (used by tests and the backtester).
type Store interface {
	Get(ctx context.Context, symbol string, interval Interval, start, end time.Time) ([]Bar, error)
	Upsert(ctx context.Context, symbol string, interval Interval, bars []Bar) (inserted, updated int, err error)
	Latest(ctx context.Context, symbol string, interval Interval) (Bar, bool, error)
	Coverage(ctx context.Context, symbol string, interval Interval) (Coverage, error)
	// BaseInterval reports the native interval bars are ingested at;
	// Get synthesizes coarser intervals from it when absent natively.
	BaseInterval() Interval
}

// MemoryStore is an in-process Store, the one the backtester runs
// against and the one tests exercise directly. Writers serialize per
// (symbol, interval) key via a per-key mutex, mirroring the
// double-checked-lock pattern in the teacher's rate limiter.
type MemoryStore struct {
	base Interval

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
	bars  map[Key][]Bar // kept sorted by Timestamp, deduplicated
}

// NewMemoryStore creates a Store whose base interval is base; coarser
// intervals are synthesized from it on Get when not present natively.
func NewMemoryStore(base Interval) *MemoryStore {
	return &MemoryStore{
		base:  base,
		locks: make(map[Key]*sync.Mutex),
		bars:  make(map[Key][]Bar),
	}
}

func (s *MemoryStore) BaseInterval() Interval { return s.base }

func (s *MemoryStore) lockFor(k Key) *sync.Mutex {
	s.mu.Lock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	s.mu.Unlock()
	return l
}

// Upsert inserts or updates bars for (symbol, interval). Idempotent on
// (symbol, interval, timestamp); while is_provisional=true the latest
// write wins, finalized bars are never overwritten by content changes
// (spec §3 lifecycle, §8 bar monotonicity).
func (s *MemoryStore) Upsert(ctx context.Context, symbol string, interval Interval, bars []Bar) (int, int, error) {
	k := Key{Symbol: symbol, Interval: interval}
	lock := s.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	existing := s.bars[k]
	index := make(map[time.Time]int, len(existing))
	for i, b := range existing {
		index[b.Timestamp] = i
	}

	inserted, updated := 0, 0
	for _, raw := range bars {
		if err := ctx.Err(); err != nil {
			return inserted, updated, err
		}
		nb := raw.Normalized()
		if err := nb.Validate(); err != nil {
			continue // InvalidBar: skip, caller already logs upstream
		}
		if i, ok := index[nb.Timestamp]; ok {
			cur := existing[i]
			if equalContent(cur, nb) {
				continue // duplicate, identical content: silently skip
			}
			if !cur.Provisional {
				// finalized bars are replaced only while provisional
				continue
			}
			existing[i] = nb
			updated++
			continue
		}
		existing = append(existing, nb)
		index[nb.Timestamp] = len(existing) - 1
		inserted++
	}

	sort.Slice(existing, func(i, j int) bool { return existing[i].Timestamp.Before(existing[j].Timestamp) })
	s.bars[k] = existing
	return inserted, updated, nil
}

// Get returns bars in [start, end], synthesizing from the base interval
// when interval has no native rows stored.
func (s *MemoryStore) Get(ctx context.Context, symbol string, interval Interval, start, end time.Time) ([]Bar, error) {
	k := Key{Symbol: symbol, Interval: interval}
	lock := s.lockFor(k)
	lock.Lock()
	native := append([]Bar(nil), s.bars[k]...)
	lock.Unlock()

	var series []Bar
	if len(native) > 0 || interval == s.base {
		series = native
	} else {
		baseKey := Key{Symbol: symbol, Interval: s.base}
		block := s.lockFor(baseKey)
		block.Lock()
		baseBars := append([]Bar(nil), s.bars[baseKey]...)
		block.Unlock()
		series = Aggregate(baseBars, interval)
	}

	lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(start) })
	hi := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(end) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]Bar, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

func (s *MemoryStore) Latest(ctx context.Context, symbol string, interval Interval) (Bar, bool, error) {
	all, err := s.Get(ctx, symbol, interval, time.Time{}, time.Now().Add(100*365*24*time.Hour))
	if err != nil || len(all) == 0 {
		return Bar{}, false, err
	}
	return all[len(all)-1], true, nil
}

func (s *MemoryStore) Coverage(ctx context.Context, symbol string, interval Interval) (Coverage, error) {
	all, err := s.Get(ctx, symbol, interval, time.Time{}, time.Now().Add(100*365*24*time.Hour))
	if err != nil || len(all) == 0 {
		return Coverage{}, err
	}
	return Coverage{First: all[0].Timestamp, Last: all[len(all)-1].Timestamp, Count: len(all)}, nil
}
