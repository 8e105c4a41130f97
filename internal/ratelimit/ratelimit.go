// Package ratelimit enforces per-source minimum fetch intervals.
//
// Every source gets its own limiter state keyed by source ID, so a slow
// or throttled source never delays any other. The in-process backend is
// the default; the redis backend shares limiter state across replicas
// when one is configured.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnknownSource is returned when a source ID was never registered.
var ErrUnknownSource = errors.New("ratelimit: unknown source")

// Limiter gates fetch attempts per source.
type Limiter interface {
	// Allow reports whether the source may fetch right now, consuming
	// a slot if so. It never blocks.
	Allow(ctx context.Context, sourceID string) (bool, error)

	// Wait blocks until the source may fetch or ctx is cancelled.
	Wait(ctx context.Context, sourceID string) error
}

// MemoryLimiter keeps one token bucket per source in process memory.
// Burst is fixed at 1 so two fetches against the same source are always
// separated by at least the source's minimum interval.
type MemoryLimiter struct {
	mu      sync.Mutex
	sources map[string]*rate.Limiter
}

// NewMemoryLimiter builds a limiter from per-source minimum intervals.
func NewMemoryLimiter(intervals map[string]time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{sources: make(map[string]*rate.Limiter, len(intervals))}
	for id, interval := range intervals {
		m.sources[id] = rate.NewLimiter(rate.Every(interval), 1)
	}
	return m
}

// Register adds or replaces the limiter for a source. Existing bucket
// state for the source is discarded.
func (m *MemoryLimiter) Register(sourceID string, minInterval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[sourceID] = rate.NewLimiter(rate.Every(minInterval), 1)
}

func (m *MemoryLimiter) limiter(sourceID string) (*rate.Limiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.sources[sourceID]
	if !ok {
		return nil, ErrUnknownSource
	}
	return l, nil
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, sourceID string) (bool, error) {
	l, err := m.limiter(sourceID)
	if err != nil {
		return false, err
	}
	return l.Allow(), nil
}

// Wait implements Limiter.
func (m *MemoryLimiter) Wait(ctx context.Context, sourceID string) error {
	l, err := m.limiter(sourceID)
	if err != nil {
		return err
	}
	return l.Wait(ctx)
}
