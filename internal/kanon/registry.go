// Package kanon maintains the k-anonymity set bookkeeping: the cached
// per-prefix counts of distinct breach hashes that gate every credential
// check.
package kanon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sizeStore is the slice of the storage contract the registry needs.
type sizeStore interface {
	CountDistinctHashes(ctx context.Context, prefix string, now time.Time) (int, error)
	GetSetSize(ctx context.Context, prefix string) (int, error)
	UpsertSetSize(ctx context.Context, prefix string, size int, updated time.Time) error
}

// Registry tracks anonymity-set sizes per hash prefix.
//
// SizeOf reads the cached size; Recompute re-derives it from breach
// store contents and persists the result. Sizes are only ever produced
// by server-side aggregation. There is deliberately no write path that
// accepts a size from outside this package, so a forged "sufficient
// anonymity" claim has nowhere to enter.
type Registry struct {
	store sizeStore
	now   func() time.Time
	log   *slog.Logger

	// mu guards prefixLocks.
	mu sync.Mutex

	// prefixLocks serializes recomputes per prefix. Two concurrent
	// recomputes of the same prefix would both write correct counts,
	// but interleaved count-then-write pairs could persist the staler
	// of the two; a per-prefix lock makes the write ordering match the
	// count ordering.
	prefixLocks map[string]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the registry logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store sizeStore, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		now:         time.Now,
		prefixLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// SizeOf returns the cached set size for a prefix, 0 if never seen.
// A storage failure propagates: answering from a guess here could turn
// into disclosure against an undersized set.
func (r *Registry) SizeOf(ctx context.Context, prefix string) (int, error) {
	return r.store.GetSetSize(ctx, prefix)
}

// Recompute re-derives the set size for a prefix by counting distinct
// non-expired breach hashes under it, then persists the updated row.
// Rows are created lazily the first time a prefix is recomputed.
func (r *Registry) Recompute(ctx context.Context, prefix string) error {
	lock := r.lockFor(prefix)
	lock.Lock()
	defer lock.Unlock()

	now := r.now()
	size, err := r.store.CountDistinctHashes(ctx, prefix, now)
	if err != nil {
		return err
	}
	if err := r.store.UpsertSetSize(ctx, prefix, size, now); err != nil {
		return err
	}

	r.log.Debug("recomputed anonymity set", "hash_prefix", prefix, "set_size", size)
	return nil
}

// RecomputeAll recomputes every prefix in the set, stopping at the
// first failure so the caller can retry the whole batch. Prefixes
// already recomputed stay correct; recompute is idempotent.
func (r *Registry) RecomputeAll(ctx context.Context, prefixes []string) (int, error) {
	done := 0
	for _, p := range prefixes {
		if err := r.Recompute(ctx, p); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// lockFor returns the mutex serializing recomputes for a prefix.
func (r *Registry) lockFor(prefix string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.prefixLocks[prefix]
	if !ok {
		lock = &sync.Mutex{}
		r.prefixLocks[prefix] = lock
	}
	return lock
}
