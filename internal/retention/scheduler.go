// Package retention enforces the bounded storage window: expired breach
// records are deleted, the anonymity sets they counted toward are
// recomputed, and monitoring targets left without coverage are removed
// after a grace period.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/storage"
)

// retentionStore is the storage slice the scheduler needs.
type retentionStore interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]storage.ExpiredRecord, error)
	DeleteRecords(ctx context.Context, ids []string) (int, error)
	DeleteOrphanTargets(ctx context.Context, now time.Time, graceCutoff time.Time) (int, error)
}

// recomputer is the anonymity-set slice the scheduler needs.
type recomputer interface {
	Recompute(ctx context.Context, prefix string) error
}

// Scheduler runs the retention cleanup, either once via Cleanup or
// periodically via Run.
//
// Deletion happens in bounded chunks so the scheduler never holds a
// long-running statement against the whole store while the check path
// is serving reads.
type Scheduler struct {
	store     retentionStore
	sets      recomputer
	chunkSize int
	grace     time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu      sync.Mutex
	lastRun time.Time

	// pending holds prefixes whose recompute failed in an earlier run.
	// Deletion is not transactional with recompute, so a failure after
	// step 2 would otherwise leave set sizes counting deleted records.
	// Carrying the prefixes forward makes the next run retry them
	// before anything else.
	pending map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithInterval sets the periodic run interval used by Run.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// New creates a retention Scheduler. chunkSize bounds each delete
// statement; grace is how long an uncovered monitoring target survives.
func New(store retentionStore, sets recomputer, chunkSize int, grace time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		sets:      sets,
		chunkSize: chunkSize,
		grace:     grace,
		interval:  time.Hour,
		now:       time.Now,
		pending:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Cleanup performs one retention pass:
//
//  1. select expired records (expires_at <= now, inclusive) in chunks
//  2. delete them
//  3. recompute the anonymity set of every touched prefix
//  4. remove orphaned monitoring targets past the grace period
//
// The operation is idempotent: a second run with no new expirations is
// a no-op. If any recompute fails the whole run is reported as failed;
// the affected prefixes are retried first on the next invocation so set
// sizes never keep counting deleted records.
func (s *Scheduler) Cleanup(ctx context.Context) (model.CleanupSummary, error) {
	started := s.now()
	summary := model.CleanupSummary{StartedAt: started}

	// Prefixes touched this run, seeded with leftovers from any
	// previously failed run.
	touched := make(map[string]struct{})
	s.mu.Lock()
	for p := range s.pending {
		touched[p] = struct{}{}
	}
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		expired, err := s.store.ListExpired(ctx, started, s.chunkSize)
		if err != nil {
			return summary, err
		}
		if len(expired) == 0 {
			break
		}

		ids := make([]string, len(expired))
		for i, r := range expired {
			ids[i] = r.ID
			touched[r.HashPrefix] = struct{}{}
		}

		n, err := s.store.DeleteRecords(ctx, ids)
		if err != nil {
			// Records may be partially gone; remember the prefixes so
			// the next run recomputes them regardless.
			s.rememberPending(touched)
			return summary, err
		}
		summary.RecordsRemoved += n
	}

	for prefix := range touched {
		if err := s.sets.Recompute(ctx, prefix); err != nil {
			s.rememberPending(touched)
			s.log.Error("cleanup failed during recompute",
				"hash_prefix", prefix, "error", err)
			return summary, err
		}
		summary.PrefixesRecomputed++
		s.forgetPending(prefix)
	}

	orphans, err := s.store.DeleteOrphanTargets(ctx, started, started.Add(-s.grace))
	if err != nil {
		return summary, err
	}
	summary.OrphansRemoved = orphans
	summary.FinishedAt = s.now()

	s.mu.Lock()
	s.lastRun = summary.FinishedAt
	s.mu.Unlock()

	s.log.Info("retention cleanup finished",
		"records_removed", summary.RecordsRemoved,
		"prefixes_recomputed", summary.PrefixesRecomputed,
		"orphans_removed", summary.OrphansRemoved,
	)
	return summary, nil
}

// Run executes Cleanup on the configured interval until ctx is
// cancelled. A failed run is logged and retried wholesale on the next
// tick; the error never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil {
				s.log.Error("retention cleanup failed", "error", err)
			}
		}
	}
}

// LastCleanup returns when the last successful cleanup finished, zero
// if none has completed yet.
func (s *Scheduler) LastCleanup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) rememberPending(prefixes map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range prefixes {
		s.pending[p] = struct{}{}
	}
}

func (s *Scheduler) forgetPending(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, prefix)
}
