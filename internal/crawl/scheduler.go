// Package crawl runs the continuous collection loop. Each configured
// source gets its own worker goroutine, so one slow, throttled, or
// broken source never stalls the others; only the backoff policy is
// shared.
package crawl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/ratelimit"
	"github.com/backgroundcheck/breachmon/internal/source"
	"github.com/backgroundcheck/breachmon/internal/storage"
)

// crawlStore is the storage slice the scheduler needs.
type crawlStore interface {
	InsertRecord(ctx context.Context, r *model.BreachRecord) error
	ListTargetsForPrefix(ctx context.Context, prefix string) ([]model.MonitoringTarget, error)
}

// recomputer is the anonymity-set slice the scheduler needs.
type recomputer interface {
	Recompute(ctx context.Context, prefix string) error
}

// AlertFunc is invoked when a newly ingested record matches a
// monitoring target. Implementations must not block for long; they run
// on the source's worker goroutine.
type AlertFunc func(ctx context.Context, target model.MonitoringTarget, record *model.BreachRecord)

// SourceStatus is a point-in-time view of one source's health.
type SourceStatus struct {
	SourceID            string
	LastSuccess         time.Time
	LastError           string
	ConsecutiveFailures int
	RecordsIngested     int
	Degraded            bool
}

// Scheduler drives all registered source adapters.
type Scheduler struct {
	store     crawlStore
	sets      recomputer
	limiter   ratelimit.Limiter
	retention time.Duration
	prefixLen int
	backoff   Backoff
	alert     AlertFunc
	now       func() time.Time
	log       *slog.Logger

	adapters []source.Adapter

	mu     sync.Mutex
	status map[string]*SourceStatus
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAlertFunc installs the hook called on monitored-prefix matches.
func WithAlertFunc(fn AlertFunc) Option {
	return func(s *Scheduler) {
		s.alert = fn
	}
}

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

// New creates a crawl Scheduler. retention fixes how long ingested
// records live; prefixLen is the anonymity-set prefix length.
func New(store crawlStore, sets recomputer, limiter ratelimit.Limiter, retention time.Duration, prefixLen int, backoff Backoff, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		sets:      sets,
		limiter:   limiter,
		retention: retention,
		prefixLen: prefixLen,
		backoff:   backoff,
		now:       time.Now,
		status:    make(map[string]*SourceStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Register adds a source adapter. Must be called before Run.
func (s *Scheduler) Register(adapter source.Adapter) {
	s.adapters = append(s.adapters, adapter)
	s.mu.Lock()
	s.status[adapter.SourceID()] = &SourceStatus{SourceID: adapter.SourceID()}
	s.mu.Unlock()
}

// Sources returns how many adapters are registered.
func (s *Scheduler) Sources() int {
	return len(s.adapters)
}

// Status returns a snapshot of every source's health.
func (s *Scheduler) Status() []SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	return out
}

// Run starts one worker per registered source and blocks until ctx is
// cancelled. Worker failures are contained: an adapter error degrades
// its own source and triggers backoff, never the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, adapter := range s.adapters {
		g.Go(func() error {
			return s.runSource(ctx, adapter)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runSource(ctx context.Context, adapter source.Adapter) error {
	id := adapter.SourceID()
	attempt := 0

	for {
		if err := s.limiter.Wait(ctx, id); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Shared limiter state unreachable. Back off and retry
			// rather than killing the worker.
			s.recordFailure(id, err, attempt)
			attempt++
			if !s.sleep(ctx, s.backoff.Next(attempt-1)) {
				return ctx.Err()
			}
			continue
		}

		n, err := s.FetchOnce(ctx, adapter)
		switch {
		case err == nil:
			attempt = 0
			s.log.Debug("source pass complete", "source", id, "ingested", n)
		case errors.Is(err, source.ErrEmptyBatch):
			// Nothing on the page this pass. Quiet, not broken.
			attempt = 0
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			s.recordFailure(id, err, attempt)
			attempt++
			s.log.Warn("source degraded",
				"source", id, "consecutive_failures", attempt, "error", err)
			if !s.sleep(ctx, s.backoff.Next(attempt-1)) {
				return ctx.Err()
			}
		}
	}
}

// RunType performs one triggered pass over every source of the given
// type, in parallel. Source failures are isolated: the pass continues
// through the remaining sources and the failures come back joined so
// the caller can report them. The ingested count covers the sources
// that succeeded.
func (s *Scheduler) RunType(ctx context.Context, sourceType model.SourceType) (int, error) {
	var (
		mu       sync.Mutex
		ingested int
		failures []error
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, adapter := range s.adapters {
		if adapter.Type() != sourceType {
			continue
		}
		g.Go(func() error {
			if err := s.limiter.Wait(ctx, adapter.SourceID()); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// Limiter trouble degrades this source, not the pass.
				mu.Lock()
				defer mu.Unlock()
				s.recordFailure(adapter.SourceID(), err, 0)
				failures = append(failures, err)
				return nil
			}
			n, err := s.FetchOnce(ctx, adapter)
			mu.Lock()
			defer mu.Unlock()
			ingested += n
			if err != nil && !errors.Is(err, source.ErrEmptyBatch) {
				s.recordFailure(adapter.SourceID(), err, 0)
				failures = append(failures, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ingested, err
	}
	return ingested, errors.Join(failures...)
}

// FetchOnce performs a single fetch-ingest-recompute pass for one
// adapter. Storage failures abort the pass; they are never swallowed
// into the adapter failure domain.
func (s *Scheduler) FetchOnce(ctx context.Context, adapter source.Adapter) (int, error) {
	batch, err := adapter.FetchBatch(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	ingested := 0
	prefixes := make(map[string]struct{})

	for i := range batch {
		d := &batch[i]
		record := &model.BreachRecord{
			ID:            uuid.NewString(),
			BreachHash:    d.BreachHash,
			DataTypes:     d.DataTypes,
			BreachDate:    d.BreachDate,
			SeverityScore: d.SeverityScore,
			SourceType:    adapter.Type(),
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.retention),
		}
		if err := record.Validate(); err != nil {
			s.log.Warn("dropping invalid disclosure", "source", adapter.SourceID(), "error", err)
			continue
		}
		// A hash shorter than the prefix cannot key an anonymity set.
		if len(record.BreachHash) < s.prefixLen {
			s.log.Warn("dropping disclosure with truncated hash",
				"source", adapter.SourceID(), "hash_length", len(record.BreachHash))
			continue
		}

		err := s.store.InsertRecord(ctx, record)
		switch {
		case errors.Is(err, storage.ErrDuplicateRecord):
			continue
		case err != nil:
			return ingested, err
		}

		ingested++
		prefix := record.BreachHash[:s.prefixLen]
		prefixes[prefix] = struct{}{}
		s.notifyTargets(ctx, prefix, record)
	}

	for prefix := range prefixes {
		if err := s.sets.Recompute(ctx, prefix); err != nil {
			return ingested, err
		}
	}

	s.recordSuccess(adapter.SourceID(), ingested)
	return ingested, nil
}

func (s *Scheduler) notifyTargets(ctx context.Context, prefix string, record *model.BreachRecord) {
	if s.alert == nil {
		return
	}
	targets, err := s.store.ListTargetsForPrefix(ctx, prefix)
	if err != nil {
		s.log.Warn("failed to look up monitoring targets",
			"hash_prefix", prefix, "error", err)
		return
	}
	for _, target := range targets {
		s.alert(ctx, target, record)
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) recordSuccess(id string, ingested int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	if !ok {
		return
	}
	st.LastSuccess = s.now()
	st.LastError = ""
	st.ConsecutiveFailures = 0
	st.RecordsIngested += ingested
	st.Degraded = false
}

func (s *Scheduler) recordFailure(id string, err error, priorAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	if !ok {
		return
	}
	st.LastError = err.Error()
	st.ConsecutiveFailures = priorAttempts + 1
	st.Degraded = true
}
