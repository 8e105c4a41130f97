// Package checker implements the credential check operation: the one
// path where a caller-supplied credential meets the breach corpus.
//
// The privacy contract lives here. A check is answered only when the
// credential's hash prefix is shared by at least the configured minimum
// number of distinct breach hashes, and the answer is always a
// set-level aggregate, never a statement about one record. When the set
// is too small the checker refuses, even if an exact match exists.
package checker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/storage"
)

// ErrInvalidCredentialType is returned when the credential type is not
// one of the known kinds. Like an empty credential, this is a local
// input error, rejected immediately and never retried.
var ErrInvalidCredentialType = errors.New("invalid credential type")

// anonymitySizer is the registry slice the checker consults.
type anonymitySizer interface {
	SizeOf(ctx context.Context, prefix string) (int, error)
}

// checkStore is the storage slice the checker reads from.
type checkStore interface {
	Aggregate(ctx context.Context, prefix string, now time.Time, severityFloor int) (storage.AggregateStats, error)
	ListTargetsForPrefix(ctx context.Context, prefix string) ([]model.MonitoringTarget, error)
	TouchTarget(ctx context.Context, id string, checkedAt time.Time) error
}

// Checker answers credential checks under the k-anonymity policy.
// Stateless per call and safe for concurrent use; every collaborator is
// injected at construction.
type Checker struct {
	hasher        *hasher.Hasher
	sets          anonymitySizer
	store         checkStore
	minSetSize    int
	severityFloor int
	now           func() time.Time
	log           *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// WithLogger sets the checker logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Checker) {
		c.log = log
	}
}

// New creates a Checker.
//
// minSetSize is the k-anonymity threshold (inclusive): a set of exactly
// this size is compliant. severityFloor is the score at or above which
// a breach hash counts toward the aggregate probability.
func New(h *hasher.Hasher, sets anonymitySizer, store checkStore, minSetSize, severityFloor int, opts ...Option) *Checker {
	c := &Checker{
		hasher:        h,
		sets:          sets,
		store:         store,
		minSetSize:    minSetSize,
		severityFloor: severityFloor,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Check evaluates a raw credential against the breach corpus.
//
// Returns hasher.ErrEmptyCredential or ErrInvalidCredentialType for bad
// input, and a storage error when the anonymity set size cannot be read
// — under uncertainty the checker refuses rather than guessing. A
// too-small anonymity set is not an error: the refusal is carried in
// the result with PrivacyCompliant false and nothing else populated.
func (c *Checker) Check(ctx context.Context, rawCredential string, credType model.CredentialType) (model.CheckResult, error) {
	if !credType.Valid() {
		return model.CheckResult{}, ErrInvalidCredentialType
	}

	fullHash, prefix, err := c.hasher.Hash(rawCredential)
	if err != nil {
		return model.CheckResult{}, err
	}
	// The full hash is only needed to derive the prefix; nothing below
	// this point may use it, or the answer would stop being set-level.
	_ = fullHash

	setSize, err := c.sets.SizeOf(ctx, prefix)
	if err != nil {
		return model.CheckResult{}, err
	}

	if setSize < c.minSetSize {
		c.log.Debug("check refused", "hash_prefix", prefix, "set_size", setSize)
		return model.CheckResult{
			PrivacyCompliant: false,
			Reason:           model.ReasonInsufficientAnonymity,
		}, nil
	}

	now := c.now()
	stats, err := c.store.Aggregate(ctx, prefix, now, c.severityFloor)
	if err != nil {
		return model.CheckResult{}, err
	}

	probability := 0.0
	if stats.DistinctHashes > 0 {
		probability = float64(stats.HighSeverityHashes) / float64(stats.DistinctHashes)
	}

	c.touchTargets(ctx, prefix, now)

	return model.CheckResult{
		PrivacyCompliant:  true,
		HashPrefix:        prefix,
		SetSize:           setSize,
		BreachProbability: probability,
		LastChecked:       now,
	}, nil
}

// touchTargets updates last_checked_at on every monitoring target
// watching the prefix. These writes are incidental to the check: a
// failure here is logged loudly but does not fail the check, because a
// missed timestamp cannot under-count an anonymity set.
func (c *Checker) touchTargets(ctx context.Context, prefix string, now time.Time) {
	targets, err := c.store.ListTargetsForPrefix(ctx, prefix)
	if err != nil {
		c.log.Warn("failed to list monitoring targets", "hash_prefix", prefix, "error", err)
		return
	}
	for _, t := range targets {
		if err := c.store.TouchTarget(ctx, t.ID, now); err != nil {
			c.log.Warn("failed to touch monitoring target", "target_id", t.ID, "error", err)
		}
	}
}
