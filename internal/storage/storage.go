package storage

import (
	"context"
	"time"

	"github.com/backgroundcheck/breachmon/internal/model"
)

// ExpiredRecord is the slim projection returned when selecting records
// eligible for deletion: just enough to delete the row and know which
// anonymity-set prefix must be recomputed afterwards.
type ExpiredRecord struct {
	// ID is the record's unique identifier.
	ID string

	// HashPrefix is the leading substring of the record's breach hash,
	// at the configured prefix length.
	HashPrefix string
}

// AggregateStats is the set-level summary the checker turns into a
// breach probability. Both counts are over distinct breach hashes, so
// the same identifier appearing in five pastes counts once.
type AggregateStats struct {
	// DistinctHashes is the number of distinct non-expired breach
	// hashes under the prefix.
	DistinctHashes int

	// HighSeverityHashes is the subset whose best record meets the
	// severity floor.
	HighSeverityHashes int
}

// BreachStore persists breach records. Records are append-only: there
// is no update path, and every read is bounded by the expiry cutoff
// passed in by the caller so expired rows are invisible everywhere.
type BreachStore interface {
	// InsertRecord appends one breach record. Returns
	// ErrDuplicateRecord if the ID already exists.
	InsertRecord(ctx context.Context, r *model.BreachRecord) error

	// CountDistinctHashes counts distinct non-expired breach hashes
	// whose digest starts with prefix, as of now.
	CountDistinctHashes(ctx context.Context, prefix string, now time.Time) (int, error)

	// Aggregate computes the set-level statistics for a prefix, as of
	// now, with the given severity floor.
	Aggregate(ctx context.Context, prefix string, now time.Time, severityFloor int) (AggregateStats, error)

	// ListExpired returns up to limit records with expires_at <= now
	// (inclusive boundary). Ordered by expiry so repeated chunked calls
	// drain the backlog oldest-first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]ExpiredRecord, error)

	// DeleteRecords removes records by ID and reports how many rows
	// were deleted. Missing IDs are not an error: the retention
	// scheduler may race with itself across restarts.
	DeleteRecords(ctx context.Context, ids []string) (int, error)

	// CountActive counts all non-expired records, for statistics.
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// AnonymitySetStore persists the per-prefix k-anonymity bookkeeping.
// Writes must be last-write-wins upserts so concurrent recomputes of the
// same prefix converge instead of losing updates.
type AnonymitySetStore interface {
	// GetSetSize returns the cached set size for a prefix, or 0 if the
	// prefix has never been seen.
	GetSetSize(ctx context.Context, prefix string) (int, error)

	// UpsertSetSize stores a freshly recomputed set size.
	UpsertSetSize(ctx context.Context, prefix string, size int, updated time.Time) error
}

// MonitoringTargetStore persists watched hash prefixes. Only the
// fixed-length prefix is ever stored, never a full credential hash.
type MonitoringTargetStore interface {
	// AddTarget stores a new monitoring target.
	AddTarget(ctx context.Context, t *model.MonitoringTarget) error

	// RemoveTarget deletes a target by ID. Returns ErrTargetNotFound
	// if no such target exists.
	RemoveTarget(ctx context.Context, id string) error

	// ListTargetsForPrefix returns all targets watching the prefix.
	ListTargetsForPrefix(ctx context.Context, prefix string) ([]model.MonitoringTarget, error)

	// TouchTarget sets last_checked_at on a target.
	TouchTarget(ctx context.Context, id string, checkedAt time.Time) error

	// CountTargets counts all registered targets, for statistics.
	CountTargets(ctx context.Context) (int, error)

	// DeleteOrphanTargets removes targets whose prefix has no
	// non-expired breach coverage and which were last evaluated (or, if
	// never evaluated, created) before the grace cutoff. Returns the
	// number removed.
	DeleteOrphanTargets(ctx context.Context, now time.Time, graceCutoff time.Time) (int, error)
}

// Store is the full persistence contract both backends satisfy.
type Store interface {
	BreachStore
	AnonymitySetStore
	MonitoringTargetStore

	// Ping verifies the backend is reachable. Used by health checks.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
