package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/kanon"
	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/storage/sqlite"
)

const testGrace = 30 * 24 * time.Hour

type testEnv struct {
	store *sqlite.Store
	sets  *kanon.Registry
	now   time.Time
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	h := hasher.New()
	store, err := sqlite.Open(t.TempDir(), h.PrefixLength(), sqlite.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	// Both clocks read e.now so a test can advance time between
	// seeding and the cleanup pass.
	e := &testEnv{store: store, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e.sets = kanon.NewRegistry(store, kanon.WithClock(func() time.Time { return e.now }))
	return e
}

func (e *testEnv) scheduler(chunkSize int) *Scheduler {
	return New(e.store, e.sets, chunkSize, testGrace,
		WithClock(func() time.Time { return e.now }))
}

// seed inserts n records under prefix with the given expiry and
// recomputes the set so the registry reflects the pre-cleanup state.
func (e *testEnv) seed(t *testing.T, prefix string, n int, expiresAt time.Time) {
	t.Helper()

	ctx := context.Background()
	for i := range n {
		r := &model.BreachRecord{
			ID:            fmt.Sprintf("%s-%d-%d", prefix, expiresAt.Unix(), i),
			BreachHash:    fmt.Sprintf("%s%054d", prefix, expiresAt.Unix()+int64(i)),
			DataTypes:     []string{"email"},
			SeverityScore: 5,
			SourceType:    model.SourcePasteSite,
			CreatedAt:     e.now.Add(-48 * time.Hour),
			ExpiresAt:     expiresAt,
		}
		if err := e.store.InsertRecord(ctx, r); err != nil {
			t.Fatalf("failed to insert record: %v", err)
		}
	}
	if err := e.sets.Recompute(ctx, prefix); err != nil {
		t.Fatalf("failed to recompute: %v", err)
	}
}

func TestCleanupRemovesExpiredAndRecomputes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	const prefix = "aaaa111122"
	env.seed(t, prefix, 4, env.now.Add(24*time.Hour)) // stays live
	env.seed(t, prefix, 1, env.now.Add(time.Hour))    // expires before the pass

	env.now = env.now.Add(2 * time.Hour)

	before, err := env.sets.SizeOf(ctx, prefix)
	if err != nil {
		t.Fatalf("failed to read set size: %v", err)
	}
	if before != 5 {
		t.Fatalf("expected set size 5 before cleanup, got %d", before)
	}

	summary, err := env.scheduler(100).Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if summary.RecordsRemoved != 1 {
		t.Errorf("expected 1 record removed, got %d", summary.RecordsRemoved)
	}
	if summary.PrefixesRecomputed != 1 {
		t.Errorf("expected 1 prefix recomputed, got %d", summary.PrefixesRecomputed)
	}

	after, err := env.sets.SizeOf(ctx, prefix)
	if err != nil {
		t.Fatalf("failed to read set size: %v", err)
	}
	if after != before-1 {
		t.Errorf("expected set size %d after cleanup, got %d", before-1, after)
	}
}

func TestCleanupInclusiveExpiryBoundary(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	// expires_at exactly equal to now is eligible for deletion.
	env.seed(t, "bbbb222233", 1, env.now)

	summary, err := env.scheduler(100).Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if summary.RecordsRemoved != 1 {
		t.Errorf("expected boundary record removed, got %d", summary.RecordsRemoved)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	env.seed(t, "cccc333344", 3, env.now.Add(-time.Hour))

	sched := env.scheduler(100)
	first, err := sched.Cleanup(ctx)
	if err != nil {
		t.Fatalf("first cleanup failed: %v", err)
	}
	if first.RecordsRemoved != 3 {
		t.Fatalf("expected 3 records removed, got %d", first.RecordsRemoved)
	}

	second, err := sched.Cleanup(ctx)
	if err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	if second.RecordsRemoved != 0 || second.PrefixesRecomputed != 0 || second.OrphansRemoved != 0 {
		t.Errorf("expected no-op second run, got %+v", second)
	}
}

func TestCleanupChunksLargeBacklogs(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	env.seed(t, "dddd444455", 7, env.now.Add(-time.Hour))

	summary, err := env.scheduler(2).Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if summary.RecordsRemoved != 7 {
		t.Errorf("expected 7 records removed across chunks, got %d", summary.RecordsRemoved)
	}
	if summary.PrefixesRecomputed != 1 {
		t.Errorf("expected single prefix recomputed once, got %d", summary.PrefixesRecomputed)
	}
}

func TestCleanupRemovesOrphanTargets(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	// Covered target: live records share its prefix.
	env.seed(t, "eeee555566", 2, env.now.Add(24*time.Hour))
	covered := &model.MonitoringTarget{
		ID:                   "covered",
		CredentialHashPrefix: "eeee555566",
		CredentialType:       model.CredentialEmail,
		AlertConfig:          model.AlertConfig{Destination: "log"},
		CreatedAt:            env.now.Add(-60 * 24 * time.Hour),
	}
	if err := env.store.AddTarget(ctx, covered); err != nil {
		t.Fatalf("failed to add target: %v", err)
	}

	// Orphan past grace: no records at all, created long ago.
	orphan := &model.MonitoringTarget{
		ID:                   "orphan",
		CredentialHashPrefix: "ffff666677",
		CredentialType:       model.CredentialEmail,
		AlertConfig:          model.AlertConfig{Destination: "log"},
		CreatedAt:            env.now.Add(-60 * 24 * time.Hour),
	}
	if err := env.store.AddTarget(ctx, orphan); err != nil {
		t.Fatalf("failed to add target: %v", err)
	}

	// Uncovered but inside the grace period: kept.
	recent := &model.MonitoringTarget{
		ID:                   "recent",
		CredentialHashPrefix: "abab777788",
		CredentialType:       model.CredentialEmail,
		AlertConfig:          model.AlertConfig{Destination: "log"},
		CreatedAt:            env.now.Add(-24 * time.Hour),
	}
	if err := env.store.AddTarget(ctx, recent); err != nil {
		t.Fatalf("failed to add target: %v", err)
	}

	summary, err := env.scheduler(100).Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if summary.OrphansRemoved != 1 {
		t.Errorf("expected 1 orphan removed, got %d", summary.OrphansRemoved)
	}

	remaining, err := env.store.CountTargets(ctx)
	if err != nil {
		t.Fatalf("failed to count targets: %v", err)
	}
	if remaining != 2 {
		t.Errorf("expected 2 targets remaining, got %d", remaining)
	}
}

// failingSets fails the first recompute calls, then succeeds.
type failingSets struct {
	inner     *kanon.Registry
	failUntil int
	calls     int
}

func (f *failingSets) Recompute(ctx context.Context, prefix string) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("recompute backend down")
	}
	return f.inner.Recompute(ctx, prefix)
}

func TestCleanupRetriesRecomputeOnNextRun(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	const prefix = "cdcd888899"
	env.seed(t, prefix, 2, env.now.Add(24*time.Hour))
	env.seed(t, prefix, 1, env.now.Add(-time.Hour))

	sets := &failingSets{inner: env.sets, failUntil: 1}
	sched := New(env.store, sets, 100, testGrace,
		WithClock(func() time.Time { return env.now }))

	if _, err := sched.Cleanup(ctx); err == nil {
		t.Fatal("expected first cleanup to fail")
	}

	// Records are already deleted, but the stale set size must still be
	// corrected by the retried run.
	summary, err := sched.Cleanup(ctx)
	if err != nil {
		t.Fatalf("retried cleanup failed: %v", err)
	}
	if summary.PrefixesRecomputed != 1 {
		t.Errorf("expected pending prefix recomputed, got %d", summary.PrefixesRecomputed)
	}

	size, err := env.sets.SizeOf(ctx, prefix)
	if err != nil {
		t.Fatalf("failed to read set size: %v", err)
	}
	if size != 2 {
		t.Errorf("expected set size 2 after retry, got %d", size)
	}
}

func TestLastCleanupUpdatesOnSuccess(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	sched := env.scheduler(100)

	if !sched.LastCleanup().IsZero() {
		t.Fatal("expected zero last cleanup before any run")
	}
	if _, err := sched.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !sched.LastCleanup().Equal(env.now) {
		t.Errorf("expected last cleanup %v, got %v", env.now, sched.LastCleanup())
	}
}
