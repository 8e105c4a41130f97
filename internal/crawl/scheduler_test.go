package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/kanon"
	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/ratelimit"
	"github.com/backgroundcheck/breachmon/internal/source"
	"github.com/backgroundcheck/breachmon/internal/storage/sqlite"
)

const testRetention = 90 * 24 * time.Hour

// fakeAdapter feeds canned batches to the scheduler.
type fakeAdapter struct {
	id       string
	typ      model.SourceType
	interval time.Duration
	fetch    func(ctx context.Context) ([]model.RawDisclosure, error)
}

func (f *fakeAdapter) SourceID() string            { return f.id }
func (f *fakeAdapter) Type() model.SourceType      { return f.typ }
func (f *fakeAdapter) MinInterval() time.Duration  { return f.interval }
func (f *fakeAdapter) FetchBatch(ctx context.Context) ([]model.RawDisclosure, error) {
	return f.fetch(ctx)
}

type testEnv struct {
	store  *sqlite.Store
	sets   *kanon.Registry
	hasher *hasher.Hasher
	now    time.Time
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	h := hasher.New()
	store, err := sqlite.Open(t.TempDir(), h.PrefixLength(), sqlite.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sets := kanon.NewRegistry(store, kanon.WithClock(func() time.Time { return now }))

	return &testEnv{store: store, sets: sets, hasher: h, now: now}
}

func (e *testEnv) scheduler(limiterIntervals map[string]time.Duration, opts ...Option) *Scheduler {
	opts = append(opts, WithClock(func() time.Time { return e.now }))
	return New(e.store, e.sets, ratelimit.NewMemoryLimiter(limiterIntervals),
		testRetention, e.hasher.PrefixLength(), Backoff{Initial: 10 * time.Millisecond, Multiplier: 2.0, Cap: time.Second}, opts...)
}

func (e *testEnv) disclosure(t *testing.T, credential string, severity int) model.RawDisclosure {
	t.Helper()

	fullHash, _, err := e.hasher.Hash(credential)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	return model.RawDisclosure{
		BreachHash:    fullHash,
		DataTypes:     []string{"email"},
		SeverityScore: severity,
	}
}

func TestFetchOnceIngestsAndRecomputes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	batch := []model.RawDisclosure{
		env.disclosure(t, "first@example.com", 5),
		env.disclosure(t, "second@example.com", 8),
	}
	adapter := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return batch, nil
		},
	}

	sched := env.scheduler(map[string]time.Duration{"pastebin": time.Millisecond})
	sched.Register(adapter)

	n, err := sched.FetchOnce(ctx, adapter)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records ingested, got %d", n)
	}

	// Each hash got its own prefix and set size 1.
	prefix := batch[0].BreachHash[:env.hasher.PrefixLength()]
	size, err := env.sets.SizeOf(ctx, prefix)
	if err != nil {
		t.Fatalf("failed to read set size: %v", err)
	}
	if size != 1 {
		t.Errorf("expected set size 1, got %d", size)
	}

	// Retention window applies from ingestion time.
	active, err := env.store.CountActive(ctx, env.now)
	if err != nil {
		t.Fatalf("failed to count active: %v", err)
	}
	if active != 2 {
		t.Errorf("expected 2 active records, got %d", active)
	}
	expiredBy, err := env.store.CountActive(ctx, env.now.Add(testRetention))
	if err != nil {
		t.Fatalf("failed to count active: %v", err)
	}
	if expiredBy != 0 {
		t.Errorf("expected records expired at window boundary, got %d active", expiredBy)
	}
}

func TestFetchOnceSkipsDuplicatesAndInvalid(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	valid := env.disclosure(t, "victim@example.com", 5)
	invalid := env.disclosure(t, "broken@example.com", 0) // severity out of range
	adapter := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return []model.RawDisclosure{valid, invalid}, nil
		},
	}

	sched := env.scheduler(map[string]time.Duration{"pastebin": time.Millisecond})
	sched.Register(adapter)

	n, err := sched.FetchOnce(ctx, adapter)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected invalid disclosure dropped, got %d ingested", n)
	}

	// The same batch again: the valid hash is now a duplicate.
	n, err = sched.FetchOnce(ctx, adapter)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected duplicate skipped, got %d ingested", n)
	}
}

func TestFetchOnceDropsTruncatedHashes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	// A hash shorter than the prefix length must be dropped, not panic
	// the pass. The valid disclosure in the same batch still lands.
	short := model.RawDisclosure{
		BreachHash:    "abc",
		DataTypes:     []string{"email"},
		SeverityScore: 5,
	}
	valid := env.disclosure(t, "intact@example.com", 5)
	adapter := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return []model.RawDisclosure{short, valid}, nil
		},
	}

	sched := env.scheduler(map[string]time.Duration{"pastebin": time.Millisecond})
	sched.Register(adapter)

	n, err := sched.FetchOnce(ctx, adapter)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected truncated hash dropped, got %d ingested", n)
	}
}

func TestFetchOnceFiresAlertsForMonitoredPrefixes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	d := env.disclosure(t, "watched@example.com", 9)
	prefix := d.BreachHash[:env.hasher.PrefixLength()]
	target := &model.MonitoringTarget{
		ID:                   "target-1",
		CredentialHashPrefix: prefix,
		CredentialType:       model.CredentialEmail,
		AlertConfig:          model.AlertConfig{Destination: "log"},
		CreatedAt:            env.now,
	}
	if err := env.store.AddTarget(ctx, target); err != nil {
		t.Fatalf("failed to add target: %v", err)
	}

	var (
		mu      sync.Mutex
		alerted []string
	)
	sched := env.scheduler(map[string]time.Duration{"forum": time.Millisecond},
		WithAlertFunc(func(_ context.Context, tg model.MonitoringTarget, _ *model.BreachRecord) {
			mu.Lock()
			alerted = append(alerted, tg.ID)
			mu.Unlock()
		}))

	adapter := &fakeAdapter{
		id:       "forum",
		typ:      model.SourceForum,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return []model.RawDisclosure{d}, nil
		},
	}
	sched.Register(adapter)

	if _, err := sched.FetchOnce(ctx, adapter); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	// A second pass over the unchanged page must not re-alert: the
	// disclosure is a duplicate, not a new record.
	if _, err := sched.FetchOnce(ctx, adapter); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(alerted) != 1 || alerted[0] != "target-1" {
		t.Errorf("expected one alert for target-1, got %v", alerted)
	}
}

func TestRunTypeIsolatesFailingSource(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	good := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return []model.RawDisclosure{env.disclosure(t, "ok@example.com", 5)}, nil
		},
	}
	bad := &fakeAdapter{
		id:       "ghostbin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return nil, &source.FetchError{SourceID: "ghostbin", Err: errors.New("connection refused")}
		},
	}

	sched := env.scheduler(map[string]time.Duration{
		"pastebin": time.Millisecond,
		"ghostbin": time.Millisecond,
	})
	sched.Register(good)
	sched.Register(bad)

	n, err := sched.RunType(ctx, model.SourcePasteSite)
	if n != 1 {
		t.Errorf("expected the healthy source to ingest 1 record, got %d", n)
	}
	if err == nil || !strings.Contains(err.Error(), "ghostbin") {
		t.Errorf("expected joined error naming the failing source, got %v", err)
	}

	// Only the failing source is marked degraded.
	for _, st := range sched.Status() {
		switch st.SourceID {
		case "pastebin":
			if st.Degraded {
				t.Error("healthy source must not be degraded")
			}
		case "ghostbin":
			if !st.Degraded {
				t.Error("failing source must be degraded")
			}
		}
	}
}

func TestRunTypeIsolatesLimiterFailure(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	good := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return []model.RawDisclosure{env.disclosure(t, "ok@example.com", 5)}, nil
		},
	}
	unthrottled := &fakeAdapter{
		id:       "ghostbin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			t.Error("source without limiter state must not fetch")
			return nil, source.ErrEmptyBatch
		},
	}

	// ghostbin is missing from the limiter, so Wait fails for it. The
	// pass must still run pastebin and report the limiter failure in
	// the joined error rather than aborting the whole pass.
	sched := env.scheduler(map[string]time.Duration{"pastebin": time.Millisecond})
	sched.Register(good)
	sched.Register(unthrottled)

	n, err := sched.RunType(ctx, model.SourcePasteSite)
	if n != 1 {
		t.Errorf("expected the healthy source to ingest 1 record, got %d", n)
	}
	if !errors.Is(err, ratelimit.ErrUnknownSource) {
		t.Errorf("expected joined limiter error, got %v", err)
	}
}

func TestRunTypeSkipsOtherSourceTypes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	called := false
	dark := &fakeAdapter{
		id:       "onionleaks",
		typ:      model.SourceDarkweb,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			called = true
			return nil, source.ErrEmptyBatch
		},
	}

	sched := env.scheduler(map[string]time.Duration{"onionleaks": time.Millisecond})
	sched.Register(dark)

	if _, err := sched.RunType(context.Background(), model.SourcePasteSite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("dark-web adapter must not run in a paste-site pass")
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	adapter := &fakeAdapter{
		id:       "pastebin",
		typ:      model.SourcePasteSite,
		interval: time.Millisecond,
		fetch: func(context.Context) ([]model.RawDisclosure, error) {
			return nil, source.ErrEmptyBatch
		},
	}

	sched := env.scheduler(map[string]time.Duration{"pastebin": time.Millisecond})
	sched.Register(adapter)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := sched.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error from Run, got %v", err)
	}
}
