package checker

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

const (
	testMinSetSize    = 5
	testSeverityFloor = 7
)

// testEnv wires a checker over a real sqlite store and registry.
type testEnv struct {
	store   *sqlite.Store
	sets    *kanon.Registry
	checker *Checker
	hasher  *hasher.Hasher
	now     time.Time
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
	clock := func() time.Time { return now }
	sets := kanon.NewRegistry(store, kanon.WithClock(clock))
	c := New(h, sets, store, testMinSetSize, testSeverityFloor, WithClock(clock))

	return &testEnv{store: store, sets: sets, checker: c, hasher: h, now: now}
}

// seedPrefix inserts n records under the given prefix, severity given,
// and recomputes the anonymity set.
func (e *testEnv) seedPrefix(t *testing.T, prefix string, n, severity int) {
	t.Helper()

	ctx := context.Background()
	for i := range n {
		r := &model.BreachRecord{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			BreachHash:    fmt.Sprintf("%s%054d", prefix, i),
			DataTypes:     []string{"email"},
			SeverityScore: severity,
			SourceType:    model.SourcePasteSite,
			CreatedAt:     e.now,
			ExpiresAt:     e.now.Add(24 * time.Hour),
		}
		if err := e.store.InsertRecord(ctx, r); err != nil {
			t.Fatalf("failed to insert record: %v", err)
		}
	}
	if err := e.sets.Recompute(ctx, prefix); err != nil {
		t.Fatalf("failed to recompute: %v", err)
	}
}

func TestCheckRefusesBelowThreshold(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	_, prefix, _ := env.hasher.Hash("victim@example.com")
	env.seedPrefix(t, prefix, testMinSetSize-1, 9)

	result, err := env.checker.Check(context.Background(), "victim@example.com", model.CredentialEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.PrivacyCompliant {
		t.Error("check below threshold must refuse")
	}
	if result.Reason != model.ReasonInsufficientAnonymity {
		t.Errorf("reason = %q, want %q", result.Reason, model.ReasonInsufficientAnonymity)
	}
	// A refusal must not leak anything about the set.
	if result.SetSize != 0 || result.HashPrefix != "" || result.BreachProbability != 0 {
		t.Errorf("refusal leaked set details: %+v", result)
	}
}

func TestCheckCompliantAtExactThreshold(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	_, prefix, _ := env.hasher.Hash("victim@example.com")
	env.seedPrefix(t, prefix, testMinSetSize, 9)

	result, err := env.checker.Check(context.Background(), "victim@example.com", model.CredentialEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Threshold is inclusive: exactly minSetSize complies.
	if !result.PrivacyCompliant {
		t.Fatal("check at exact threshold must comply")
	}
	if result.SetSize != testMinSetSize {
		t.Errorf("set size = %d, want %d", result.SetSize, testMinSetSize)
	}
	if result.HashPrefix != prefix {
		t.Errorf("hash prefix = %q, want %q", result.HashPrefix, prefix)
	}
	if result.BreachProbability != 1.0 {
		t.Errorf("probability = %v, want 1.0 (all records at severity 9)", result.BreachProbability)
	}
	if !result.LastChecked.Equal(env.now) {
		t.Errorf("last checked = %v, want %v", result.LastChecked, env.now)
	}
}

func TestCheckProbabilityIsSetLevelAggregate(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	_, prefix, _ := env.hasher.Hash("victim@example.com")
	// Three high-severity, seven low-severity hashes under the prefix.
	env.seedPrefix(t, prefix, 3, 9)

	ctx := context.Background()
	for i := range 7 {
		r := &model.BreachRecord{
			ID:            fmt.Sprintf("low-%d", i),
			BreachHash:    fmt.Sprintf("%sddd%051d", prefix, i),
			DataTypes:     []string{"email"},
			SeverityScore: 2,
			SourceType:    model.SourceForum,
			CreatedAt:     env.now,
			ExpiresAt:     env.now.Add(24 * time.Hour),
		}
		if err := env.store.InsertRecord(ctx, r); err != nil {
			t.Fatalf("failed to insert record: %v", err)
		}
	}
	if err := env.sets.Recompute(ctx, prefix); err != nil {
		t.Fatalf("failed to recompute: %v", err)
	}

	result, err := env.checker.Check(ctx, "victim@example.com", model.CredentialEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.PrivacyCompliant {
		t.Fatal("expected compliant result")
	}
	if got, want := result.BreachProbability, 0.3; got != want {
		t.Errorf("probability = %v, want %v", got, want)
	}
	if result.BreachProbability < 0 || result.BreachProbability > 1 {
		t.Errorf("probability %v outside [0,1]", result.BreachProbability)
	}
}

func TestCheckInvalidInput(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()

	t.Run("empty credential", func(t *testing.T) {
		_, err := env.checker.Check(ctx, "  ", model.CredentialEmail)
		if !errors.Is(err, hasher.ErrEmptyCredential) {
			t.Errorf("error = %v, want ErrEmptyCredential", err)
		}
	})

	t.Run("unknown credential type", func(t *testing.T) {
		_, err := env.checker.Check(ctx, "victim@example.com", "passport")
		if !errors.Is(err, ErrInvalidCredentialType) {
			t.Errorf("error = %v, want ErrInvalidCredentialType", err)
		}
	})
}

func TestCheckTouchesMonitoringTargets(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()
	_, prefix, _ := env.hasher.Hash("victim@example.com")
	env.seedPrefix(t, prefix, testMinSetSize, 9)

	target := &model.MonitoringTarget{
		ID:                   "t1",
		CredentialHashPrefix: prefix,
		CredentialType:       model.CredentialEmail,
		CreatedAt:            env.now.Add(-time.Hour),
	}
	if err := env.store.AddTarget(ctx, target); err != nil {
		t.Fatalf("failed to add target: %v", err)
	}

	if _, err := env.checker.Check(ctx, "victim@example.com", model.CredentialEmail); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	targets, err := env.store.ListTargetsForPrefix(ctx, prefix)
	if err != nil {
		t.Fatalf("failed to list targets: %v", err)
	}
	if len(targets) != 1 || targets[0].LastCheckedAt == nil {
		t.Fatal("target last_checked_at was not updated")
	}
	if targets[0].LastCheckedAt.Unix() != env.now.Unix() {
		t.Errorf("last checked = %v, want %v", targets[0].LastCheckedAt, env.now)
	}
}

func TestCheckNeverCompliantBelowThreshold(t *testing.T) {
	t.Parallel()

	// Property sweep around the boundary: 0..min+2 records.
	env := setupEnv(t)
	ctx := context.Background()
	_, prefix, _ := env.hasher.Hash("victim@example.com")

	for n := 0; n <= testMinSetSize+2; n++ {
		if n > 0 {
			r := &model.BreachRecord{
				ID:            fmt.Sprintf("sweep-%d", n),
				BreachHash:    fmt.Sprintf("%seeeee%049d", prefix, n),
				DataTypes:     []string{"email"},
				SeverityScore: 9,
				SourceType:    model.SourcePasteSite,
				CreatedAt:     env.now,
				ExpiresAt:     env.now.Add(24 * time.Hour),
			}
			if err := env.store.InsertRecord(ctx, r); err != nil {
				t.Fatalf("failed to insert record: %v", err)
			}
			if err := env.sets.Recompute(ctx, prefix); err != nil {
				t.Fatalf("failed to recompute: %v", err)
			}
		}

		result, err := env.checker.Check(ctx, "victim@example.com", model.CredentialEmail)
		if err != nil {
			t.Fatalf("unexpected error at n=%d: %v", n, err)
		}
		wantCompliant := n >= testMinSetSize
		if result.PrivacyCompliant != wantCompliant {
			t.Errorf("n=%d: compliant = %v, want %v", n, result.PrivacyCompliant, wantCompliant)
		}
	}
}
