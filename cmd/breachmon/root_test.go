package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "breachmon" {
			t.Errorf("expected use 'breachmon', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("has version", func(t *testing.T) {
		t.Parallel()
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"verbose", "json-logs", "backend", "db-dir", "postgres-dsn", "redis", "sources"} {
			if cmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("expected persistent flag %q", name)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{
			"init":               false,
			"check [credential]": false,
			"target":             false,
			"monitor":            false,
			"cleanup":            false,
			"stats":              false,
			"version":            false,
		}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Use]; ok {
				want[sub.Use] = true
			}
		}
		for use, found := range want {
			if !found {
				t.Errorf("expected subcommand %q", use)
			}
		}
	})
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "breachmon version") {
		t.Errorf("expected version banner, got %q", out)
	}
}

func TestCheckCommandRequiresCredential(t *testing.T) {
	t.Parallel()

	_, err := runCommand(t, "check", "--db-dir", t.TempDir())
	if err == nil {
		t.Fatal("expected error when no credential given")
	}
}

func TestCheckCommandRefusesOnEmptyDatabase(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "check", "--db-dir", t.TempDir(), "someone@example.com")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out, "check refused") {
		t.Errorf("expected refusal on empty database, got %q", out)
	}
}

func TestCheckCommandRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := runCommand(t, "check", "--db-dir", t.TempDir(), "--type", "passport", "someone@example.com")
	if err == nil {
		t.Fatal("expected error for unknown credential type")
	}
}

func TestTargetAddAndRemove(t *testing.T) {
	t.Parallel()

	dbDir := t.TempDir()
	out, err := runCommand(t, "target", "add", "--db-dir", dbDir, "watch-me@example.com")
	if err != nil {
		t.Fatalf("target add failed: %v", err)
	}
	if !strings.Contains(out, "hash prefix:") {
		t.Fatalf("expected hash prefix in output, got %q", out)
	}
	if strings.Contains(out, "watch-me@example.com") {
		t.Error("raw credential must never appear in output")
	}

	// Extract the target ID from the output.
	var id string
	for _, line := range strings.Split(out, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "id:"); ok {
			id = strings.TrimSpace(after)
		}
	}
	if id == "" {
		t.Fatalf("expected target ID in output, got %q", out)
	}

	out, err = runCommand(t, "target", "remove", "--db-dir", dbDir, id)
	if err != nil {
		t.Fatalf("target remove failed: %v", err)
	}
	if !strings.Contains(out, "removed") {
		t.Errorf("expected removal confirmation, got %q", out)
	}
}

func TestTargetRemoveUnknownID(t *testing.T) {
	t.Parallel()

	_, err := runCommand(t, "target", "remove", "--db-dir", t.TempDir(), "no-such-id")
	if err == nil {
		t.Fatal("expected error for unknown target ID")
	}
}

func TestCleanupCommandOnEmptyDatabase(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "cleanup", "--db-dir", t.TempDir())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !strings.Contains(out, "records removed:     0") {
		t.Errorf("expected zero records removed, got %q", out)
	}
}

func TestStatsCommand(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "stats", "--db-dir", t.TempDir())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	for _, want := range []string{"total breach records:", "monitored credentials:", "last cleanup:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestStatsCommandMarkdown(t *testing.T) {
	t.Parallel()

	out, err := runCommand(t, "stats", "--db-dir", t.TempDir(), "--markdown")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "# breachmon Statistics") {
		t.Errorf("expected Markdown heading, got %q", out)
	}
	for _, want := range []string{"Metric", "Monitored credentials", "## Health"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in Markdown output, got %q", want, out)
		}
	}
}

func TestMonitorCommandRejectsUnknownGroup(t *testing.T) {
	t.Parallel()

	_, err := runCommand(t, "monitor", "--db-dir", t.TempDir(), "--once", "usenet")
	if err == nil {
		t.Fatal("expected error for unknown source group")
	}
}
