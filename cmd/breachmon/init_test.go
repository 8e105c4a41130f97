package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/backgroundcheck/breachmon/internal/config"
	"github.com/backgroundcheck/breachmon/internal/model"
)

func TestInitCreatesLoadableSourcesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sources.yml")
	out, err := runCommand(t, "init", "-o", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "Created sources file") {
		t.Errorf("expected creation message, got %q", out)
	}

	// The generated template must round-trip through the loader.
	sf, err := config.LoadSourcesFile(path)
	if err != nil {
		t.Fatalf("failed to load generated sources file: %v", err)
	}

	sc, ok := sf.Get("pastebin")
	if !ok {
		t.Fatal("expected pastebin source in template")
	}
	if sc.Type != model.SourcePasteSite {
		t.Errorf("expected paste-site type, got %q", sc.Type)
	}
	if sc.MinInterval != 2*time.Second {
		t.Errorf("expected 2s interval, got %v", sc.MinInterval)
	}
	// Defaults merge in for fields the entry leaves unset.
	if sc.SeverityScore != 5 {
		t.Errorf("expected default severity 5, got %d", sc.SeverityScore)
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sources.yml")
	if err := os.WriteFile(path, []byte("sources: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := runCommand(t, "init", "-o", path); err == nil {
		t.Fatal("expected error without --force")
	}
	if _, err := runCommand(t, "init", "-o", path, "-f"); err != nil {
		t.Fatalf("expected --force to overwrite, got %v", err)
	}
}
