package crawl

import (
	"testing"
	"time"
)

func TestBackoffGrowsGeometricallyToCap(t *testing.T) {
	t.Parallel()

	b := Backoff{Initial: 5 * time.Second, Multiplier: 2.0, Cap: 10 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 10 * time.Second},
		{attempt: 2, want: 20 * time.Second},
		{attempt: 3, want: 40 * time.Second},
		{attempt: 6, want: 320 * time.Second},
		{attempt: 7, want: 10 * time.Minute},
		{attempt: 50, want: 10 * time.Minute},
	}

	for _, tt := range tests {
		if got := b.Next(tt.attempt); got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffCapBelowInitial(t *testing.T) {
	t.Parallel()

	b := Backoff{Initial: time.Minute, Multiplier: 2.0, Cap: 30 * time.Second}
	if got := b.Next(0); got != 30*time.Second {
		t.Errorf("Next(0) = %v, want cap", got)
	}
}
