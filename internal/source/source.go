// Package source implements breach source adapters. An adapter fetches
// one batch of disclosures from a configured source and returns them
// already hashed; raw credential material never leaves the adapter.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backgroundcheck/breachmon/internal/model"
)

// ErrEmptyBatch is returned when a fetch succeeded but yielded no
// recognizable disclosures. Callers treat it as a quiet pass, not a
// failure.
var ErrEmptyBatch = errors.New("source: empty batch")

// Adapter is the contract every breach source implements. Adapters are
// safe for use by a single scheduler goroutine; they do not need to be
// concurrency-safe beyond that.
type Adapter interface {
	// SourceID identifies the source in configuration, limiter state,
	// and logs.
	SourceID() string

	// Type reports what kind of source this is.
	Type() model.SourceType

	// MinInterval is the minimum delay between two fetches against
	// this source.
	MinInterval() time.Duration

	// FetchBatch retrieves the next batch of disclosures. The returned
	// hashes are full SHA-256 digests of normalized credentials.
	FetchBatch(ctx context.Context) ([]model.RawDisclosure, error)
}

// FetchError wraps a fetch failure with the source that produced it, so
// the scheduler can log and back off per source without inspecting the
// underlying cause.
type FetchError struct {
	SourceID string
	Err      error
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is checks.
func (e *FetchError) Unwrap() error {
	return e.Err
}
