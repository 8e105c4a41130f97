package config

import "errors"

// Configuration validation errors returned by Config.Validate.
//
// Package-level sentinel errors rather than inline errors.New calls in
// Validate, so callers can match with errors.Is while still getting a
// readable message.
var (
	// ErrUnknownBackend is returned when Backend names neither the
	// sqlite nor the postgres backend.
	ErrUnknownBackend = errors.New("unknown storage backend: must be \"sqlite\" or \"postgres\"")

	// ErrMissingPostgresDSN is returned when the postgres backend is
	// selected without a connection string.
	ErrMissingPostgresDSN = errors.New("postgres backend selected but no DSN configured")

	// ErrInvalidRetentionWindow is returned when the retention window is
	// not positive. A non-positive window would expire records at birth.
	ErrInvalidRetentionWindow = errors.New("invalid retention window: must be positive")

	// ErrInvalidMinAnonymitySize is returned when the k-anonymity
	// threshold is below one.
	ErrInvalidMinAnonymitySize = errors.New("invalid minimum anonymity size: must be at least 1")

	// ErrInvalidPrefixLength is returned when the prefix length falls
	// outside [4, 64]. Below 4 every credential shares a handful of
	// giant sets; above 64 exceeds the digest length.
	ErrInvalidPrefixLength = errors.New("invalid prefix length: must be between 4 and 64 hex characters")

	// ErrInvalidCleanupInterval is returned when the cleanup interval is
	// not positive.
	ErrInvalidCleanupInterval = errors.New("invalid cleanup interval: must be positive")

	// ErrInvalidChunkSize is returned when the cleanup chunk size is
	// below one.
	ErrInvalidChunkSize = errors.New("invalid cleanup chunk size: must be at least 1")

	// ErrInvalidSourceInterval is returned when the default source
	// polling interval is not positive.
	ErrInvalidSourceInterval = errors.New("invalid source interval: must be positive")

	// ErrInvalidBackoff is returned when the backoff policy is
	// inconsistent (multiplier below 1, non-positive initial delay, or a
	// cap below the initial delay).
	ErrInvalidBackoff = errors.New("invalid backoff policy")
)

// ErrSourcesFileNotFound is returned when the sources file does not
// exist at the given path.
var ErrSourcesFileNotFound = errors.New("sources file not found")
