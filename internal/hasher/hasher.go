// Package hasher implements the one-way credential transform used by all
// check and monitoring paths.
//
// The raw credential exists only as a function argument here; it is never
// stored, logged, or passed further down the stack. Every component below
// this one works exclusively with the digest or its prefix.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// DefaultPrefixLength is the default number of leading hex characters
// used as the anonymity-set key. Ten hex characters give a 40-bit prefix
// space, which keeps sets large enough to be shared by many distinct
// credentials while still pruning the candidate set for aggregation.
const DefaultPrefixLength = 10

// ErrEmptyCredential is returned when the input credential is empty
// after normalization. It is the only failure mode of Hash.
var ErrEmptyCredential = errors.New("credential is empty")

// Hasher derives a fixed-length digest and anonymity-set prefix from a
// raw credential. It is a pure function holder: no I/O, no side effects,
// safe for concurrent use.
//
// Design decision: SHA-256 rather than a keyed or salted construction.
// The digest must be deterministic across service instances and over
// time, otherwise breach records ingested yesterday would not match a
// check performed today. K-anonymity comes from the prefix truncation,
// not from hash secrecy.
type Hasher struct {
	prefixLen int
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithPrefixLength overrides the anonymity-set prefix length.
// Values outside [1, 64] are ignored and the default is kept.
func WithPrefixLength(n int) Option {
	return func(h *Hasher) {
		if n >= 1 && n <= sha256.Size*2 {
			h.prefixLen = n
		}
	}
}

// New creates a Hasher with the given options.
func New(opts ...Option) *Hasher {
	h := &Hasher{prefixLen: DefaultPrefixLength}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PrefixLength returns the configured anonymity-set prefix length.
func (h *Hasher) PrefixLength() int {
	return h.prefixLen
}

// Hash transforms a raw credential into its full hex digest and the
// fixed-length prefix used as the anonymity-set key.
//
// The credential is normalized before hashing: surrounding whitespace is
// trimmed and the value is lowercased, so "Alice@Example.com" and
// "alice@example.com " hash identically. Returns ErrEmptyCredential if
// nothing remains after normalization; never fails otherwise.
func (h *Hasher) Hash(rawCredential string) (fullHash, prefix string, err error) {
	normalized := strings.ToLower(strings.TrimSpace(rawCredential))
	if normalized == "" {
		return "", "", ErrEmptyCredential
	}

	sum := sha256.Sum256([]byte(normalized))
	fullHash = hex.EncodeToString(sum[:])
	return fullHash, fullHash[:h.prefixLen], nil
}
