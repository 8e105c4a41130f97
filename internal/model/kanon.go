package model

import "time"

// KAnonymitySet is the per-prefix bookkeeping row backing the anonymity
// threshold decision.
//
// Invariant: SetSize is always recomputed server-side from breach store
// contents, never reconstructed from caller-supplied input. Trusting a
// caller here would let a forged "sufficient anonymity" claim unlock
// disclosure for a sparsely populated prefix.
type KAnonymitySet struct {
	// HashPrefix is the fixed-length prefix this row tracks.
	HashPrefix string `json:"hash_prefix"`

	// SetSize is the count of distinct non-expired breach hashes
	// sharing HashPrefix. Always non-negative.
	SetSize int `json:"set_size"`

	// LastUpdated is when SetSize was last recomputed.
	LastUpdated time.Time `json:"last_updated"`
}
