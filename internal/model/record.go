package model

import (
	"errors"
	"time"
)

// SourceType identifies the category of source a breach record came from.
//
// Design decision: We use typed string constants rather than iota because
// the value is persisted in the database and exposed in JSON. A string
// survives schema migrations and stays readable in ad hoc queries, while
// an integer would silently change meaning if constants were reordered.
type SourceType string

const (
	// SourcePasteSite is a public paste service (listing pages polled over HTTP).
	SourcePasteSite SourceType = "paste-site"

	// SourceForum is a breach-disclosure forum.
	SourceForum SourceType = "forum"

	// SourceDisclosureDB is a structured breach-disclosure database or feed.
	SourceDisclosureDB SourceType = "disclosure-db"

	// SourceDarkweb is a hidden service reachable only through Tor.
	SourceDarkweb SourceType = "darkweb"
)

// Valid reports whether the source type is one of the known categories.
func (s SourceType) Valid() bool {
	switch s {
	case SourcePasteSite, SourceForum, SourceDisclosureDB, SourceDarkweb:
		return true
	}
	return false
}

// Severity score bounds for breach records. The score is an ordinal
// measure of how damaging the exposed data is, not a probability.
const (
	// SeverityMin is the lowest severity a record may carry.
	SeverityMin = 1

	// SeverityMax is the highest severity a record may carry.
	SeverityMax = 10
)

// ErrInvalidRecord is returned when a breach record fails validation
// before insertion. The wrapped message names the offending field.
var ErrInvalidRecord = errors.New("invalid breach record")

// BreachRecord is one ingested breach disclosure fragment.
//
// Records are append-only: they are created by crawl ingestion, never
// mutated, and destroyed by the retention scheduler once expired. The
// BreachHash field holds a one-way digest of the exposed identifier;
// no plaintext credential ever reaches this struct.
type BreachRecord struct {
	// ID is an opaque unique identifier (UUID).
	ID string `json:"id"`

	// BreachHash is the hex-encoded one-way digest of the exposed
	// identifier. Its leading characters form the k-anonymity prefix.
	BreachHash string `json:"breach_hash"`

	// DataTypes lists which attribute categories were exposed,
	// e.g. "email", "password_hash", "phone".
	DataTypes []string `json:"data_types"`

	// BreachDate is the timestamp of the original incident, if known.
	BreachDate *time.Time `json:"breach_date,omitempty"`

	// SeverityScore rates the exposure in [SeverityMin, SeverityMax].
	SeverityScore int `json:"severity_score"`

	// SourceType records which category of source produced the record.
	SourceType SourceType `json:"source_type"`

	// CreatedAt is when the record was ingested.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is CreatedAt plus the retention window. It is set at
	// creation and never modified; a record past ExpiresAt must not be
	// returned by any read path.
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate checks the record invariants that must hold before insertion.
func (r *BreachRecord) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("missing id"))
	}
	if r.BreachHash == "" {
		return errors.Join(ErrInvalidRecord, errors.New("missing breach hash"))
	}
	for _, c := range r.BreachHash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return errors.Join(ErrInvalidRecord, errors.New("breach hash is not lowercase hex"))
		}
	}
	if !r.SourceType.Valid() {
		return errors.Join(ErrInvalidRecord, errors.New("unknown source type"))
	}
	if r.SeverityScore < SeverityMin || r.SeverityScore > SeverityMax {
		return errors.Join(ErrInvalidRecord, errors.New("severity score out of range"))
	}
	if r.ExpiresAt.IsZero() {
		return errors.Join(ErrInvalidRecord, errors.New("missing expiry"))
	}
	return nil
}

// Expired reports whether the record is past its retention window at the
// given instant. The boundary is inclusive: a record whose ExpiresAt
// equals now is already expired.
func (r *BreachRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// RawDisclosure is the unit a source adapter hands to the crawl
// scheduler. Adapters must strip plaintext credentials before returning;
// only hashed and derived fields cross this boundary.
type RawDisclosure struct {
	// BreachHash is the hex digest of the exposed identifier.
	BreachHash string

	// DataTypes lists the exposed attribute categories.
	DataTypes []string

	// BreachDate is the original incident date, if the source states one.
	BreachDate *time.Time

	// SeverityScore rates the exposure in [SeverityMin, SeverityMax].
	SeverityScore int
}
