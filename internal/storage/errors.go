package storage

import "errors"

var (
	// ErrStorageUnavailable wraps any backend failure caused by the
	// underlying engine being unreachable or broken. It always
	// propagates to the caller: silently swallowing it could mask a
	// stale anonymity-set size, and the safe default under uncertainty
	// is to refuse disclosure, never to assume compliance.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTargetNotFound is returned when removing or touching a
	// monitoring target that does not exist.
	ErrTargetNotFound = errors.New("monitoring target not found")

	// ErrDuplicateRecord is returned when inserting a breach record
	// whose ID already exists. Records are append-only, so an ID clash
	// is a caller bug, not an upsert opportunity.
	ErrDuplicateRecord = errors.New("breach record already exists")
)
