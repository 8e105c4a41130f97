// Package storage defines the persistence contracts for breachmon and
// the backend selection logic.
//
// Two backends implement the same Store interface: an embedded SQLite
// backend (the default, a single file, no external service) and a
// networked PostgreSQL backend for shared deployments. The backend is
// chosen at construction time from configuration; nothing above this
// package knows which engine is underneath.
//
// Three logical tables are maintained:
//   - breach_records: append-only hashed breach disclosures with expiry
//   - monitoring_targets: watched hash prefixes with alert config
//   - k_anonymity_sets: per-prefix set-size bookkeeping
package storage
