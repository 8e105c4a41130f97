package model

import "time"

// ReasonInsufficientAnonymity is the reason string carried by a
// CheckResult when the anonymity set is too small to disclose anything.
const ReasonInsufficientAnonymity = "insufficient anonymity set"

// CheckResult is the outcome of a credential check.
//
// A non-compliant result is a normal, expected outcome, not an error:
// refusing to disclose is the correct privacy behavior when the anonymity
// set is too small. When PrivacyCompliant is false every other field
// except Reason is zero, so the refusal itself leaks nothing.
type CheckResult struct {
	// PrivacyCompliant reports whether the anonymity set was large
	// enough to answer at all.
	PrivacyCompliant bool `json:"privacy_compliant"`

	// Reason explains a refusal. Empty on compliant results.
	Reason string `json:"reason,omitempty"`

	// HashPrefix is the anonymity-set key the answer is scoped to.
	HashPrefix string `json:"hash_prefix,omitempty"`

	// SetSize is the size of the anonymity set consulted.
	SetSize int `json:"set_size,omitempty"`

	// BreachProbability is a set-level aggregate in [0,1]. It is never
	// an assertion that this exact credential is or is not breached.
	BreachProbability float64 `json:"breach_probability,omitempty"`

	// LastChecked is when the check was performed.
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// CleanupSummary reports the effect of one retention cleanup run.
// A second consecutive run with no new expirations yields all zeros.
type CleanupSummary struct {
	// RecordsRemoved is the number of expired breach records deleted.
	RecordsRemoved int `json:"records_removed"`

	// PrefixesRecomputed is the number of distinct anonymity-set
	// prefixes recomputed after deletion.
	PrefixesRecomputed int `json:"prefixes_recomputed"`

	// OrphansRemoved is the number of monitoring targets removed
	// because their prefix had no breach coverage past the grace period.
	OrphansRemoved int `json:"orphans_removed"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Statistics is the aggregate view exposed to the API layer.
type Statistics struct {
	// TotalBreaches is the number of non-expired breach records.
	TotalBreaches int `json:"total_breaches"`

	// MonitoredCredentials is the number of registered monitoring targets.
	MonitoredCredentials int `json:"monitored_credentials"`

	// SourcesMonitored is the number of configured crawl sources.
	SourcesMonitored int `json:"sources_monitored"`

	// LastCleanup is when the retention scheduler last completed a run.
	// Zero if no cleanup has run yet.
	LastCleanup time.Time `json:"last_cleanup,omitempty"`
}

// HealthStatus is the coarse service state reported by health checks.
type HealthStatus string

const (
	// StatusHealthy means storage is reachable and monitoring is active.
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded means the service answers checks but some
	// subsystem (monitoring, optional backend) is down.
	StatusDegraded HealthStatus = "degraded"

	// StatusError means storage is unreachable; checks cannot be
	// answered safely.
	StatusError HealthStatus = "error"
)

// Health is the result of a health check.
type Health struct {
	// StorageOK reports whether the storage backend answered a ping.
	StorageOK bool `json:"storage_ok"`

	// MonitoringActive reports whether the crawl scheduler is running.
	MonitoringActive bool `json:"monitoring_active"`

	// Status is the coarse rollup of the two booleans.
	Status HealthStatus `json:"status"`
}
