package model

import "time"

// CredentialType identifies what kind of credential a hash was derived from.
type CredentialType string

const (
	// CredentialEmail is an email address.
	CredentialEmail CredentialType = "email"

	// CredentialUsername is a bare username or handle.
	CredentialUsername CredentialType = "username"

	// CredentialPhone is a phone number in E.164 form.
	CredentialPhone CredentialType = "phone"

	// CredentialDomain is a DNS domain watched for bulk exposure.
	CredentialDomain CredentialType = "domain"
)

// Valid reports whether the credential type is one of the known kinds.
func (c CredentialType) Valid() bool {
	switch c {
	case CredentialEmail, CredentialUsername, CredentialPhone, CredentialDomain:
		return true
	}
	return false
}

// AlertConfig describes where and how often alerts for a monitoring
// target are delivered. The core treats it as opaque structured data;
// interpretation belongs to the alert hook.
type AlertConfig struct {
	// Destination is an opaque delivery address (webhook URL, queue name).
	Destination string `json:"destination"`

	// Throttle is the minimum interval between alerts for this target.
	Throttle time.Duration `json:"throttle"`
}

// MonitoringTarget is a credential being watched on a user's behalf.
//
// Invariant: only the fixed-length hash prefix is ever stored, never the
// full credential hash. This caps the precision of any stored watch to
// the anonymity-set granularity, so the registry itself cannot be used
// to deanonymize a single credential.
type MonitoringTarget struct {
	// ID is an opaque unique identifier (UUID).
	ID string `json:"id"`

	// CredentialHashPrefix is the fixed-length leading substring of the
	// credential's full hash.
	CredentialHashPrefix string `json:"credential_hash_prefix"`

	// CredentialType records what kind of credential is watched.
	CredentialType CredentialType `json:"credential_type"`

	// AlertConfig controls alert delivery for this target.
	AlertConfig AlertConfig `json:"alert_config"`

	// CreatedAt is when the watch was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastCheckedAt is when the checker last evaluated this target's
	// prefix. Nil until the first evaluation.
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}
