package model

import (
	"errors"
	"testing"
	"time"
)

func validRecord() *BreachRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &BreachRecord{
		ID:            "0b5c9f2e-1111-4222-8333-444455556666",
		BreachHash:    "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3",
		DataTypes:     []string{"email", "password_hash"},
		SeverityScore: 7,
		SourceType:    SourcePasteSite,
		CreatedAt:     now,
		ExpiresAt:     now.Add(90 * 24 * time.Hour),
	}
}

func TestBreachRecordValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*BreachRecord)
		wantErr bool
	}{
		{name: "valid record", mutate: func(*BreachRecord) {}, wantErr: false},
		{name: "missing id", mutate: func(r *BreachRecord) { r.ID = "" }, wantErr: true},
		{name: "missing hash", mutate: func(r *BreachRecord) { r.BreachHash = "" }, wantErr: true},
		{name: "non-hex hash", mutate: func(r *BreachRecord) { r.BreachHash = "NOT-A-HASH" }, wantErr: true},
		{name: "unknown source type", mutate: func(r *BreachRecord) { r.SourceType = "torrent" }, wantErr: true},
		{name: "severity below range", mutate: func(r *BreachRecord) { r.SeverityScore = 0 }, wantErr: true},
		{name: "severity above range", mutate: func(r *BreachRecord) { r.SeverityScore = 11 }, wantErr: true},
		{name: "missing expiry", mutate: func(r *BreachRecord) { r.ExpiresAt = time.Time{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := validRecord()
			tt.mutate(r)

			err := r.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("error %v is not ErrInvalidRecord", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestBreachRecordExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := validRecord()
	r.ExpiresAt = now

	// Inclusive boundary: expiry at exactly "now" counts as expired.
	if !r.Expired(now) {
		t.Error("record expiring exactly now should be expired")
	}
	if r.Expired(now.Add(-time.Second)) {
		t.Error("record one second before expiry should not be expired")
	}
	if !r.Expired(now.Add(time.Second)) {
		t.Error("record one second past expiry should be expired")
	}
}

func TestSourceTypeValid(t *testing.T) {
	t.Parallel()

	for _, s := range []SourceType{SourcePasteSite, SourceForum, SourceDisclosureDB, SourceDarkweb} {
		if !s.Valid() {
			t.Errorf("source type %q should be valid", s)
		}
	}
	if SourceType("rss").Valid() {
		t.Error("unknown source type should be invalid")
	}
}

func TestCredentialTypeValid(t *testing.T) {
	t.Parallel()

	for _, c := range []CredentialType{CredentialEmail, CredentialUsername, CredentialPhone, CredentialDomain} {
		if !c.Valid() {
			t.Errorf("credential type %q should be valid", c)
		}
	}
	if CredentialType("ssn").Valid() {
		t.Error("unknown credential type should be invalid")
	}
}
