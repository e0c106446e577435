// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"time"

	"github.com/veridianlabs/veridian/internal/passcode"
	"github.com/veridianlabs/veridian/pkg/uuid"
)

// # Verification Records
//
// A Record is one piece of evidence collected during an interaction. The
// variant set is closed: every dispatch over [RecordType] is an exhaustive
// switch, so adding a variant forces every call site to handle it.

// RecordType tags the variant of a verification record.
type RecordType string

const (
	RecordPassword            RecordType = "Password"
	RecordEmailCode           RecordType = "EmailVerificationCode"
	RecordPhoneCode           RecordType = "PhoneVerificationCode"
	RecordSocial              RecordType = "Social"
	RecordNewPasswordIdentity RecordType = "NewPasswordIdentity"
	RecordWebAuthn            RecordType = "WebAuthn"
	RecordTOTP                RecordType = "Totp"
	RecordBackupCode          RecordType = "BackupCode"
)

// ParseRecordType validates a client-supplied record type name.
func ParseRecordType(value string) (RecordType, error) {
	switch RecordType(value) {
	case RecordPassword, RecordEmailCode, RecordPhoneCode, RecordSocial,
		RecordNewPasswordIdentity, RecordWebAuthn, RecordTOTP, RecordBackupCode:
		return RecordType(value), nil
	default:
		return "", ErrRecordTypeMismatch
	}
}

// Status is the lifecycle position of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
	StatusConsumed Status = "consumed"
)

// IdentifierType classifies the address a record is bound to.
type IdentifierType string

const (
	IdentifierEmail    IdentifierType = "email"
	IdentifierPhone    IdentifierType = "phone"
	IdentifierUsername IdentifierType = "username"
)

// Identifier is the address or name a record proves control of.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

// recordTTL bounds how long a pending record stays actionable.
const recordTTL = 10 * time.Minute

/*
Record is the serialized envelope of one verification. Variant payloads are
optional fields selected by Type; this is the JSON-encodable shape of a
tagged union, and all behavior dispatches over Type exhaustively.

Lifecycle: pending transitions to verified at most once, verified to
consumed at most once, and an expired record never verifies.
*/
type Record struct {
	ID         string     `json:"id"`
	Type       RecordType `json:"type"`
	Status     Status     `json:"status"`
	Identifier Identifier `json:"identifier,omitempty"`
	// UserID is set when the record's outcome resolved to an existing
	// account.
	UserID    string     `json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// ## Variant payloads

	// PasscodePurpose scopes EmailCode/PhoneCode records to their flow.
	PasscodePurpose passcode.Purpose `json:"passcode_purpose,omitempty"`
	// NewPasswordDigest carries the staged digest of a
	// NewPasswordIdentity record.
	NewPasswordDigest string `json:"new_password_digest,omitempty"`
	// SocialProvider and SocialProviderUserID identify a federated
	// subject on Social records.
	SocialProvider       string `json:"social_provider,omitempty"`
	SocialProviderUserID string `json:"social_provider_user_id,omitempty"`
	// WebAuthnCredentialID names the authenticator that produced a
	// validated assertion.
	WebAuthnCredentialID string `json:"webauthn_credential_id,omitempty"`
	// WebAuthnCeremony holds the serialized challenge state between the
	// assertion-options request and its verification.
	WebAuthnCeremony []byte `json:"webauthn_ceremony,omitempty"`
}

// newRecord creates a pending record with a fresh ID and expiry.
func newRecord(recordType RecordType, now time.Time) *Record {
	expires := now.Add(recordTTL)
	return &Record{
		ID:        uuid.Must(),
		Type:      recordType,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: &expires,
	}
}

// expired reports whether the record's deadline has passed.
func (r *Record) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// MarkVerified transitions pending to verified. Repeating the call on an
// already verified record is a no-op so strategies stay idempotent on
// identical evidence.
func (r *Record) MarkVerified(now time.Time) error {
	switch r.Status {
	case StatusVerified:
		return nil
	case StatusConsumed:
		return ErrRecordConsumed
	case StatusExpired:
		return ErrVerificationFailed
	}
	if r.expired(now) {
		r.Status = StatusExpired
		return ErrVerificationFailed
	}
	r.Status = StatusVerified
	return nil
}

// Consume transitions verified to consumed. A record can be consumed at
// most once across the interaction's lifetime.
func (r *Record) Consume() error {
	switch r.Status {
	case StatusConsumed:
		return ErrRecordConsumed
	case StatusVerified:
		r.Status = StatusConsumed
		return nil
	default:
		return ErrRecordNotVerified
	}
}

/*
IdentifierTypeForRecord reports the identifier field a record variant can
stage into the profile draft, or false for variants that carry no stageable
identifier. Exhaustive over the variant set.
*/
func IdentifierTypeForRecord(recordType RecordType) (IdentifierType, bool) {
	switch recordType {
	case RecordEmailCode:
		return IdentifierEmail, true
	case RecordPhoneCode:
		return IdentifierPhone, true
	case RecordSocial:
		return IdentifierEmail, true
	case RecordPassword, RecordNewPasswordIdentity, RecordWebAuthn, RecordTOTP, RecordBackupCode:
		return "", false
	default:
		return "", false
	}
}

// # MFA Factor Types

// FactorType names a second-factor kind in client payloads.
type FactorType string

const (
	FactorTOTP       FactorType = "totp"
	FactorWebAuthn   FactorType = "webauthn"
	FactorBackupCode FactorType = "backupCode"
)

// ParseFactorType validates a client-supplied factor name.
func ParseFactorType(value string) (FactorType, error) {
	switch FactorType(value) {
	case FactorTOTP, FactorWebAuthn, FactorBackupCode:
		return FactorType(value), nil
	default:
		return "", ErrRecordTypeMismatch
	}
}

// RecordTypeForFactor maps a factor kind onto the record variant that
// proves it. Exhaustive over the factor set.
func RecordTypeForFactor(factor FactorType) (RecordType, error) {
	switch factor {
	case FactorTOTP:
		return RecordTOTP, nil
	case FactorWebAuthn:
		return RecordWebAuthn, nil
	case FactorBackupCode:
		return RecordBackupCode, nil
	default:
		return "", ErrRecordTypeMismatch
	}
}
