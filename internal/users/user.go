// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package users implements the account aggregate behind the sign-in experience.

It defines the core domain entities (User, enrolled MFA credentials, social
identities) and the storage contract the interaction engine resolves
identifiers against.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate all business rules related to account
identity. The interaction engine never mutates accounts directly: profile
changes are staged in the interaction draft and committed through
[Repository] exactly once, at finalization.
*/
package users

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// # Domain Entities

// User represents a registered account on the Veridian platform.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PrimaryEmail string    `json:"primary_email,omitempty"`
	PrimaryPhone string    `json:"primary_phone,omitempty"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can be challenged with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// TOTPCredential is an enrolled authenticator-app secret.
//
// LastUsedCounter carries the RFC 6238 time-step of the most recently
// accepted code. Verification rejects counters at or below this value so a
// captured code cannot be replayed within its validity window.
type TOTPCredential struct {
	UserID          string
	Secret          []byte
	Verified        bool
	LastUsedCounter int64
	CreatedAt       time.Time
}

// BackupCode stores the SHA-256 digest of a single recovery code.
// The plaintext is shown to the user once at enrollment and never persisted.
type BackupCode struct {
	Hash   string
	UsedAt *time.Time
}

// SocialIdentity links a federated provider subject to a local account.
type SocialIdentity struct {
	UserID         string
	Provider       string
	ProviderUserID string
	Email          string
	CreatedAt      time.Time
}

// NewUserInput carries the staged profile applied when a Register
// interaction finalizes.
type NewUserInput struct {
	ID           string
	Username     string
	PrimaryEmail string
	PrimaryPhone string
	PasswordHash string
}

// IdentifierUpdate carries staged identifier changes for an existing
// account. Nil fields are left untouched.
type IdentifierUpdate struct {
	Username     *string
	PrimaryEmail *string
	PrimaryPhone *string
}

// WebAuthnCredentials is the set of enrolled authenticators for one account.
type WebAuthnCredentials = []webauthn.Credential
