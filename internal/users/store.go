// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package users

import "context"

// # Storage Contract

/*
Repository defines the persistence operations the interaction engine needs
to resolve identifiers, enforce uniqueness, and commit finalized drafts.

Implementations must translate driver errors into application errors
(ErrNotFound for missing rows, Conflict for uniqueness violations) so the
engine never inspects driver types.
*/
type Repository interface {
	// ## Identifier resolution

	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindBySocialIdentity(ctx context.Context, provider, providerUserID string) (*User, error)

	// ## Uniqueness

	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// ## Mutations (commit phase only)

	Create(ctx context.Context, input NewUserInput) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateIdentifiers(ctx context.Context, userID string, update IdentifierUpdate) error
	LinkSocialIdentity(ctx context.Context, identity SocialIdentity) error

	// ## MFA credentials

	GetTOTPCredential(ctx context.Context, userID string) (*TOTPCredential, error)
	SaveTOTPCredential(ctx context.Context, cred TOTPCredential) error
	UpdateTOTPLastUsedCounter(ctx context.Context, userID string, counter int64) error

	GetBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, hash string) error

	GetWebAuthnCredentials(ctx context.Context, userID string) (WebAuthnCredentials, error)
	SaveWebAuthnCredential(ctx context.Context, userID string, raw []byte) error

	// EnrolledMfaFactors reports which factor kinds the account has
	// usable credentials for. The engine uses this to evaluate the
	// sign-in MFA policy without loading credential material.
	EnrolledMfaFactors(ctx context.Context, userID string) ([]string, error)
}
