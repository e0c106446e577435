// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"context"
	"time"

	"github.com/veridianlabs/veridian/internal/passcode"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/internal/platform/validate"
	"github.com/veridianlabs/veridian/internal/users"
)

// minPasswordLength is the strength floor for new passwords.
const minPasswordLength = 8

// # Verification Strategies

/*
Verifier implements the per-variant verification algorithms. Each method
validates one piece of evidence, returns a record carrying the typed
outcome, and never mutates state belonging to other records. Re-verifying
identical evidence is idempotent at the record level.
*/
type Verifier struct {
	users    users.Repository
	codes    *passcode.Service
	totp     *sec.TOTPGenerator
	webauthn *sec.WebAuthnVerifier

	// now is swappable for tests.
	now func() time.Time
}

// NewVerifier wires the strategy dependencies.
func NewVerifier(repo users.Repository, codes *passcode.Service, totp *sec.TOTPGenerator, webauthn *sec.WebAuthnVerifier) *Verifier {
	return &Verifier{
		users:    repo,
		codes:    codes,
		totp:     totp,
		webauthn: webauthn,
		now:      time.Now,
	}
}

// resolveUser finds the account behind an identifier. Exhaustive over the
// identifier types.
func (v *Verifier) resolveUser(ctx context.Context, identifier Identifier) (*users.User, error) {
	switch identifier.Type {
	case IdentifierEmail:
		return v.users.FindByEmail(ctx, identifier.Value)
	case IdentifierPhone:
		return v.users.FindByPhone(ctx, identifier.Value)
	case IdentifierUsername:
		return v.users.FindByUsername(ctx, identifier.Value)
	default:
		return nil, ErrRecordTypeMismatch
	}
}

/*
VerifyPassword compares the supplied secret against the stored digest for
the claimed identifier. Missing accounts and mismatches both surface as
ErrVerificationFailed so the response never reveals which identifiers
exist.
*/
func (v *Verifier) VerifyPassword(ctx context.Context, identifier Identifier, password string) (*Record, error) {
	user, err := v.resolveUser(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrVerificationFailed
		}
		return nil, err
	}
	if !user.HasPassword() || !sec.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrVerificationFailed
	}

	record := newRecord(RecordPassword, v.now())
	record.Identifier = identifier
	record.UserID = user.ID
	record.Status = StatusVerified
	return record, nil
}

// recordTypeForCodeIdentifier maps a code destination onto its record
// variant.
func recordTypeForCodeIdentifier(identifierType IdentifierType) (RecordType, error) {
	switch identifierType {
	case IdentifierEmail:
		return RecordEmailCode, nil
	case IdentifierPhone:
		return RecordPhoneCode, nil
	default:
		return "", ErrRecordTypeMismatch
	}
}

/*
CreateVerificationCode issues a one-time code for the identifier and
returns the pending record whose ID doubles as the passcode nonce. The code
is bound to (record ID, flow purpose, identifier) so it cannot satisfy any
other request.
*/
func (v *Verifier) CreateVerificationCode(ctx context.Context, event Event, identifier Identifier) (*Record, error) {
	recordType, err := recordTypeForCodeIdentifier(identifier.Type)
	if err != nil {
		return nil, err
	}
	purpose, err := PurposeForEvent(event)
	if err != nil {
		return nil, err
	}

	record := newRecord(recordType, v.now())
	record.Identifier = identifier
	record.PasscodePurpose = purpose

	destination := passcode.Identifier{Type: string(identifier.Type), Value: identifier.Value}
	if err := v.codes.Create(ctx, record.ID, purpose, destination); err != nil {
		return nil, err
	}
	return record, nil
}

/*
VerifyVerificationCode checks a presented code against the record's triple
and, on success, marks the record verified and resolves the identifier to
an existing account when there is one. An unresolved identifier is not an
error: Register flows verify addresses that have no account yet.
*/
func (v *Verifier) VerifyVerificationCode(ctx context.Context, record *Record, code string) error {
	if record.Type != RecordEmailCode && record.Type != RecordPhoneCode {
		return ErrRecordTypeMismatch
	}

	destination := passcode.Identifier{Type: string(record.Identifier.Type), Value: record.Identifier.Value}
	if err := v.codes.Verify(ctx, record.ID, record.PasscodePurpose, destination, code); err != nil {
		return err
	}
	if err := record.MarkVerified(v.now()); err != nil {
		return err
	}

	user, err := v.resolveUser(ctx, record.Identifier)
	switch {
	case err == nil:
		record.UserID = user.ID
	case isNotFound(err):
		// No account behind the identifier yet.
	default:
		return err
	}
	return nil
}

/*
VerifySocial resolves a connector-validated federated identity to a local
account. The connector transport has already authenticated the subject;
this strategy only binds it. An unlinked subject yields a verified record
without a user, usable to register or to link later.
*/
func (v *Verifier) VerifySocial(ctx context.Context, provider, providerUserID, email string) (*Record, error) {
	record := newRecord(RecordSocial, v.now())
	record.SocialProvider = provider
	record.SocialProviderUserID = providerUserID
	if email != "" {
		record.Identifier = Identifier{Type: IdentifierEmail, Value: email}
	}
	record.Status = StatusVerified

	user, err := v.users.FindBySocialIdentity(ctx, provider, providerUserID)
	switch {
	case err == nil:
		record.UserID = user.ID
	case isNotFound(err):
		// Unlinked subject.
	default:
		return nil, err
	}
	return record, nil
}

/*
CreateNewPasswordIdentity validates a replacement password against the
strength policy, hashes it, and returns a verified record staging the
digest. The record proves nothing about identity; identification must come
from an earlier record.
*/
func (v *Verifier) CreateNewPasswordIdentity(password string) (*Record, error) {
	if err := validatePasswordStrength(password); err != nil {
		return nil, err
	}
	digest, err := sec.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	record := newRecord(RecordNewPasswordIdentity, v.now())
	record.NewPasswordDigest = digest
	record.Status = StatusVerified
	return record, nil
}

/*
VerifyTOTP validates an authenticator code for the identified user with a
±1 step skew window. Codes at or below the last accepted time-step are
rejected, so an intercepted code cannot be replayed even inside its
validity window.
*/
func (v *Verifier) VerifyTOTP(ctx context.Context, userID, code string) (*Record, error) {
	credential, err := v.users.GetTOTPCredential(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}
	if !credential.Verified {
		return nil, ErrNotEnrolled
	}

	ok, counter, err := v.totp.VerifyTOTP(credential.Secret, code, v.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok || counter <= credential.LastUsedCounter {
		return nil, ErrVerificationFailed
	}
	if err := v.users.UpdateTOTPLastUsedCounter(ctx, userID, counter); err != nil {
		return nil, err
	}

	record := newRecord(RecordTOTP, v.now())
	record.UserID = userID
	record.Status = StatusVerified
	return record, nil
}

/*
VerifyBackupCode consumes a single-use recovery code for the identified
user. The stored set holds only digests; the presented code is hashed and
matched atomically, so a code can never verify twice.
*/
func (v *Verifier) VerifyBackupCode(ctx context.Context, userID, code string) (*Record, error) {
	err := v.users.ConsumeBackupCode(ctx, userID, sec.HashToken(code))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrVerificationFailed
		}
		return nil, err
	}

	record := newRecord(RecordBackupCode, v.now())
	record.UserID = userID
	record.Status = StatusVerified
	return record, nil
}

/*
CreateWebAuthnAssertion starts an authenticator ceremony for the identified
user. The returned record is pending and carries the serialized challenge
state; options go back to the client for the authenticator call.
*/
func (v *Verifier) CreateWebAuthnAssertion(ctx context.Context, userID string) (*Record, []byte, error) {
	rpUser, err := v.relyingPartyUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(rpUser.Credentials) == 0 {
		return nil, nil, ErrNotEnrolled
	}

	options, ceremony, err := v.webauthn.BeginAssertion(rpUser)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	record := newRecord(RecordWebAuthn, v.now())
	record.UserID = userID
	record.WebAuthnCeremony = ceremony
	return record, options, nil
}

/*
VerifyWebAuthn finishes the ceremony started by [CreateWebAuthnAssertion],
validating the authenticator's assertion against the stored challenge and
the user's enrolled credentials.
*/
func (v *Verifier) VerifyWebAuthn(ctx context.Context, record *Record, assertionResponse []byte) error {
	if record.Type != RecordWebAuthn {
		return ErrRecordTypeMismatch
	}
	if len(record.WebAuthnCeremony) == 0 {
		return ErrVerificationFailed
	}

	rpUser, err := v.relyingPartyUser(ctx, record.UserID)
	if err != nil {
		return err
	}

	credentialID, err := v.webauthn.FinishAssertion(rpUser, record.WebAuthnCeremony, assertionResponse)
	if err != nil {
		return ErrVerificationFailed
	}

	if err := record.MarkVerified(v.now()); err != nil {
		return err
	}
	record.WebAuthnCredentialID = credentialID
	record.WebAuthnCeremony = nil
	return nil
}

func (v *Verifier) relyingPartyUser(ctx context.Context, userID string) (*sec.RelyingPartyUser, error) {
	user, err := v.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	credentials, err := v.users.GetWebAuthnCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := user.Username
	if name == "" {
		name = user.PrimaryEmail
	}
	if name == "" {
		name = user.ID
	}
	return &sec.RelyingPartyUser{
		ID:          []byte(user.ID),
		Name:        name,
		DisplayName: name,
		Credentials: credentials,
	}, nil
}

// isNotFound reports whether the error is a 404-class application error.
func isNotFound(err error) bool {
	appErr := apperr.As(err)
	return appErr != nil && appErr.HTTPStatus == 404
}

// validatePasswordStrength enforces the minimum password policy shared by
// registration, profile changes, and resets.
func validatePasswordStrength(password string) error {
	v := &validate.Validator{}
	v.Password("password", password, minPasswordLength)
	return v.Err()
}
