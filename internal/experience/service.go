// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/veridianlabs/veridian/internal/dispatch"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/internal/platform/validate"
	"github.com/veridianlabs/veridian/internal/users"
	"github.com/veridianlabs/veridian/pkg/pointer"
	"github.com/veridianlabs/veridian/pkg/uuid"
)

// grantTTL bounds the one-time authorization grant issued at submit.
const grantTTL = 5 * time.Minute

// # Orchestration Service

/*
Service drives the interaction lifecycle. Every operation runs the same
cycle: load the snapshot, apply one transformation, save with the loaded
version token. A lost save race surfaces as ErrConflict; nothing is
retried.
*/
type Service struct {
	sessions   SessionStore
	users      users.Repository
	verifier   *Verifier
	grants     *sec.GrantService
	dispatcher dispatch.Dispatcher
	policy     MfaPolicy
	logger     *slog.Logger

	now func() time.Time
}

// NewService wires the orchestrator.
func NewService(
	sessions SessionStore,
	repo users.Repository,
	verifier *Verifier,
	grants *sec.GrantService,
	dispatcher dispatch.Dispatcher,
	policy MfaPolicy,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions:   sessions,
		users:      repo,
		verifier:   verifier,
		grants:     grants,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// # Lifecycle

/*
CreateInteraction starts a fresh flow, discarding any previous state behind
the session. Returns the new interaction ID for the session cookie.
*/
func (s *Service) CreateInteraction(ctx context.Context, eventName string) (string, error) {
	event, err := ParseEvent(eventName)
	if err != nil {
		return "", err
	}

	interaction := NewInteraction(uuid.Must(), event, s.now())
	if err := s.sessions.Create(ctx, interaction); err != nil {
		return "", err
	}

	_ = s.dispatcher.Dispatch(ctx, dispatch.Event{
		Type:             dispatch.EventInteractionCreated,
		InteractionID:    interaction.ID,
		InteractionEvent: string(event),
		OccurredAt:       s.now(),
	})

	s.logger.InfoContext(ctx, "interaction created", slog.String("event", eventName))
	return interaction.ID, nil
}

// load fetches the snapshot for a continuation request.
func (s *Service) load(ctx context.Context, sessionID string) (*Interaction, int64, error) {
	if sessionID == "" {
		return nil, 0, ErrSessionNotFound
	}
	return s.sessions.Load(ctx, sessionID)
}

// # Verification Operations
//
// Each operation binds a new record into the snapshot and returns its ID
// so the client can reference it in later requests.

// VerifyPassword checks a password against the claimed identifier and
// stores the verified record.
func (s *Service) VerifyPassword(ctx context.Context, sessionID string, identifier Identifier, password string) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	record, err := s.verifier.VerifyPassword(ctx, identifier, password)
	if err != nil {
		return "", err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// SendVerificationCode issues and delivers a one-time code for the
// identifier under the interaction's flow purpose.
func (s *Service) SendVerificationCode(ctx context.Context, sessionID string, identifier Identifier) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	record, err := s.verifier.CreateVerificationCode(ctx, interaction.Event, identifier)
	if err != nil {
		return "", err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// VerifyVerificationCode checks a presented code against a previously
// issued record.
func (s *Service) VerifyVerificationCode(ctx context.Context, sessionID, verificationID, code string) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	record, err := interaction.FindRecord(verificationID)
	if err != nil {
		return "", err
	}
	if err := s.verifier.VerifyVerificationCode(ctx, record, code); err != nil {
		// A burned attempt is a state change worth persisting even
		// though the verification failed.
		if saveErr := s.sessions.Save(ctx, interaction, version); saveErr != nil {
			return "", saveErr
		}
		return "", err
	}

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// VerifySocial binds a connector-validated federated identity into the
// interaction.
func (s *Service) VerifySocial(ctx context.Context, sessionID, provider, providerUserID, email string) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	record, err := s.verifier.VerifySocial(ctx, provider, providerUserID, email)
	if err != nil {
		return "", err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

/*
CreateNewPasswordIdentity stages a replacement password as a verified
record. ForgotPassword flows only; identity binding happens when the
record is consumed by the reset operation.
*/
func (s *Service) CreateNewPasswordIdentity(ctx context.Context, sessionID, password string) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := interaction.GuardEvent(EventForgotPassword); err != nil {
		return "", err
	}

	record, err := s.verifier.CreateNewPasswordIdentity(password)
	if err != nil {
		return "", err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// VerifyTOTP validates an authenticator code for the identified user.
func (s *Service) VerifyTOTP(ctx context.Context, sessionID, code string) (string, error) {
	return s.verifyFactor(ctx, sessionID, func(ctx context.Context, userID string) (*Record, error) {
		return s.verifier.VerifyTOTP(ctx, userID, code)
	})
}

// VerifyBackupCode consumes a recovery code for the identified user.
func (s *Service) VerifyBackupCode(ctx context.Context, sessionID, code string) (string, error) {
	return s.verifyFactor(ctx, sessionID, func(ctx context.Context, userID string) (*Record, error) {
		return s.verifier.VerifyBackupCode(ctx, userID, code)
	})
}

func (s *Service) verifyFactor(ctx context.Context, sessionID string, verify func(context.Context, string) (*Record, error)) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := interaction.GuardIdentified(); err != nil {
		return "", err
	}

	record, err := verify(ctx, interaction.IdentifiedUserID)
	if err != nil {
		return "", err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// CreateWebAuthnAssertion starts an authenticator ceremony and returns the
// pending record ID with the client-facing options.
func (s *Service) CreateWebAuthnAssertion(ctx context.Context, sessionID string) (string, []byte, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	if err := interaction.GuardIdentified(); err != nil {
		return "", nil, err
	}

	record, options, err := s.verifier.CreateWebAuthnAssertion(ctx, interaction.IdentifiedUserID)
	if err != nil {
		return "", nil, err
	}
	interaction.SetRecord(record)

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", nil, err
	}
	return record.ID, options, nil
}

// VerifyWebAuthn finishes a pending authenticator ceremony.
func (s *Service) VerifyWebAuthn(ctx context.Context, sessionID, verificationID string, assertionResponse []byte) (string, error) {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	record, err := interaction.FindRecord(verificationID)
	if err != nil {
		return "", err
	}
	if err := s.verifier.VerifyWebAuthn(ctx, record, assertionResponse); err != nil {
		return "", err
	}

	if err := s.sessions.Save(ctx, interaction, version); err != nil {
		return "", err
	}
	return record.ID, nil
}

// # Identification

// Identify binds the user resolved by a verified record to the
// interaction.
func (s *Service) Identify(ctx context.Context, sessionID, verificationID string) error {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := interaction.Identify(verificationID); err != nil {
		return err
	}
	return s.sessions.Save(ctx, interaction, version)
}

// # Profile Operations

// ProfileInput is one staged profile mutation: an identifier proven by a
// record, a plain username, or a new password.
type ProfileInput struct {
	Type           string // "Email" | "Phone" | "Username" | "password"
	Value          string
	VerificationID string
}

/*
SubmitProfile stages one profile field into the draft.

ForgotPassword flows are rejected outright; those use the dedicated reset
operation. SignIn flows additionally require an identified user with the
factor policy satisfied or skipped before any profile mutation.
*/
func (s *Service) SubmitProfile(ctx context.Context, sessionID string, input ProfileInput) error {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := interaction.GuardEvent(EventSignIn, EventRegister); err != nil {
		return err
	}
	if interaction.Event == EventSignIn {
		enrolled, err := s.enrolledFactors(ctx, interaction)
		if err != nil {
			return err
		}
		if err := interaction.GuardMfaVerificationStatus(s.policy, enrolled); err != nil {
			return err
		}
	}

	switch input.Type {
	case "Email":
		if err := s.stageVerifiedIdentifier(ctx, interaction, IdentifierEmail, input.VerificationID); err != nil {
			return err
		}
	case "Phone":
		if err := s.stageVerifiedIdentifier(ctx, interaction, IdentifierPhone, input.VerificationID); err != nil {
			return err
		}
	case "Username":
		if err := s.stageUsername(ctx, interaction, input.Value); err != nil {
			return err
		}
	case "password":
		if err := validatePasswordStrength(input.Value); err != nil {
			return err
		}
		digest, err := sec.HashPassword(input.Value)
		if err != nil {
			return apperr.Internal(err)
		}
		if err := interaction.StagePasswordDigest(digest, false); err != nil {
			return err
		}
	default:
		return apperr.ValidationError("Unknown profile field type",
			apperr.FieldError{Field: "type", Message: "must be one of Email, Phone, Username, password"})
	}

	return s.sessions.Save(ctx, interaction, version)
}

// stageVerifiedIdentifier checks uniqueness for the identifier proven by
// the record, then stages it and consumes the record.
func (s *Service) stageVerifiedIdentifier(ctx context.Context, interaction *Interaction, identifierType IdentifierType, verificationID string) error {
	record, err := interaction.FindRecord(verificationID)
	if err != nil {
		return err
	}

	// The identifier may belong to the current user (re-verification)
	// but never to a different account.
	if record.Identifier.Value != "" {
		owner, err := s.verifier.resolveUser(ctx, record.Identifier)
		switch {
		case err == nil && owner.ID != interaction.IdentifiedUserID:
			return ErrIdentifierInUse
		case err != nil && !isNotFound(err):
			return err
		}
	}

	return interaction.StageIdentifierFromRecord(identifierType, verificationID)
}

// stageUsername validates, NFKC-normalizes, and uniqueness-checks a
// username before staging it.
func (s *Service) stageUsername(ctx context.Context, interaction *Interaction, username string) error {
	username = norm.NFKC.String(username)

	v := &validate.Validator{}
	v.Required("username", username).MinLen("username", username, 3).MaxLen("username", username, 64).Username("username", username)
	if err := v.Err(); err != nil {
		return err
	}

	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return ErrIdentifierInUse
	}

	interaction.StageUsername(username)
	return nil
}

/*
ResetPassword stages a replacement password for a ForgotPassword flow. The
caller supplies either the plain password or the ID of a verified
NewPasswordIdentity record. The staged digest is committed at submit.
*/
func (s *Service) ResetPassword(ctx context.Context, sessionID, password, verificationID string) error {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	if verificationID != "" {
		if err := interaction.StagePasswordFromRecord(verificationID); err != nil {
			return err
		}
		return s.sessions.Save(ctx, interaction, version)
	}

	if err := interaction.GuardEvent(EventForgotPassword); err != nil {
		return err
	}
	if err := interaction.GuardIdentified(); err != nil {
		return err
	}
	if err := validatePasswordStrength(password); err != nil {
		return err
	}

	// A reset to the current password is a no-op the user almost
	// certainly did not intend.
	current, err := s.users.FindByID(ctx, interaction.IdentifiedUserID)
	if err != nil {
		return err
	}
	if current.HasPassword() && sec.CheckPasswordHash(password, current.PasswordHash) {
		return apperr.ValidationError("New password must differ from the current password",
			apperr.FieldError{Field: "password", Message: "must not match the current password"})
	}

	digest, err := sec.HashPassword(password)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := interaction.StagePasswordDigest(digest, true); err != nil {
		return err
	}
	return s.sessions.Save(ctx, interaction, version)
}

// # MFA Operations

// SkipMfa bypasses factor verification when the policy allows it.
// Idempotent.
func (s *Service) SkipMfa(ctx context.Context, sessionID string) error {
	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := interaction.SkipMfa(s.policy); err != nil {
		return err
	}
	return s.sessions.Save(ctx, interaction, version)
}

// AddMfaFactor counts a verified record as a completed second factor.
func (s *Service) AddMfaFactor(ctx context.Context, sessionID, factorName, verificationID string) error {
	factor, err := ParseFactorType(factorName)
	if err != nil {
		return err
	}

	interaction, version, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := interaction.AddMfaFactorByVerificationID(s.policy, factor, verificationID); err != nil {
		return err
	}
	return s.sessions.Save(ctx, interaction, version)
}

// # Finalization

/*
Submit finalizes the interaction: commits the profile draft (creating the
account on Register), issues the one-time authorization grant for the
upstream token layer, clears the session, and dispatches the ended event.
*/
func (s *Service) Submit(ctx context.Context, sessionID string) (string, error) {
	interaction, _, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	enrolled, err := s.enrolledFactors(ctx, interaction)
	if err != nil {
		return "", err
	}
	if err := interaction.Finalizable(s.policy, enrolled); err != nil {
		return "", err
	}

	userID, err := s.commitDraft(ctx, interaction)
	if err != nil {
		return "", err
	}

	grant, err := s.grants.IssueGrant(userID, interaction.ID, string(interaction.Event), amrValues(interaction), grantTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return "", err
	}

	_ = s.dispatcher.Dispatch(ctx, dispatch.Event{
		Type:             dispatch.EventInteractionEnded,
		InteractionID:    interaction.ID,
		UserID:           userID,
		InteractionEvent: string(interaction.Event),
		OccurredAt:       s.now(),
	})

	s.logger.InfoContext(ctx, "interaction finalized", slog.String("event", string(interaction.Event)))
	return grant, nil
}

// commitDraft writes the staged profile changes to the user store exactly
// once and returns the subject's user ID.
func (s *Service) commitDraft(ctx context.Context, interaction *Interaction) (string, error) {
	if interaction.Event == EventRegister && !interaction.Identified() {
		created, err := s.users.Create(ctx, users.NewUserInput{
			ID:           uuid.Must(),
			Username:     interaction.Profile.Username,
			PrimaryEmail: interaction.Profile.Email,
			PrimaryPhone: interaction.Profile.Phone,
			PasswordHash: interaction.Profile.PasswordDigest,
		})
		if err != nil {
			return "", err
		}
		if err := s.linkSocialIdentities(ctx, interaction, created.ID); err != nil {
			return "", err
		}
		return created.ID, nil
	}

	userID := interaction.IdentifiedUserID
	if interaction.Profile.PasswordDigest != "" {
		if err := s.users.UpdatePassword(ctx, userID, interaction.Profile.PasswordDigest); err != nil {
			return "", err
		}
	}
	if interaction.Profile.HasIdentifier() {
		update := users.IdentifierUpdate{}
		if interaction.Profile.Username != "" {
			update.Username = pointer.To(interaction.Profile.Username)
		}
		if interaction.Profile.Email != "" {
			update.PrimaryEmail = pointer.To(interaction.Profile.Email)
		}
		if interaction.Profile.Phone != "" {
			update.PrimaryPhone = pointer.To(interaction.Profile.Phone)
		}
		if err := s.users.UpdateIdentifiers(ctx, userID, update); err != nil {
			return "", err
		}
	}
	if err := s.linkSocialIdentities(ctx, interaction, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// linkSocialIdentities persists provider links proven during the flow for
// subjects that had no link yet.
func (s *Service) linkSocialIdentities(ctx context.Context, interaction *Interaction, userID string) error {
	for _, record := range interaction.Records {
		if record.Type != RecordSocial || record.SocialProvider == "" || record.UserID != "" {
			continue
		}
		if record.Status != StatusVerified && record.Status != StatusConsumed {
			continue
		}
		err := s.users.LinkSocialIdentity(ctx, users.SocialIdentity{
			UserID:         userID,
			Provider:       record.SocialProvider,
			ProviderUserID: record.SocialProviderUserID,
			Email:          record.Identifier.Value,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// enrolledFactors resolves the factor kinds the identified account could
// present. Unidentified interactions have none.
func (s *Service) enrolledFactors(ctx context.Context, interaction *Interaction) ([]FactorType, error) {
	if !interaction.Identified() {
		return nil, nil
	}
	names, err := s.users.EnrolledMfaFactors(ctx, interaction.IdentifiedUserID)
	if err != nil {
		return nil, err
	}

	factors := make([]FactorType, 0, len(names))
	for _, name := range names {
		switch name {
		case "Totp":
			factors = append(factors, FactorTOTP)
		case "BackupCode":
			factors = append(factors, FactorBackupCode)
		case "WebAuthn":
			factors = append(factors, FactorWebAuthn)
		}
	}
	return factors, nil
}

/*
amrValues derives the RFC 8176 authentication-method references for the
grant from the records that contributed to the flow. Exhaustive over the
record variants.
*/
func amrValues(interaction *Interaction) []string {
	seen := make(map[string]bool)
	var amr []string
	add := func(value string) {
		if value != "" && !seen[value] {
			seen[value] = true
			amr = append(amr, value)
		}
	}

	for _, record := range interaction.Records {
		if record.Status != StatusVerified && record.Status != StatusConsumed {
			continue
		}
		switch record.Type {
		case RecordPassword:
			add("pwd")
		case RecordEmailCode, RecordPhoneCode:
			add("otp")
		case RecordSocial:
			add("fed")
		case RecordNewPasswordIdentity:
			// Stages a credential; proves nothing.
		case RecordWebAuthn:
			add("hwk")
		case RecordTOTP:
			add("otp")
			add("mfa")
		case RecordBackupCode:
			add("mfa")
		}
	}
	return amr
}
