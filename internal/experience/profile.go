// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

// # Profile Draft
//
// Identifier and password changes are staged into the draft during the
// flow and committed to the user record exactly once, at submit. Nothing
// here touches storage; uniqueness and strength checks run in the service
// before staging.

// ProfileDraft holds pending profile values not yet committed.
type ProfileDraft struct {
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Username       string `json:"username,omitempty"`
	PasswordDigest string `json:"password_digest,omitempty"`
}

// HasIdentifier reports whether the draft can identify a new account.
func (d *ProfileDraft) HasIdentifier() bool {
	return d.Email != "" || d.Phone != "" || d.Username != ""
}

// Empty reports whether nothing is staged.
func (d *ProfileDraft) Empty() bool {
	return !d.HasIdentifier() && d.PasswordDigest == ""
}

/*
StageIdentifierFromRecord stages the identifier proven by a verified record
into the profile draft and consumes the record.

Preconditions: the record exists, is verified and unconsumed, its variant
carries a stageable identifier of the claimed type, and it is bound either
to the current identified user or to no user at all (the registration
case).
*/
func (i *Interaction) StageIdentifierFromRecord(identifierType IdentifierType, verificationID string) error {
	record, err := i.findVerifiedRecord(verificationID)
	if err != nil {
		return err
	}

	stageable, ok := IdentifierTypeForRecord(record.Type)
	if !ok || stageable != identifierType || record.Identifier.Type != identifierType {
		return ErrRecordTypeMismatch
	}
	if record.UserID != "" && record.UserID != i.IdentifiedUserID {
		return ErrRecordTypeMismatch
	}

	if err := record.Consume(); err != nil {
		return err
	}

	switch identifierType {
	case IdentifierEmail:
		i.Profile.Email = record.Identifier.Value
	case IdentifierPhone:
		i.Profile.Phone = record.Identifier.Value
	case IdentifierUsername:
		i.Profile.Username = record.Identifier.Value
	}
	return nil
}

// StageUsername stages a username that needs no verification record. The
// caller has already normalized it and checked uniqueness.
func (i *Interaction) StageUsername(username string) {
	i.Profile.Username = username
}

/*
StagePasswordDigest stages a password digest into the draft.

When isReset is true the interaction must be a ForgotPassword flow
(ErrNotSupportedForEvent) with an identified user (ErrNotIdentified).
*/
func (i *Interaction) StagePasswordDigest(digest string, isReset bool) error {
	if isReset {
		if err := i.GuardEvent(EventForgotPassword); err != nil {
			return err
		}
		if err := i.GuardIdentified(); err != nil {
			return err
		}
	}
	i.Profile.PasswordDigest = digest
	return nil
}

/*
StagePasswordFromRecord stages the digest carried by a verified
NewPasswordIdentity record and consumes it. ForgotPassword flows only.
*/
func (i *Interaction) StagePasswordFromRecord(verificationID string) error {
	if err := i.GuardEvent(EventForgotPassword); err != nil {
		return err
	}
	if err := i.GuardIdentified(); err != nil {
		return err
	}

	record, err := i.findVerifiedRecord(verificationID)
	if err != nil {
		return err
	}
	if record.Type != RecordNewPasswordIdentity {
		return ErrRecordTypeMismatch
	}
	if err := record.Consume(); err != nil {
		return err
	}
	i.Profile.PasswordDigest = record.NewPasswordDigest
	return nil
}
