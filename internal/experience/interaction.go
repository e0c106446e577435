// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"time"
)

// # Interaction Aggregate

/*
Interaction is the aggregate root of one authentication flow, keyed by its
session ID. It owns the event type, the collected verification records, the
identified-user binding, the MFA state, and the staged profile draft.

All methods are pure in-memory transformations. Persistence is explicit:
the caller loads a snapshot, applies one operation, and saves the result
back through [SessionStore].
*/
type Interaction struct {
	ID               string             `json:"id"`
	Event            Event              `json:"event"`
	IdentifiedUserID string             `json:"identified_user_id,omitempty"`
	Records          map[string]*Record `json:"records,omitempty"`
	Profile          ProfileDraft       `json:"profile,omitempty"`
	MFA              MfaState           `json:"mfa"`
	CreatedAt        time.Time          `json:"created_at"`
}

// NewInteraction creates the empty state for a fresh flow.
func NewInteraction(id string, event Event, now time.Time) *Interaction {
	return &Interaction{
		ID:        id,
		Event:     event,
		Records:   make(map[string]*Record),
		CreatedAt: now,
	}
}

// SetRecord stores or replaces a record by ID without consuming it.
func (i *Interaction) SetRecord(record *Record) {
	if i.Records == nil {
		i.Records = make(map[string]*Record)
	}
	i.Records[record.ID] = record
}

// FindRecord looks a record up by ID.
func (i *Interaction) FindRecord(id string) (*Record, error) {
	record, ok := i.Records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

// findVerifiedRecord looks a record up and requires it to be verified and
// unconsumed.
func (i *Interaction) findVerifiedRecord(id string) (*Record, error) {
	record, err := i.FindRecord(id)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case StatusConsumed:
		return nil, ErrRecordConsumed
	case StatusVerified:
		return record, nil
	default:
		return nil, ErrRecordNotVerified
	}
}

// Identified reports whether a user has been bound to the interaction.
func (i *Interaction) Identified() bool {
	return i.IdentifiedUserID != ""
}

/*
Identify binds the user resolved by a verified record to the interaction.
The record must be verified, unconsumed, and carry a resolved user; Register
flows stay unidentified until the account is created at submit.

Identification is idempotent for the same user and rejected for a different
one: an interaction never switches subjects mid-flight.
*/
func (i *Interaction) Identify(verificationID string) error {
	record, err := i.findVerifiedRecord(verificationID)
	if err != nil {
		return err
	}
	if record.UserID == "" {
		return ErrVerificationFailed
	}
	if i.Identified() {
		if i.IdentifiedUserID != record.UserID {
			return ErrNotSupportedForEvent
		}
		return nil
	}
	i.IdentifiedUserID = record.UserID
	return nil
}

// # Guards
//
// Guards return typed errors instead of panicking; handlers short-circuit
// on the first failure.

// GuardEvent rejects the operation unless the interaction runs one of the
// allowed events.
func (i *Interaction) GuardEvent(allowed ...Event) error {
	for _, event := range allowed {
		if i.Event == event {
			return nil
		}
	}
	return ErrNotSupportedForEvent
}

// GuardIdentified rejects operations that need a bound user.
func (i *Interaction) GuardIdentified() error {
	if !i.Identified() {
		return ErrNotIdentified
	}
	return nil
}

/*
GuardMfaVerificationStatus gates profile- and MFA-sensitive operations. It
rejects ForgotPassword interactions outright (those flows use the dedicated
password-reset operation), requires identification, and requires the factor
policy to be satisfied or skipped for accounts that have factors enrolled.

enrolledFactors is the factor set the identified account could present,
resolved by the caller.
*/
func (i *Interaction) GuardMfaVerificationStatus(policy MfaPolicy, enrolledFactors []FactorType) error {
	if err := i.GuardEvent(EventSignIn, EventRegister); err != nil {
		return err
	}
	if err := i.GuardIdentified(); err != nil {
		return err
	}
	if !i.MFA.Satisfied(policy, enrolledFactors) {
		return ErrMfaPolicyViolation
	}
	return nil
}

// Finalizable reports whether the interaction may be submitted: identified
// (or a completed Register draft) with the factor policy satisfied or
// skipped.
func (i *Interaction) Finalizable(policy MfaPolicy, enrolledFactors []FactorType) error {
	if i.Event == EventRegister && !i.Identified() {
		if !i.Profile.HasIdentifier() {
			return ErrNotIdentified
		}
		return nil
	}
	if err := i.GuardIdentified(); err != nil {
		return err
	}
	if !i.MFA.Satisfied(policy, enrolledFactors) {
		return ErrMfaPolicyViolation
	}
	return nil
}
