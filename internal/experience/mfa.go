// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

// # MFA State Machine
//
// Three logical states: NotRequired (policy off or nothing enrolled, skip
// allowed), Required-Unsatisfied, Satisfied. The state is derived from the
// policy, the account's enrolled factors, and the verified factor set
// rather than stored, so it can never drift from its inputs.

// MfaPolicy is the tenant-level factor requirement.
type MfaPolicy struct {
	// Required forces factor verification for accounts with enrolled
	// factors.
	Required bool
	// MinFactors is the number of distinct verified factors needed to
	// satisfy the policy.
	MinFactors int
	// AllowSkip permits the user to bypass factor verification.
	AllowSkip bool
}

// MfaState tracks the interaction's progress against the factor policy.
type MfaState struct {
	Skipped bool `json:"skipped,omitempty"`
	// VerifiedFactors lists the record IDs consumed as factors, keyed
	// by factor kind. One kind counts once toward the minimum.
	VerifiedFactors map[FactorType]string `json:"verified_factors,omitempty"`
}

// Satisfied reports whether the policy is met for an account with the given
// enrolled factors.
func (s *MfaState) Satisfied(policy MfaPolicy, enrolledFactors []FactorType) bool {
	if !policy.Required || len(enrolledFactors) == 0 {
		return true
	}
	if s.Skipped {
		return true
	}
	return len(s.VerifiedFactors) >= policy.MinFactors
}

/*
Skip marks factor verification as bypassed. Allowed only under a policy
that permits skipping; repeating the call is a no-op, not an error.
*/
func (i *Interaction) SkipMfa(policy MfaPolicy) error {
	if err := i.GuardEvent(EventSignIn, EventRegister); err != nil {
		return err
	}
	if err := i.GuardIdentified(); err != nil {
		return err
	}
	if !policy.AllowSkip {
		return ErrMfaSkipNotAllowed
	}
	i.MFA.Skipped = true
	return nil
}

/*
AddMfaFactorByVerificationID counts a verified record as a completed factor.

The record must exist (ErrRecordNotFound), be unconsumed
(ErrRecordConsumed), be verified (ErrRecordNotVerified), match the claimed
factor kind (ErrRecordTypeMismatch), and belong to the identified user. On
success the record is consumed and the factor recorded; re-presenting the
same factor kind replaces the previous entry without advancing the count.
*/
func (i *Interaction) AddMfaFactorByVerificationID(policy MfaPolicy, factor FactorType, verificationID string) error {
	if err := i.GuardEvent(EventSignIn, EventRegister); err != nil {
		return err
	}
	if err := i.GuardIdentified(); err != nil {
		return err
	}

	record, err := i.findVerifiedRecord(verificationID)
	if err != nil {
		return err
	}

	expectedType, err := RecordTypeForFactor(factor)
	if err != nil {
		return err
	}
	if record.Type != expectedType {
		return ErrRecordTypeMismatch
	}
	if record.UserID != i.IdentifiedUserID {
		return ErrRecordTypeMismatch
	}

	if err := record.Consume(); err != nil {
		return err
	}
	if i.MFA.VerifiedFactors == nil {
		i.MFA.VerifiedFactors = make(map[FactorType]string)
	}
	i.MFA.VerifiedFactors[factor] = record.ID
	return nil
}
