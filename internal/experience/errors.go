// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import "github.com/veridianlabs/veridian/internal/platform/apperr"

// # Error Catalog
//
// Every precondition failure in the engine maps onto one of these values.
// Codes are part of the client contract and must stay stable.

var (
	// ErrInvalidEvent rejects unrecognized interaction event names.
	ErrInvalidEvent = apperr.New(400, "session.invalid_event", "Unrecognized interaction event")

	// ErrNotSupportedForEvent rejects an operation invoked under the
	// wrong interaction event, such as a password reset outside a
	// ForgotPassword flow.
	ErrNotSupportedForEvent = apperr.New(400, "session.not_supported_for_current_event", "Operation is not supported for the current interaction event")

	// ErrNotIdentified rejects operations that require a bound user
	// before identification has happened.
	ErrNotIdentified = apperr.New(404, "session.identifier_not_found", "No identified user in the current interaction")

	// ErrSessionNotFound rejects continuation requests with no active
	// interaction behind the session.
	ErrSessionNotFound = apperr.New(404, "session.not_found", "No active interaction session")

	// ErrMfaPolicyViolation rejects MFA-guarded operations when the
	// interaction neither satisfies the factor policy nor skipped it.
	ErrMfaPolicyViolation = apperr.New(403, "session.mfa_policy_violation", "Multi-factor policy is not satisfied")

	// ErrMfaSkipNotAllowed rejects a skip attempt under a policy that
	// forbids skipping.
	ErrMfaSkipNotAllowed = apperr.New(403, "session.mfa_skip_not_allowed", "Multi-factor verification cannot be skipped")

	ErrRecordNotFound     = apperr.New(404, "verification_record.not_found", "Verification record not found")
	ErrRecordConsumed     = apperr.New(422, "verification_record.consumed", "Verification record has already been used")
	ErrRecordTypeMismatch = apperr.New(422, "verification_record.type_mismatch", "Verification record type does not match the request")
	ErrRecordNotVerified  = apperr.New(422, "verification_record.not_verified", "Verification record is not verified")

	// ErrVerificationFailed covers credential mismatches across all
	// strategies. The message deliberately does not reveal whether the
	// identifier exists.
	ErrVerificationFailed = apperr.New(422, "verification.failed", "Invalid credentials")

	// ErrNotEnrolled rejects factor verification for accounts without a
	// usable credential of that kind.
	ErrNotEnrolled = apperr.New(422, "verification.not_enrolled", "No enrolled credential of this type")

	// ErrIdentifierInUse rejects staging an identifier already claimed
	// by a different account.
	ErrIdentifierInUse = apperr.New(422, "profile.identifier_in_use", "Identifier is already in use")

	// ErrConflict surfaces a lost optimistic-save race. The client
	// should reload the interaction and retry.
	ErrConflict = apperr.Conflict("Interaction was modified concurrently")
)
