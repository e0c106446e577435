// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/experience"
)

/*
TestMfaState_Satisfied tables the derived satisfaction logic: policy off,
nothing enrolled, skipped, and the verified-factor threshold.
*/
func TestMfaState_Satisfied(t *testing.T) {
	enrolled := []experience.FactorType{experience.FactorTOTP, experience.FactorBackupCode}
	oneFactor := map[experience.FactorType]string{experience.FactorTOTP: "rec-1"}
	twoFactors := map[experience.FactorType]string{
		experience.FactorTOTP:       "rec-1",
		experience.FactorBackupCode: "rec-2",
	}

	tests := []struct {
		name     string
		policy   experience.MfaPolicy
		state    experience.MfaState
		enrolled []experience.FactorType
		want     bool
	}{
		{"policy_off", experience.MfaPolicy{}, experience.MfaState{}, enrolled, true},
		{"nothing_enrolled", experience.MfaPolicy{Required: true, MinFactors: 1}, experience.MfaState{}, nil, true},
		{"skipped", experience.MfaPolicy{Required: true, MinFactors: 1}, experience.MfaState{Skipped: true}, enrolled, true},
		{"unsatisfied", experience.MfaPolicy{Required: true, MinFactors: 1}, experience.MfaState{}, enrolled, false},
		{"one_of_one", experience.MfaPolicy{Required: true, MinFactors: 1}, experience.MfaState{VerifiedFactors: oneFactor}, enrolled, true},
		{"one_of_two", experience.MfaPolicy{Required: true, MinFactors: 2}, experience.MfaState{VerifiedFactors: oneFactor}, enrolled, false},
		{"two_of_two", experience.MfaPolicy{Required: true, MinFactors: 2}, experience.MfaState{VerifiedFactors: twoFactors}, enrolled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Satisfied(tt.policy, tt.enrolled))
		})
	}
}

/*
TestInteraction_SkipMfa checks the skip preconditions and its idempotence.
*/
func TestInteraction_SkipMfa(t *testing.T) {
	allow := experience.MfaPolicy{Required: true, MinFactors: 1, AllowSkip: true}
	deny := experience.MfaPolicy{Required: true, MinFactors: 1, AllowSkip: false}

	t.Run("requires_identification", func(t *testing.T) {
		interaction := newSignIn()
		assert.ErrorIs(t, interaction.SkipMfa(allow), experience.ErrNotIdentified)
	})

	t.Run("policy_forbids_skip", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		assert.ErrorIs(t, interaction.SkipMfa(deny), experience.ErrMfaSkipNotAllowed)
		assert.False(t, interaction.MFA.Skipped)
	})

	t.Run("skip_is_idempotent", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"

		require.NoError(t, interaction.SkipMfa(allow))
		assert.True(t, interaction.MFA.Skipped)
		require.NoError(t, interaction.SkipMfa(allow))
	})
}

/*
TestInteraction_AddMfaFactor covers the factor-counting rules: the record
must be verified, of the claimed kind, and owned by the identified user;
consuming it counts the factor, and a repeated kind does not advance the
count.
*/
func TestInteraction_AddMfaFactor(t *testing.T) {
	policy := experience.MfaPolicy{Required: true, MinFactors: 2, AllowSkip: false}

	t.Run("happy_path_consumes_record", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		record := verifiedRecord(experience.RecordTOTP, "user-1")
		interaction.SetRecord(record)

		require.NoError(t, interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, record.ID))
		assert.Equal(t, experience.StatusConsumed, record.Status)
		assert.Equal(t, record.ID, interaction.MFA.VerifiedFactors[experience.FactorTOTP])

		// The consumed record cannot be presented again.
		assert.ErrorIs(t,
			interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, record.ID),
			experience.ErrRecordConsumed)
	})

	t.Run("kind_mismatch", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		record := verifiedRecord(experience.RecordBackupCode, "user-1")
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, record.ID),
			experience.ErrRecordTypeMismatch)
		assert.Equal(t, experience.StatusVerified, record.Status)
	})

	t.Run("foreign_user_record", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		record := verifiedRecord(experience.RecordTOTP, "user-2")
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, record.ID),
			experience.ErrRecordTypeMismatch)
	})

	t.Run("unverified_record", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		record := pendingRecord(experience.RecordTOTP)
		record.UserID = "user-1"
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, record.ID),
			experience.ErrRecordNotVerified)
	})

	t.Run("duplicate_kind_replaces_entry", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"

		first := verifiedRecord(experience.RecordTOTP, "user-1")
		first.ID = "rec-totp-a"
		second := verifiedRecord(experience.RecordTOTP, "user-1")
		second.ID = "rec-totp-b"
		interaction.SetRecord(first)
		interaction.SetRecord(second)

		require.NoError(t, interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, first.ID))
		require.NoError(t, interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, second.ID))

		// One kind counts once toward the minimum.
		assert.Len(t, interaction.MFA.VerifiedFactors, 1)
		assert.Equal(t, second.ID, interaction.MFA.VerifiedFactors[experience.FactorTOTP])
		assert.False(t, interaction.MFA.Satisfied(policy, []experience.FactorType{experience.FactorTOTP, experience.FactorBackupCode}))
	})

	t.Run("distinct_kinds_reach_minimum", func(t *testing.T) {
		interaction := newSignIn()
		interaction.IdentifiedUserID = "user-1"
		enrolled := []experience.FactorType{experience.FactorTOTP, experience.FactorBackupCode}

		totp := verifiedRecord(experience.RecordTOTP, "user-1")
		backup := verifiedRecord(experience.RecordBackupCode, "user-1")
		interaction.SetRecord(totp)
		interaction.SetRecord(backup)

		require.NoError(t, interaction.AddMfaFactorByVerificationID(policy, experience.FactorTOTP, totp.ID))
		assert.False(t, interaction.MFA.Satisfied(policy, enrolled))

		require.NoError(t, interaction.AddMfaFactorByVerificationID(policy, experience.FactorBackupCode, backup.ID))
		assert.True(t, interaction.MFA.Satisfied(policy, enrolled))
	})
}
