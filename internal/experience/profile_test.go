// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/experience"
)

/*
TestInteraction_StageIdentifierFromRecord covers staging a proven
identifier into the draft: type agreement between the claim, the record
variant, and the bound identifier, plus ownership and single consumption.
*/
func TestInteraction_StageIdentifierFromRecord(t *testing.T) {
	t.Run("stages_email_and_consumes", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p1", experience.EventRegister, time.Now())
		record := verifiedRecord(experience.RecordEmailCode, "")
		record.Identifier = experience.Identifier{Type: experience.IdentifierEmail, Value: "ada@example.com"}
		interaction.SetRecord(record)

		require.NoError(t, interaction.StageIdentifierFromRecord(experience.IdentifierEmail, record.ID))
		assert.Equal(t, "ada@example.com", interaction.Profile.Email)
		assert.Equal(t, experience.StatusConsumed, record.Status)

		// Second staging attempt finds the record consumed.
		assert.ErrorIs(t,
			interaction.StageIdentifierFromRecord(experience.IdentifierEmail, record.ID),
			experience.ErrRecordConsumed)
	})

	t.Run("claimed_type_must_match_variant", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p2", experience.EventRegister, time.Now())
		record := verifiedRecord(experience.RecordEmailCode, "")
		record.Identifier = experience.Identifier{Type: experience.IdentifierEmail, Value: "ada@example.com"}
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.StageIdentifierFromRecord(experience.IdentifierPhone, record.ID),
			experience.ErrRecordTypeMismatch)
		assert.Equal(t, experience.StatusVerified, record.Status)
	})

	t.Run("non_stageable_variant", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p3", experience.EventSignIn, time.Now())
		record := verifiedRecord(experience.RecordPassword, "user-1")
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.StageIdentifierFromRecord(experience.IdentifierEmail, record.ID),
			experience.ErrRecordTypeMismatch)
	})

	t.Run("foreign_user_record", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p4", experience.EventSignIn, time.Now())
		interaction.IdentifiedUserID = "user-1"
		record := verifiedRecord(experience.RecordEmailCode, "user-2")
		record.Identifier = experience.Identifier{Type: experience.IdentifierEmail, Value: "eve@example.com"}
		interaction.SetRecord(record)

		assert.ErrorIs(t,
			interaction.StageIdentifierFromRecord(experience.IdentifierEmail, record.ID),
			experience.ErrRecordTypeMismatch)
	})
}

/*
TestInteraction_StagePasswordDigest checks the reset-specific guards: a
reset digest needs a ForgotPassword flow with an identified user, while a
registration digest stages unconditionally.
*/
func TestInteraction_StagePasswordDigest(t *testing.T) {
	t.Run("register_draft", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p5", experience.EventRegister, time.Now())
		require.NoError(t, interaction.StagePasswordDigest("digest-1", false))
		assert.Equal(t, "digest-1", interaction.Profile.PasswordDigest)
	})

	t.Run("reset_outside_forgot_password", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p6", experience.EventSignIn, time.Now())
		interaction.IdentifiedUserID = "user-1"
		assert.ErrorIs(t,
			interaction.StagePasswordDigest("digest-1", true),
			experience.ErrNotSupportedForEvent)
	})

	t.Run("reset_requires_identification", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p7", experience.EventForgotPassword, time.Now())
		assert.ErrorIs(t,
			interaction.StagePasswordDigest("digest-1", true),
			experience.ErrNotIdentified)

		interaction.IdentifiedUserID = "user-1"
		require.NoError(t, interaction.StagePasswordDigest("digest-1", true))
	})
}

/*
TestInteraction_StagePasswordFromRecord checks staging via a verified
NewPasswordIdentity record, including type and consumption rules.
*/
func TestInteraction_StagePasswordFromRecord(t *testing.T) {
	newForgot := func(identified bool) *experience.Interaction {
		interaction := experience.NewInteraction("itx-p8", experience.EventForgotPassword, time.Now())
		if identified {
			interaction.IdentifiedUserID = "user-1"
		}
		return interaction
	}

	t.Run("happy_path", func(t *testing.T) {
		interaction := newForgot(true)
		record := verifiedRecord(experience.RecordNewPasswordIdentity, "")
		record.NewPasswordDigest = "digest-2"
		interaction.SetRecord(record)

		require.NoError(t, interaction.StagePasswordFromRecord(record.ID))
		assert.Equal(t, "digest-2", interaction.Profile.PasswordDigest)
		assert.Equal(t, experience.StatusConsumed, record.Status)

		assert.ErrorIs(t, interaction.StagePasswordFromRecord(record.ID), experience.ErrRecordConsumed)
	})

	t.Run("wrong_event", func(t *testing.T) {
		interaction := experience.NewInteraction("itx-p9", experience.EventSignIn, time.Now())
		interaction.IdentifiedUserID = "user-1"
		assert.ErrorIs(t, interaction.StagePasswordFromRecord("any"), experience.ErrNotSupportedForEvent)
	})

	t.Run("requires_identification", func(t *testing.T) {
		interaction := newForgot(false)
		assert.ErrorIs(t, interaction.StagePasswordFromRecord("any"), experience.ErrNotIdentified)
	})

	t.Run("wrong_record_type", func(t *testing.T) {
		interaction := newForgot(true)
		record := verifiedRecord(experience.RecordPassword, "user-1")
		interaction.SetRecord(record)

		assert.ErrorIs(t, interaction.StagePasswordFromRecord(record.ID), experience.ErrRecordTypeMismatch)
	})
}

/*
TestProfileDraft_Flags checks the draft inspection helpers.
*/
func TestProfileDraft_Flags(t *testing.T) {
	draft := experience.ProfileDraft{}
	assert.True(t, draft.Empty())
	assert.False(t, draft.HasIdentifier())

	draft.PasswordDigest = "digest"
	assert.False(t, draft.Empty())
	assert.False(t, draft.HasIdentifier())

	draft.Username = "ada"
	assert.True(t, draft.HasIdentifier())
}
