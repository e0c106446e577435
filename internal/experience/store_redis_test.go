// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/experience"
)

func newTestSessionStore(t *testing.T) (*experience.RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return experience.NewRedisSessionStore(client), server
}

/*
TestSessionStore_RoundTrip checks create, load, and the version bump on
each successful save.
*/
func TestSessionStore_RoundTrip(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	interaction := experience.NewInteraction("itx-s1", experience.EventSignIn, time.Now().UTC())
	require.NoError(t, store.Create(ctx, interaction))

	loaded, version, err := store.Load(ctx, interaction.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.Equal(t, interaction.ID, loaded.ID)
	assert.Equal(t, experience.EventSignIn, loaded.Event)

	loaded.IdentifiedUserID = "user-1"
	require.NoError(t, store.Save(ctx, loaded, version))

	reloaded, version, err := store.Load(ctx, interaction.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.Equal(t, "user-1", reloaded.IdentifiedUserID)
}

/*
TestSessionStore_StaleSaveConflicts checks that a save derived from an
outdated load loses with ErrConflict and does not overwrite the winner.
*/
func TestSessionStore_StaleSaveConflicts(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	interaction := experience.NewInteraction("itx-s2", experience.EventRegister, time.Now().UTC())
	require.NoError(t, store.Create(ctx, interaction))

	// Two requests load the same snapshot.
	first, version, err := store.Load(ctx, interaction.ID)
	require.NoError(t, err)
	second, sameVersion, err := store.Load(ctx, interaction.ID)
	require.NoError(t, err)
	require.Equal(t, version, sameVersion)

	first.Profile.Email = "first@example.com"
	require.NoError(t, store.Save(ctx, first, version))

	second.Profile.Email = "second@example.com"
	assert.ErrorIs(t, store.Save(ctx, second, sameVersion), experience.ErrConflict)

	// The winner's state survived.
	current, _, err := store.Load(ctx, interaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", current.Profile.Email)
}

/*
TestSessionStore_Expiry checks that an idle session disappears after its
TTL and surfaces as ErrSessionNotFound on both load and save.
*/
func TestSessionStore_Expiry(t *testing.T) {
	store, server := newTestSessionStore(t)
	ctx := context.Background()

	interaction := experience.NewInteraction("itx-s3", experience.EventSignIn, time.Now().UTC())
	require.NoError(t, store.Create(ctx, interaction))

	server.FastForward(experience.SessionTTL + time.Second)

	_, _, err := store.Load(ctx, interaction.ID)
	assert.ErrorIs(t, err, experience.ErrSessionNotFound)
	assert.ErrorIs(t, store.Save(ctx, interaction, 1), experience.ErrSessionNotFound)
}

/*
TestSessionStore_CreateReplacesPriorState checks that flow initiation
always starts clean, resetting the version.
*/
func TestSessionStore_CreateReplacesPriorState(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	original := experience.NewInteraction("itx-s4", experience.EventSignIn, time.Now().UTC())
	require.NoError(t, store.Create(ctx, original))

	loaded, version, err := store.Load(ctx, original.ID)
	require.NoError(t, err)
	loaded.IdentifiedUserID = "user-1"
	require.NoError(t, store.Save(ctx, loaded, version))

	replacement := experience.NewInteraction("itx-s4", experience.EventForgotPassword, time.Now().UTC())
	require.NoError(t, store.Create(ctx, replacement))

	fresh, version, err := store.Load(ctx, original.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.Equal(t, experience.EventForgotPassword, fresh.Event)
	assert.Empty(t, fresh.IdentifiedUserID)
}

/*
TestSessionStore_Delete checks that deletion ends the interaction.
*/
func TestSessionStore_Delete(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	interaction := experience.NewInteraction("itx-s5", experience.EventSignIn, time.Now().UTC())
	require.NoError(t, store.Create(ctx, interaction))
	require.NoError(t, store.Delete(ctx, interaction.ID))

	_, _, err := store.Load(ctx, interaction.ID)
	assert.ErrorIs(t, err, experience.ErrSessionNotFound)
}
