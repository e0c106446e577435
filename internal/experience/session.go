// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"context"
	"time"
)

// SessionTTL bounds how long an idle interaction survives. Every save
// refreshes the deadline.
const SessionTTL = 30 * time.Minute

// # Session Store Contract

/*
SessionStore persists interaction snapshots keyed by session ID.

Load returns the snapshot together with an opaque version token. Save
requires the token from the load it was derived from: a save against a
newer version means another request committed in between, and fails with
ErrConflict instead of silently discarding that writer's changes.
*/
type SessionStore interface {
	// Load retrieves the current snapshot and its version token.
	// Returns ErrSessionNotFound when no interaction exists.
	Load(ctx context.Context, id string) (*Interaction, int64, error)

	// Create writes a fresh snapshot, replacing any previous state for
	// the session. Flow initiation always starts clean.
	Create(ctx context.Context, interaction *Interaction) error

	// Save commits a mutated snapshot if the stored version still
	// matches expectedVersion. Returns ErrConflict on a lost race and
	// ErrSessionNotFound when the session expired underneath.
	Save(ctx context.Context, interaction *Interaction, expectedVersion int64) error

	// Delete removes the snapshot, ending the interaction.
	Delete(ctx context.Context, id string) error
}
