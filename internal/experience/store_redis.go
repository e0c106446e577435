// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/constants"
)

// # Redis Session Store

// snapshot is the stored envelope: the interaction plus its version token.
type snapshot struct {
	Version     int64        `json:"version"`
	Interaction *Interaction `json:"interaction"`
}

// RedisSessionStore implements [SessionStore] with optimistic versioning
// under WATCH. Two concurrent saves against the same session cannot both
// win; the loser gets ErrConflict.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string {
	return constants.RedisPrefixInteraction + id
}

// Load retrieves the snapshot and its version token.
func (store *RedisSessionStore) Load(ctx context.Context, id string) (*Interaction, int64, error) {
	data, err := store.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, apperr.ServiceUnavailable("Session store unavailable")
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, 0, apperr.Internal(fmt.Errorf("session_snapshot_decode_failed: %w", err))
	}
	return snap.Interaction, snap.Version, nil
}

// Create writes version 1 unconditionally, discarding any prior state.
func (store *RedisSessionStore) Create(ctx context.Context, interaction *Interaction) error {
	encoded, err := json.Marshal(snapshot{Version: 1, Interaction: interaction})
	if err != nil {
		return apperr.Internal(err)
	}
	if err := store.client.Set(ctx, sessionKey(interaction.ID), encoded, SessionTTL).Err(); err != nil {
		return apperr.ServiceUnavailable("Session store unavailable")
	}
	return nil
}

/*
Save commits the snapshot inside a WATCH transaction. The stored version
must still equal expectedVersion; otherwise another request saved first and
this writer loses with ErrConflict rather than overwriting.
*/
func (store *RedisSessionStore) Save(ctx context.Context, interaction *Interaction, expectedVersion int64) error {
	key := sessionKey(interaction.ID)

	err := store.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}

		var current snapshot
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return ErrConflict
		}

		encoded, err := json.Marshal(snapshot{Version: expectedVersion + 1, Interaction: interaction})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, SessionTTL)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrSessionNotFound
	case errors.Is(err, redis.TxFailedErr):
		// The key changed between WATCH and EXEC: a concurrent save won.
		return ErrConflict
	case apperr.IsAppError(err):
		return err
	default:
		return apperr.Internal(fmt.Errorf("session_snapshot_save_failed: %w", err))
	}
}

// Delete removes the snapshot.
func (store *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := store.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return apperr.ServiceUnavailable("Session store unavailable")
	}
	return nil
}
