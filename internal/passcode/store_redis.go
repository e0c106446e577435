// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package passcode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	"github.com/veridianlabs/veridian/internal/platform/sec"
)

// # Storage Contract

// Record is the persisted shape of one issued code. Only the digest of the
// code is stored.
type Record struct {
	CodeHash  string `json:"code_hash"`
	ExpiresAt int64  `json:"expires_at"`
	Attempts  int    `json:"attempts"`
}

// Store persists issued codes and consumes them atomically.
type Store interface {
	Save(ctx context.Context, key string, record Record, ttl time.Duration) error
	// Consume deletes the record when providedHash matches, burns an
	// attempt when it does not, and destroys the record once maxAttempts
	// is reached.
	Consume(ctx context.Context, key, providedHash string, maxAttempts int) error
}

// Key derives the storage key for a (nonce, purpose, identifier) triple.
// The triple is digested so identifier values never appear in Redis keys.
func Key(nonce string, purpose Purpose, identifier Identifier) string {
	sum := sha256.Sum256([]byte(nonce + "|" + string(purpose) + "|" + identifier.Type + "|" + identifier.Value))
	return constants.RedisPrefixPasscode + hex.EncodeToString(sum[:])
}

// # Redis Implementation

// RedisStore implements [Store] on go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed code store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save overwrites any code previously issued for the key.
func (store *RedisStore) Save(ctx context.Context, key string, record Record, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := store.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return apperr.ServiceUnavailable("Verification code store unavailable")
	}
	return nil
}

/*
Consume runs the check-and-consume cycle inside a WATCH transaction so two
concurrent guesses can never both succeed, and a failed guess reliably burns
an attempt. On WATCH contention the cycle retries a bounded number of times.
*/
func (store *RedisStore) Consume(ctx context.Context, key, providedHash string, maxAttempts int) error {
	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := store.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrExpired
			}

			if !sec.ConstantTimeEquals(record.CodeHash, providedHash) {
				record.Attempts++
				if record.Attempts >= maxAttempts {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return ErrExceedMaxTry
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return ErrExpired
				}

				updated, err := json.Marshal(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			return txDelete(ctx, tx, key)
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			if apperr.IsAppError(err) {
				return err
			}
			return apperr.Internal(fmt.Errorf("passcode_store_consume_failed: %w", err))
		}
		return nil
	}

	return apperr.ServiceUnavailable("Verification code store contention")
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
