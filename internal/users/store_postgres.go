// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/dberr"
)

// # Repository Implementation

// PostgresRepository implements [Repository] using pgx.
//
// Schema table mapping:
//   - users.account: Master identity and credential data.
//   - users.totp_credential: 1:1 authenticator-app enrollment.
//   - users.backup_code: Hashed single-use recovery codes.
//   - users.webauthn_credential: Enrolled passkeys and security keys.
//   - users.social_identity: Federated provider subject links.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres implementation of the account store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, username, primary_email, primary_phone, password_hash, name, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var username, email, phone, passwordHash, name *string
	err := row.Scan(
		&user.ID,
		&username,
		&email,
		&phone,
		&passwordHash,
		&name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if username != nil {
		user.Username = *username
	}
	if email != nil {
		user.PrimaryEmail = *email
	}
	if phone != nil {
		user.PrimaryPhone = *phone
	}
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if name != nil {
		user.Name = *name
	}
	return user, nil
}

// # Identifier Resolution

/*
FindByID retrieves a user record from the users.account table.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - *User: Hydrated identity entity
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users.account WHERE id = $1`, userColumns)
	return repository.findOne(context, query, id)
}

// FindByEmail resolves an account by its primary email, case-insensitively.
func (repository *PostgresRepository) FindByEmail(context context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users.account WHERE LOWER(primary_email) = LOWER($1)`, userColumns)
	return repository.findOne(context, query, email)
}

// FindByPhone resolves an account by its primary phone in E.164 form.
func (repository *PostgresRepository) FindByPhone(context context.Context, phone string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users.account WHERE primary_phone = $1`, userColumns)
	return repository.findOne(context, query, phone)
}

// FindByUsername resolves an account by its username, case-insensitively.
func (repository *PostgresRepository) FindByUsername(context context.Context, username string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users.account WHERE LOWER(username) = LOWER($1)`, userColumns)
	return repository.findOne(context, query, username)
}

/*
FindBySocialIdentity resolves the account linked to a federated provider subject.

Parameters:
  - context: context.Context
  - provider: string (connector target, e.g. "github")
  - providerUserID: string (subject identifier issued by the provider)

Returns:
  - *User: Linked account
  - error: apperr.NotFound when no link exists
*/
func (repository *PostgresRepository) FindBySocialIdentity(context context.Context, provider, providerUserID string) (*User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users.account a
		JOIN users.social_identity s ON s.user_id = a.id
		WHERE s.provider = $1 AND s.provider_user_id = $2`,
		prefixColumns("a", userColumns))
	return repository.findOne(context, query, provider, providerUserID)
}

func (repository *PostgresRepository) findOne(context context.Context, query string, args ...any) (*User, error) {
	user, err := scanUser(repository.pool.QueryRow(context, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_users_repo_find_failed: %w", err)
	}
	return user, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// # Uniqueness Checks

// EmailExists reports whether the email is already claimed by any account.
func (repository *PostgresRepository) EmailExists(context context.Context, email string) (bool, error) {
	return repository.exists(context,
		`SELECT EXISTS(SELECT 1 FROM users.account WHERE LOWER(primary_email) = LOWER($1))`, email)
}

// PhoneExists reports whether the phone number is already claimed by any account.
func (repository *PostgresRepository) PhoneExists(context context.Context, phone string) (bool, error) {
	return repository.exists(context,
		`SELECT EXISTS(SELECT 1 FROM users.account WHERE primary_phone = $1)`, phone)
}

// UsernameExists reports whether the username is already claimed by any account.
func (repository *PostgresRepository) UsernameExists(context context.Context, username string) (bool, error) {
	return repository.exists(context,
		`SELECT EXISTS(SELECT 1 FROM users.account WHERE LOWER(username) = LOWER($1))`, username)
}

func (repository *PostgresRepository) exists(context context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := repository.pool.QueryRow(context, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_users_repo_exists_failed: %w", err)
	}
	return exists, nil
}

// # Mutations

/*
Create inserts a new account from a finalized registration draft.

Parameters:
  - context: context.Context
  - input: NewUserInput (staged profile committed at interaction submit)

Returns:
  - *User: Persisted entity with timestamps
  - error: apperr.Conflict on identifier collision, or insertion failures
*/
func (repository *PostgresRepository) Create(context context.Context, input NewUserInput) (*User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users.account (id, username, primary_email, primary_phone, password_hash)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		RETURNING %s`, userColumns)

	user, err := scanUser(repository.pool.QueryRow(context, query,
		input.ID,
		input.Username,
		input.PrimaryEmail,
		input.PrimaryPhone,
		input.PasswordHash,
	))

	// If the insert fails, map driver errors to application errors
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_users_repo_create_failed")
	}

	return user, nil
}

/*
UpdatePassword replaces the stored credential hash for an account.

Parameters:
  - context: context.Context
  - userID: string
  - passwordHash: string (bcrypt digest)

Returns:
  - error: apperr.NotFound when the account does not exist
*/
func (repository *PostgresRepository) UpdatePassword(context context.Context, userID, passwordHash string) error {
	tag, err := repository.pool.Exec(context,
		`UPDATE users.account SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_users_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

/*
UpdateIdentifiers applies staged identifier changes to an existing account.
Nil fields in the update are left untouched.

Parameters:
  - context: context.Context
  - userID: string
  - update: IdentifierUpdate

Returns:
  - error: apperr.Conflict on identifier collision, apperr.NotFound for missing accounts
*/
func (repository *PostgresRepository) UpdateIdentifiers(context context.Context, userID string, update IdentifierUpdate) error {
	tag, err := repository.pool.Exec(context, `
		UPDATE users.account SET
			username = COALESCE($2, username),
			primary_email = COALESCE($3, primary_email),
			primary_phone = COALESCE($4, primary_phone),
			updated_at = $5
		WHERE id = $1`,
		userID, update.Username, update.PrimaryEmail, update.PrimaryPhone, time.Now())
	if err != nil {
		return dberr.Wrap(err, "postgres_users_repo_update_identifiers_failed")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

// LinkSocialIdentity records a federated provider link for an account.
func (repository *PostgresRepository) LinkSocialIdentity(context context.Context, identity SocialIdentity) error {
	_, err := repository.pool.Exec(context, `
		INSERT INTO users.social_identity (user_id, provider, provider_user_id, email)
		VALUES ($1, $2, $3, NULLIF($4, ''))`,
		identity.UserID, identity.Provider, identity.ProviderUserID, identity.Email)
	if err != nil {
		return dberr.Wrap(err, "postgres_users_repo_link_social_failed")
	}
	return nil
}

// # MFA Credentials

/*
GetTOTPCredential retrieves the authenticator-app enrollment for an account.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *TOTPCredential: Secret material and replay watermark
  - error: apperr.NotFound when the account has no TOTP enrollment
*/
func (repository *PostgresRepository) GetTOTPCredential(context context.Context, userID string) (*TOTPCredential, error) {
	cred := &TOTPCredential{}
	err := repository.pool.QueryRow(context, `
		SELECT user_id, secret, verified, last_used_counter, created_at
		FROM users.totp_credential WHERE user_id = $1`,
		userID).Scan(&cred.UserID, &cred.Secret, &cred.Verified, &cred.LastUsedCounter, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("TOTP credential")
		}
		return nil, fmt.Errorf("postgres_users_repo_get_totp_failed: %w", err)
	}
	return cred, nil
}

// SaveTOTPCredential upserts the authenticator-app enrollment for an account.
func (repository *PostgresRepository) SaveTOTPCredential(context context.Context, cred TOTPCredential) error {
	_, err := repository.pool.Exec(context, `
		INSERT INTO users.totp_credential (user_id, secret, verified, last_used_counter)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			verified = EXCLUDED.verified,
			last_used_counter = EXCLUDED.last_used_counter`,
		cred.UserID, cred.Secret, cred.Verified, cred.LastUsedCounter)
	if err != nil {
		return fmt.Errorf("postgres_users_repo_save_totp_failed: %w", err)
	}
	return nil
}

/*
UpdateTOTPLastUsedCounter advances the replay watermark for an account's
authenticator enrollment. The update is monotonic: a stale counter never
overwrites a newer one.

Parameters:
  - context: context.Context
  - userID: string
  - counter: int64 (accepted RFC 6238 time-step)

Returns:
  - error: Update failures
*/
func (repository *PostgresRepository) UpdateTOTPLastUsedCounter(context context.Context, userID string, counter int64) error {
	_, err := repository.pool.Exec(context, `
		UPDATE users.totp_credential SET last_used_counter = $2
		WHERE user_id = $1 AND last_used_counter < $2`,
		userID, counter)
	if err != nil {
		return fmt.Errorf("postgres_users_repo_update_totp_counter_failed: %w", err)
	}
	return nil
}

// GetBackupCodes retrieves all recovery codes for an account, used and unused.
func (repository *PostgresRepository) GetBackupCodes(context context.Context, userID string) ([]BackupCode, error) {
	rows, err := repository.pool.Query(context,
		`SELECT code_hash, used_at FROM users.backup_code WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_users_repo_get_backup_codes_failed: %w", err)
	}
	defer rows.Close()

	var codes []BackupCode
	for rows.Next() {
		var code BackupCode
		if err := rows.Scan(&code.Hash, &code.UsedAt); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ReplaceBackupCodes swaps the full recovery-code set for an account inside
// a transaction so a partial failure never leaves a mixed set.
func (repository *PostgresRepository) ReplaceBackupCodes(context context.Context, userID string, hashes []string) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_users_repo_replace_backup_codes_failed: %w", err)
	}
	defer transaction.Rollback(context)

	if _, err := transaction.Exec(context,
		`DELETE FROM users.backup_code WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres_users_repo_replace_backup_codes_failed: %w", err)
	}
	for _, hash := range hashes {
		if _, err := transaction.Exec(context,
			`INSERT INTO users.backup_code (user_id, code_hash) VALUES ($1, $2)`, userID, hash); err != nil {
			return fmt.Errorf("postgres_users_repo_replace_backup_codes_failed: %w", err)
		}
	}
	return transaction.Commit(context)
}

/*
ConsumeBackupCode marks a single unused recovery code as spent.

Parameters:
  - context: context.Context
  - userID: string
  - hash: string (hex SHA-256 of the presented code)

Returns:
  - error: apperr.NotFound when no unused code matches the hash
*/
func (repository *PostgresRepository) ConsumeBackupCode(context context.Context, userID, hash string) error {
	tag, err := repository.pool.Exec(context, `
		UPDATE users.backup_code SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		userID, hash)
	if err != nil {
		return fmt.Errorf("postgres_users_repo_consume_backup_code_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Backup code")
	}
	return nil
}

// GetWebAuthnCredentials retrieves the deserialized passkey set for an account.
func (repository *PostgresRepository) GetWebAuthnCredentials(context context.Context, userID string) (WebAuthnCredentials, error) {
	rows, err := repository.pool.Query(context,
		`SELECT credential FROM users.webauthn_credential WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_users_repo_get_webauthn_failed: %w", err)
	}
	defer rows.Close()

	var credentials WebAuthnCredentials
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var credential webauthn.Credential
		if err := json.Unmarshal(raw, &credential); err != nil {
			return nil, fmt.Errorf("postgres_users_repo_decode_webauthn_failed: %w", err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, rows.Err()
}

// SaveWebAuthnCredential stores a serialized passkey for an account.
func (repository *PostgresRepository) SaveWebAuthnCredential(context context.Context, userID string, raw []byte) error {
	_, err := repository.pool.Exec(context,
		`INSERT INTO users.webauthn_credential (user_id, credential) VALUES ($1, $2)`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("postgres_users_repo_save_webauthn_failed: %w", err)
	}
	return nil
}

/*
EnrolledMfaFactors reports which factor kinds the account has usable
credentials for, without loading credential material.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Factor kinds ("Totp", "BackupCode", "WebAuthn")
  - error: Query failures
*/
func (repository *PostgresRepository) EnrolledMfaFactors(context context.Context, userID string) ([]string, error) {
	var hasTotp, hasBackup, hasWebAuthn bool
	err := repository.pool.QueryRow(context, `
		SELECT
			EXISTS(SELECT 1 FROM users.totp_credential WHERE user_id = $1 AND verified),
			EXISTS(SELECT 1 FROM users.backup_code WHERE user_id = $1 AND used_at IS NULL),
			EXISTS(SELECT 1 FROM users.webauthn_credential WHERE user_id = $1)`,
		userID).Scan(&hasTotp, &hasBackup, &hasWebAuthn)
	if err != nil {
		return nil, fmt.Errorf("postgres_users_repo_enrolled_factors_failed: %w", err)
	}

	var factors []string
	if hasTotp {
		factors = append(factors, "Totp")
	}
	if hasBackup {
		factors = append(factors, "BackupCode")
	}
	if hasWebAuthn {
		factors = append(factors, "WebAuthn")
	}
	return factors, nil
}
