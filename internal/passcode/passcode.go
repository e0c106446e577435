// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package passcode issues and verifies the short-lived one-time codes used by
the verification-code flows of the sign-in experience.

Codes are keyed by the triple (nonce, purpose, identifier): a code requested
for one interaction, flow, or address can never satisfy a different one.
Verification is single-use and attempt-limited.
*/
package passcode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/sec"
)

// # Constants

const (
	// TTL is how long an issued code stays valid.
	TTL = 10 * time.Minute

	// MaxAttempts is the number of wrong guesses tolerated before the
	// code is destroyed.
	MaxAttempts = 10

	// CodeDigits is the length of the generated numeric code.
	CodeDigits = 6
)

// # Types

// Purpose scopes a code to the flow that requested it.
type Purpose string

const (
	PurposeSignIn         Purpose = "SignIn"
	PurposeRegister       Purpose = "Register"
	PurposeForgotPassword Purpose = "ForgotPassword"
)

// MessageType selects the notification template used when delivering a code.
type MessageType string

const (
	MessageTypeSignIn         MessageType = "SignIn"
	MessageTypeRegister       MessageType = "Register"
	MessageTypeForgotPassword MessageType = "ForgotPassword"
)

// Identifier is the destination address a code is bound to and delivered to.
type Identifier struct {
	Type  string `json:"type"` // "email" or "phone"
	Value string `json:"value"`
}

// Sender delivers a generated code over one channel (email or SMS).
type Sender interface {
	Send(ctx context.Context, to string, messageType MessageType, code string) error
}

// # Error Catalog

var (
	ErrNotFound     = apperr.New(404, "verification_code.not_found", "Verification code not found")
	ErrCodeMismatch = apperr.New(400, "verification_code.code_mismatch", "Incorrect verification code")
	ErrExpired      = apperr.New(400, "verification_code.expired", "Verification code has expired")
	ErrExceedMaxTry = apperr.New(429, "verification_code.exceed_max_try", "Too many failed verification attempts")
)

/*
MessageTypeForPurpose maps a flow purpose onto the notification template it
uses. The template catalog is still keyed by the legacy message types rather
than by purpose, so this mapping has to stay total: a purpose without a
template would silently break code delivery for that flow.

TODO: key notification templates by purpose directly and retire this mapping.
*/
func MessageTypeForPurpose(purpose Purpose) (MessageType, error) {
	switch purpose {
	case PurposeSignIn:
		return MessageTypeSignIn, nil
	case PurposeRegister:
		return MessageTypeRegister, nil
	case PurposeForgotPassword:
		return MessageTypeForgotPassword, nil
	default:
		return "", fmt.Errorf("no message type mapped for purpose %q", purpose)
	}
}

// # Service

// Service issues, delivers, and verifies one-time codes.
type Service struct {
	store       Store
	emailSender Sender
	smsSender   Sender
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService wires the code store with the per-channel delivery senders.
func NewService(store Store, emailSender, smsSender Sender, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		emailSender: emailSender,
		smsSender:   smsSender,
		logger:      logger,
		now:         time.Now,
	}
}

/*
Create generates a fresh code for the (nonce, purpose, identifier) triple,
persists it with a deadline, and delivers it over the channel matching the
identifier type. Re-creating for the same triple replaces the previous code,
so only the most recently delivered code is ever valid.

Parameters:
  - ctx: context.Context
  - nonce: string (the requesting interaction's verification record ID)
  - purpose: Purpose
  - identifier: Identifier

Returns:
  - error: Template mapping, persistence, or delivery failures
*/
func (service *Service) Create(ctx context.Context, nonce string, purpose Purpose, identifier Identifier) error {
	messageType, err := MessageTypeForPurpose(purpose)
	if err != nil {
		return apperr.Internal(err)
	}

	code, err := sec.GenerateNumericCode(CodeDigits)
	if err != nil {
		return apperr.Internal(err)
	}

	record := Record{
		CodeHash:  sec.HashToken(code),
		ExpiresAt: service.now().Add(TTL).Unix(),
	}
	if err := service.store.Save(ctx, Key(nonce, purpose, identifier), record, TTL); err != nil {
		return err
	}

	sender := service.senderFor(identifier)
	if sender == nil {
		return apperr.Internal(fmt.Errorf("no sender configured for identifier type %q", identifier.Type))
	}
	if err := sender.Send(ctx, identifier.Value, messageType, code); err != nil {
		return apperr.ServiceUnavailable("Could not deliver verification code")
	}

	service.logger.InfoContext(ctx, "verification code issued",
		slog.String("purpose", string(purpose)),
		slog.String("channel", identifier.Type),
	)
	return nil
}

/*
Verify checks a presented code against the stored one for the exact
(nonce, purpose, identifier) triple. A correct code is consumed atomically
and can never verify twice. A wrong code burns one attempt; exhausting
[MaxAttempts] destroys the stored code.

Returns:
  - error: ErrNotFound, ErrExpired, ErrCodeMismatch, ErrExceedMaxTry, or
    store failures
*/
func (service *Service) Verify(ctx context.Context, nonce string, purpose Purpose, identifier Identifier, code string) error {
	err := service.store.Consume(ctx, Key(nonce, purpose, identifier), sec.HashToken(code), MaxAttempts)
	if err != nil {
		service.logger.WarnContext(ctx, "verification code rejected",
			slog.String("purpose", string(purpose)),
			slog.String("channel", identifier.Type),
		)
	}
	return err
}

func (service *Service) senderFor(identifier Identifier) Sender {
	switch identifier.Type {
	case "email":
		return service.emailSender
	case "phone":
		return service.smsSender
	default:
		return nil
	}
}
