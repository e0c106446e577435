// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package sec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// # WebAuthn Assertions

// RelyingPartyUser is the credential view of an account that the WebAuthn
// ceremony operates on. The users package hydrates it from storage.
type RelyingPartyUser struct {
	ID          []byte
	Name        string
	DisplayName string
	Credentials []webauthn.Credential
}

// WebAuthnID implements [webauthn.User].
func (u *RelyingPartyUser) WebAuthnID() []byte { return u.ID }

// WebAuthnName implements [webauthn.User].
func (u *RelyingPartyUser) WebAuthnName() string { return u.Name }

// WebAuthnDisplayName implements [webauthn.User].
func (u *RelyingPartyUser) WebAuthnDisplayName() string { return u.DisplayName }

// WebAuthnCredentials implements [webauthn.User].
func (u *RelyingPartyUser) WebAuthnCredentials() []webauthn.Credential { return u.Credentials }

// WebAuthnVerifier wraps the go-webauthn library for assertion ceremonies.
//
// # Scope
//
// Only the authentication (assertion) half lives here. Credential
// registration happens in the account console, outside the sign-in
// experience surface.
type WebAuthnVerifier struct {
	web *webauthn.WebAuthn
}

// NewWebAuthnVerifier configures the relying party once at startup.
func NewWebAuthnVerifier(rpID, rpName, rpOrigin string) (*WebAuthnVerifier, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpName,
		RPOrigins:     []string{rpOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("sec: failed to configure webauthn relying party: %w", err)
	}
	return &WebAuthnVerifier{web: web}, nil
}

// BeginAssertion starts a login ceremony for the user.
//
// It returns the credential request options to hand to the browser and the
// opaque ceremony state that must accompany the finishing call. Both are
// JSON so the interaction snapshot can persist them between requests.
func (v *WebAuthnVerifier) BeginAssertion(user *RelyingPartyUser) (options, ceremonyState []byte, err error) {
	assertion, sessionData, err := v.web.BeginLogin(user)
	if err != nil {
		return nil, nil, fmt.Errorf("sec: failed to begin webauthn assertion: %w", err)
	}

	options, err = json.Marshal(assertion)
	if err != nil {
		return nil, nil, fmt.Errorf("sec: failed to encode assertion options: %w", err)
	}

	ceremonyState, err = json.Marshal(sessionData)
	if err != nil {
		return nil, nil, fmt.Errorf("sec: failed to encode ceremony state: %w", err)
	}

	return options, ceremonyState, nil
}

// FinishAssertion validates the authenticator's response against the stored
// ceremony state and the user's enrolled credentials.
//
// On success it returns the base64url credential ID that satisfied the
// challenge, so callers can record which authenticator was used.
func (v *WebAuthnVerifier) FinishAssertion(user *RelyingPartyUser, ceremonyState, assertionResponse []byte) (string, error) {
	var sessionData webauthn.SessionData
	if err := json.Unmarshal(ceremonyState, &sessionData); err != nil {
		return "", fmt.Errorf("sec: failed to decode ceremony state: %w", err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(assertionResponse))
	if err != nil {
		return "", fmt.Errorf("sec: malformed assertion response: %w", err)
	}

	credential, err := v.web.ValidateLogin(user, sessionData, parsed)
	if err != nil {
		return "", fmt.Errorf("sec: assertion validation failed: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(credential.ID), nil
}
