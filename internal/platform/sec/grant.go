// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package sec

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GrantClaims is the payload embedded inside a signed authorization grant.
//
// # Why a signed grant?
//
// When an interaction finalizes, the engine hands the upstream OIDC layer a
// short-lived RS256 token asserting WHO was identified and HOW. The OIDC
// layer verifies the signature offline, with no callback into the engine and no
// shared database table between the two services.
type GrantClaims struct {
	jwt.RegisteredClaims

	// Custom claims are abbreviated to keep the grant payload small.
	UserID        string   `json:"uid"`
	InteractionID string   `json:"iid"`
	Event         string   `json:"evt"`
	AMR           []string `json:"amr,omitempty"` // authentication method references
}

// GrantService signs and verifies interaction authorization grants using RS256.
type GrantService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewGrantService creates a new GrantService.
// It reads RSA keys from the provided filesystem paths.
func NewGrantService(privateKeyPath, publicKeyPath, issuer string) (*GrantService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return &GrantService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// IssueGrant creates a signed authorization grant for a finalized interaction.
func (service *GrantService) IssueGrant(userID, interactionID, event string, amr []string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
			ID:        interactionID,
		},
		UserID:        userID,
		InteractionID: interactionID,
		Event:         event,
		AMR:           amr,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign authorization grant: %w", err)
	}

	return signed, nil
}

// VerifyGrant parses and validates a signed grant, returning its claims.
func (service *GrantService) VerifyGrant(tokenString string) (*GrantClaims, error) {
	claims := &GrantClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	}, jwt.WithIssuer(service.issuer))

	if err != nil {
		return nil, fmt.Errorf("sec: invalid authorization grant: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("sec: authorization grant failed validation")
	}

	return claims, nil
}
