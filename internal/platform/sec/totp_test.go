// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package sec_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/platform/sec"
)

// rfc4226Secret is the 20-byte ASCII secret from RFC 4226 Appendix D.
var rfc4226Secret = []byte("12345678901234567890")

// rfc4226Codes are the 6-digit HOTP values for counters 0 through 9.
var rfc4226Codes = []string{
	"755224", "287082", "359152", "969429", "338314",
	"254676", "287922", "162583", "399871", "520489",
}

// stepTime returns a wall clock inside the 30-second window of the counter.
func stepTime(counter int64) time.Time {
	return time.Unix(counter*30, 0).UTC()
}

/*
TestVerifyTOTP_ReferenceVectors checks the generator against the published
HOTP reference values, mapping each counter onto its time window.
*/
func TestVerifyTOTP_ReferenceVectors(t *testing.T) {
	generator := &sec.TOTPGenerator{Issuer: "Veridian Test"}

	for counter, code := range rfc4226Codes {
		t.Run(fmt.Sprintf("counter_%d", counter), func(t *testing.T) {
			ok, matched, err := generator.VerifyTOTP(rfc4226Secret, code, stepTime(int64(counter)))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.EqualValues(t, counter, matched)
		})
	}
}

/*
TestVerifyTOTP_SkewWindow checks that a code is accepted one step away in
either direction and rejected beyond that.
*/
func TestVerifyTOTP_SkewWindow(t *testing.T) {
	generator := &sec.TOTPGenerator{Issuer: "Veridian Test"}
	code := rfc4226Codes[5]

	tests := []struct {
		name    string
		baseAt  int64
		matches bool
	}{
		{"one_step_early", 4, true},
		{"exact", 5, true},
		{"one_step_late", 6, true},
		{"two_steps_late", 7, false},
		{"two_steps_early", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, matched, err := generator.VerifyTOTP(rfc4226Secret, code, stepTime(tt.baseAt))
			require.NoError(t, err)
			assert.Equal(t, tt.matches, ok)
			if tt.matches {
				assert.EqualValues(t, 5, matched)
			}
		})
	}
}

/*
TestVerifyTOTP_MalformedInput checks that structurally invalid codes fail
fast without touching the secret.
*/
func TestVerifyTOTP_MalformedInput(t *testing.T) {
	generator := &sec.TOTPGenerator{Issuer: "Veridian Test"}

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		ok, _, err := generator.VerifyTOTP(rfc4226Secret, code, stepTime(1))
		require.NoError(t, err, code)
		assert.False(t, ok, code)
	}

	// Whitespace around an otherwise valid code is tolerated.
	ok, _, err := generator.VerifyTOTP(rfc4226Secret, " "+rfc4226Codes[1]+" ", stepTime(1))
	require.NoError(t, err)
	assert.True(t, ok)
}

/*
TestVerifyTOTP_EmptySecret checks that a missing secret is an error, not a
silent mismatch.
*/
func TestVerifyTOTP_EmptySecret(t *testing.T) {
	generator := &sec.TOTPGenerator{Issuer: "Veridian Test"}

	_, _, err := generator.VerifyTOTP(nil, rfc4226Codes[0], stepTime(0))
	assert.Error(t, err)
}

/*
TestGenerateTOTPSecret checks entropy length and the provisioning URI shape.
*/
func TestGenerateTOTPSecret(t *testing.T) {
	generator := &sec.TOTPGenerator{Issuer: "Veridian"}

	raw, encoded, err := generator.GenerateTOTPSecret()
	require.NoError(t, err)
	assert.Len(t, raw, 20)
	assert.NotEmpty(t, encoded)

	uri := generator.ProvisionURI(encoded, "ada@example.com")
	assert.Contains(t, uri, "otpauth://totp/")
	assert.Contains(t, uri, "issuer=Veridian")
	assert.Contains(t, uri, "secret="+encoded)
}
