// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/experience"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	"github.com/veridianlabs/veridian/internal/platform/middleware"
	"github.com/veridianlabs/veridian/internal/users"
)

// httpFixture mounts the experience surface the way the API server does.
type httpFixture struct {
	*serviceFixture
	router chi.Router
}

func newHTTPFixture(t *testing.T, policy experience.MfaPolicy) *httpFixture {
	t.Helper()

	fixture := newServiceFixture(t, policy)
	handler := experience.NewHandler(fixture.service, false)

	router := chi.NewRouter()
	router.Use(middleware.InteractionSession())
	router.Mount(constants.InteractionCookiePath, handler.Routes())

	return &httpFixture{serviceFixture: fixture, router: router}
}

// do issues a JSON request, binding sessionID via the interaction header.
func (f *httpFixture) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		request.Header.Set(constants.HeaderXInteractionID, sessionID)
	}

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

/*
TestHTTP_SignInFlow drives the full password sign-in over the wire: the
creation response binds the session cookie, the verification response
carries the record ID, and submit returns the authorization grant.
*/
func TestHTTP_SignInFlow(t *testing.T) {
	fixture := newHTTPFixture(t, experience.MfaPolicy{})

	fixture.repo.add(&users.User{
		ID:           "user-1",
		PrimaryEmail: "ada@example.com",
		PasswordHash: mustHash(t, "correct4horse"),
	})

	// 1. Start the interaction.
	created := fixture.do(t, http.MethodPut, "/experience", "", map[string]string{"event": "SignIn"})
	require.Equal(t, http.StatusNoContent, created.Code)

	sessionID := created.Header().Get(constants.HeaderXInteractionID)
	require.NotEmpty(t, sessionID)

	cookies := created.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, constants.InteractionCookieName, cookies[0].Name)
	assert.Equal(t, sessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// 2. Verify the password.
	verified := fixture.do(t, http.MethodPost, "/experience/verification/password", sessionID, map[string]any{
		"identifier": map[string]string{"type": "email", "value": "ada@example.com"},
		"password":   "correct4horse",
	})
	require.Equal(t, http.StatusOK, verified.Code)
	verificationID, _ := decodeBody(t, verified)["verificationId"].(string)
	require.NotEmpty(t, verificationID)

	// 3. Identify.
	identified := fixture.do(t, http.MethodPost, "/experience/identification", sessionID, map[string]string{
		"verificationId": verificationID,
	})
	require.Equal(t, http.StatusNoContent, identified.Code)

	// 4. Submit and check the grant.
	submitted := fixture.do(t, http.MethodPost, "/experience/submit", sessionID, nil)
	require.Equal(t, http.StatusOK, submitted.Code)

	grant, _ := decodeBody(t, submitted)["authorizationGrant"].(string)
	require.NotEmpty(t, grant)

	claims, err := fixture.grants.VerifyGrant(grant)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

/*
TestHTTP_StatusMapping tables the error contract of the surface: status
code and stable error code per failure.
*/
func TestHTTP_StatusMapping(t *testing.T) {
	fixture := newHTTPFixture(t, experience.MfaPolicy{})

	fixture.repo.add(&users.User{
		ID:           "user-1",
		PrimaryEmail: "ada@example.com",
		PasswordHash: mustHash(t, "correct4horse"),
	})

	created := fixture.do(t, http.MethodPut, "/experience", "", map[string]string{"event": "SignIn"})
	require.Equal(t, http.StatusNoContent, created.Code)
	sessionID := created.Header().Get(constants.HeaderXInteractionID)

	tests := []struct {
		name       string
		method     string
		path       string
		sessionID  string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown_event",
			method:     http.MethodPut,
			path:       "/experience",
			body:       map[string]string{"event": "SignOut"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "session.invalid_event",
		},
		{
			name:       "missing_session",
			method:     http.MethodPost,
			path:       "/experience/submit",
			wantStatus: http.StatusNotFound,
			wantCode:   "session.not_found",
		},
		{
			name:      "malformed_identifier",
			method:    http.MethodPost,
			path:      "/experience/verification/password",
			sessionID: sessionID,
			body: map[string]any{
				"identifier": map[string]string{"type": "email", "value": "not-an-email"},
				"password":   "whatever1",
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:      "wrong_password",
			method:    http.MethodPost,
			path:      "/experience/verification/password",
			sessionID: sessionID,
			body: map[string]any{
				"identifier": map[string]string{"type": "email", "value": "ada@example.com"},
				"password":   "wrong-pass1",
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "verification.failed",
		},
		{
			name:       "reset_outside_forgot_password",
			method:     http.MethodPut,
			path:       "/experience/profile/password",
			sessionID:  sessionID,
			body:       map[string]string{"password": "new8secret!"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "session.not_supported_for_current_event",
		},
		{
			name:       "mfa_factor_before_identification",
			method:     http.MethodPost,
			path:       "/experience/mfa",
			sessionID:  sessionID,
			body:       map[string]string{"type": "totp", "verificationId": "some-id"},
			wantStatus: http.StatusNotFound,
			wantCode:   "session.identifier_not_found",
		},
		{
			name:       "unknown_factor_kind",
			method:     http.MethodPost,
			path:       "/experience/mfa",
			sessionID:  sessionID,
			body:       map[string]string{"type": "sms", "verificationId": "some-id"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := fixture.do(t, tt.method, tt.path, tt.sessionID, tt.body)
			assert.Equal(t, tt.wantStatus, recorder.Code)

			payload := decodeBody(t, recorder)
			assert.Equal(t, tt.wantCode, payload["code"])
		})
	}
}

/*
TestHTTP_VerificationCodeFlow checks the code strategy over the wire,
including the record-not-found and mismatch responses.
*/
func TestHTTP_VerificationCodeFlow(t *testing.T) {
	fixture := newHTTPFixture(t, experience.MfaPolicy{})

	created := fixture.do(t, http.MethodPut, "/experience", "", map[string]string{"event": "Register"})
	require.Equal(t, http.StatusNoContent, created.Code)
	sessionID := created.Header().Get(constants.HeaderXInteractionID)

	sent := fixture.do(t, http.MethodPost, "/experience/verification/verification-code", sessionID, map[string]any{
		"identifier": map[string]string{"type": "email", "value": "new@example.com"},
	})
	require.Equal(t, http.StatusOK, sent.Code)
	verificationID, _ := decodeBody(t, sent)["verificationId"].(string)
	require.NotEmpty(t, verificationID)
	require.NotEmpty(t, fixture.sender.code)

	// Unknown record.
	missing := fixture.do(t, http.MethodPost, "/experience/verification/verification-code/verify", sessionID, map[string]string{
		"verificationId": "0190a1b2-c3d4-7000-8000-000000000009",
		"code":           fixture.sender.code,
	})
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "verification_record.not_found", decodeBody(t, missing)["code"])

	// Wrong code burns an attempt.
	mismatch := fixture.do(t, http.MethodPost, "/experience/verification/verification-code/verify", sessionID, map[string]string{
		"verificationId": verificationID,
		"code":           "000000",
	})
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)
	assert.Equal(t, "verification_code.code_mismatch", decodeBody(t, mismatch)["code"])

	// The right code still verifies.
	verified := fixture.do(t, http.MethodPost, "/experience/verification/verification-code/verify", sessionID, map[string]string{
		"verificationId": verificationID,
		"code":           fixture.sender.code,
	})
	require.Equal(t, http.StatusOK, verified.Code)
}

/*
TestHTTP_SubmitUnidentified checks that finalizing an empty sign-in is
rejected with the identification error.
*/
func TestHTTP_SubmitUnidentified(t *testing.T) {
	fixture := newHTTPFixture(t, experience.MfaPolicy{})

	created := fixture.do(t, http.MethodPut, "/experience", "", map[string]string{"event": "SignIn"})
	sessionID := created.Header().Get(constants.HeaderXInteractionID)

	submitted := fixture.do(t, http.MethodPost, "/experience/submit", sessionID, nil)
	assert.Equal(t, http.StatusNotFound, submitted.Code)
	assert.Equal(t, "session.identifier_not_found", decodeBody(t, submitted)["code"])
}

/*
TestHTTP_CookieBindsSession checks that the cookie alone, without the
header, binds follow-up requests to the interaction.
*/
func TestHTTP_CookieBindsSession(t *testing.T) {
	fixture := newHTTPFixture(t, experience.MfaPolicy{})

	fixture.repo.add(&users.User{
		ID:           "user-1",
		PrimaryEmail: "ada@example.com",
		PasswordHash: mustHash(t, "correct4horse"),
	})

	created := fixture.do(t, http.MethodPut, "/experience", "", map[string]string{"event": "SignIn"})
	require.Equal(t, http.StatusNoContent, created.Code)
	cookie := created.Result().Cookies()[0]

	body, err := json.Marshal(map[string]any{
		"identifier": map[string]string{"type": "email", "value": "ada@example.com"},
		"password":   "correct4horse",
	})
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/experience/verification/password", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	request.AddCookie(cookie)

	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)
}
