// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package experience

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridianlabs/veridian/internal/platform/constants"
	requestutil "github.com/veridianlabs/veridian/internal/platform/request"
	"github.com/veridianlabs/veridian/internal/platform/respond"
	"github.com/veridianlabs/veridian/internal/platform/validate"
)

// Handler implements the experience HTTP endpoints.
//
// # Scope
//
// All routes operate on the interaction bound to the request's session
// cookie (or X-Interaction-ID header). Handlers parse and validate input,
// delegate to the service, and map every failure through [respond.Error].
// They contain no flow logic.
type Handler struct {
	service      *Service
	secureCookie bool
}

// NewHandler constructs a new [Handler] with its service dependency.
// secureCookie controls the Secure attribute of the session cookie and
// should be true outside local development.
func NewHandler(service *Service, secureCookie bool) *Handler {
	return &Handler{service: service, secureCookie: secureCookie}
}

// Routes returns a [chi.Router] with the full experience surface.
//
// # Endpoints
//   - PUT  /                                      : Start a fresh interaction.
//   - POST /identification                        : Bind a verified record's user.
//   - POST /submit                                : Finalize and issue the grant.
//   - POST /profile                               : Stage a profile field.
//   - PUT  /profile/password                      : Stage a password reset.
//   - POST /mfa                                   : Count a verified factor.
//   - POST /mfa/mfa-skipped                       : Skip factor verification.
//   - POST /verification/*                        : Per-strategy evidence checks.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Put("/", handler.createInteraction)
	router.Post("/identification", handler.identify)
	router.Post("/submit", handler.submit)

	router.Post("/profile", handler.submitProfile)
	router.Put("/profile/password", handler.resetPassword)

	router.Post("/mfa", handler.addMfaFactor)
	router.Post("/mfa/mfa-skipped", handler.skipMfa)

	router.Route("/verification", func(r chi.Router) {
		r.Post("/password", handler.verifyPassword)
		r.Post("/verification-code", handler.sendVerificationCode)
		r.Post("/verification-code/verify", handler.verifyVerificationCode)
		r.Post("/new-password-identity", handler.newPasswordIdentity)
		r.Post("/social/verify", handler.verifySocial)
		r.Post("/totp/verify", handler.verifyTOTP)
		r.Post("/backup-code/verify", handler.verifyBackupCode)
		r.Post("/web-authn", handler.createWebAuthnAssertion)
		r.Post("/web-authn/verify", handler.verifyWebAuthn)
	})

	return router
}

// verificationResponse is the shared 200 body of every verification route.
type verificationResponse struct {
	VerificationID string `json:"verificationId"`
}

// identifierPayload mirrors the client-side identifier shape.
type identifierPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (p identifierPayload) validate(v *validate.Validator) {
	v.Required("identifier.type", p.Type).OneOf("identifier.type", p.Type, "email", "phone", "username")
	v.Required("identifier.value", p.Value)
	switch p.Type {
	case "email":
		v.Email("identifier.value", p.Value)
	case "phone":
		v.Phone("identifier.value", p.Value)
	}
}

func (p identifierPayload) toDomain() Identifier {
	return Identifier{Type: IdentifierType(p.Type), Value: p.Value}
}

// createInteraction handles PUT /experience requests.
//
// # Returns
//   - Writes HTTP 204 No Content and sets the interaction session cookie.
//   - Writes HTTP 400 Bad Request for an unrecognized event.
func (handler *Handler) createInteraction(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input struct {
		Event string `json:"event"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Application Execution ──────────────────────────────────────────

	interactionID, err := handler.service.CreateInteraction(request.Context(), input.Event)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Session Binding ────────────────────────────────────────────────

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.InteractionCookieName,
		Value:    interactionID,
		Path:     constants.InteractionCookiePath,
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   handler.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writer.Header().Set(constants.HeaderXInteractionID, interactionID)

	respond.NoContent(writer)
}

// identify handles POST /experience/identification requests.
func (handler *Handler) identify(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		VerificationID string `json:"verificationId"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("verificationId", input.VerificationID).UUID("verificationId", input.VerificationID)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Identify(request.Context(), sessionID, input.VerificationID); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// submit handles POST /experience/submit requests.
//
// # Returns
//   - Writes HTTP 200 OK with the one-time authorization grant.
//   - Writes HTTP 403/404 when identification or MFA preconditions fail.
func (handler *Handler) submit(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.service.Submit(request.Context(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"authorizationGrant": grant})
}

// submitProfile handles POST /experience/profile requests.
//
// # Returns
//   - Writes HTTP 204 No Content on success.
//   - Writes HTTP 400 for ForgotPassword flows or malformed fields.
//   - Writes HTTP 403 when the MFA guard rejects the operation.
//   - Writes HTTP 404 when no user is identified (SignIn flows).
//   - Writes HTTP 422 for consumed records or identifiers already in use.
func (handler *Handler) submitProfile(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Type           string `json:"type"`
		Value          string `json:"value"`
		VerificationID string `json:"verificationId"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("type", input.Type).OneOf("type", input.Type, "Email", "Phone", "Username", "password")
	switch input.Type {
	case "Email", "Phone":
		v.Required("verificationId", input.VerificationID)
	case "Username", "password":
		v.Required("value", input.Value)
	}
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.service.SubmitProfile(request.Context(), sessionID, ProfileInput{
		Type:           input.Type,
		Value:          input.Value,
		VerificationID: input.VerificationID,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// resetPassword handles PUT /experience/profile/password requests.
//
// # Returns
//   - Writes HTTP 204 No Content on success.
//   - Writes HTTP 400 outside ForgotPassword flows.
//   - Writes HTTP 404 before identification.
//   - Writes HTTP 422 for policy violations.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Password       string `json:"password"`
		VerificationID string `json:"verificationId"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.Password == "" && input.VerificationID == "" {
		respond.Error(writer, request, validate.RequiredError("password", "is required"))
		return
	}

	if err := handler.service.ResetPassword(request.Context(), sessionID, input.Password, input.VerificationID); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// addMfaFactor handles POST /experience/mfa requests.
func (handler *Handler) addMfaFactor(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Type           string `json:"type"`
		VerificationID string `json:"verificationId"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("type", input.Type).OneOf("type", input.Type, "totp", "webauthn", "backupCode")
	v.Required("verificationId", input.VerificationID)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.AddMfaFactor(request.Context(), sessionID, input.Type, input.VerificationID); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// skipMfa handles POST /experience/mfa/mfa-skipped requests. Idempotent.
func (handler *Handler) skipMfa(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.SkipMfa(request.Context(), sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

// verifyPassword handles POST /experience/verification/password requests.
func (handler *Handler) verifyPassword(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Identifier identifierPayload `json:"identifier"`
		Password   string            `json:"password"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	input.Identifier.validate(v)
	v.Required("password", input.Password)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, err := handler.service.VerifyPassword(request.Context(), sessionID, input.Identifier.toDomain(), input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// sendVerificationCode handles POST /experience/verification/verification-code.
func (handler *Handler) sendVerificationCode(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Identifier identifierPayload `json:"identifier"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	input.Identifier.validate(v)
	v.OneOf("identifier.type", input.Identifier.Type, "email", "phone")
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, err := handler.service.SendVerificationCode(request.Context(), sessionID, input.Identifier.toDomain())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// verifyVerificationCode handles POST /experience/verification/verification-code/verify.
func (handler *Handler) verifyVerificationCode(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		VerificationID string `json:"verificationId"`
		Code           string `json:"code"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("verificationId", input.VerificationID)
	v.Required("code", input.Code)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, err := handler.service.VerifyVerificationCode(request.Context(), sessionID, input.VerificationID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// newPasswordIdentity handles POST /experience/verification/new-password-identity.
func (handler *Handler) newPasswordIdentity(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Password string `json:"password"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.Password == "" {
		respond.Error(writer, request, validate.RequiredError("password", "is required"))
		return
	}

	verificationID, err := handler.service.CreateNewPasswordIdentity(request.Context(), sessionID, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// verifySocial handles POST /experience/verification/social/verify. The
// connector callback has already been validated upstream; the payload
// carries the provider's authenticated subject.
func (handler *Handler) verifySocial(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Provider       string `json:"provider"`
		ProviderUserID string `json:"providerUserId"`
		Email          string `json:"email"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("provider", input.Provider)
	v.Required("providerUserId", input.ProviderUserID)
	if input.Email != "" {
		v.Email("email", input.Email)
	}
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, err := handler.service.VerifySocial(request.Context(), sessionID, input.Provider, input.ProviderUserID, input.Email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// verifyTOTP handles POST /experience/verification/totp/verify.
func (handler *Handler) verifyTOTP(writer http.ResponseWriter, request *http.Request) {
	handler.verifyFactorCode(writer, request, handler.service.VerifyTOTP)
}

// verifyBackupCode handles POST /experience/verification/backup-code/verify.
func (handler *Handler) verifyBackupCode(writer http.ResponseWriter, request *http.Request) {
	handler.verifyFactorCode(writer, request, handler.service.VerifyBackupCode)
}

// verifyFactorCode is the shared body of the TOTP and backup-code routes,
// which differ only in the service call.
func (handler *Handler) verifyFactorCode(
	writer http.ResponseWriter,
	request *http.Request,
	verify func(ctx context.Context, sessionID, code string) (string, error),
) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		Code string `json:"code"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.Code == "" {
		respond.Error(writer, request, validate.RequiredError("code", "is required"))
		return
	}

	verificationID, err := verify(request.Context(), sessionID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}

// createWebAuthnAssertion handles POST /experience/verification/web-authn.
//
// # Returns
//   - Writes HTTP 200 OK with the record ID and the authenticator request
//     options produced for the ceremony.
func (handler *Handler) createWebAuthnAssertion(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, options, err := handler.service.CreateWebAuthnAssertion(request.Context(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, struct {
		VerificationID string          `json:"verificationId"`
		Options        json.RawMessage `json:"options"`
	}{VerificationID: verificationID, Options: options})
}

// verifyWebAuthn handles POST /experience/verification/web-authn/verify.
func (handler *Handler) verifyWebAuthn(writer http.ResponseWriter, request *http.Request) {
	sessionID, err := requestutil.RequiredInteractionID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input struct {
		VerificationID string          `json:"verificationId"`
		Assertion      json.RawMessage `json:"assertion"`
	}
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("verificationId", input.VerificationID)
	v.Custom("assertion", len(input.Assertion) == 0, "is required")
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	verificationID, err := handler.service.VerifyWebAuthn(request.Context(), sessionID, input.VerificationID, input.Assertion)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, verificationResponse{VerificationID: verificationID})
}
