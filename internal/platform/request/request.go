// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/ctxutil"
	"github.com/veridianlabs/veridian/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
InteractionID returns the interaction session ID bound to the request.

Returns an empty string if the request carries neither the interaction
cookie nor the X-Interaction-ID header.
*/
func InteractionID(request *http.Request) string {
	return ctxutil.GetInteractionID(request.Context())
}

/*
RequiredInteractionID ensures the request is bound to an interaction session.

Returns:
  - string: Interaction session ID
  - error: apperr 404 ("session.not_found") when the session cookie is absent
*/
func RequiredInteractionID(request *http.Request) (string, error) {
	sessionID := ctxutil.GetInteractionID(request.Context())
	if sessionID == "" {
		return "", apperr.New(http.StatusNotFound, "session.not_found", "No active interaction session")
	}
	return sessionID, nil
}
