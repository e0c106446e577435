// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package experience implements the authentication-interaction engine that
drives multi-step sign-in, registration, and password-recovery flows.

A user proves control of one or more identifiers across several HTTP
requests. The engine accumulates verification evidence inside an
[Interaction] snapshot, decides when the subject is identified, enforces
multi-factor policy, stages profile and password changes, and finalizes the
flow by issuing a one-time authorization grant.

# Architecture

Every request follows the same cycle: load the interaction snapshot from the
session store, apply exactly one transformation to the in-memory value, and
save the result back with an optimistic version token. Nothing in this
package holds interaction state between requests; a stale save loses the
race and surfaces as a conflict instead of silently overwriting.
*/
package experience

import "github.com/veridianlabs/veridian/internal/passcode"

// # Interaction Events

// Event is the flow an interaction was created for. It is immutable after
// creation and determines which operations are legal.
type Event string

const (
	EventSignIn         Event = "SignIn"
	EventRegister       Event = "Register"
	EventForgotPassword Event = "ForgotPassword"
)

// ParseEvent validates a client-supplied event name.
func ParseEvent(value string) (Event, error) {
	switch Event(value) {
	case EventSignIn, EventRegister, EventForgotPassword:
		return Event(value), nil
	default:
		return "", ErrInvalidEvent
	}
}

// PurposeForEvent maps an interaction event onto the passcode purpose used
// for its verification codes. The mapping must stay total over the event
// set; see [passcode.MessageTypeForPurpose] for the template side.
func PurposeForEvent(event Event) (passcode.Purpose, error) {
	switch event {
	case EventSignIn:
		return passcode.PurposeSignIn, nil
	case EventRegister:
		return passcode.PurposeRegister, nil
	case EventForgotPassword:
		return passcode.PurposeForgotPassword, nil
	default:
		return "", ErrInvalidEvent
	}
}
