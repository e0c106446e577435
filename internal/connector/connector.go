// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package connector implements the outbound delivery channels for verification
codes. Each connector satisfies [passcode.Sender] for exactly one channel.
*/
package connector

import (
	"fmt"

	"github.com/veridianlabs/veridian/internal/passcode"
)

// subjectFor renders the notification subject line for a template type.
func subjectFor(messageType passcode.MessageType) string {
	switch messageType {
	case passcode.MessageTypeSignIn:
		return "Your Veridian sign-in code"
	case passcode.MessageTypeRegister:
		return "Confirm your Veridian registration"
	case passcode.MessageTypeForgotPassword:
		return "Reset your Veridian password"
	default:
		return "Your Veridian verification code"
	}
}

// bodyFor renders the plain-text notification body for a template type.
func bodyFor(messageType passcode.MessageType, code string) string {
	switch messageType {
	case passcode.MessageTypeForgotPassword:
		return fmt.Sprintf("Use code %s to reset your password. It expires in 10 minutes. If you did not request this, ignore this message.", code)
	case passcode.MessageTypeRegister:
		return fmt.Sprintf("Use code %s to confirm your registration. It expires in 10 minutes.", code)
	default:
		return fmt.Sprintf("Use code %s to sign in. It expires in 10 minutes.", code)
	}
}
