// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

/*
Package dispatch publishes interaction lifecycle events for downstream
consumers (audit trail, webhooks, analytics).

Publishing is fire-and-forget from the caller's perspective: a broker outage
must never fail a sign-in.
*/
package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// # Event Types

const (
	// EventInteractionCreated fires when a new interaction session starts.
	EventInteractionCreated = "interaction.created"
	// EventInteractionEnded fires when an interaction finalizes successfully.
	EventInteractionEnded = "interaction.ended"
)

// Event is the envelope published for every interaction lifecycle change.
type Event struct {
	Type             string         `json:"type"`
	InteractionID    string         `json:"interaction_id"`
	UserID           string         `json:"user_id,omitempty"`
	InteractionEvent string         `json:"interaction_event,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
	Payload          map[string]any `json:"payload,omitempty"`
}

// Dispatcher delivers events to the configured transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// # Async Wrapper

// Async decorates a [Dispatcher] so delivery happens off the request path.
// Failures are logged and swallowed.
type Async struct {
	inner  Dispatcher
	logger *slog.Logger
}

// NewAsync wraps a dispatcher for fire-and-forget publishing.
func NewAsync(inner Dispatcher, logger *slog.Logger) *Async {
	return &Async{inner: inner, logger: logger}
}

// Dispatch publishes on a detached context so the event survives the
// originating request's cancellation.
func (a *Async) Dispatch(_ context.Context, event Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.inner.Dispatch(ctx, event); err != nil {
			a.logger.Error("event dispatch failed",
				slog.String("type", event.Type),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// # Noop Dispatcher

// Noop discards all events. Used when no broker is configured and in tests.
type Noop struct{}

// Dispatch does nothing.
func (Noop) Dispatch(context.Context, Event) error { return nil }
