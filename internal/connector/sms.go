// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package connector

import (
	"context"
	"log/slog"

	"github.com/veridianlabs/veridian/internal/passcode"
)

// LogSender is a development stand-in for a delivery gateway. It logs the
// delivery instead of sending it, with the code redacted outside of debug
// level. Not for production use.
//
// TODO: replace the SMS channel with a Twilio-backed sender once the
// account is provisioned.
type LogSender struct {
	channel string
	logger  *slog.Logger
}

// NewLogSender creates a logging connector for the named channel
// ("email" or "sms").
func NewLogSender(channel string, logger *slog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

// Send records the would-be delivery.
func (s *LogSender) Send(ctx context.Context, to string, messageType passcode.MessageType, code string) error {
	s.logger.InfoContext(ctx, "code delivery (dev mode)",
		slog.String("channel", s.channel),
		slog.String("to", to),
		slog.String("template", string(messageType)),
	)
	s.logger.DebugContext(ctx, "delivery code", slog.String("code", code))
	return nil
}
