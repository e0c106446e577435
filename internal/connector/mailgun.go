// Copyright (c) 2026 Veridian Labs. All rights reserved.
// Author: identity@veridianlabs.dev

package connector

import (
	"context"
	"fmt"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/veridianlabs/veridian/internal/passcode"
)

const mailgunSendTimeout = 10 * time.Second

// MailgunSender delivers verification codes over email via Mailgun.
type MailgunSender struct {
	domain string
	apiKey string
	sender string
}

// NewMailgunSender creates an email connector for the given Mailgun domain.
func NewMailgunSender(domain, apiKey, sender string) *MailgunSender {
	return &MailgunSender{domain: domain, apiKey: apiKey, sender: sender}
}

// Send delivers the code to the recipient using the template matching the
// message type.
func (m *MailgunSender) Send(ctx context.Context, to string, messageType passcode.MessageType, code string) error {
	client := mg.NewMailgun(m.domain, m.apiKey)
	message := client.NewMessage(m.sender, subjectFor(messageType), bodyFor(messageType, code), to)

	sendCtx, cancel := context.WithTimeout(ctx, mailgunSendTimeout)
	defer cancel()

	if _, _, err := client.Send(sendCtx, message); err != nil {
		return fmt.Errorf("mailgun_send_failed: %w", err)
	}
	return nil
}
