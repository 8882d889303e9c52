// Package email defines the outbound-mail interface the chat core depends
// on. The SMTP client and template rendering are external collaborators;
// this package carries only the contract and a no-op implementation for
// deployments without mail.
package email

import "context"

// Sender is the outbound-mail contract: send(recipient, subject, body).
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Noop discards every message. Used when Security/SMTP config is absent.
type Noop struct{}

func (Noop) Send(ctx context.Context, recipient, subject, body string) error { return nil }
