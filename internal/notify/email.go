// Package notify delivers transactional email and guards against duplicate sends.
package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by senders missing credentials.
var ErrNotConfigured = errors.New("email sender not configured")

// EmailMessage is one transactional email. When the provider has a template
// configured, TemplateParams are sent instead of the HTML and text bodies.
type EmailMessage struct {
	ToEmail        string
	ToName         string
	Subject        string
	HTML           string
	Text           string
	TemplateParams map[string]any
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg EmailMessage) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg EmailMessage) error {
	return f(ctx, msg)
}
