package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coopdesk/internal/config"
)

const brevoTimeout = 15 * time.Second

// BrevoSender posts to the Brevo transactional email API.
type BrevoSender struct {
	cfg config.NotificationConfig
}

// NewBrevoSender builds a sender from configuration.
func NewBrevoSender(cfg config.NotificationConfig) *BrevoSender {
	return &BrevoSender{cfg: cfg}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject,omitempty"`
	HTMLContent string         `json:"htmlContent,omitempty"`
	TextContent string         `json:"textContent,omitempty"`
	TemplateID  int            `json:"templateId,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Send delivers msg. It returns ErrNotConfigured when credentials are missing.
func (b *BrevoSender) Send(ctx context.Context, msg EmailMessage) error {
	if !b.cfg.Configured() {
		return ErrNotConfigured
	}
	if msg.ToEmail == "" {
		return fmt.Errorf("brevo: recipient email required")
	}

	req := brevoRequest{
		Sender:  brevoContact{Email: b.cfg.SenderEmail, Name: b.cfg.SenderName},
		To:      []brevoContact{{Email: msg.ToEmail, Name: msg.ToName}},
		Subject: msg.Subject,
	}
	if b.cfg.TemplateID > 0 {
		req.TemplateID = b.cfg.TemplateID
		req.Params = msg.TemplateParams
	} else {
		req.HTMLContent = msg.HTML
		req.TextContent = msg.Text
	}

	timeout := brevoTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(b.cfg.APIURL)
	agent.Set("api-key", b.cfg.APIKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(timeout)
	agent.JSON(req)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("brevo request: %w", errs[0])
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("brevo responded %d: %s", status, truncateBody(body))
	}
	return nil
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
