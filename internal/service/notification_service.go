package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/notify"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
	apperrors "github.com/spec-kit/coopdesk/pkg/util/errorutil"
)

const (
	maxAlertMessage = 320
	maxAlertDetails = 1200
	maxCommentChars = 220
)

var alertNamespace = uuid.MustParse("6f1c8a52-4a0e-4f7d-9d0c-1f7c3a2b9e11")

// NotificationService fans ticket events out to in-app alerts and email.
type NotificationService struct {
	dispatcher events.Dispatcher
	agents     repository.AgentRepository
	alerts     repository.AlertRepository
	email      notify.Sender
	dedup      notify.Deduper
	metrics    *observability.Metrics
	logger     *zap.Logger
	baseURL    string

	Now func() time.Time
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	AgentRepo  repository.AgentRepository
	AlertRepo  repository.AlertRepository
	Email      notify.Sender
	Deduper    notify.Deduper
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	BaseURL    string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dedup := deps.Deduper
	if dedup == nil {
		dedup = notify.NewMemoryDeduper()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		agents:     deps.AgentRepo,
		alerts:     deps.AlertRepo,
		email:      deps.Email,
		dedup:      dedup,
		metrics:    deps.Metrics,
		logger:     logger,
		baseURL:    strings.TrimRight(deps.BaseURL, "/"),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterHandlers subscribes to ticket events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.Dispatch)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.Dispatch)
}

type recipient struct {
	Email string
	Name  string
	OrgID *string
}

// Dispatch delivers one event. Only a failure to resolve recipients is
// returned; per-recipient alert and email failures are logged.
func (n *NotificationService) Dispatch(ctx context.Context, event events.Event) error {
	ticket := event.Payload.After
	recipients, err := n.recipients(ctx, event)
	if err != nil {
		return fmt.Errorf("resolve recipients for ticket %s: %w", ticket.ID, err)
	}
	if len(recipients) == 0 {
		n.logger.Debug("no alert recipients", zap.String("ticket_id", ticket.ID))
		return nil
	}

	kind := classifyAlert(event)
	title := alertTitle(kind, ticket)
	message := alertMessage(event)
	details := truncateText(strings.Join(event.Payload.Details, " | "), maxAlertDetails)
	now := n.Now()

	var wg sync.WaitGroup
	for _, r := range recipients {
		alert := domain.Alert{
			ID:             uuid.NewSHA1(alertNamespace, []byte(event.DedupKey()+":"+strings.ToLower(r.Email))).String(),
			TicketID:       ticket.ID,
			RecipientEmail: strings.ToLower(r.Email),
			RecipientOrgID: r.OrgID,
			Kind:           kind,
			Title:          title,
			Message:        message,
			Details:        details,
			TriggeredBy:    event.Actor.Email,
			CreatedAt:      now,
		}
		if err := n.alerts.Create(ctx, &alert); err != nil {
			n.metrics.Inc(observability.CounterAlertInsertFailed)
			n.logger.Warn("alert insert failed",
				zap.String("ticket_id", ticket.ID), zap.String("recipient", r.Email), zap.Error(err))
		}

		if n.email == nil {
			continue
		}
		msg := n.buildEmail(event, kind, title, message, details, r)
		key := event.DedupKey() + ":" + strings.ToLower(r.Email)
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.sendEmail(ctx, key, ticket.ID, msg)
		}()
	}
	wg.Wait()
	return nil
}

func (n *NotificationService) sendEmail(ctx context.Context, key, ticketID string, msg notify.EmailMessage) {
	first, err := n.dedup.FirstDelivery(ctx, key)
	if err != nil {
		n.logger.Warn("email dedup check failed; sending anyway", zap.String("ticket_id", ticketID), zap.Error(err))
		first = true
	}
	if !first {
		n.metrics.Inc(observability.CounterEmailsSuppressed)
		return
	}
	if err := n.email.Send(ctx, msg); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			n.logger.Warn("email delivery not configured; skipping send", zap.String("ticket_id", ticketID))
			return
		}
		n.logger.Warn("email send failed",
			zap.String("ticket_id", ticketID), zap.String("recipient", msg.ToEmail), zap.Error(err))
		return
	}
	n.metrics.Inc(observability.CounterEmailsSent)
}

func (n *NotificationService) recipients(ctx context.Context, event events.Event) ([]recipient, error) {
	ticket := event.Payload.After
	actor := strings.ToLower(strings.TrimSpace(event.Actor.Email))
	seen := map[string]struct{}{}
	var out []recipient

	add := func(email, name string, orgID string) {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" || key == actor {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		var org *string
		if orgID != "" {
			o := orgID
			org = &o
		}
		out = append(out, recipient{Email: strings.TrimSpace(email), Name: name, OrgID: org})
	}

	requesters, err := n.agents.ListActiveByOrg(ctx, ticket.RequestingOrgID)
	if err != nil {
		return nil, err
	}
	for _, a := range requesters {
		add(a.Email, a.Name, a.OrgID)
	}
	if len(requesters) == 0 && ticket.CreatedBy != "" {
		add(ticket.CreatedBy, "", ticket.RequestingOrgID)
	}

	if ticket.AssignedAgentID != nil && *ticket.AssignedAgentID != "" {
		agent, err := n.agents.GetByID(ctx, *ticket.AssignedAgentID)
		switch {
		case err == nil && agent.Active:
			add(agent.Email, agent.Name, agent.OrgID)
		case err != nil && !apperrors.IsNotFound(err):
			return nil, err
		default:
			name := ""
			if ticket.AssignedAgentName != nil {
				name = *ticket.AssignedAgentName
			}
			if strings.Contains(*ticket.AssignedAgentID, "@") {
				add(*ticket.AssignedAgentID, name, ticket.ResponsibleOrgID)
			}
		}
		return out, nil
	}

	responsible, err := n.agents.ListActiveByOrg(ctx, ticket.ResponsibleOrgID)
	if err != nil {
		return nil, err
	}
	for _, a := range responsible {
		add(a.Email, a.Name, a.OrgID)
	}
	return out, nil
}

func (n *NotificationService) buildEmail(event events.Event, kind domain.AlertKind, title, message, details string, r recipient) notify.EmailMessage {
	ticket := event.Payload.After
	link := fmt.Sprintf("%s/tickets/%s", n.baseURL, ticket.ID)
	subject := "[Coopdesk] " + title
	comment := truncateText(event.Payload.Comment, maxCommentChars)

	params := map[string]any{
		"subject":            subject,
		"title":              title,
		"message":            message,
		"details":            details,
		"actorName":          event.Actor.Name,
		"alertType":          string(kind),
		"action":             string(event.Type),
		"ticketId":           ticket.ID,
		"ticketTitle":        ticket.Title,
		"level":              string(ticket.Level),
		"status":             string(ticket.Status),
		"requestingOrgName":  derefOr(ticket.RequestingOrgName, ticket.RequestingOrgID),
		"responsibleOrgName": derefOr(ticket.ResponsibleOrgName, ticket.ResponsibleOrgID),
		"comment":            comment,
		"ctaUrl":             link,
		"currentYear":        n.Now().Year(),
		"recipientName":      r.Name,
		"recipientEmail":     r.Email,
	}
	if ticket.DueAt != nil {
		params["dueAt"] = ticket.DueAt.Format(time.RFC3339)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n%s\n", title, message)
	if details != "" {
		fmt.Fprintf(&text, "\n%s\n", details)
	}
	if comment != "" {
		fmt.Fprintf(&text, "\nComment: %s\n", comment)
	}
	fmt.Fprintf(&text, "\nOpen ticket: %s\n", link)

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>%s</h2><p>%s</p>", html.EscapeString(title), html.EscapeString(message))
	if details != "" {
		fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(details))
	}
	if comment != "" {
		fmt.Fprintf(&body, "<blockquote>%s</blockquote>", html.EscapeString(comment))
	}
	fmt.Fprintf(&body, `<p><a href="%s">Open ticket</a></p>`, html.EscapeString(link))

	return notify.EmailMessage{
		ToEmail:        r.Email,
		ToName:         r.Name,
		Subject:        subject,
		HTML:           body.String(),
		Text:           text.String(),
		TemplateParams: params,
	}
}

// classifyAlert picks the most significant change, in priority order.
func classifyAlert(event events.Event) domain.AlertKind {
	if event.Type == events.EventTicketCreated {
		return domain.AlertKindNew
	}
	if strings.TrimSpace(event.Payload.Comment) != "" {
		return domain.AlertKindComment
	}
	before, after := event.Payload.Before, event.Payload.After
	if before == nil {
		return domain.AlertKindUpdate
	}
	switch {
	case before.Status != after.Status:
		return domain.AlertKindStatus
	case before.Level != after.Level:
		return domain.AlertKindLevel
	case derefOr(before.AssignedAgentID, "") != derefOr(after.AssignedAgentID, ""):
		return domain.AlertKindAssignment
	case before.ResponsibleOrgID != after.ResponsibleOrgID:
		return domain.AlertKindAssignment
	default:
		return domain.AlertKindUpdate
	}
}

func alertTitle(kind domain.AlertKind, t domain.Ticket) string {
	switch kind {
	case domain.AlertKindNew:
		return "New ticket: " + t.Title
	case domain.AlertKindComment:
		return "New comment: " + t.Title
	case domain.AlertKindStatus:
		return "Status changed: " + t.Title
	case domain.AlertKindLevel:
		return "Level changed: " + t.Title
	case domain.AlertKindAssignment:
		return "Assignment changed: " + t.Title
	default:
		return "Ticket updated: " + t.Title
	}
}

func alertMessage(event events.Event) string {
	p := event.Payload
	var msg string
	switch {
	case strings.TrimSpace(p.CustomMessage) != "":
		msg = p.CustomMessage
	case len(p.Details) > 0:
		msg = strings.Join(p.Details, " • ")
	case strings.TrimSpace(p.Comment) != "":
		msg = "Comment: " + p.Comment
	case event.Type == events.EventTicketCreated:
		msg = "New ticket created."
	default:
		msg = "Ticket updated."
	}
	return truncateText(msg, maxAlertMessage)
}

// truncateText collapses whitespace and caps s at max runes, marking cuts with an ellipsis.
func truncateText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
