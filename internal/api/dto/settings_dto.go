package dto

import (
	"time"

	"github.com/spec-kit/coopdesk/internal/domain"
)

// UpdateOrgEscalationRequest payload.
type UpdateOrgEscalationRequest struct {
	AutoDecline *bool `json:"auto_decline"`
}

// OrgEscalationResponse describes an organization's auto-decline switch.
type OrgEscalationResponse struct {
	OrgID       string         `json:"org_id"`
	OrgName     string         `json:"org_name"`
	Kind        domain.OrgKind `json:"kind"`
	AutoDecline bool           `json:"auto_decline"`
	UpdatedAt   *time.Time     `json:"updated_at"`
	Cascaded    int            `json:"cascaded,omitempty"`
}

// SweepWebhookRequest is the optional body of the scheduler webhook.
type SweepWebhookRequest struct {
	Task string `json:"task"`
}
