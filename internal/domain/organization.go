package domain

import "time"

// OrgKind is the hierarchy tier an organization belongs to.
type OrgKind string

const (
	OrgKindLocal         OrgKind = "local"
	OrgKindFederation    OrgKind = "federation"
	OrgKindConfederation OrgKind = "confederation"
)

// Organization represents a cooperative unit.
type Organization struct {
	ID             string
	DisplayName    string
	Kind           OrgKind
	FederationName string
	ParentID       *string
}

// EscalationSetting is the per-organization auto-decline switch.
type EscalationSetting struct {
	OrgID       string
	AutoDecline bool
	UpdatedAt   time.Time
}

// City maps a served municipality to its responsible local unit.
type City struct {
	ID               string
	Name             string
	ResponsibleOrgID string
}
