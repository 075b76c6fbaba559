package domain

// Principal is the authenticated caller as asserted by the identity provider.
type Principal struct {
	ID             string
	Email          string
	Name           string
	Role           Role
	OrganizationID string
}

// SystemPrincipal acts for automatic escalations.
var SystemPrincipal = Principal{
	ID:    "system",
	Email: "system@coopdesk.local",
	Name:  "Automatic System",
}

// DisplayName prefers the name, then the email, then the id.
func (p Principal) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}
