package domain

// DefaultEscalationDays applies when settings are missing or invalid.
const DefaultEscalationDays = 30

// SystemSettings holds the system-wide preferences document.
type SystemSettings struct {
	Theme                         string `json:"theme"`
	LocalToFederationDays         int    `json:"local_to_federation_days"`
	FederationToConfederationDays int    `json:"federation_to_confederation_days"`
	RequireApproval               bool   `json:"require_approval"`
	AutoNotifyManagers            bool   `json:"auto_notify_managers"`
	EnableSelfRegistration        bool   `json:"enable_self_registration"`
}

// DefaultSystemSettings returns the seeded preferences.
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		Theme:                         "light",
		LocalToFederationDays:         DefaultEscalationDays,
		FederationToConfederationDays: DefaultEscalationDays,
		RequireApproval:               true,
		AutoNotifyManagers:            true,
		EnableSelfRegistration:        true,
	}
}
