package constants

// Form field names of the HTTP API
const (
	FieldPhoto          = "photo"
	FieldVideo          = "video"
	FieldTenant         = "tenant"
	FieldOrganizationID = "organization_id"
	FieldPersonID       = "person_id"
	FieldPersonName     = "person_name"
	FieldLocation       = "location"
	FieldLimit          = "limit"
)

// Verification response statuses
const (
	StatusVerified    = "verified"
	StatusNotVerified = "not_verified"
	StatusError       = "error"
)
