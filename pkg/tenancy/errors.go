package tenancy

import "fmt"

// AccessDetails carries the conflicting identifiers behind a rejected access.
// Org and org-unit conflicts populate the *OrgID / *OrgUnitID pairs; residency
// conflicts populate Field / Expected / Received.
type AccessDetails struct {
	Entity            string `json:"entity,omitempty"`
	Field             string `json:"field,omitempty"`
	ExpectedOrgID     string `json:"expected_org_id,omitempty"`
	ReceivedOrgID     string `json:"received_org_id,omitempty"`
	ExpectedOrgUnitID string `json:"expected_org_unit_id,omitempty"`
	ReceivedOrgUnitID string `json:"received_org_unit_id,omitempty"`
	Expected          string `json:"expected,omitempty"`
	Received          string `json:"received,omitempty"`
}

// TenantAccessError is the single error kind for every tenant-boundary
// violation: uninitialized context, cross-org payloads or filters, foreign
// records in backend responses, and residency conflicts. Input-validation
// failures (bad format, missing entity name) deliberately use plain errors so
// callers can react to the two categories differently.
type TenantAccessError struct {
	Message string
	Details *AccessDetails
}

func (e *TenantAccessError) Error() string {
	if e.Details == nil {
		return "tenant access denied: " + e.Message
	}
	d := e.Details
	switch {
	case d.ReceivedOrgID != "":
		return fmt.Sprintf("tenant access denied: %s (expected org %q, received %q)", e.Message, d.ExpectedOrgID, d.ReceivedOrgID)
	case d.ReceivedOrgUnitID != "":
		return fmt.Sprintf("tenant access denied: %s (expected org unit %q, received %q)", e.Message, d.ExpectedOrgUnitID, d.ReceivedOrgUnitID)
	case d.Field != "":
		return fmt.Sprintf("tenant access denied: %s (field %q: expected %q, received %q)", e.Message, d.Field, d.Expected, d.Received)
	default:
		return "tenant access denied: " + e.Message
	}
}

// NewAccessError builds a TenantAccessError with optional details.
func NewAccessError(message string, details *AccessDetails) *TenantAccessError {
	return &TenantAccessError{Message: message, Details: details}
}

func errNoContext() *TenantAccessError {
	return &TenantAccessError{Message: "no active tenant context"}
}

func errOrgMismatch(entity, expected, received string) *TenantAccessError {
	return &TenantAccessError{
		Message: withEntity("organization mismatch", entity),
		Details: &AccessDetails{
			Entity:        entity,
			ExpectedOrgID: expected,
			ReceivedOrgID: received,
		},
	}
}

func errOrgUnitMismatch(entity, expected, received string) *TenantAccessError {
	return &TenantAccessError{
		Message: withEntity("org unit mismatch", entity),
		Details: &AccessDetails{
			Entity:            entity,
			ExpectedOrgUnitID: expected,
			ReceivedOrgUnitID: received,
		},
	}
}

func withEntity(msg, entity string) string {
	if entity == "" {
		return msg
	}
	return msg + " for " + entity
}
