package store

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeTenant trims and lower-cases a tenant identifier so that lookups are
// case-insensitive and whitespace-tolerant. Empty tenants and the literal "null"
// (in any case) are rejected with ErrInvalidTenant.
func NormalizeTenant(tenant string) (string, error) {
	// cases.Caser is stateful, so a fresh one is needed per call.
	normalized := cases.Lower(language.Und).String(strings.TrimSpace(tenant))
	if normalized == "" || normalized == "null" {
		return "", ErrInvalidTenant
	}
	if err := validateSegment(normalized); err != nil {
		return "", fmt.Errorf("%w: tenant %q", ErrInvalidTenant, tenant)
	}
	return normalized, nil
}

// validateSegment rejects ids that would escape or collapse the bucket hierarchy.
func validateSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return ErrInvalidKey
	}
	return nil
}

// ValidateID checks that id can be used as an organization or person id.
func ValidateID(id string) error {
	if err := validateSegment(id); err != nil {
		return fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}
	return nil
}

// validateIDs checks organization and person ids.
// An empty person id is allowed when allowEmptyPerson is set (bucket-wide listing).
func validateIDs(organizationID, personID string, allowEmptyPerson bool) error {
	if err := validateSegment(organizationID); err != nil {
		return fmt.Errorf("%w: organization id %q", ErrInvalidKey, organizationID)
	}
	if personID == "" && allowEmptyPerson {
		return nil
	}
	if err := validateSegment(personID); err != nil {
		return fmt.Errorf("%w: person id %q", ErrInvalidKey, personID)
	}
	return nil
}

// ValidateKey checks that the tenant, organization and person form a valid template namespace.
func ValidateKey(tenant, organizationID, personID string) error {
	if _, err := NormalizeTenant(tenant); err != nil {
		return err
	}
	return validateIDs(organizationID, personID, false)
}
