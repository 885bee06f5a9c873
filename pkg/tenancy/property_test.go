//go:build property
// +build property

// Property-based tests for the scoping guards.
package tenancy_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// TestScopeStampingProperty verifies that for any payload without an org
// field, WithScope stamps the active org and preserves every other field.
func TestScopeStampingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("WithScope stamps org and preserves fields", prop.ForAll(
		func(keys []string, values []string) bool {
			s := tenancy.NewStore()
			s.SetFromSession(map[string]any{"org_id": "org_prop"})

			payload := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] == "" || isOrgAlias(keys[i]) {
					continue
				}
				payload[keys[i]] = values[i]
			}

			out, err := s.WithScope(payload)
			if err != nil {
				return false
			}
			if out["org_id"] != "org_prop" {
				return false
			}
			for k, v := range payload {
				if k == "org_id" {
					continue
				}
				if out[k] != v {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestForeignOrgAlwaysRejectedProperty verifies that any payload naming an
// org other than the active one is rejected, under every supported alias.
func TestForeignOrgAlwaysRejectedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	aliases := []string{"org_id", "organization_id", "orgId", "organizationId", "tenant_id", "tenantId"}

	properties.Property("foreign org rejected under any alias", prop.ForAll(
		func(foreign string, aliasIdx int) bool {
			if foreign == "" || foreign == "org_prop" {
				return true
			}
			s := tenancy.NewStore()
			s.SetFromSession(map[string]any{"org_id": "org_prop"})

			alias := aliases[aliasIdx%len(aliases)]
			_, err := s.WithScope(map[string]any{alias: foreign})
			return err != nil
		},
		gen.AlphaString(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func isOrgAlias(k string) bool {
	switch k {
	case "org_id", "organization_id", "orgId", "organizationId", "tenant_id", "tenantId",
		"org_unit_id", "orgUnitId", "org_unit", "organization_unit_id", "organizationUnitId":
		return true
	}
	return false
}
