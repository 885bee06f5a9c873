package tenancy

import (
	"errors"
	"testing"
)

func activeStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1"})
	return s
}

func TestWithScopeStampsOrg(t *testing.T) {
	s := activeStore(t)

	in := map[string]any{"machine_id": "m-42", "status": "online"}
	out, err := s.WithScope(in)
	if err != nil {
		t.Fatal(err)
	}
	if out["org_id"] != "org_1" {
		t.Fatalf("expected stamped org_id, got %v", out["org_id"])
	}
	if out["machine_id"] != "m-42" || out["status"] != "online" {
		t.Fatalf("payload fields not preserved: %v", out)
	}
}

func TestWithScopeDoesNotMutateInput(t *testing.T) {
	s := activeStore(t)

	in := map[string]any{"machine_id": "m-42"}
	if _, err := s.WithScope(in); err != nil {
		t.Fatal(err)
	}
	if _, ok := in["org_id"]; ok {
		t.Fatal("input payload was mutated")
	}
}

func TestWithScopeMatchingOrgPasses(t *testing.T) {
	s := activeStore(t)

	out, err := s.WithScope(map[string]any{"tenantId": "org_1", "qty": 3})
	if err != nil {
		t.Fatal(err)
	}
	if out["org_id"] != "org_1" || out["qty"] != 3 {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestWithScopeForeignOrgRejected(t *testing.T) {
	s := activeStore(t)

	_, err := s.WithScope(map[string]any{"organization_id": "org_2"})

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
	if tae.Details == nil || tae.Details.ExpectedOrgID != "org_1" || tae.Details.ReceivedOrgID != "org_2" {
		t.Fatalf("unexpected details: %+v", tae.Details)
	}
}

func TestWithScopeOrgUnitConflict(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1", "org_unit_id": "unit_1"})

	_, err := s.WithScope(map[string]any{"orgUnitId": "unit_2"})

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
	if tae.Details.ExpectedOrgUnitID != "unit_1" || tae.Details.ReceivedOrgUnitID != "unit_2" {
		t.Fatalf("unexpected details: %+v", tae.Details)
	}
}

func TestWithScopeForeignSecondaryAliasRejected(t *testing.T) {
	s := activeStore(t)

	// A matching org_id must not shadow a foreign id under a lower-priority
	// alias.
	_, err := s.WithScope(map[string]any{"org_id": "org_1", "tenant_id": "org_2"})

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
	if tae.Details == nil || tae.Details.ReceivedOrgID != "org_2" {
		t.Fatalf("unexpected details: %+v", tae.Details)
	}
}

func TestWithScopeForeignSecondaryUnitAliasRejected(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1", "org_unit_id": "unit_1"})

	_, err := s.WithScope(map[string]any{"org_unit_id": "unit_1", "organizationUnitId": "unit_2"})

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
	if tae.Details.ReceivedOrgUnitID != "unit_2" {
		t.Fatalf("unexpected details: %+v", tae.Details)
	}
}

func TestWithScopeStripsRedundantAliases(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1", "org_unit_id": "unit_1"})

	out, err := s.WithScope(map[string]any{
		"tenantId":  "org_1",
		"orgUnitId": "unit_1",
		"qty":       3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out["org_id"] != "org_1" || out["org_unit_id"] != "unit_1" {
		t.Fatalf("canonical fields not stamped: %v", out)
	}
	if _, ok := out["tenantId"]; ok {
		t.Fatalf("redundant org alias left in payload: %v", out)
	}
	if _, ok := out["orgUnitId"]; ok {
		t.Fatalf("redundant org unit alias left in payload: %v", out)
	}
	if out["qty"] != 3 {
		t.Fatalf("payload fields not preserved: %v", out)
	}
}

func TestWithFiltersStampsOrgAndUnit(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1", "org_unit_id": "unit_1"})

	out, err := s.WithFilters(map[string]any{"status": "open"})
	if err != nil {
		t.Fatal(err)
	}
	if out["org_id"] != "org_1" || out["org_unit_id"] != "unit_1" {
		t.Fatalf("filters not fully stamped: %v", out)
	}
	if out["status"] != "open" {
		t.Fatalf("filter fields not preserved: %v", out)
	}
}

func TestWithFiltersNoUnitWhenContextHasNone(t *testing.T) {
	s := activeStore(t)

	out, err := s.WithFilters(map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out["org_unit_id"]; ok {
		t.Fatal("org_unit_id stamped without an active org unit")
	}
}

func TestWithFiltersForeignOrgRejected(t *testing.T) {
	s := activeStore(t)

	_, err := s.WithFilters(map[string]any{"org_id": "org_2"})

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
}

func TestGuardsAcceptNilInput(t *testing.T) {
	s := activeStore(t)

	out, err := s.WithScope(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["org_id"] != "org_1" {
		t.Fatalf("expected stamped org on nil payload, got %v", out)
	}
}
