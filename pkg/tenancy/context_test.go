package tenancy

import (
	"errors"
	"testing"
)

func TestSetFromSessionAliases(t *testing.T) {
	cases := []struct {
		name    string
		session map[string]any
		wantOrg string
	}{
		{"snake org_id", map[string]any{"org_id": "org_1"}, "org_1"},
		{"organization_id", map[string]any{"organization_id": "org_2"}, "org_2"},
		{"camel orgId", map[string]any{"orgId": "org_3"}, "org_3"},
		{"organizationId", map[string]any{"organizationId": "org_4"}, "org_4"},
		{"tenant_id", map[string]any{"tenant_id": "org_5"}, "org_5"},
		{"tenantId", map[string]any{"tenantId": "org_6"}, "org_6"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			s.SetFromSession(tc.session)
			if got := s.Get().OrgID; got != tc.wantOrg {
				t.Fatalf("expected org %q, got %q", tc.wantOrg, got)
			}
			if !s.Has() {
				t.Fatal("expected active context")
			}
		})
	}
}

func TestAliasPriorityOrder(t *testing.T) {
	s := NewStore()
	// org_id wins over tenant_id regardless of map ordering.
	s.SetFromSession(map[string]any{"tenant_id": "loser", "org_id": "winner"})
	if got := s.Get().OrgID; got != "winner" {
		t.Fatalf("expected org_id alias to win, got %q", got)
	}
}

func TestSetFromUserWithUnitAndResidency(t *testing.T) {
	s := NewStore()
	s.SetFromUser(map[string]any{
		"organizationId": "org_1",
		"orgUnitId":      "unit_9",
		"data_residency": map[string]any{
			"region":         "au",
			"storage_bucket": "b1",
			"kms_key":        "k1",
		},
	})

	ctx := s.Get()
	if ctx.OrgID != "org_1" || ctx.OrgUnitID != "unit_9" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
	if ctx.Residency == nil {
		t.Fatal("expected residency")
	}
	if ctx.Residency.Region != "au" || ctx.Residency.StorageBucket != "b1" || ctx.Residency.KMSKey != "k1" {
		t.Fatalf("unexpected residency: %+v", ctx.Residency)
	}
}

func TestNilSessionClears(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1"})
	s.SetFromSession(nil)
	if s.Has() {
		t.Fatal("nil session should clear the context")
	}
}

func TestFullReplacementNoStaleResidency(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{
		"org_id":    "org_1",
		"residency": map[string]any{"region": "au"},
	})
	// Second tenant carries no residency; the first tenant's must not leak.
	s.SetFromSession(map[string]any{"org_id": "org_2"})

	ctx := s.Get()
	if ctx.OrgID != "org_2" {
		t.Fatalf("expected org_2, got %q", ctx.OrgID)
	}
	if ctx.Residency != nil {
		t.Fatalf("residency leaked across tenants: %+v", ctx.Residency)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{
		"org_id":    "org_1",
		"residency": map[string]any{"region": "au"},
	})

	snap := s.Get()
	snap.OrgID = "tampered"
	snap.Residency.Region = "us"

	fresh := s.Get()
	if fresh.OrgID != "org_1" || fresh.Residency.Region != "au" {
		t.Fatalf("snapshot mutation reached the store: %+v", fresh)
	}
}

func TestRequireWithoutContext(t *testing.T) {
	s := NewStore()
	_, err := s.Require()

	var tae *TenantAccessError
	if !errors.As(err, &tae) {
		t.Fatalf("expected TenantAccessError, got %v", err)
	}
}

func TestClearFailsSubsequentGuards(t *testing.T) {
	s := NewStore()
	s.SetFromSession(map[string]any{"org_id": "org_1"})
	s.Clear()

	var tae *TenantAccessError

	if _, err := s.Require(); !errors.As(err, &tae) {
		t.Fatalf("Require after Clear: expected TenantAccessError, got %v", err)
	}
	if _, err := s.WithScope(map[string]any{}); !errors.As(err, &tae) {
		t.Fatalf("WithScope after Clear: expected TenantAccessError, got %v", err)
	}
	if _, err := s.WithFilters(map[string]any{}); !errors.As(err, &tae) {
		t.Fatalf("WithFilters after Clear: expected TenantAccessError, got %v", err)
	}
	if _, err := s.AssertAccess(map[string]any{}, "Sale"); !errors.As(err, &tae) {
		t.Fatalf("AssertAccess after Clear: expected TenantAccessError, got %v", err)
	}
}

func TestSubscribeNotifyAndUnsubscribe(t *testing.T) {
	s := NewStore()

	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	s.SetFromSession(map[string]any{"org_id": "org_1"})
	s.Clear()
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}

	unsubscribe()
	s.SetFromSession(map[string]any{"org_id": "org_2"})
	if calls != 2 {
		t.Fatalf("unsubscribed callback still ran, calls=%d", calls)
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	s := NewStore()

	s.Subscribe(func() { panic("boom") })
	ran := false
	s.Subscribe(func() { ran = true })

	s.SetFromSession(map[string]any{"org_id": "org_1"})

	if !ran {
		t.Fatal("second subscriber did not run after first panicked")
	}
	if got := s.Get().OrgID; got != "org_1" {
		t.Fatalf("store corrupted by panicking subscriber: %q", got)
	}
}

func TestViolationHandlerObservesRejections(t *testing.T) {
	var seen []*TenantAccessError
	s := NewStore(WithViolationHandler(func(e *TenantAccessError) {
		seen = append(seen, e)
	}))

	if _, err := s.Require(); err == nil {
		t.Fatal("expected error")
	}
	if len(seen) != 1 {
		t.Fatalf("expected 1 recorded violation, got %d", len(seen))
	}
}
