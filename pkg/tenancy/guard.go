package tenancy

// WithScope stamps an outgoing create/update payload with the active tenant
// identity. Payloads already naming a different org or org unit are rejected.
// The input map is never mutated; a new payload is returned with org_id (and
// org_unit_id when the context carries one) set.
func (s *Store) WithScope(payload map[string]any) (map[string]any, error) {
	return s.stamp(payload)
}

// WithFilters applies the same contract to read-side query filters, so every
// query is constrained to the active org and org unit.
func (s *Store) WithFilters(filters map[string]any) (map[string]any, error) {
	return s.stamp(filters)
}

func (s *Store) stamp(in map[string]any) (map[string]any, error) {
	active, err := s.Require()
	if err != nil {
		return nil, err
	}

	if got, conflict := conflictingValue(in, orgIDAliases, active.OrgID); conflict {
		return nil, s.reject(errOrgMismatch("", active.OrgID, got))
	}
	if active.OrgUnitID != "" {
		if got, conflict := conflictingValue(in, orgUnitIDAliases, active.OrgUnitID); conflict {
			return nil, s.reject(errOrgUnitMismatch("", active.OrgUnitID, got))
		}
	}

	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	// Only the canonical field names leave the guard; redundant aliases are
	// stripped so nothing org-shaped rides along beside the stamp.
	for _, alias := range orgIDAliases {
		if alias != "org_id" {
			delete(out, alias)
		}
	}
	out["org_id"] = active.OrgID
	if active.OrgUnitID != "" {
		for _, alias := range orgUnitIDAliases {
			if alias != "org_unit_id" {
				delete(out, alias)
			}
		}
		out["org_unit_id"] = active.OrgUnitID
	}
	return out, nil
}
