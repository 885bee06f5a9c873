package tenancy

// AssertAccess validates that a record returned by the backend belongs to the
// active tenant. A record naming a different org or org unit is rejected with
// the entity name and both identifiers. Non-object inputs pass through
// unchanged: this validates, it does not coerce. The record is returned as-is
// on success; nothing is stripped.
func (s *Store) AssertAccess(record any, entityName string) (any, error) {
	active, err := s.Require()
	if err != nil {
		return nil, err
	}

	obj, ok := record.(map[string]any)
	if !ok {
		return record, nil
	}

	if got, conflict := conflictingValue(obj, orgIDAliases, active.OrgID); conflict {
		return nil, s.reject(errOrgMismatch(entityName, active.OrgID, got))
	}
	if active.OrgUnitID != "" {
		if got, conflict := conflictingValue(obj, orgUnitIDAliases, active.OrgUnitID); conflict {
			return nil, s.reject(errOrgUnitMismatch(entityName, active.OrgUnitID, got))
		}
	}
	return record, nil
}

// SanitizeResults applies AssertAccess across the three response shapes the
// backend produces: a bare array, an envelope with a "data" array, or a single
// record. The first foreign record fails the whole call; foreign records are
// never silently dropped, because a scoping bug in the backend must surface,
// not hide. Non-object, non-array inputs pass through unchanged.
func (s *Store) SanitizeResults(result any, entityName string) (any, error) {
	if _, err := s.Require(); err != nil {
		return nil, err
	}

	switch v := result.(type) {
	case []any:
		for _, item := range v {
			if _, err := s.AssertAccess(item, entityName); err != nil {
				return nil, err
			}
		}
		return v, nil
	case []map[string]any:
		for _, item := range v {
			if _, err := s.AssertAccess(item, entityName); err != nil {
				return nil, err
			}
		}
		return v, nil
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			for _, item := range data {
				if _, err := s.AssertAccess(item, entityName); err != nil {
					return nil, err
				}
			}
			// Envelope fields other than data are preserved verbatim.
			return v, nil
		}
		if data, ok := v["data"].([]map[string]any); ok {
			for _, item := range data {
				if _, err := s.AssertAccess(item, entityName); err != nil {
					return nil, err
				}
			}
			return v, nil
		}
		return s.AssertAccess(v, entityName)
	default:
		return result, nil
	}
}
