package tenancy

// Sessions and user records arrive from authentication providers with no
// agreed field naming. Extraction tries each alias in priority order and
// takes the first non-empty match; the orders below are load-bearing and
// must not be reshuffled.

var orgIDAliases = []string{
	"org_id",
	"organization_id",
	"orgId",
	"organizationId",
	"tenant_id",
	"tenantId",
}

var orgUnitIDAliases = []string{
	"org_unit_id",
	"orgUnitId",
	"org_unit",
	"organization_unit_id",
	"organizationUnitId",
}

var residencyAliases = []string{
	"data_residency",
	"residency",
	"tenant_residency",
}

var regionAliases = []string{"region", "data_region", "dataRegion"}

var storageBucketAliases = []string{"storage_bucket", "storageBucket", "bucket"}

var kmsKeyAliases = []string{"kms_key", "kmsKey", "kms_key_id", "kmsKeyId"}

// firstString returns the first non-empty string value found under the given
// keys, in order. Non-string values are skipped rather than coerced.
func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// conflictingValue scans every alias and returns the first value that differs
// from want. One alias check is not enough: a foreign id under a low-priority
// alias must not hide behind a matching high-priority one.
func conflictingValue(m map[string]any, keys []string, want string) (string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" && s != want {
				return s, true
			}
		}
	}
	return "", false
}

// firstMap returns the first map value found under the given keys, in order.
func firstMap(m map[string]any, keys []string) map[string]any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if sub, ok := v.(map[string]any); ok {
				return sub
			}
		}
	}
	return nil
}

// extractResidency pulls a residency descriptor out of a session or user
// object. Returns nil when no residency sub-object is present or when the
// sub-object carries none of the recognized fields.
func extractResidency(m map[string]any) *Residency {
	sub := firstMap(m, residencyAliases)
	if sub == nil {
		return nil
	}
	r := NormalizeResidency(sub)
	if r.IsZero() {
		return nil
	}
	return &r
}

// NormalizeResidency maps a loosely-named residency object onto the canonical
// descriptor. Used both for session extraction and for residency blocks echoed
// by the backend.
func NormalizeResidency(m map[string]any) Residency {
	return Residency{
		Region:        firstString(m, regionAliases),
		StorageBucket: firstString(m, storageBucketAliases),
		KMSKey:        firstString(m, kmsKeyAliases),
	}
}
