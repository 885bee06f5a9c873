package export

import (
	"context"

	"github.com/elite-vending/vendhub/pkg/audit"
	"github.com/elite-vending/vendhub/pkg/observability"
	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// NewViolationRecorder returns a tenancy violation handler that appends every
// rejection to the audit trail and counts it on the metrics instruments.
// Classification follows the error details: a Field names a residency
// conflict, an Entity names a sanitizer rejection on a backend record, and
// anything else is a guard rejection on an outgoing payload.
func NewViolationRecorder(trail *audit.Trail, metrics *observability.Metrics) tenancy.ViolationHandler {
	return func(err *tenancy.TenantAccessError) {
		ctx := context.Background()

		var orgID, entity, field string
		payload := map[string]any{"message": err.Message}
		if d := err.Details; d != nil {
			entity = d.Entity
			field = d.Field
			orgID = d.ExpectedOrgID
			payload["details"] = d
		}

		var action string
		switch {
		case field != "":
			metrics.RecordResidencyConflict(ctx, field)
			action = "residency_conflict"
		case entity != "":
			metrics.RecordSanitizerRejection(ctx, entity)
			action = "sanitizer_rejection"
		default:
			metrics.RecordGuardRejection(ctx, entity)
			action = "guard_rejection"
		}

		if trail != nil {
			// Recording is observational; the rejection already happened.
			_, _ = trail.Append(audit.EventViolation, orgID, entity, action, payload)
		}
	}
}
