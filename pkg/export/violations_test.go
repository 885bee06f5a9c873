package export_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/elite-vending/vendhub/pkg/audit"
	"github.com/elite-vending/vendhub/pkg/export"
	"github.com/elite-vending/vendhub/pkg/observability"
	"github.com/elite-vending/vendhub/pkg/tenancy"
)

func counterTotals(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, inst := range sm.Metrics {
			if sum, ok := inst.Data.(metricdata.Sum[int64]); ok {
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				found[inst.Name] = total
			}
		}
	}
	return found
}

func TestViolationRecorderTrailsGuardRejection(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetrics(provider)
	require.NoError(t, err)

	trail := audit.NewTrail()
	store := tenancy.NewStore(
		tenancy.WithViolationHandler(export.NewViolationRecorder(trail, metrics)),
	)
	store.SetFromSession(map[string]any{"org_id": "org_1"})

	_, err = store.WithScope(map[string]any{"org_id": "org_2"})
	require.Error(t, err)

	events := trail.List()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventViolation, events[0].EventType)
	assert.Equal(t, "guard_rejection", events[0].Action)
	assert.Equal(t, "org_1", events[0].OrgID)

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(1), totals["tenancy.guard.rejections"])
}

func TestViolationRecorderTrailsSanitizerRejection(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetrics(provider)
	require.NoError(t, err)

	trail := audit.NewTrail()
	store := tenancy.NewStore(
		tenancy.WithViolationHandler(export.NewViolationRecorder(trail, metrics)),
	)
	store.SetFromSession(map[string]any{"org_id": "org_1"})

	_, err = store.AssertAccess(map[string]any{"org_id": "org_2"}, "Sale")
	require.Error(t, err)

	events := trail.List()
	require.Len(t, events, 1)
	assert.Equal(t, "sanitizer_rejection", events[0].Action)
	assert.Equal(t, "Sale", events[0].Entity)

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(1), totals["tenancy.sanitizer.rejections"])
}

func TestViolationRecorderClassifiesResidencyConflict(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewMetrics(provider)
	require.NoError(t, err)

	trail := audit.NewTrail()
	handler := export.NewViolationRecorder(trail, metrics)

	handler(tenancy.NewAccessError("residency conflict", &tenancy.AccessDetails{
		Field:    "region",
		Expected: "au",
		Received: "us",
	}))

	events := trail.List()
	require.Len(t, events, 1)
	assert.Equal(t, "residency_conflict", events[0].Action)

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(1), totals["tenancy.residency.conflicts"])
}

func TestViolationRecorderNilTrailAndMetrics(t *testing.T) {
	handler := export.NewViolationRecorder(nil, nil)

	// Must not panic with neither sink configured.
	handler(tenancy.NewAccessError("no active tenant context", nil))
}
