// Package observability instruments the tenancy core with OpenTelemetry
// metrics: guard and sanitizer rejections, residency conflicts, and export
// lifecycle counts. All recorders are nil-safe so call sites never need to
// branch on whether telemetry is configured.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vendhub.tenancy"

// Metrics holds the instruments for the tenancy core.
type Metrics struct {
	guardRejections     metric.Int64Counter
	sanitizerRejections metric.Int64Counter
	residencyConflicts  metric.Int64Counter
	exportsStarted      metric.Int64Counter
	exportsCompleted    metric.Int64Counter
	exportsFailed       metric.Int64Counter
	exportDuration      metric.Float64Histogram
}

// NewMetrics creates instruments on the given meter provider. Pass nil to use
// the globally registered provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.guardRejections, err = meter.Int64Counter("tenancy.guard.rejections",
		metric.WithDescription("Outgoing payloads/filters rejected for naming a foreign tenant")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.sanitizerRejections, err = meter.Int64Counter("tenancy.sanitizer.rejections",
		metric.WithDescription("Backend records rejected for belonging to a foreign tenant")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.residencyConflicts, err = meter.Int64Counter("tenancy.residency.conflicts",
		metric.WithDescription("Residency merges or echoes rejected for conflicting with tenant residency")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.exportsStarted, err = meter.Int64Counter("tenancy.exports.started",
		metric.WithDescription("Bulk exports initiated")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.exportsCompleted, err = meter.Int64Counter("tenancy.exports.completed",
		metric.WithDescription("Bulk exports completed with a download URL")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.exportsFailed, err = meter.Int64Counter("tenancy.exports.failed",
		metric.WithDescription("Bulk exports that failed")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.exportDuration, err = meter.Float64Histogram("tenancy.export.duration",
		metric.WithDescription("Export round-trip duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	return m, nil
}

// RecordGuardRejection counts a guard rejection.
func (m *Metrics) RecordGuardRejection(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.guardRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordSanitizerRejection counts a sanitizer rejection.
func (m *Metrics) RecordSanitizerRejection(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.sanitizerRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordResidencyConflict counts a residency conflict on the named field.
func (m *Metrics) RecordResidencyConflict(ctx context.Context, field string) {
	if m == nil {
		return
	}
	m.residencyConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

// RecordExportStarted counts an export start.
func (m *Metrics) RecordExportStarted(ctx context.Context, entity, format string) {
	if m == nil {
		return
	}
	m.exportsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("format", format),
	))
}

// RecordExportCompleted counts an export completion and its duration.
func (m *Metrics) RecordExportCompleted(ctx context.Context, entity, format string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("format", format),
	)
	m.exportsCompleted.Add(ctx, 1, attrs)
	m.exportDuration.Record(ctx, seconds, attrs)
}

// RecordExportFailed counts an export failure.
func (m *Metrics) RecordExportFailed(ctx context.Context, entity, format string) {
	if m == nil {
		return
	}
	m.exportsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("format", format),
	))
}
