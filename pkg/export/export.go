// Package export builds tenant- and residency-safe bulk export requests
// against the backend's entity export capability. Tenant-boundary failures
// surface as tenancy.TenantAccessError; input-validation failures (missing
// entity name, unsupported format, missing download URL) are plain errors so
// callers can tell a security rejection from a usage mistake.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elite-vending/vendhub/pkg/audit"
	"github.com/elite-vending/vendhub/pkg/backend"
	"github.com/elite-vending/vendhub/pkg/observability"
	"github.com/elite-vending/vendhub/pkg/residency"
	"github.com/elite-vending/vendhub/pkg/tenancy"
)

var (
	ErrEntityNameRequired = errors.New("entity name is required")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
	ErrExportNotSupported = errors.New("entity does not support export")
	ErrMissingDownloadURL = errors.New("export response missing download URL")
)

// supportedFormats is the fixed set of export formats the backend accepts.
var supportedFormats = map[string]bool{
	"jsonl":   true,
	"parquet": true,
}

// downloadURLFields are the response field names accepted for the artifact
// URL, in priority order.
var downloadURLFields = []string{"signed_url", "download_url", "url", "link"}

// Request describes one bulk export.
type Request struct {
	EntityName string
	Format     string
	Filters    map[string]any
	ExportName string
	// ResidencyOverrides may fill residency fields the tenant has not
	// configured; conflicting overrides are rejected.
	ResidencyOverrides *tenancy.Residency
}

// Result is the normalized outcome of a completed export.
type Result struct {
	DownloadURL string            `json:"download_url"`
	Format      string            `json:"format"`
	ExportName  string            `json:"export_name"`
	Residency   residency.Config  `json:"residency"`
	Headers     map[string]string `json:"headers,omitempty"`
	ExpiresAt   string            `json:"expires_at,omitempty"`
}

// Exporter orchestrates tenant-scoped bulk exports. Concurrent calls are
// independent backend requests; callers needing at-most-one semantics must
// serialize externally.
type Exporter struct {
	store    *tenancy.Store
	resolver *residency.Resolver
	registry *backend.Registry
	trail    *audit.Trail
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithAuditTrail records export lifecycle events on the given trail.
func WithAuditTrail(t *audit.Trail) ExporterOption {
	return func(e *Exporter) { e.trail = t }
}

// WithMetrics records export metrics.
func WithMetrics(m *observability.Metrics) ExporterOption {
	return func(e *Exporter) { e.metrics = m }
}

// WithClock overrides the clock for testing.
func WithClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates an exporter over the given store, resolver, and entity
// registry.
func NewExporter(store *tenancy.Store, resolver *residency.Resolver, registry *backend.Registry, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:    store,
		resolver: resolver,
		registry: registry,
		logger:   slog.Default().With("component", "export"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateEntityExport validates, scopes, and runs one bulk export. Input
// validation happens before the tenant context is consulted, and the tenant
// context is required before any network call is made.
func (e *Exporter) CreateEntityExport(ctx context.Context, req Request) (*Result, error) {
	if req.EntityName == "" {
		return nil, ErrEntityNameRequired
	}
	if !supportedFormats[req.Format] {
		return nil, fmt.Errorf("%w: %q (supported: jsonl, parquet)", ErrUnsupportedFormat, req.Format)
	}
	capability, ok := e.registry.Exporter(req.EntityName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExportNotSupported, req.EntityName)
	}

	active, err := e.store.Require()
	if err != nil {
		return nil, err
	}

	filters, err := e.store.WithFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	cfg, err := e.resolver.EnsureConfig(req.ResidencyOverrides)
	if err != nil {
		var tae *tenancy.TenantAccessError
		if errors.As(err, &tae) && tae.Details != nil && tae.Details.Field != "" {
			e.metrics.RecordResidencyConflict(ctx, tae.Details.Field)
			e.record(audit.EventViolation, active.OrgID, req.EntityName, "residency_conflict", map[string]any{
				"field":   tae.Details.Field,
				"message": tae.Message,
			})
		}
		return nil, err
	}

	name := req.ExportName
	if name == "" {
		name = fmt.Sprintf("%s_%s_%d", req.EntityName, req.Format, e.now().UTC().Unix())
	}

	e.metrics.RecordExportStarted(ctx, req.EntityName, req.Format)
	e.record(audit.EventExportStarted, active.OrgID, req.EntityName, name, map[string]any{
		"format": req.Format,
		"region": cfg.Region,
		"bucket": cfg.Bucket,
	})

	started := e.now()
	raw, err := capability.Export(ctx, backend.ExportRequest{
		Format:     req.Format,
		Filters:    filters,
		Residency:  cfg,
		ExportName: name,
	})
	if err != nil {
		e.metrics.RecordExportFailed(ctx, req.EntityName, req.Format)
		e.record(audit.EventExportFailed, active.OrgID, req.EntityName, name, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("export %s: %w", req.EntityName, err)
	}

	result, err := e.normalize(raw, req.Format, name, cfg)
	if err != nil {
		e.metrics.RecordExportFailed(ctx, req.EntityName, req.Format)
		e.record(audit.EventExportFailed, active.OrgID, req.EntityName, name, map[string]any{"error": err.Error()})
		return nil, err
	}

	e.metrics.RecordExportCompleted(ctx, req.EntityName, req.Format, e.now().Sub(started).Seconds())
	e.record(audit.EventExportCompleted, active.OrgID, req.EntityName, name, map[string]any{
		"download_url": result.DownloadURL,
	})
	e.logger.Info("export completed",
		"entity", req.EntityName,
		"format", req.Format,
		"export_name", name,
	)
	return result, nil
}

// normalize validates and flattens a raw export response. Responses may carry
// the payload directly or nested under a data field.
func (e *Exporter) normalize(raw map[string]any, format, name string, cfg residency.Config) (*Result, error) {
	if data, ok := raw["data"].(map[string]any); ok {
		raw = data
	}

	// A backend that echoes a residency block must have honored the one it
	// was asked for.
	if echo, ok := raw["residency"].(map[string]any); ok {
		if err := e.resolver.ValidateTargetAgainst(echo, cfg); err != nil {
			return nil, err
		}
	}

	url := firstStringField(raw, downloadURLFields)
	if url == "" {
		return nil, ErrMissingDownloadURL
	}

	result := &Result{
		DownloadURL: url,
		Format:      format,
		ExportName:  name,
		Residency:   cfg,
	}
	if headers, ok := raw["headers"].(map[string]any); ok {
		result.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				result.Headers[k] = s
			}
		}
	}
	if expires, ok := raw["expires_at"].(string); ok {
		result.ExpiresAt = expires
	}
	return result, nil
}

func (e *Exporter) record(eventType audit.EventType, orgID, entity, action string, payload map[string]any) {
	if e.trail == nil {
		return
	}
	if _, err := e.trail.Append(eventType, orgID, entity, action, payload); err != nil {
		e.logger.Error("failed to record export event", "error", err)
	}
}

func firstStringField(m map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
