package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTPEntity client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond and Burst bound the call rate against the backend.
	// Zero values fall back to 5 rps with a burst of 10.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// HTTPEntity implements Entity and Exportable over the backend's REST entity
// API: one client per entity name.
type HTTPEntity struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPEntity creates a rate-limited HTTP client for one entity.
func NewHTTPEntity(name string, cfg HTTPConfig) *HTTPEntity {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPEntity{
		name:    name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  slog.Default().With("component", "backend", "entity", name),
	}
}

// Create issues POST /entities/<name>.
func (e *HTTPEntity) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return e.doObject(ctx, http.MethodPost, e.entityPath(""), payload)
}

// Update issues PATCH /entities/<name>/<id>.
func (e *HTTPEntity) Update(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	return e.doObject(ctx, http.MethodPatch, e.entityPath(id), payload)
}

// Filter issues POST /entities/<name>/query and unwraps the data envelope.
func (e *HTTPEntity) Filter(ctx context.Context, filters map[string]any) ([]map[string]any, error) {
	raw, err := e.doObject(ctx, http.MethodPost, e.entityPath("query"), map[string]any{"filters": filters})
	if err != nil {
		return nil, err
	}
	return unwrapList(raw)
}

// List issues GET /entities/<name>.
func (e *HTTPEntity) List(ctx context.Context) ([]map[string]any, error) {
	raw, err := e.doObject(ctx, http.MethodGet, e.entityPath(""), nil)
	if err != nil {
		return nil, err
	}
	return unwrapList(raw)
}

// Export issues POST /entities/<name>/export and returns the raw response
// object for the export helper to validate.
func (e *HTTPEntity) Export(ctx context.Context, req ExportRequest) (map[string]any, error) {
	body := map[string]any{
		"format":      req.Format,
		"filters":     req.Filters,
		"residency":   req.Residency,
		"export_name": req.ExportName,
	}
	return e.doObject(ctx, http.MethodPost, e.entityPath("export"), body)
}

func (e *HTTPEntity) entityPath(suffix string) string {
	p := "/entities/" + url.PathEscape(e.name)
	if suffix != "" {
		p += "/" + url.PathEscape(suffix)
	}
	return p
}

func (e *HTTPEntity) doObject(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("backend: rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("backend request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("backend: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 256))
	}

	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("backend: decode response: %w", err)
	}
	return out, nil
}

// unwrapList accepts either a bare array response decoded into "data" by the
// backend or an envelope object with a data field.
func unwrapList(raw map[string]any) ([]map[string]any, error) {
	data, ok := raw["data"]
	if !ok {
		return nil, fmt.Errorf("backend: response missing data field")
	}
	items, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("backend: data field is not a list")
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("backend: list element is not an object")
		}
		out = append(out, obj)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
