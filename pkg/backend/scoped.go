package backend

import (
	"context"

	"github.com/elite-vending/vendhub/pkg/tenancy"
)

// ScopedClient wraps an Entity so that every write passes through the scoping
// guard and every response passes through the sanitizers. Call sites hold a
// ScopedClient instead of the raw Entity, which makes an unscoped backend
// call structurally impossible.
type ScopedClient struct {
	name   string
	entity Entity
	store  *tenancy.Store
}

// NewScopedClient binds an entity to a tenant context store.
func NewScopedClient(name string, entity Entity, store *tenancy.Store) *ScopedClient {
	return &ScopedClient{name: name, entity: entity, store: store}
}

// Create stamps the payload with the active tenant and validates the created
// record on the way back.
func (c *ScopedClient) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	scoped, err := c.store.WithScope(payload)
	if err != nil {
		return nil, err
	}
	res, err := c.entity.Create(ctx, scoped)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.AssertAccess(res, c.name); err != nil {
		return nil, err
	}
	return res, nil
}

// Update stamps the payload with the active tenant and validates the updated
// record on the way back.
func (c *ScopedClient) Update(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	scoped, err := c.store.WithScope(payload)
	if err != nil {
		return nil, err
	}
	res, err := c.entity.Update(ctx, id, scoped)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.AssertAccess(res, c.name); err != nil {
		return nil, err
	}
	return res, nil
}

// Filter constrains the query to the active tenant and rejects foreign
// records in the result.
func (c *ScopedClient) Filter(ctx context.Context, filters map[string]any) ([]map[string]any, error) {
	scoped, err := c.store.WithFilters(filters)
	if err != nil {
		return nil, err
	}
	res, err := c.entity.Filter(ctx, scoped)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.SanitizeResults(res, c.name); err != nil {
		return nil, err
	}
	return res, nil
}

// List lists with tenant-constrained filters. The backend's unfiltered List
// is never exposed through a scoped client.
func (c *ScopedClient) List(ctx context.Context) ([]map[string]any, error) {
	return c.Filter(ctx, nil)
}
