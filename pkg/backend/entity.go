// Package backend defines the boundary to the external entity API the
// console talks to. The guards in pkg/tenancy are applied around this
// interface; nothing in this package enforces tenancy on its own.
package backend

import (
	"context"

	"github.com/elite-vending/vendhub/pkg/residency"
)

// Entity is the minimal capability set an injected backend entity exposes.
// Responses are loosely-typed maps because the backend's shapes are not under
// this module's control.
type Entity interface {
	Create(ctx context.Context, payload map[string]any) (map[string]any, error)
	Update(ctx context.Context, id string, payload map[string]any) (map[string]any, error)
	Filter(ctx context.Context, filters map[string]any) ([]map[string]any, error)
	List(ctx context.Context) ([]map[string]any, error)
}

// Exportable is the optional bulk-export capability. Entities that do not
// implement it cannot be exported.
type Exportable interface {
	Export(ctx context.Context, req ExportRequest) (map[string]any, error)
}

// ExportRequest is the payload sent to the backend's export capability.
type ExportRequest struct {
	Format     string           `json:"format"`
	Filters    map[string]any   `json:"filters"`
	Residency  residency.Config `json:"residency"`
	ExportName string           `json:"export_name"`
}

// Registry resolves entities by name.
type Registry struct {
	entities map[string]Entity
}

// NewRegistry creates a registry over the given named entities.
func NewRegistry(entities map[string]Entity) *Registry {
	if entities == nil {
		entities = make(map[string]Entity)
	}
	return &Registry{entities: entities}
}

// Register adds or replaces a named entity.
func (r *Registry) Register(name string, e Entity) {
	r.entities[name] = e
}

// Entity returns the named entity, if registered.
func (r *Registry) Entity(name string) (Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Exporter returns the named entity's export capability, if the entity is
// registered and supports export.
func (r *Registry) Exporter(name string) (Exportable, bool) {
	e, ok := r.entities[name]
	if !ok {
		return nil, false
	}
	exp, ok := e.(Exportable)
	return exp, ok
}
