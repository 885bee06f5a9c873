// Package tenancy enforces tenant isolation on the client side of the
// entity backend. It holds the active tenant identity, stamps outgoing
// payloads and filters with it, and rejects records, filters, and residency
// targets that name a different tenant. The backend performs its own
// authoritative enforcement; this package is defense in depth, so every
// violation is surfaced loudly rather than filtered away.
package tenancy

import (
	"log/slog"
	"sync"
)

// Residency is a tenant's data-locality configuration. Empty fields are
// "not yet known"; a later value for a known field must match exactly.
type Residency struct {
	Region        string `json:"region,omitempty"`
	StorageBucket string `json:"storage_bucket,omitempty"`
	KMSKey        string `json:"kms_key,omitempty"`
}

// IsZero reports whether no residency field is set.
func (r Residency) IsZero() bool {
	return r.Region == "" && r.StorageBucket == "" && r.KMSKey == ""
}

// Context is an immutable snapshot of the active tenant identity.
type Context struct {
	OrgID     string     `json:"org_id"`
	OrgUnitID string     `json:"org_unit_id,omitempty"`
	Residency *Residency `json:"residency,omitempty"`
}

// Initialized reports whether an organization is active.
func (c Context) Initialized() bool {
	return c.OrgID != ""
}

// ViolationHandler observes rejected accesses. Recording a violation never
// suppresses the returned error.
type ViolationHandler func(*TenantAccessError)

// Store holds the active tenant context for a session. Every mutation
// replaces org, org unit, and residency together under one lock, so readers
// always observe a self-consistent snapshot.
type Store struct {
	mu      sync.RWMutex
	ctx     Context
	subs    map[uint64]func()
	nextSub uint64

	logger      *slog.Logger
	onViolation ViolationHandler
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithViolationHandler registers a handler invoked for every rejected access,
// typically wired to the audit trail and metrics.
func WithViolationHandler(h ViolationHandler) Option {
	return func(s *Store) { s.onViolation = h }
}

// NewStore creates an empty tenant context store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		subs:   make(map[uint64]func()),
		logger: slog.Default().With("component", "tenancy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFromSession derives the tenant context from a session object returned by
// authentication. A nil session clears the context. The full context is
// replaced on every call; there are no partial updates.
func (s *Store) SetFromSession(session map[string]any) {
	s.setFrom(session)
}

// SetFromUser derives the tenant context from a user object. Same extraction
// and replacement semantics as SetFromSession.
func (s *Store) SetFromUser(user map[string]any) {
	s.setFrom(user)
}

func (s *Store) setFrom(source map[string]any) {
	if source == nil {
		s.Clear()
		return
	}

	next := Context{
		OrgID:     firstString(source, orgIDAliases),
		OrgUnitID: firstString(source, orgUnitIDAliases),
		Residency: extractResidency(source),
	}

	s.mu.Lock()
	s.ctx = next
	s.mu.Unlock()

	s.logger.Debug("tenant context set",
		"org_id", next.OrgID,
		"org_unit_id", next.OrgUnitID,
		"has_residency", next.Residency != nil,
	)
	s.notify()
}

// Clear resets the store to the uninitialized state. Guard calls made after
// this point fail until a new context is set.
func (s *Store) Clear() {
	s.mu.Lock()
	s.ctx = Context{}
	s.mu.Unlock()

	s.logger.Debug("tenant context cleared")
	s.notify()
}

// Get returns an independent snapshot of the current context. Mutating the
// returned value does not affect the store.
func (s *Store) Get() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Context {
	snap := s.ctx
	if s.ctx.Residency != nil {
		r := *s.ctx.Residency
		snap.Residency = &r
	}
	return snap
}

// Has reports whether a tenant context is active.
func (s *Store) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.Initialized()
}

// Require returns the current snapshot, or a TenantAccessError when no
// organization is active. Every guard, sanitizer, and resolver operation
// enters through here.
func (s *Store) Require() (Context, error) {
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.mu.RUnlock()

	if !snap.Initialized() {
		return Context{}, s.reject(errNoContext())
	}
	return snap, nil
}

// Subscribe registers a callback invoked synchronously after every context
// mutation and returns its unregister function. Callback order is not
// guaranteed; a panicking callback is recovered so the rest still run.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	callbacks := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.RUnlock()

	for _, fn := range callbacks {
		s.safeCall(fn)
	}
}

func (s *Store) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tenant context subscriber panicked", "panic", r)
		}
	}()
	fn()
}

// reject logs and records a violation, then returns it unchanged.
func (s *Store) reject(err *TenantAccessError) *TenantAccessError {
	s.logger.Warn("tenant access rejected", "error", err.Message)
	if s.onViolation != nil {
		s.onViolation(err)
	}
	return err
}
