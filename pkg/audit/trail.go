// Package audit keeps an append-only, hash-chained trail of tenant-boundary
// violations and export lifecycle events. Recording is observational: a
// failure to record never changes the outcome of the guarded operation.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

var (
	ErrEventNotFound = errors.New("audit event not found")
	ErrChainBroken   = errors.New("audit hash chain is broken")
)

// EventType categorizes trail events.
type EventType string

const (
	EventViolation       EventType = "tenant_violation"
	EventContextChanged  EventType = "context_changed"
	EventExportStarted   EventType = "export_started"
	EventExportCompleted EventType = "export_completed"
	EventExportFailed    EventType = "export_failed"
)

// Event is a single immutable trail entry. EventHash covers the payload hash
// and the previous entry's hash, so any mutation breaks the chain.
type Event struct {
	EventID      string          `json:"event_id"`
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	EventType    EventType       `json:"event_type"`
	OrgID        string          `json:"org_id,omitempty"`
	Entity       string          `json:"entity,omitempty"`
	Action       string          `json:"action"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	EventHash    string          `json:"event_hash"`
}

// Handler is called synchronously for every appended event.
type Handler func(*Event)

// Trail is an in-memory append-only audit log with hash chaining.
type Trail struct {
	mu        sync.RWMutex
	events    []*Event
	byID      map[string]*Event
	sequence  uint64
	chainHead string
	handlers  []Handler
	clock     func() time.Time
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{
		byID:      make(map[string]*Event),
		chainHead: "genesis",
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *Trail) WithClock(clock func() time.Time) *Trail {
	t.clock = clock
	return t
}

// AddHandler registers a sink invoked for every appended event.
func (t *Trail) AddHandler(h Handler) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

// Append records an event. The payload is canonicalized per RFC 8785 before
// hashing, so semantically identical payloads always hash identically.
func (t *Trail) Append(eventType EventType, orgID, entity, action string, payload any) (*Event, error) {
	var payloadBytes []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("audit: serialize payload: %w", err)
		}
		payloadBytes, err = jcs.Transform(raw)
		if err != nil {
			return nil, fmt.Errorf("audit: canonicalize payload: %w", err)
		}
	}

	t.mu.Lock()

	t.sequence++
	event := &Event{
		EventID:      uuid.New().String(),
		Sequence:     t.sequence,
		Timestamp:    t.clock().UTC(),
		EventType:    eventType,
		OrgID:        orgID,
		Entity:       entity,
		Action:       action,
		Payload:      payloadBytes,
		PayloadHash:  hashBytes(payloadBytes),
		PreviousHash: t.chainHead,
	}
	event.EventHash = eventHash(event)

	t.events = append(t.events, event)
	t.byID[event.EventID] = event
	t.chainHead = event.EventHash
	handlers := append([]Handler(nil), t.handlers...)

	t.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return event, nil
}

// ByID returns the event with the given id.
func (t *Trail) ByID(id string) (*Event, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.byID[id]; ok {
		return e, nil
	}
	return nil, ErrEventNotFound
}

// List returns all events in append order.
func (t *Trail) List() []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Event(nil), t.events...)
}

// Verify walks the chain and reports the first break.
func (t *Trail) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev := "genesis"
	for _, e := range t.events {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: event %s previous hash mismatch", ErrChainBroken, e.EventID)
		}
		if eventHash(e) != e.EventHash {
			return fmt.Errorf("%w: event %s hash mismatch", ErrChainBroken, e.EventID)
		}
		prev = e.EventHash
	}
	return nil
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}

func eventHash(e *Event) string {
	input := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s",
		e.Sequence, e.EventType, e.OrgID, e.Entity, e.Action, e.PayloadHash, e.PreviousHash)
	h := sha256.Sum256([]byte(input))
	return "sha256:" + hex.EncodeToString(h[:])
}
