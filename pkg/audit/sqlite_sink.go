package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists trail events to a local SQLite database. Attach it to a
// Trail with AddHandler so operators keep a durable record of violations
// across restarts.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens (or creates) the database at path and runs migrations.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}

	s := &SQLiteSink{
		db:     db,
		logger: slog.Default().With("component", "audit"),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		event_id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		org_id TEXT,
		entity TEXT,
		action TEXT,
		payload JSON,
		payload_hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		event_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_org ON audit_events(org_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Handle persists one event. Errors are logged, not returned: the sink must
// never fail the operation that produced the event.
func (s *SQLiteSink) Handle(e *Event) {
	_, err := s.db.Exec(`
		INSERT INTO audit_events
			(event_id, sequence, timestamp, event_type, org_id, entity, action, payload, payload_hash, previous_hash, event_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.Sequence, e.Timestamp.Format(time.RFC3339Nano), string(e.EventType),
		e.OrgID, e.Entity, e.Action, string(e.Payload), e.PayloadHash, e.PreviousHash, e.EventHash,
	)
	if err != nil {
		s.logger.Error("failed to persist audit event", "event_id", e.EventID, "error", err)
	}
}

// Load reads back up to limit events in append order.
func (s *SQLiteSink) Load(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, sequence, timestamp, event_type, org_id, entity, action, payload, payload_hash, previous_hash, event_hash
		FROM audit_events
		ORDER BY sequence ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		var e Event
		var ts, eventType, payload string
		if err := rows.Scan(&e.EventID, &e.Sequence, &ts, &eventType, &e.OrgID, &e.Entity, &e.Action,
			&payload, &e.PayloadHash, &e.PreviousHash, &e.EventHash); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		if payload != "" {
			e.Payload = []byte(payload)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
