// Package audit keeps a local, append-only record of workflow outcomes. The
// CRM owns all business records; this log exists so operational divergence,
// above all bookings whose lead link-back failed, stays discoverable.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ridgeline-crm/ridgeline/internal/booking"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL,
	lead_id       TEXT NOT NULL DEFAULT '',
	inspection_id TEXT NOT NULL DEFAULT '',
	booking_id    TEXT NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_kind ON workflow_events(kind);
CREATE INDEX IF NOT EXISTS idx_workflow_events_lead ON workflow_events(lead_id);
`

// Event is one recorded workflow outcome.
type Event struct {
	ID           int64
	Kind         string
	LeadID       string
	InspectionID string
	BookingID    string
	Detail       string
	CreatedAt    time.Time
}

// Log is the SQLite-backed audit store.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Ping verifies the store is reachable.
func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Record appends a workflow outcome. Implements booking.Auditor.
func (l *Log) Record(ctx context.Context, entry booking.AuditEntry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO workflow_events (kind, lead_id, inspection_id, booking_id, detail) VALUES (?, ?, ?, ?, ?)`,
		entry.Kind, entry.LeadID, entry.InspectionID, entry.BookingID, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", entry.Kind, err)
	}
	return nil
}

// ByLead returns events for one lead, newest first.
func (l *Log) ByLead(ctx context.Context, leadID string) ([]Event, error) {
	return l.query(ctx,
		`SELECT id, kind, lead_id, inspection_id, booking_id, detail, created_at
		 FROM workflow_events WHERE lead_id = ? ORDER BY id DESC`, leadID)
}

// ByKind returns events of one kind, newest first.
func (l *Log) ByKind(ctx context.Context, kind string) ([]Event, error) {
	return l.query(ctx,
		`SELECT id, kind, lead_id, inspection_id, booking_id, detail, created_at
		 FROM workflow_events WHERE kind = ? ORDER BY id DESC`, kind)
}

// Recent returns the latest events up to limit.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.query(ctx,
		`SELECT id, kind, lead_id, inspection_id, booking_id, detail, created_at
		 FROM workflow_events ORDER BY id DESC LIMIT ?`, limit)
}

// UnlinkedBookings returns bookings that were created but never attached to
// their lead, the divergence the best-effort link policy allows.
func (l *Log) UnlinkedBookings(ctx context.Context) ([]Event, error) {
	return l.ByKind(ctx, booking.AuditLeadLinkFailed)
}

func (l *Log) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.LeadID, &e.InspectionID, &e.BookingID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
