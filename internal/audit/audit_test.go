package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ridgeline-crm/ridgeline/internal/booking"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordAndQuery(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	entries := []booking.AuditEntry{
		{Kind: booking.AuditBooked, LeadID: "lead1", BookingID: "b1", Detail: "s1"},
		{Kind: booking.AuditLeadLinkFailed, LeadID: "lead1", BookingID: "b1", Detail: "500"},
		{Kind: booking.AuditCancelled, LeadID: "lead2", BookingID: "b2", Detail: "customer requested"},
	}
	for _, entry := range entries {
		if err := log.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	byLead, err := log.ByLead(ctx, "lead1")
	if err != nil {
		t.Fatalf("by lead: %v", err)
	}
	if len(byLead) != 2 {
		t.Fatalf("expected 2 events for lead1, got %d", len(byLead))
	}
	// Newest first
	if byLead[0].Kind != booking.AuditLeadLinkFailed {
		t.Errorf("expected newest first, got %s", byLead[0].Kind)
	}

	unlinked, err := log.UnlinkedBookings(ctx)
	if err != nil {
		t.Fatalf("unlinked: %v", err)
	}
	if len(unlinked) != 1 || unlinked[0].BookingID != "b1" {
		t.Errorf("expected b1 to be flagged as unlinked, got %+v", unlinked)
	}

	recent, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected recent to honor limit, got %d", len(recent))
	}
}
