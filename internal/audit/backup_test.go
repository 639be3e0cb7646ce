package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ridgeline-crm/ridgeline/internal/booking"
)

func TestBackupAndCleanup(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	ctx := context.Background()
	if err := log.Record(ctx, booking.AuditEntry{Kind: "booked", BookingID: "b1"}); err != nil {
		t.Fatal(err)
	}

	backupDir := filepath.Join(dir, "backups")
	dest := filepath.Join(backupDir, "snap.db")
	if err := log.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	// The snapshot must be an openable database with the recorded event.
	snap, err := Open(dest)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer snap.Close()
	events, err := snap.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].BookingID != "b1" {
		t.Fatalf("snapshot events = %+v, want the recorded booking", events)
	}

	// Age the snapshot past the retention window and clean up.
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(dest, old, old); err != nil {
		t.Fatal(err)
	}
	deleted, err := CleanupBackups(backupDir, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupBackups: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("expired snapshot still present")
	}
}
