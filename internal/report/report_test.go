package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ridgeline-crm/ridgeline/internal/audit"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

type fakeEvents struct {
	recent   []audit.Event
	unlinked []audit.Event
}

func (f *fakeEvents) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return f.recent, nil
}

func (f *fakeEvents) UnlinkedBookings(ctx context.Context) ([]audit.Event, error) {
	return f.unlinked, nil
}

type fakeRules struct {
	rules []crm.RecurringRule
	err   error
}

func (f *fakeRules) ListRecurringRules(ctx context.Context) ([]crm.RecurringRule, error) {
	return f.rules, f.err
}

func TestExportWorkbook(t *testing.T) {
	events := &fakeEvents{
		recent: []audit.Event{{
			Kind:      "booked",
			LeadID:    "l1",
			BookingID: "b1",
			CreatedAt: time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
		}},
		unlinked: []audit.Event{{Kind: "lead_link_failed", LeadID: "l2", BookingID: "b2"}},
	}
	rules := &fakeRules{rules: []crm.RecurringRule{{
		ID:        "r1",
		Days:      []int{1, 3, 5},
		StartTime: "09:00",
		EndTime:   "17:00",
		Repeat:    crm.RepeatWeekly,
		Status:    crm.RuleActive,
	}}}

	var buf bytes.Buffer
	r := NewReporter(events, rules, zerolog.Nop())
	if err := r.Export(context.Background(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	want := []string{"Workflow Events", "Unlinked Bookings", "Availability Rules"}
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Errorf("sheet[%d] = %q, want %q", i, sheets[i], want[i])
		}
	}

	kind, err := book.GetCellValue("Workflow Events", "B2")
	if err != nil || kind != "booked" {
		t.Errorf("events B2 = %q (%v), want booked", kind, err)
	}
	days, err := book.GetCellValue("Availability Rules", "B2")
	if err != nil || days != "Mon, Wed, Fri" {
		t.Errorf("rules B2 = %q (%v), want Mon, Wed, Fri", days, err)
	}
}

func TestExportSkipsRulesSheetOnError(t *testing.T) {
	events := &fakeEvents{}
	rules := &fakeRules{err: errors.New("crm down")}

	var buf bytes.Buffer
	r := NewReporter(events, rules, zerolog.Nop())
	if err := r.Export(context.Background(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer book.Close()

	for _, s := range book.GetSheetList() {
		if s == "Availability Rules" {
			t.Fatal("rules sheet present despite load error")
		}
	}
}
