package google

import (
	"testing"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

func TestFilterActiveBookings(t *testing.T) {
	s := &SheetsService{}

	bookings := []crm.Booking{
		{ID: "b1", Status: "pending"},
		{ID: "b2", Status: crm.BookingConfirmed},
		{ID: "b3", Status: crm.BookingCancelled},
		{ID: "b4", Status: "completed"},
	}

	active := s.filterActiveBookings(bookings)

	if len(active) != 3 {
		t.Errorf("expected 3 active bookings, got %d", len(active))
	}
	for _, b := range active {
		if b.Status == crm.BookingCancelled {
			t.Error("cancelled booking found in active list")
		}
	}
}

func TestBookingRowValues(t *testing.T) {
	b := &crm.Booking{
		ID:               "b123",
		InspectionID:     "i456",
		DateOfInspection: "2026-09-03",
		StartTime:        "13:00",
		EndTime:          "14:30",
		Status:           crm.BookingConfirmed,
		Presence:         crm.PresenceYes,
	}

	values := bookingRowValues(b)

	expected := []any{"b123", "i456", "2026-09-03", "13:00", "14:30", "confirmed", "yes"}
	if len(values) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("at index %d: expected %v, got %v", i, expected[i], v)
		}
	}
	if len(values) != len(scheduleHeader) {
		t.Errorf("row has %d columns, header has %d", len(values), len(scheduleHeader))
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsService{rowCache: map[string]int{"b100": 5}}

	row, ok := s.getCachedRow("b100")
	if !ok || row != 5 {
		t.Errorf("expected row 5, got %d (ok=%v)", row, ok)
	}
	if _, ok := s.getCachedRow("b999"); ok {
		t.Error("expected miss for unknown booking")
	}

	s.ClearCache()
	if _, ok := s.getCachedRow("b100"); ok {
		t.Error("expected cache to be cleared")
	}
}
