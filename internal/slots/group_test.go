package slots

import (
	"testing"
	"time"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

func slot(id, date string, startHour, startMin, endHour, endMin int) crm.TimeSlot {
	d, _ := time.Parse("2006-01-02", date)
	return crm.TimeSlot{
		ID:    id,
		Date:  date,
		Start: time.Date(d.Year(), d.Month(), d.Day(), startHour, startMin, 0, 0, time.UTC),
		End:   time.Date(d.Year(), d.Month(), d.Day(), endHour, endMin, 0, 0, time.UTC),
	}
}

func TestGroupByDate(t *testing.T) {
	tests := []struct {
		name      string
		flat      []crm.TimeSlot
		wantDates []string
		wantSizes []int
	}{
		{
			name:      "empty input",
			flat:      nil,
			wantDates: []string{},
			wantSizes: []int{},
		},
		{
			name: "dates sorted ascending",
			flat: []crm.TimeSlot{
				slot("s3", "2024-06-12", 9, 0, 10, 0),
				slot("s1", "2024-06-10", 13, 0, 14, 0),
				slot("s2", "2024-06-11", 9, 0, 10, 0),
			},
			wantDates: []string{"2024-06-10", "2024-06-11", "2024-06-12"},
			wantSizes: []int{1, 1, 1},
		},
		{
			name: "duplicate ranges collapse, first id wins",
			flat: []crm.TimeSlot{
				slot("s1", "2024-06-10", 13, 0, 14, 0),
				slot("s2", "2024-06-10", 13, 0, 14, 0),
				slot("s3", "2024-06-10", 14, 0, 15, 0),
			},
			wantDates: []string{"2024-06-10"},
			wantSizes: []int{2},
		},
		{
			name: "same times on different dates are not duplicates",
			flat: []crm.TimeSlot{
				slot("s1", "2024-06-10", 13, 0, 14, 0),
				slot("s2", "2024-06-11", 13, 0, 14, 0),
			},
			wantDates: []string{"2024-06-10", "2024-06-11"},
			wantSizes: []int{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := GroupByDate(tt.flat)
			if len(groups) != len(tt.wantDates) {
				t.Fatalf("expected %d groups, got %d", len(tt.wantDates), len(groups))
			}
			for i, group := range groups {
				if group.Date != tt.wantDates[i] {
					t.Errorf("group %d: expected date %s, got %s", i, tt.wantDates[i], group.Date)
				}
				if len(group.Slots) != tt.wantSizes[i] {
					t.Errorf("group %d: expected %d slots, got %d", i, tt.wantSizes[i], len(group.Slots))
				}
			}
		})
	}
}

func TestGroupByDateFirstOccurrenceWins(t *testing.T) {
	groups := GroupByDate([]crm.TimeSlot{
		slot("keep", "2024-06-10", 13, 0, 14, 0),
		slot("drop", "2024-06-10", 13, 0, 14, 0),
	})
	if len(groups) != 1 || len(groups[0].Slots) != 1 {
		t.Fatalf("expected one deduplicated slot, got %+v", groups)
	}
	if groups[0].Slots[0].ID != "keep" {
		t.Errorf("expected first occurrence to win, got %s", groups[0].Slots[0].ID)
	}
}

func TestGroupByDateSortsByStart(t *testing.T) {
	groups := GroupByDate([]crm.TimeSlot{
		slot("late", "2024-06-10", 15, 0, 16, 0),
		slot("early", "2024-06-10", 9, 0, 10, 0),
		slot("mid", "2024-06-10", 12, 30, 13, 30),
	})
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	want := []string{"early", "mid", "late"}
	for i, slot := range groups[0].Slots {
		if slot.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], slot.ID)
		}
	}
}

func TestFindSlot(t *testing.T) {
	groups := GroupByDate([]crm.TimeSlot{
		slot("s1", "2024-06-10", 13, 0, 14, 0),
		slot("s2", "2024-06-11", 9, 0, 10, 0),
	})

	if found := FindSlot(groups, "s2"); found == nil || found.ID != "s2" {
		t.Errorf("expected to find s2, got %+v", found)
	}
	if found := FindSlot(groups, "missing"); found != nil {
		t.Errorf("expected nil for unknown id, got %+v", found)
	}
}
