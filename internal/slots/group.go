// Package slots groups and formats availability windows for presentation:
// flat slot lists become per-date groups with stable ordering and
// human-readable labels.
package slots

import (
	"sort"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

// DayGroup is the availability for one calendar date.
type DayGroup struct {
	Date  string         `json:"date"` // YYYY-MM-DD
	Slots []crm.TimeSlot `json:"slots"`
}

// GroupByDate turns a flat slot list into date groups sorted ascending by
// date, each group sorted ascending by start time. Two slots with the same
// (start, end) pair on one date are duplicates; the first occurrence wins.
func GroupByDate(flat []crm.TimeSlot) []DayGroup {
	byDate := make(map[string][]crm.TimeSlot)
	var order []string

	for _, slot := range flat {
		if _, ok := byDate[slot.Date]; !ok {
			order = append(order, slot.Date)
		}
		byDate[slot.Date] = append(byDate[slot.Date], slot)
	}
	sort.Strings(order)

	groups := make([]DayGroup, 0, len(order))
	for _, date := range order {
		groups = append(groups, DayGroup{Date: date, Slots: dedupe(byDate[date])})
	}
	return groups
}

// dedupe drops later slots whose (start, end) pair was already seen, then
// sorts by start time. slot_id is deliberately ignored: the CRM emits
// distinct ids for what is one logical window.
func dedupe(in []crm.TimeSlot) []crm.TimeSlot {
	type rangeKey struct {
		start, end int64
	}
	seen := make(map[rangeKey]bool, len(in))
	out := make([]crm.TimeSlot, 0, len(in))
	for _, slot := range in {
		key := rangeKey{slot.Start.Unix(), slot.End.Unix()}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, slot)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// FindSlot returns the slot with the given id within the groups, or nil.
func FindSlot(groups []DayGroup, slotID string) *crm.TimeSlot {
	for _, group := range groups {
		for i := range group.Slots {
			if group.Slots[i].ID == slotID {
				return &group.Slots[i]
			}
		}
	}
	return nil
}
