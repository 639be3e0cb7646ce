package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// rawSlot tolerates the field-name drift the upstream availability endpoint
// has shipped over time.
type rawSlot struct {
	SlotID     string `json:"slot_id"`
	ID         string `json:"id"`
	TimeSlotID string `json:"time_slot_id"`

	StartTime string `json:"start_time"`
	Start     string `json:"start"`
	StartAt   string `json:"startAt"`

	EndTime string `json:"end_time"`
	End     string `json:"end"`
	EndAt   string `json:"endAt"`

	Date string `json:"date"`
	Day  string `json:"day"`
}

var slotTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var clockLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3 PM"}

// GetAvailableSlots fetches bookable inspection windows matching the filter.
// The canonical payload is {"slots": [...]}; anything else is a decode error
// unless the client was built with WithLenientSlots.
func (c *Client) GetAvailableSlots(ctx context.Context, filter SlotFilter) ([]TimeSlot, error) {
	endpoint := c.baseURL + "/inspection_timeslots"
	query := url.Values{}
	if filter.LocationID != "" {
		query.Set("location_id", filter.LocationID)
	}
	if filter.Date != "" {
		query.Set("date", filter.Date)
	}
	if filter.StartDate != "" {
		query.Set("start_date", filter.StartDate)
	}
	if filter.EndDate != "" {
		query.Set("end_date", filter.EndDate)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	data, err := c.doRaw(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	raws, err := c.decodeSlotPayload(data)
	if err != nil {
		return nil, err
	}

	slots := make([]TimeSlot, 0, len(raws))
	for _, r := range raws {
		slot, err := normalizeSlot(r)
		if err != nil {
			c.logger.Warn().Err(err).Msg("skipping malformed availability slot")
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (c *Client) decodeSlotPayload(data []byte) ([]rawSlot, error) {
	var canonical struct {
		Slots []rawSlot `json:"slots"`
	}
	if err := json.Unmarshal(data, &canonical); err == nil && canonical.Slots != nil {
		return canonical.Slots, nil
	}

	if !c.lenientSlots {
		c.logger.Error().
			RawJSON("payload", jsonOrQuoted(data)).
			Msg("availability payload does not match the slots contract")
		return nil, fmt.Errorf("crm: availability payload missing \"slots\" array")
	}

	// Legacy shapes: bare array, {"data": [...]}, or the first array-valued
	// property in the object. Kept only behind WithLenientSlots.
	var bare []rawSlot
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Data []rawSlot `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err == nil {
		for _, value := range object {
			var found []rawSlot
			if err := json.Unmarshal(value, &found); err == nil && found != nil {
				return found, nil
			}
		}
	}
	return nil, fmt.Errorf("crm: no slot array found in availability payload")
}

func normalizeSlot(r rawSlot) (TimeSlot, error) {
	id := firstNonEmpty(r.SlotID, r.ID, r.TimeSlotID)
	date := firstNonEmpty(r.Date, r.Day)

	start, err := parseSlotTime(firstNonEmpty(r.StartTime, r.Start, r.StartAt), date)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("slot %q: start: %w", id, err)
	}
	end, err := parseSlotTime(firstNonEmpty(r.EndTime, r.End, r.EndAt), date)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("slot %q: end: %w", id, err)
	}
	if date == "" {
		date = start.Format("2006-01-02")
	}
	if id == "" {
		return TimeSlot{}, fmt.Errorf("slot at %s: missing id", start.Format(time.RFC3339))
	}
	return TimeSlot{ID: id, Date: date, Start: start, End: end}, nil
}

// parseSlotTime accepts full timestamps or bare clock times; a bare clock
// time is anchored on the slot's date.
func parseSlotTime(value, date string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range slotTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if date != "" {
		for _, layout := range clockLayouts {
			if t, err := time.Parse("2006-01-02 "+layout, date+" "+value); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// jsonOrQuoted keeps RawJSON from emitting invalid JSON when the upstream
// body was not JSON at all.
func jsonOrQuoted(data []byte) []byte {
	if json.Valid(data) {
		return data
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}
