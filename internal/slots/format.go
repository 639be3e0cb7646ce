package slots

import (
	"fmt"
	"time"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

// DateLabel is the pieces the dashboard renders for a date header.
type DateLabel struct {
	Weekday string `json:"weekday"` // "Mon"
	Month   string `json:"month"`   // "Jun"
	Day     int    `json:"day"`     // 10
}

// FormatDate splits a YYYY-MM-DD date into its display pieces.
func FormatDate(date string) (DateLabel, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return DateLabel{}, fmt.Errorf("format date %q: %w", date, err)
	}
	return DateLabel{
		Weekday: t.Format("Mon"),
		Month:   t.Format("Jan"),
		Day:     t.Day(),
	}, nil
}

// FormatRange renders a slot as "1 PM - 2:30 PM": always 12-hour, minutes
// omitted when they are :00.
func FormatRange(slot crm.TimeSlot) string {
	return FormatClock(slot.Start) + " - " + FormatClock(slot.End)
}

// FormatClock renders one instant as "h AM/PM" or "h:mm AM/PM".
func FormatClock(t time.Time) string {
	if t.Minute() == 0 {
		return t.Format("3 PM")
	}
	return t.Format("3:04 PM")
}
