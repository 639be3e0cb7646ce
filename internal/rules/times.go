package rules

import (
	"fmt"
	"time"
)

// TimeOption is one entry in the start/end time pickers.
type TimeOption struct {
	Value string `json:"value"` // "13:30"
	Label string `json:"label"` // "1:30 PM"
}

// TimeOptions generates the half-hour choices spanning a full day. Start and
// end are picked independently from the same list; no ordering between them
// is enforced here, the upstream API owns that rule.
func TimeOptions() []TimeOption {
	options := make([]TimeOption, 0, 48)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 30} {
			t := time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC)
			options = append(options, TimeOption{
				Value: fmt.Sprintf("%02d:%02d", hour, minute),
				Label: t.Format("3:04 PM"),
			})
		}
	}
	return options
}
