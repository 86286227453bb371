package domain

import "strings"

// Placeholder values written into subscriptions that had to be repaired.
const (
	RepairRecipient = "repair@needed.com"
	RepairSchedule  = "*/30 * * * *"
	RepairInterval  = "30min"
)

// Subscription is a recipient group with a category filter and a cron schedule.
type Subscription struct {
	ID         string   `json:"id"`
	Classes    []string `json:"classes"`
	Recipients []string `json:"recipients"`
	Schedule   string   `json:"schedule"`
	Interval   string   `json:"interval,omitempty"`
}

// Valid reports whether the subscription carries every required field.
func (s Subscription) Valid() bool {
	return strings.TrimSpace(s.ID) != "" &&
		strings.TrimSpace(s.Schedule) != "" &&
		len(s.Recipients) > 0
}

// Intervals maps the dashboard interval keys to cron expressions.
var Intervals = map[string]string{
	"15min": "*/15 * * * *",
	"30min": "*/30 * * * *",
	"1hour": "0 * * * *",
	"2hour": "0 */2 * * *",
	"6hour": "0 */6 * * *",
	"daily": "0 9 * * *",
}
