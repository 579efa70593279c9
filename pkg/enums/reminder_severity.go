package enums

// ReminderSeverity grades how urgently a trial-expiration reminder should surface.
type ReminderSeverity string

const (
	ReminderSeverityNone   ReminderSeverity = "none"
	ReminderSeverityLow    ReminderSeverity = "low"
	ReminderSeverityMedium ReminderSeverity = "medium"
	ReminderSeverityHigh   ReminderSeverity = "high"
)

// String implements fmt.Stringer.
func (r ReminderSeverity) String() string {
	return string(r)
}
