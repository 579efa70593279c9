package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypePaymentSuccess NotificationType = "payment_success"
	NotificationTypePaymentFailed  NotificationType = "payment_failed"
	NotificationTypeTrialReminder  NotificationType = "trial_reminder"
	NotificationTypeTrialExpired   NotificationType = "trial_expired"
	NotificationTypePlanChanged    NotificationType = "plan_changed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentSuccess,
	NotificationTypePaymentFailed,
	NotificationTypeTrialReminder,
	NotificationTypeTrialExpired,
	NotificationTypePlanChanged,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is known.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
