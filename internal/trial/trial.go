package trial

import (
	"math"
	"time"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
)

const day = 24 * time.Hour

// IsActive reports whether the organization is inside a live trial window.
// The trial_expired flag is a cache; the end-date comparison always wins.
func IsActive(org *models.Organization, now time.Time) bool {
	if org == nil || org.TrialEndDate == nil {
		return false
	}
	return org.SubscriptionStatus == enums.SubscriptionStatusTrial &&
		!org.TrialExpired &&
		org.TrialEndDate.After(now)
}

// DaysLeft returns the number of whole-or-partial days until the trial ends,
// floored at zero. Organizations without a trial end date report zero.
func DaysLeft(org *models.Organization, now time.Time) int {
	if org == nil || org.TrialEndDate == nil {
		return 0
	}
	remaining := org.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}

// IsInGracePeriod reports whether an expired trial still has runway.
func IsInGracePeriod(org *models.Organization, now time.Time) bool {
	if org == nil || org.GracePeriodEnd == nil {
		return false
	}
	return org.TrialExpired && org.GracePeriodEnd.After(now)
}

// ReminderSeverity grades how loudly the UI should warn about trial expiration.
// Organizations on an active paid subscription never get reminders.
func ReminderSeverity(org *models.Organization, now time.Time) enums.ReminderSeverity {
	if org == nil {
		return enums.ReminderSeverityNone
	}
	if org.SubscriptionStatus == enums.SubscriptionStatusActive {
		return enums.ReminderSeverityNone
	}
	if org.TrialEndDate == nil {
		return enums.ReminderSeverityNone
	}

	if org.TrialExpired || !org.TrialEndDate.After(now) {
		return enums.ReminderSeverityHigh
	}

	switch days := DaysLeft(org, now); {
	case days <= 1:
		return enums.ReminderSeverityHigh
	case days <= 3:
		return enums.ReminderSeverityMedium
	case days <= 7:
		return enums.ReminderSeverityLow
	default:
		return enums.ReminderSeverityNone
	}
}

// HasPremiumAccess decides feature gating from independent entitlement
// sources, first match wins. New entitlement sources (e.g. an enterprise
// override) belong here as additional branches, not edits to existing ones.
func HasPremiumAccess(org *models.Organization, plan *models.SubscriptionPlan, now time.Time) bool {
	if org == nil {
		return false
	}

	// 1. Active paid subscription on a non-basic plan.
	if org.SubscriptionStatus == enums.SubscriptionStatusActive &&
		org.SubscriptionPlanID != nil &&
		plan != nil && !plan.IsBasic() {
		return true
	}

	// 2. Live trial.
	if IsActive(org, now) {
		return true
	}

	// 3. Expired but still inside the grace window.
	if org.SubscriptionStatus == enums.SubscriptionStatusExpired &&
		org.GracePeriodEnd != nil && org.GracePeriodEnd.After(now) {
		return true
	}

	return false
}

// Summary is the read model handed to API callers.
type Summary struct {
	IsTrialActive    bool                   `json:"is_trial_active"`
	DaysLeft         int                    `json:"days_left"`
	IsInGracePeriod  bool                   `json:"is_in_grace_period"`
	ReminderSeverity enums.ReminderSeverity `json:"reminder_severity"`
	HasPremiumAccess bool                   `json:"has_premium_access"`
}

// Summarize evaluates every calculator against one snapshot.
func Summarize(org *models.Organization, plan *models.SubscriptionPlan, now time.Time) Summary {
	return Summary{
		IsTrialActive:    IsActive(org, now),
		DaysLeft:         DaysLeft(org, now),
		IsInGracePeriod:  IsInGracePeriod(org, now),
		ReminderSeverity: ReminderSeverity(org, now),
		HasPremiumAccess: HasPremiumAccess(org, plan, now),
	}
}
