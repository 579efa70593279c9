package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// Organization is the canonical tenant model. TrialExpired is a denormalized
// cache of the trial_end_date comparison; the timestamp always wins when the
// two disagree, and the cron worker reconciles the flag.
type Organization struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string                   `gorm:"column:name;not null"`
	SubscriptionStatus   enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status;not null;default:'trial'"`
	SubscriptionPlanID   *uuid.UUID               `gorm:"column:subscription_plan_id;type:uuid"`
	TrialStartDate       *time.Time               `gorm:"column:trial_start_date"`
	TrialEndDate         *time.Time               `gorm:"column:trial_end_date"`
	TrialExpired         bool                     `gorm:"column:trial_expired;not null;default:false"`
	GracePeriodEnd       *time.Time               `gorm:"column:grace_period_end"`
	SubscriptionEndsAt   *time.Time               `gorm:"column:subscription_ends_at"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            gorm.DeletedAt           `gorm:"column:deleted_at;index"`
}
