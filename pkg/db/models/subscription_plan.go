package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// SubscriptionPlan is immutable reference data describing a purchasable tier.
type SubscriptionPlan struct {
	ID            uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string                `gorm:"column:name;not null"`
	Slug          string                `gorm:"column:slug;not null;uniqueIndex"`
	Price         decimal.Decimal       `gorm:"column:price;type:numeric(14,2);not null"`
	Currency      string                `gorm:"column:currency;not null;default:'IDR'"`
	Interval      enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null;default:'monthly'"`
	StripePriceID *string               `gorm:"column:stripe_price_id"`
	IsDefault     bool                  `gorm:"column:is_default;not null;default:false"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// IsBasic reports whether the plan is the free tier that never grants premium access.
func (p SubscriptionPlan) IsBasic() bool {
	return p.Slug == "basic"
}
