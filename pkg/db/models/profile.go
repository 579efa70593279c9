package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// Profile mirrors the auth account 1:1 and pins the user to an organization.
type Profile struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID      `gorm:"column:organization_id;type:uuid;not null;index"`
	Role           enums.UserRole `gorm:"column:role;type:user_role;not null;default:'employee'"`
	FullName       string         `gorm:"column:full_name;not null"`
	Email          string         `gorm:"column:email;not null;uniqueIndex"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
