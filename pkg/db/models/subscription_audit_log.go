package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// SubscriptionAuditLog records subscription lifecycle transitions per tenant.
type SubscriptionAuditLog struct {
	ID             uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID         `gorm:"column:organization_id;type:uuid;not null;index"`
	Action         enums.AuditAction `gorm:"column:action;not null"`
	Detail         json.RawMessage   `gorm:"column:detail;type:jsonb"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}
