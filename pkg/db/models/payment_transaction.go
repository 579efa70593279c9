package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// PaymentTransaction tracks one gateway-facing order. Rows are created when
// checkout starts and mutated only by the webhook handler; success and failed
// are terminal.
type PaymentTransaction struct {
	ID                   uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              string                  `gorm:"column:order_id;not null;uniqueIndex"`
	OrganizationID       uuid.UUID               `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID               uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	PlanID               uuid.UUID               `gorm:"column:plan_id;type:uuid;not null"`
	Gateway              enums.PaymentGateway    `gorm:"column:gateway;type:payment_gateway;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Status               enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	GatewayTransactionID *string                 `gorm:"column:gateway_transaction_id"`
	GatewayPayload       json.RawMessage         `gorm:"column:gateway_payload;type:jsonb"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
