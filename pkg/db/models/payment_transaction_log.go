package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// PaymentTransactionLog is the append-only audit trail of gateway
// notifications. The (order_id, gateway_transaction_id, status) unique index
// absorbs webhook redelivery without duplicating history.
type PaymentTransactionLog struct {
	ID                   uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID        uuid.UUID               `gorm:"column:transaction_id;type:uuid;not null;index"`
	OrderID              string                  `gorm:"column:order_id;not null;uniqueIndex:idx_payment_logs_delivery,priority:1"`
	GatewayTransactionID string                  `gorm:"column:gateway_transaction_id;not null;uniqueIndex:idx_payment_logs_delivery,priority:2"`
	Status               enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;uniqueIndex:idx_payment_logs_delivery,priority:3"`
	Payload              json.RawMessage         `gorm:"column:payload;type:jsonb"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
}
