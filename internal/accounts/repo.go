package accounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
)

// CleanupRepository removes the residual data an account or tenant leaves
// behind. Callers treat failures as non-fatal.
type CleanupRepository interface {
	DeleteNotificationsByUser(ctx context.Context, userID uuid.UUID) error
	DeleteTransactionLogsByUser(ctx context.Context, userID uuid.UUID) error
	DeletePaymentTransactionsByUser(ctx context.Context, userID uuid.UUID) error
	DeleteNotificationsByOrg(ctx context.Context, orgID uuid.UUID) error
	DeleteTransactionLogsByOrg(ctx context.Context, orgID uuid.UUID) error
	DeletePaymentTransactionsByOrg(ctx context.Context, orgID uuid.UUID) error
	DeleteAuditLogsByOrg(ctx context.Context, orgID uuid.UUID) error
}

type cleanupRepository struct {
	db *gorm.DB
}

// NewCleanupRepository returns a cleanup repository bound to the provided database.
func NewCleanupRepository(db *gorm.DB) CleanupRepository {
	return &cleanupRepository{db: db}
}

func (r *cleanupRepository) DeleteNotificationsByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Notification{}).Error
}

func (r *cleanupRepository) DeleteTransactionLogsByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("transaction_id IN (?)", r.db.
			Model(&models.PaymentTransaction{}).
			Select("id").
			Where("user_id = ?", userID)).
		Delete(&models.PaymentTransactionLog{}).Error
}

func (r *cleanupRepository) DeletePaymentTransactionsByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.PaymentTransaction{}).Error
}

func (r *cleanupRepository) DeleteNotificationsByOrg(ctx context.Context, orgID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Delete(&models.Notification{}).Error
}

func (r *cleanupRepository) DeleteTransactionLogsByOrg(ctx context.Context, orgID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("transaction_id IN (?)", r.db.
			Model(&models.PaymentTransaction{}).
			Select("id").
			Where("organization_id = ?", orgID)).
		Delete(&models.PaymentTransactionLog{}).Error
}

func (r *cleanupRepository) DeletePaymentTransactionsByOrg(ctx context.Context, orgID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Delete(&models.PaymentTransaction{}).Error
}

func (r *cleanupRepository) DeleteAuditLogsByOrg(ctx context.Context, orgID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Delete(&models.SubscriptionAuditLog{}).Error
}
