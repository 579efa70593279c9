package billing

import (
	"context"

	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
)

// Repository handles payment transaction persistence and audit trails.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	FindTransactionByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	AppendTransactionLog(ctx context.Context, entry *models.PaymentTransactionLog) error
	CreateAuditLog(ctx context.Context, entry *models.SubscriptionAuditLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) FindTransactionByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	if orderID == "" {
		return nil, nil
	}
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) AppendTransactionLog(ctx context.Context, entry *models.PaymentTransactionLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateAuditLog(ctx context.Context, entry *models.SubscriptionAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
