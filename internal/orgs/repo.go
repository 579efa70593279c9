package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
)

// Repository handles organization persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	ListOverdueTrials(ctx context.Context, now time.Time, limit int) ([]models.Organization, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an organization repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) Update(ctx context.Context, org *models.Organization) error {
	return r.db.WithContext(ctx).Save(org).Error
}

func (r *repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", id).
		Update("stripe_customer_id", customerID).Error
}

// ListOverdueTrials returns trial tenants whose end date has passed but whose
// cached trial_expired flag has not been reconciled yet.
func (r *repository) ListOverdueTrials(ctx context.Context, now time.Time, limit int) ([]models.Organization, error) {
	if limit <= 0 {
		limit = 250
	}
	var orgs []models.Organization
	if err := r.db.WithContext(ctx).
		Where("subscription_status = ?", "trial").
		Where("trial_expired = false").
		Where("trial_end_date IS NOT NULL AND trial_end_date <= ?", now).
		Order("trial_end_date ASC").
		Limit(limit).
		Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Organization{}).Error
}
