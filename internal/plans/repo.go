package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
)

// Repository reads subscription plan reference data.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	FindBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error)
	List(ctx context.Context) ([]models.SubscriptionPlan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error) {
	if slug == "" {
		return nil, nil
	}
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Where("slug = ?", slug).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	if err := r.db.WithContext(ctx).
		Order("is_default DESC, price ASC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
