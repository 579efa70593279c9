package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kelolahq/kelola-backend/pkg/db/models"
	"github.com/kelolahq/kelola-backend/pkg/enums"
)

// Repository handles profile persistence.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	CountOtherSuperAdmins(ctx context.Context, orgID, excludeUserID uuid.UUID) (int64, error)
	ListAdminsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Profile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a profile repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) CountOtherSuperAdmins(ctx context.Context, orgID, excludeUserID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("organization_id = ?", orgID).
		Where("role = ?", enums.UserRoleSuperAdmin).
		Where("id <> ?", excludeUserID).
		Count(&count).Error
	return count, err
}

// ListAdminsByOrg returns every profile that should receive billing notifications.
func (r *repository) ListAdminsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Where("role IN ?", []enums.UserRole{enums.UserRoleSuperAdmin, enums.UserRoleAdmin}).
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Profile{}).Error
}
